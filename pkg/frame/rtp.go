package frame

import (
	"errors"

	"github.com/pion/rtp"
)

var (
	ErrEmptyPayload = errors.New("rtp packet has no payload")
	ErrClockRate    = errors.New("clock rate cannot be zero")
	// ErrBeforeOrigin is returned for a packet stamped earlier than the
	// first packet of the stream. It arrived too late to be played.
	ErrBeforeOrigin = errors.New("rtp packet precedes the stream origin")
)

// RTPConverter maps RTP audio packets of one stream onto voice frames with
// millisecond timestamps. The first packet maps to timestamp 0, the 32-bit
// RTP timestamp is unwrapped, and a change of SSRC continues the timeline
// right after the last converted frame.
type RTPConverter struct {
	clockRate uint32
	ptime     int64

	started bool
	ssrc    uint32
	last    uint32
	ext     int64 // extended RTP timestamp of last, in clock units
	offset  int64 // ms added after an SSRC change
	lastMs  int64
}

// NewRTPConverter creates a converter for a stream sampled at clockRate whose
// packets each carry ptime milliseconds of audio.
func NewRTPConverter(clockRate uint32, ptime int64) (*RTPConverter, error) {
	if clockRate == 0 {
		return nil, ErrClockRate
	}
	if ptime <= 0 {
		ptime = 20
	}
	return &RTPConverter{clockRate: clockRate, ptime: ptime}, nil
}

// Convert returns a new voice frame owned by the caller. The payload is
// copied so the packet buffer may be reused. A packet older than the stream
// origin yields ErrBeforeOrigin and leaves the converter unchanged.
func (c *RTPConverter) Convert(pkt *rtp.Packet) (*Frame, error) {
	if len(pkt.Payload) == 0 {
		return nil, ErrEmptyPayload
	}

	switch {
	case !c.started:
		c.started = true
		c.ssrc = pkt.SSRC
		c.last = pkt.Timestamp
		c.ext = 0
	case pkt.SSRC != c.ssrc:
		c.ssrc = pkt.SSRC
		c.last = pkt.Timestamp
		c.ext = 0
		c.offset = c.lastMs + c.ptime
	default:
		ext := c.ext + int64(int32(pkt.Timestamp-c.last))
		if c.offset+ext < 0 {
			return nil, ErrBeforeOrigin
		}
		c.ext = ext
		c.last = pkt.Timestamp
	}

	ts := c.offset + c.ext*1000/int64(c.clockRate)
	c.lastMs = ts

	payload := make([]byte, len(pkt.Payload))
	copy(payload, pkt.Payload)
	f := New(Voice, ts, c.ptime, payload)
	f.Src = "RTP"
	return f, nil
}

// SamplesPerFrame is the RTP timestamp increment of one frame.
func (c *RTPConverter) SamplesPerFrame() uint32 {
	return uint32(int64(c.clockRate) * c.ptime / 1000)
}
