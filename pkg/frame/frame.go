package frame

import (
	"fmt"
	"sync"
)

// Kind classifies the content of a frame.
type Kind int

const (
	Control Kind = iota
	Voice
	// Video is reserved; no engine schedules video frames.
	Video
	Silence
)

func (k Kind) String() string {
	switch k {
	case Control:
		return "Control"
	case Voice:
		return "Voice"
	case Video:
		return "Video"
	case Silence:
		return "Silence"
	}
	return "Unknown"
}

// InterpolationSrc is the Src of frames synthesized by the jitterbuffer.
const InterpolationSrc = "JB interpolation"

// Frame is one unit of timed payload. Timestamp and Duration are in
// milliseconds of the sender's timeline.
//
// Frames are pooled. The owner at the end of a frame's life calls Release;
// every API that moves a frame states who owns it afterwards.
type Frame struct {
	Payload      []byte
	Timestamp    int64
	Duration     int64
	Kind         Kind
	Src          string
	Interpolated bool
}

var pool = &sync.Pool{
	New: func() interface{} {
		return &Frame{}
	},
}

// New returns a pooled frame. The caller owns it.
func New(kind Kind, ts, duration int64, payload []byte) *Frame {
	f := pool.Get().(*Frame)
	f.Kind = kind
	f.Timestamp = ts
	f.Duration = duration
	f.Payload = payload
	return f
}

// NewInterpolated returns an empty voice frame standing in for a missing
// one; the consumer is expected to conceal it (silence or codec PLC).
func NewInterpolated(ts, duration int64) *Frame {
	f := New(Voice, ts, duration, nil)
	f.Src = InterpolationSrc
	f.Interpolated = true
	return f
}

// Clone returns a pooled deep copy of f.
func (f *Frame) Clone() *Frame {
	var payload []byte
	if f.Payload != nil {
		payload = make([]byte, len(f.Payload))
		copy(payload, f.Payload)
	}
	c := New(f.Kind, f.Timestamp, f.Duration, payload)
	c.Src = f.Src
	c.Interpolated = f.Interpolated
	return c
}

// Release hands the frame back to the pool. f must not be used afterwards.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	*f = Frame{}
	pool.Put(f)
}

func (f *Frame) String() string {
	return fmt.Sprintf("%v frame ts=%d len=%d", f.Kind, f.Timestamp, f.Duration)
}
