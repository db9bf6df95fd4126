// Package fixedjb is a constant-delay jitterbuffer: every frame is played
// a fixed Size after its arrival, measured against the first frame.
package fixedjb

import (
	"github.com/gammazero/deque"
	"github.com/ghettovoice/gosip/log"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/frame"
	"github.com/cloudwebrtc/go-jitterbuf/pkg/utils"
)

var logger log.Logger

func init() {
	logger = utils.NewLogrusLogger(log.InfoLevel, "FixedJB", nil)
}

type Return int

const (
	OK Return = iota
	Drop
	Interp
	NoFrame
)

func (r Return) String() string {
	switch r {
	case OK:
		return "OK"
	case Drop:
		return "DROP"
	case Interp:
		return "INTERP"
	case NoFrame:
		return "NOFRAME"
	}
	return "UNKNOWN"
}

const (
	DefaultSize            = 200
	DefaultResyncThreshold = 1000
)

type Config struct {
	Size            int64 `json:"size" yaml:"size"`
	ResyncThreshold int64 `json:"resync_threshold" yaml:"resync_threshold"`
}

type Info struct {
	Len           int
	Delay         int64
	NextDelivery  int64
	FramesIn      uint64
	FramesOut     uint64
	FramesDropped uint64
	FramesInterp  uint64
	Resyncs       uint64
}

type entry struct {
	f        *frame.Frame
	ts       int64
	ms       int64
	delivery int64
}

type Option func(jb *FixedJB)

func WithLogger(l log.Logger) Option {
	return func(jb *FixedJB) {
		jb.logger = l
	}
}

type FixedJB struct {
	conf   Config
	logger log.Logger

	// ordered by delivery
	frames deque.Deque[*entry]

	rxcore       int64
	delay        int64
	nextDelivery int64
	forceResync  bool

	framesIn      uint64
	framesOut     uint64
	framesDropped uint64
	framesInterp  uint64
	resyncs       uint64
}

func New(conf Config, opts ...Option) *FixedJB {
	if conf.Size < 1 {
		conf.Size = DefaultSize
	}
	if conf.ResyncThreshold < 1 {
		conf.ResyncThreshold = DefaultResyncThreshold
	}
	jb := &FixedJB{
		conf:   conf,
		logger: logger,
		delay:  conf.Size,
	}
	for _, o := range opts {
		o(jb)
	}
	return jb
}

// PutFirst sets the receiver time base from f and queues it.
func (jb *FixedJB) PutFirst(f *frame.Frame, now int64) Return {
	jb.rxcore = now - f.Timestamp
	jb.nextDelivery = now + jb.delay
	return jb.Put(f, now)
}

// Put queues f for delivery at its arrival-relative instant. On Drop the
// caller keeps f.
func (jb *FixedJB) Put(f *frame.Frame, now int64) Return {
	return jb.put(f, f.Timestamp, now)
}

func (jb *FixedJB) put(f *frame.Frame, ts, now int64) Return {
	delivery := jb.rxcore + jb.delay + ts

	// too late, or too far in the future
	if delivery < jb.nextDelivery || delivery > jb.nextDelivery+jb.delay+jb.conf.ResyncThreshold {
		return jb.resync(f, ts, now)
	}

	i := jb.frames.Len() - 1
	for i >= 0 && jb.frames.At(i).delivery > delivery {
		i--
	}
	if i >= 0 {
		prev := jb.frames.At(i)
		overlaps := prev.delivery == delivery || delivery < prev.delivery+prev.ms
		if !overlaps && i+1 < jb.frames.Len() {
			overlaps = jb.frames.At(i+1).delivery < delivery+f.Duration
		}
		if overlaps {
			return jb.resync(f, ts, now)
		}
	}

	jb.forceResync = false
	jb.frames.Insert(i+1, &entry{f: f, ts: ts, ms: f.Duration, delivery: delivery})
	jb.framesIn++
	return OK
}

// resync shifts the time base so that f follows the last queued frame, when
// the timestamp jump is big enough or a resync was forced. Otherwise the
// frame is dropped.
func (jb *FixedJB) resync(f *frame.Frame, ts, now int64) Return {
	if jb.frames.Len() == 0 {
		jb.resyncs++
		return jb.PutFirst(f, now)
	}

	tail := jb.frames.Back()
	offset := ts - tail.ts - tail.ms
	if !jb.forceResync && offset < jb.conf.ResyncThreshold && offset > -jb.conf.ResyncThreshold {
		jb.framesDropped++
		return Drop
	}

	jb.logger.Debugf("resync by %d at ts=%d (forced=%v)", offset, ts, jb.forceResync)
	jb.forceResync = false
	jb.resyncs++
	jb.rxcore -= offset
	for i := 0; i < jb.frames.Len(); i++ {
		jb.frames.At(i).ts += offset
	}
	return jb.put(f, ts, now)
}

func (jb *FixedJB) SetForceResync() {
	jb.forceResync = true
}

// Get returns the frame to play at now. OK frames belong to the caller;
// Drop frames must be released by the caller.
func (jb *FixedJB) Get(now, interpl int64) (*frame.Frame, Return) {
	if now < jb.nextDelivery {
		return nil, NoFrame
	}
	if jb.frames.Len() == 0 {
		jb.nextDelivery += interpl
		jb.framesInterp++
		return nil, Interp
	}

	head := jb.frames.Front()
	if now > head.delivery+head.ms {
		jb.framesDropped++
		return jb.popHead(), Drop
	}
	if now < head.delivery {
		jb.nextDelivery += interpl
		jb.framesInterp++
		return nil, Interp
	}
	jb.framesOut++
	return jb.popHead(), OK
}

func (jb *FixedJB) popHead() *frame.Frame {
	e := jb.frames.PopFront()
	jb.nextDelivery = e.delivery + e.ms
	return e.f
}

// Next is the time of the next expected delivery.
func (jb *FixedJB) Next() int64 {
	return jb.nextDelivery
}

// Remove takes the head frame regardless of its delivery time.
func (jb *FixedJB) Remove() (*frame.Frame, Return) {
	if jb.frames.Len() == 0 {
		return nil, NoFrame
	}
	return jb.popHead(), OK
}

func (jb *FixedJB) Len() int {
	return jb.frames.Len()
}

// Destroy releases any frames still queued.
func (jb *FixedJB) Destroy() {
	if n := jb.frames.Len(); n > 0 {
		jb.logger.Warnf("destroying fixed jitterbuffer with %d queued frames", n)
	}
	for jb.frames.Len() > 0 {
		jb.frames.PopFront().f.Release()
	}
}

func (jb *FixedJB) Info() Info {
	return Info{
		Len:           jb.frames.Len(),
		Delay:         jb.delay,
		NextDelivery:  jb.nextDelivery,
		FramesIn:      jb.framesIn,
		FramesOut:     jb.framesOut,
		FramesDropped: jb.framesDropped,
		FramesInterp:  jb.framesInterp,
		Resyncs:       jb.resyncs,
	}
}
