package jitterbuf

import "math"

// Return is the outcome of an engine operation.
type Return int

const (
	// OK: a frame was accepted, or one is returned for playout.
	OK Return = iota
	// Empty: nothing is queued.
	Empty
	// NoFrame: nothing is due yet.
	NoFrame
	// Interp: the caller should play an interpolated frame.
	Interp
	// Drop: the frame is not played; the caller releases it.
	Drop
	// Sched: the frame became the head of the queue; reschedule.
	Sched
	// NoJB: the jitterbuffer has been destroyed.
	NoJB
)

func (r Return) String() string {
	switch r {
	case OK:
		return "OK"
	case Empty:
		return "EMPTY"
	case NoFrame:
		return "NOFRAME"
	case Interp:
		return "INTERP"
	case Drop:
		return "DROP"
	case Sched:
		return "SCHED"
	case NoJB:
		return "NOJB"
	}
	return "UNKNOWN"
}

// Forever is returned by Next and NextWakeup when there is nothing to wait for.
const Forever int64 = math.MaxInt64

// State is the lifecycle state of a JitterBuf.
type State int

const (
	Uninitialized State = iota
	Active
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Active:
		return "Active"
	case Destroyed:
		return "Destroyed"
	}
	return "Unknown"
}

// Info is a snapshot of the engine's statistics.
type Info struct {
	State  State
	Silent bool

	FramesIn      uint64
	FramesOut     uint64
	FramesLate    uint64
	FramesLost    uint64
	FramesDropped uint64
	FramesOOO     uint64
	FramesCurrent int

	Current        int64
	Target         int64
	Jitter         int64
	Min            int64
	LossPct        int64 // thousandths of a percent
	LastVoiceMs    int64
	LastAdjustment int64
	NextVoiceTS    int64
	ResyncOffset   int64

	LastDeliveredTS       int64
	LastDeliveredDuration int64
}
