// Package jitterbuf implements an adaptive playout buffer for timestamped
// voice frames. The delay follows the measured network jitter: it grows
// by inserting interpolated frames and shrinks by skipping playout slots.
//
// A JitterBuf is not safe for concurrent use.
package jitterbuf

import (
	"math"

	"github.com/ghettovoice/gosip/log"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/frame"
	"github.com/cloudwebrtc/go-jitterbuf/pkg/utils"
)

var logger log.Logger

func init() {
	logger = utils.NewLogrusLogger(log.InfoLevel, "JitterBuf", nil)
}

const (
	lossScale        = 100000 // losspct is in thousandths of a percent
	lossWindow       = 500
	maxDelayDiscont  = 3
	silenceForgotten = math.MinInt64
)

type Option func(jb *JitterBuf)

func WithLogger(l log.Logger) Option {
	return func(jb *JitterBuf) {
		jb.logger = l
	}
}

// JitterBuf is the adaptive engine. Times passed to it share one clock;
// frame timestamps are on the sender's timeline. Both are milliseconds.
type JitterBuf struct {
	conf   Config
	logger log.Logger

	hist  *history
	queue *queue
	adj   adjuster

	state  State
	silent bool

	// ts - resyncOffset maps a sender timestamp onto the local clock.
	resyncOffset    int64
	lastDelay       int64
	cntDelayDiscont int
	resyncPending   bool
	emergency       bool
	dropem          bool

	current        int64
	target         int64
	jitter         int64
	min            int64
	losspct        int64
	lastAdjustment int64

	nextVoiceTS     int64
	lastVoiceMs     int64
	silenceBeginTS  int64
	cntContigInterp int64

	lastDeliveredTS  int64
	lastDeliveredDur int64

	framesIn      uint64
	framesOut     uint64
	framesLate    uint64
	framesLost    uint64
	framesDropped uint64
	framesOOO     uint64
}

// New creates an engine. Unset Config fields take their defaults.
func New(conf Config, opts ...Option) (*JitterBuf, error) {
	if err := conf.normalize(); err != nil {
		return nil, err
	}
	jb := &JitterBuf{
		conf:   conf,
		logger: logger,
		hist:   newHistory(conf.HistorySize, conf.DropPct),
		queue:  newQueue(),
	}
	jb.adj = adjuster{conf: &jb.conf}
	for _, o := range opts {
		o(jb)
	}
	return jb, nil
}

func (jb *JitterBuf) Config() Config {
	return jb.conf
}

// PutFirst starts the stream with f, which the caller plays immediately and
// keeps ownership of. The engine only records its timing: f becomes the
// origin of the local timeline and the engine waits silently for the
// frames that follow it.
func (jb *JitterBuf) PutFirst(f *frame.Frame, now int64) Return {
	if jb.state == Destroyed {
		return NoJB
	}
	if jb.state == Active {
		jb.logger.Warnf("put_first on a running jitterbuffer, resynchronising on ts=%d", f.Timestamp)
	}
	jb.start(f.Timestamp, now)
	jb.hist.record(0)
	jb.refresh()

	jb.lastVoiceMs = f.Duration
	jb.nextVoiceTS = f.Timestamp + f.Duration
	jb.silenceBeginTS = jb.nextVoiceTS
	jb.lastDeliveredTS = f.Timestamp
	jb.lastDeliveredDur = f.Duration
	return OK
}

// start seeds the timeline so that a frame stamped ts arriving at now has
// zero delay, and enters the silent state.
func (jb *JitterBuf) start(ts, now int64) {
	jb.state = Active
	jb.rebase(ts - now)
	jb.lastAdjustment = now
}

// rebase moves the timeline origin. Queued frames keep their playout
// instants and the engine waits silently for the next voice frame without
// treating anything as late.
func (jb *JitterBuf) rebase(offset int64) {
	shift := offset - jb.resyncOffset
	jb.queue.rebase(shift)
	jb.nextVoiceTS += shift
	jb.resyncOffset = offset
	jb.hist.reset()
	jb.lastDelay = 0
	jb.cntDelayDiscont = 0
	jb.silent = true
	jb.silenceBeginTS = silenceForgotten
	jb.cntContigInterp = 0
}

// Put queues f. On OK or Sched the engine owns f; on Drop it stays with the
// caller. Sched means f is now the earliest queued frame.
func (jb *JitterBuf) Put(f *frame.Frame, now int64) Return {
	switch jb.state {
	case Destroyed:
		return NoJB
	case Uninitialized:
		jb.start(f.Timestamp, now)
	}

	if f.Kind == frame.Voice {
		if jb.resyncPending {
			jb.resync(f.Timestamp, now, "forced")
			jb.resyncPending = false
			jb.emergency = true
		}
		if !jb.historyPut(f.Timestamp, now) {
			jb.framesDropped++
			return Drop
		}
		if jb.tooLate(f.Timestamp) {
			jb.logger.Debugf("late frame ts=%d, next=%d, silent=%v", f.Timestamp, jb.nextVoiceTS, jb.silent)
			jb.framesLate++
			jb.framesDropped++
			return Drop
		}
	}

	jb.overflow(f.Timestamp)

	head, ooo, dup := jb.queue.insert(f, f.Timestamp)
	if dup {
		jb.logger.Debugf("duplicate frame ts=%d", f.Timestamp)
		jb.framesDropped++
		return Drop
	}
	jb.framesIn++
	if ooo {
		jb.framesOOO++
	}
	jb.refresh()
	if head {
		return Sched
	}
	return OK
}

// overflow drops the oldest queued frames while adding ts would make the
// queue span MaxJitterbuf or more.
func (jb *JitterBuf) overflow(ts int64) {
	limit := jb.conf.MaxJitterbuf
	if limit <= 0 {
		return
	}
	overflowed := false
	for {
		first, ok := jb.queue.first()
		if !ok {
			break
		}
		last, _ := jb.queue.last()
		if ts > last {
			last = ts
		}
		if last-first < limit {
			break
		}
		f, _ := jb.queue.removeFirst()
		f.Release()
		jb.framesDropped++
		overflowed = true
	}
	if overflowed && !jb.dropem {
		jb.logger.Warnf("queue overflow at ts=%d, dropping oldest frames", ts)
	}
	jb.dropem = overflowed
}

// historyPut records the delay of a voice frame. It returns false when the
// frame looks like a timestamp discontinuity that has not yet persisted
// long enough to resynchronise.
func (jb *JitterBuf) historyPut(ts, now int64) bool {
	delay := now - (ts - jb.resyncOffset)

	if jb.conf.ResyncThreshold > 0 {
		threshold := 2*jb.jitter + jb.conf.ResyncThreshold
		if abs(delay-jb.lastDelay) > threshold {
			jb.cntDelayDiscont++
			if jb.cntDelayDiscont <= maxDelayDiscont {
				jb.logger.Debugf("delay discontinuity ts=%d delay=%d last=%d (%d)", ts, delay, jb.lastDelay, jb.cntDelayDiscont)
				return false
			}
			jb.resync(ts, now, "discontinuity")
			delay = 0
		} else {
			jb.lastDelay = delay
			jb.cntDelayDiscont = 0
		}
	}

	jb.hist.record(delay)
	return true
}

func (jb *JitterBuf) resync(ts, now int64, reason string) {
	jb.logger.Infof("resync (%s) at ts=%d, offset %d -> %d", reason, ts, jb.resyncOffset, ts-now)
	jb.rebase(ts - now)
}

func (jb *JitterBuf) tooLate(ts int64) bool {
	if jb.state != Active {
		return false
	}
	if jb.silent {
		return ts < jb.silenceBeginTS
	}
	return ts <= jb.nextVoiceTS-jb.lastVoiceMs
}

// ForceResync makes the next voice frame the new timeline origin.
func (jb *JitterBuf) ForceResync() {
	if jb.state == Destroyed {
		return
	}
	jb.resyncPending = true
}

func (jb *JitterBuf) refresh() {
	jb.jitter, jb.min = jb.hist.stats()
	jb.target = jb.adj.target(jb.jitter, jb.min, jb.losspct)
}

func (jb *JitterBuf) incrementLosspct() {
	jb.losspct = (lossScale + (lossWindow-1)*jb.losspct) / lossWindow
}

func (jb *JitterBuf) decrementLosspct() {
	jb.losspct = (lossWindow - 1) * jb.losspct / lossWindow
}

func (jb *JitterBuf) enterSilence(beginTS int64) {
	jb.silent = true
	jb.silenceBeginTS = beginTS
}

func (jb *JitterBuf) deliver(f *frame.Frame) {
	jb.framesOut++
	jb.lastDeliveredTS = f.Timestamp
	jb.lastDeliveredDur = f.Duration
}

// Get returns what to play at now. On OK and Interp the caller owns the
// returned frame and plays it; on Drop the caller releases it. interpl is
// the length of an interpolated frame.
func (jb *JitterBuf) Get(now, interpl int64) (*frame.Frame, Return) {
	switch jb.state {
	case Destroyed:
		return nil, NoJB
	case Uninitialized:
		return nil, Empty
	}
	jb.refresh()
	if jb.silent {
		return jb.getSilent(now, interpl)
	}
	return jb.getNormal(now, interpl)
}

func (jb *JitterBuf) getNormal(now, interpl int64) (*frame.Frame, Return) {
	if jb.nextVoiceTS-jb.resyncOffset+jb.current > now {
		return nil, NoFrame
	}

	// grow by playing an interpolated frame ahead of the next slot
	if g := jb.adj.grow(jb.current, jb.target, now, jb.lastAdjustment, interpl, jb.emergency); g > 0 {
		jb.current += g
		jb.lastAdjustment = now
		jb.emergency = false
		jb.cntContigInterp++
		nf := frame.NewInterpolated(jb.nextVoiceTS, g)
		if jb.conf.MaxContigInterp > 0 && jb.cntContigInterp >= jb.conf.MaxContigInterp {
			jb.enterSilence(jb.nextVoiceTS)
		}
		return nf, Interp
	}

	f, at := jb.queue.removeDue(jb.nextVoiceTS)
	if f != nil && f.Kind != frame.Voice {
		jb.deliver(f)
		if f.Kind == frame.Silence {
			jb.cntContigInterp = 0
			jb.enterSilence(at)
		}
		return f, OK
	}

	if f != nil && at < jb.nextVoiceTS {
		if at > jb.nextVoiceTS-jb.lastVoiceMs {
			// overlaps the previous slot; play it and realign
			jb.playVoice(f, at)
			return f, OK
		}
		jb.logger.Debugf("dropping late frame ts=%d, next=%d", at, jb.nextVoiceTS)
		jb.framesLate++
		jb.framesDropped++
		if jb.framesLost > 0 {
			// it was counted lost when its slot was interpolated
			jb.framesLost--
		}
		return f, Drop
	}

	if f != nil && f.Duration > 0 {
		jb.lastVoiceMs = f.Duration
	}

	interval := jb.conf.ShrinkInterval
	if f == nil {
		interval = jb.conf.AdjustInterval
	}
	if s := jb.adj.shrink(jb.current, jb.target, now, jb.lastAdjustment, jb.lastVoiceMs, interval, jb.emergency); s > 0 {
		jb.current -= s
		jb.lastAdjustment = now
		jb.emergency = false
		jb.cntContigInterp = 0
		if f == nil {
			// the missing slot is skipped instead of concealed
			jb.framesLost++
			jb.incrementLosspct()
			jb.nextVoiceTS += s
			// the following slot is due at the same instant
			return jb.getNormal(now, interpl)
		}
	}

	if f == nil {
		jb.framesLost++
		jb.incrementLosspct()
		jb.cntContigInterp++
		nf := frame.NewInterpolated(jb.nextVoiceTS, interpl)
		jb.nextVoiceTS += interpl
		jb.lastVoiceMs = interpl
		if jb.conf.MaxContigInterp > 0 && jb.cntContigInterp >= jb.conf.MaxContigInterp {
			jb.enterSilence(jb.nextVoiceTS)
		}
		return nf, Interp
	}

	jb.playVoice(f, at)
	return f, OK
}

// playVoice delivers a voice frame scheduled at ts and expects the next one
// right after it.
func (jb *JitterBuf) playVoice(f *frame.Frame, ts int64) {
	jb.deliver(f)
	jb.nextVoiceTS = ts + f.Duration
	if f.Duration > 0 {
		jb.lastVoiceMs = f.Duration
	}
	jb.cntContigInterp = 0
	jb.decrementLosspct()
}

func (jb *JitterBuf) getSilent(now, interpl int64) (*frame.Frame, Return) {
	if g := jb.adj.grow(jb.current, jb.target, now, jb.lastAdjustment, interpl, jb.emergency); g > 0 {
		jb.current += g
		jb.lastAdjustment = now
		jb.emergency = false
	} else if s := jb.adj.shrink(jb.current, jb.target, now, jb.lastAdjustment, interpl, jb.conf.AdjustInterval, jb.emergency); s > 0 {
		jb.current -= s
		jb.lastAdjustment = now
		jb.emergency = false
	}

	if jb.queue.len() == 0 {
		return nil, Empty
	}
	if jb.queue.peekDue(now-jb.current+jb.resyncOffset) == nil {
		return nil, NoFrame
	}
	f, at := jb.queue.removeFirst()

	if f.Kind != frame.Voice {
		jb.deliver(f)
		return f, OK
	}
	if at < jb.silenceBeginTS {
		jb.logger.Debugf("dropping stale frame ts=%d during silence from %d", at, jb.silenceBeginTS)
		jb.framesLate++
		jb.framesDropped++
		return f, Drop
	}

	jb.silent = false
	jb.playVoice(f, at)
	return f, OK
}

// RemoveFirst takes the earliest queued frame regardless of its schedule.
// Used to drain the buffer; the caller owns the frame.
func (jb *JitterBuf) RemoveFirst() (*frame.Frame, Return) {
	if jb.state == Destroyed {
		return nil, NoJB
	}
	f, _ := jb.queue.removeFirst()
	if f == nil {
		return nil, NoFrame
	}
	return f, OK
}

// Next returns the local time at which Get should next be called, or
// Forever when nothing is queued.
func (jb *JitterBuf) Next() int64 {
	if jb.state != Active || jb.queue.len() == 0 {
		return Forever
	}
	if jb.silent {
		_, at := jb.queue.peek()
		next := at - jb.resyncOffset + jb.current
		if jb.current-jb.target > jb.conf.TargetExtra {
			if adjust := jb.lastAdjustment + jb.conf.AdjustInterval; adjust < next {
				next = adjust
			}
		}
		return next
	}
	return jb.nextVoiceTS - jb.resyncOffset + jb.current
}

// NextWakeup returns how long to wait from now before calling Get, at least
// 1, or Forever.
func (jb *JitterBuf) NextWakeup(now int64) int64 {
	next := jb.Next()
	if next == Forever {
		return Forever
	}
	if d := next - now; d > 1 {
		return d
	}
	return 1
}

// Destroy releases every queued frame. Later calls return NoJB.
func (jb *JitterBuf) Destroy() {
	if jb.state == Destroyed {
		return
	}
	for _, f := range jb.queue.drain() {
		f.Release()
	}
	jb.state = Destroyed
}

func (jb *JitterBuf) Info() Info {
	return Info{
		State:                 jb.state,
		Silent:                jb.silent,
		FramesIn:              jb.framesIn,
		FramesOut:             jb.framesOut,
		FramesLate:            jb.framesLate,
		FramesLost:            jb.framesLost,
		FramesDropped:         jb.framesDropped,
		FramesOOO:             jb.framesOOO,
		FramesCurrent:         jb.queue.len(),
		Current:               jb.current,
		Target:                jb.target,
		Jitter:                jb.jitter,
		Min:                   jb.min,
		LossPct:               jb.losspct,
		LastVoiceMs:           jb.lastVoiceMs,
		LastAdjustment:        jb.lastAdjustment,
		NextVoiceTS:           jb.nextVoiceTS,
		ResyncOffset:          jb.resyncOffset,
		LastDeliveredTS:       jb.lastDeliveredTS,
		LastDeliveredDuration: jb.lastDeliveredDur,
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
