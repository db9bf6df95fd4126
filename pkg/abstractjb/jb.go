// Package abstractjb lets the bridging code drive any jitterbuffer engine
// the same way. A Leg wraps the outbound channel of one side of a bridge:
// frames read from the peer are submitted to the leg, buffered by the
// chosen engine and written to the channel when their time comes.
package abstractjb

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ghettovoice/gosip/log"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/frame"
	"github.com/cloudwebrtc/go-jitterbuf/pkg/utils"
)

var logger log.Logger

func init() {
	logger = utils.NewLogrusLogger(log.InfoLevel, "AbstractJB", nil)
}

// DefaultInterpolationLen is used until the stream tells otherwise.
const DefaultInterpolationLen = 20

// Properties describe how a channel copes with jitter.
type Properties struct {
	// WantsJitter is set by channels that dejitter on their own.
	WantsJitter bool
	// CreatesJitter is set by channels whose frames arrive irregularly.
	CreatesJitter bool
}

// Channel is the outbound side of a bridged call leg.
type Channel interface {
	Name() string
	Properties() Properties
	// Write plays f out. f must not be retained after Write returns.
	Write(f *frame.Frame) error
}

// Status tells what Submit did with a frame.
type Status int

const (
	// Queued frames are held by the engine.
	Queued Status = iota
	// Delivered frames were written straight to the channel.
	Delivered
	// Dropped frames were refused by the engine and released.
	Dropped
	// Rejected frames were malformed and released.
	Rejected
)

func (s Status) String() string {
	switch s {
	case Queued:
		return "Queued"
	case Delivered:
		return "Delivered"
	case Dropped:
		return "Dropped"
	case Rejected:
		return "Rejected"
	}
	return "Unknown"
}

var getActions = [...]string{
	OK:      "Delivered",
	Drop:    "Dropped",
	Interp:  "Interpolated",
	NoFrame: "No",
}

type Option func(l *Leg)

func WithClock(c clock.Clock) Option {
	return func(l *Leg) {
		l.clock = c
	}
}

func WithRegistry(r *Registry) Option {
	return func(l *Leg) {
		l.registry = r
	}
}

func WithMetrics(m *Metrics) Option {
	return func(l *Leg) {
		l.metrics = m
	}
}

func WithInterpolationLen(ms int64) Option {
	return func(l *Leg) {
		l.SetInterpolationLen(ms)
	}
}

func WithLogger(logger log.Logger) Option {
	return func(l *Leg) {
		l.logger = logger
	}
}

// Leg holds the jitterbuffer state of one bridged channel. A Leg is owned
// by a single bridging loop and is not safe for concurrent use.
type Leg struct {
	id       string
	ch       Channel
	conf     Config
	registry *Registry
	clock    clock.Clock
	metrics  *Metrics
	logger   log.Logger

	impl   Impl
	engine Engine
	peer   string

	timebase time.Time
	next     int64

	use         bool
	timebaseSet bool
	created     bool
	interpolLen int64
	framelog    *frameLog
}

func NewLeg(ch Channel, conf Config, opts ...Option) *Leg {
	l := &Leg{
		id:          uuid.New().String(),
		ch:          ch,
		conf:        conf,
		registry:    DefaultRegistry(),
		clock:       clock.New(),
		logger:      logger,
		interpolLen: DefaultInterpolationLen,
	}
	for _, o := range opts {
		o(l)
	}
	l.logger = l.logger.
		WithPrefix("AbstractJB").
		WithFields(log.Fields{
			"leg":    l.ch.Name(),
			"leg_id": l.id,
		})
	return l
}

func (l *Leg) ID() string {
	return l.id
}

func (l *Leg) Name() string {
	return l.ch.Name()
}

// Configure replaces the leg configuration. It takes effect the next time
// an engine is created.
func (l *Leg) Configure(conf Config) {
	l.conf = conf
}

func (l *Leg) Config() Config {
	return l.conf
}

// SetInterpolationLen sets the length of synthesized frames, e.g. from the
// negotiated packetization time.
func (l *Leg) SetInterpolationLen(ms int64) {
	if ms > 0 {
		l.interpolLen = ms
	}
}

func (l *Leg) InterpolationLen() int64 {
	return l.interpolLen
}

func (l *Leg) InUse() bool {
	return l.use
}

func (l *Leg) Created() bool {
	return l.created
}

// ImplName returns the engine chosen for the leg, empty before it is armed.
func (l *Leg) ImplName() string {
	return l.impl.Name
}

// Next is the leg time at which the engine wants to be polled again.
func (l *Leg) Next() int64 {
	return l.next
}

// Stats reports the engine statistics once an engine is running.
func (l *Leg) Stats() (Stats, bool) {
	if !l.created {
		return Stats{}, false
	}
	return l.engine.Stats(), true
}

// Now is the time in milliseconds since the leg timebase.
func (l *Leg) Now() int64 {
	return l.now(l.clock.Now())
}

func (l *Leg) now(t time.Time) int64 {
	return int64(t.Sub(l.timebase) / time.Millisecond)
}

// DoUseCheck arms the legs that need a jitterbuffer for audio flowing
// between l0 and l1 and reports whether either does. A leg needs one when
// its peer creates jitter and it either cannot absorb jitter itself or is
// forced to buffer. Both legs share one timebase.
func DoUseCheck(l0, l1 *Leg) bool {
	inuse := l0.usecheck(l1)
	if l1.usecheck(l0) {
		inuse = true
	}
	return inuse
}

func (l *Leg) usecheck(peer *Leg) bool {
	props := l.ch.Properties()
	peerProps := peer.ch.Properties()

	if !l.conf.Enabled || !peerProps.CreatesJitter {
		return false
	}
	if props.WantsJitter && !l.conf.Forced {
		return false
	}

	l.use = true
	if !l.timebaseSet {
		if peer.timebaseSet {
			l.timebase = peer.timebase
		} else {
			l.timebase = l.clock.Now()
		}
		l.timebaseSet = true
	}
	if !l.created {
		l.impl = l.registry.Choose(l.conf.Impl)
		l.peer = peer.ch.Name()
	}
	return true
}

// Submit hands f to the leg and always consumes it: the frame is queued,
// written to the channel, or released.
func (l *Leg) Submit(f *frame.Frame) Status {
	if f == nil {
		return Rejected
	}
	if !l.use {
		return l.writeThrough(f)
	}

	if f.Kind != frame.Voice {
		if f.Kind == frame.Control && l.created {
			l.engine.ForceResync()
		}
		return l.writeThrough(f)
	}

	if f.Duration < 2 || f.Timestamp < 0 {
		l.logger.Warnf("%s received frame with invalid timing info: len=%d, ts=%d, src=%s",
			l.ch.Name(), f.Duration, f.Timestamp, f.Src)
		l.metrics.frame(l.impl.Name, "rejected")
		f.Release()
		return Rejected
	}

	if !l.created {
		return l.create(f)
	}

	now := l.Now()
	if r := l.engine.Put(f, now); r != OK {
		l.framelog.printf("JB_PUT {now=%d}: Dropped frame with ts=%d and len=%d", now, f.Timestamp, f.Duration)
		l.metrics.frame(l.impl.Name, "dropped")
		f.Release()
		return Dropped
	}
	l.next = l.engine.Next()
	l.framelog.printf("JB_PUT {now=%d}: Queued frame with ts=%d and len=%d", now, f.Timestamp, f.Duration)
	l.metrics.frame(l.impl.Name, "queued")
	l.metrics.observe(l.ch.Name(), l.engine.Stats())
	return Queued
}

func (l *Leg) create(f *frame.Frame) Status {
	engine, err := l.impl.Create(l.conf, l.logger)
	if err != nil {
		l.logger.Errorf("failed to create %s jitterbuffer on channel %s: %s", l.impl.Name, l.ch.Name(), err)
		l.use = false
		return l.writeThrough(f)
	}
	l.engine = engine
	l.created = true

	if l.conf.Log {
		fl, err := openFrameLog(l.conf.LogDir, l.ch.Name(), l.peer)
		if err != nil {
			l.logger.Warnf("failed to open frame log for channel %s: %s", l.ch.Name(), err)
		} else {
			l.framelog = fl
			l.logger.Infof("%s jitterbuffer frame log: %s", l.impl.Name, fl.Name())
		}
	}

	now := l.Now()
	r, retained := engine.PutFirst(f, now)
	if r != OK {
		l.logger.Warnf("failed to put first frame in the jitterbuffer on channel %s", l.ch.Name())
	}
	l.next = engine.Next()
	l.framelog.printf("JB_PUT_FIRST {now=%d}: Queued frame with ts=%d and len=%d", now, f.Timestamp, f.Duration)
	l.logger.Debugf("%s jitterbuffer created on channel %s", l.impl.Name, l.ch.Name())

	if retained {
		l.metrics.frame(l.impl.Name, "queued")
		return Queued
	}
	if r != OK {
		l.metrics.frame(l.impl.Name, "dropped")
		f.Release()
		return Dropped
	}
	return l.writeThrough(f)
}

func (l *Leg) writeThrough(f *frame.Frame) Status {
	l.write(f)
	f.Release()
	return Delivered
}

func (l *Leg) write(f *frame.Frame) {
	if err := l.ch.Write(f); err != nil {
		l.logger.Warnf("failed to write %s to %s: %s", f, l.ch.Name(), err)
	}
}

// GetAndDeliver plays out whatever is due on both legs.
func GetAndDeliver(l0, l1 *Leg) {
	if l0.use && l0.created {
		l0.getAndDeliver()
	}
	if l1.use && l1.created {
		l1.getAndDeliver()
	}
}

func (l *Leg) getAndDeliver() {
	now := l.Now()
	l.next = l.engine.Next()
	if now < l.next {
		l.framelog.printf("\tJB_GET {now=%d}: now < next=%d", now, l.next)
		return
	}

	for now >= l.next {
		f, r := l.engine.Get(now, l.interpolLen)
		switch r {
		case OK, Drop:
			if r == OK {
				l.write(f)
			}
			l.framelog.printf("\tJB_GET {now=%d}: %s frame with ts=%d and len=%d",
				now, getActions[r], f.Timestamp, f.Duration)
			l.metrics.frame(l.impl.Name, lo.Ternary(r == OK, "delivered", "dropped"))
			if f.Kind == frame.Voice && f.Duration > 0 {
				l.interpolLen = f.Duration
			}
			f.Release()
		case Interp:
			if f == nil {
				f = frame.NewInterpolated(l.next, l.interpolLen)
			}
			l.write(f)
			l.framelog.printf("\tJB_GET {now=%d}: Interpolated frame with len=%d", now, f.Duration)
			l.metrics.frame(l.impl.Name, "interpolated")
			f.Release()
		case NoFrame:
			if l.engine.Stats().Silent {
				l.logger.Debugf("%s jb adjusted its delay during silence at now=%d, jbnext=%d",
					l.impl.Name, now, l.engine.Next())
				l.framelog.printf("\tJB_GET {now=%d}: No frame during silence", now)
			} else {
				l.logger.Warnf("NOFRAME is returned from the %s jb when now=%d >= next=%d, jbnext=%d",
					l.impl.Name, now, l.next, l.engine.Next())
				l.framelog.printf("\tJB_GET {now=%d}: No frame for now!?", now)
			}
			l.metrics.observe(l.ch.Name(), l.engine.Stats())
			return
		}
		l.next = l.engine.Next()
	}
	l.metrics.observe(l.ch.Name(), l.engine.Stats())
}

// WhenToWakeup returns how many milliseconds the bridging loop may sleep
// before calling GetAndDeliver, bounded by timeLeft. A negative timeLeft
// means no bound; -1 is returned when nothing is scheduled. The result is
// never 0.
func WhenToWakeup(l0, l1 *Leg, timeLeft int64) int64 {
	if timeLeft < 0 {
		timeLeft = Forever
	}
	t := l0.clock.Now()
	wait := lo.Min([]int64{l0.wait(t, timeLeft), l1.wait(t, timeLeft), timeLeft})
	if wait == Forever {
		return -1
	}
	return lo.Max([]int64{wait, 1})
}

func (l *Leg) wait(t time.Time, timeLeft int64) int64 {
	if !l.use || !l.created || l.next == Forever {
		return timeLeft
	}
	return l.next - l.now(t)
}

// Destroy drains and destroys the engine and closes the frame log. The leg
// may be armed again afterwards.
func (l *Leg) Destroy() {
	if l.framelog != nil {
		if err := l.framelog.Close(); err != nil {
			l.logger.Warnf("failed to close frame log: %s", err)
		}
		l.framelog = nil
	}
	if !l.created {
		return
	}

	for {
		f, r := l.engine.RemoveFirst()
		if r != OK {
			break
		}
		f.Release()
	}
	l.engine.Destroy()
	l.engine = nil
	l.created = false
	l.metrics.forget(l.ch.Name())
	l.logger.Infof("%s jitterbuffer destroyed on channel %s", l.impl.Name, l.ch.Name())
}

func (l *Leg) String() string {
	return fmt.Sprintf("leg %s (%s)", l.ch.Name(), l.id)
}
