// Package bridge runs the media loop between two call legs: frames read
// from one side are passed through the other side's jitterbuffer and
// played out on a schedule.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ghettovoice/gosip/log"
	"github.com/google/uuid"
	"github.com/tevino/abool"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/abstractjb"
	"github.com/cloudwebrtc/go-jitterbuf/pkg/frame"
	"github.com/cloudwebrtc/go-jitterbuf/pkg/utils"
)

var logger log.Logger

func init() {
	logger = utils.NewLogrusLogger(log.InfoLevel, "Bridge", nil)
}

var (
	ErrTerminated = errors.New("bridge terminated")
	ErrRunning    = errors.New("bridge already running")
	ErrBacklog    = errors.New("bridge backlog full")
)

type State string

const (
	Idle       State = "Idle"
	Bridged    State = "Bridged"
	Terminated State = "Terminated"
)

func (s State) String() string {
	return string(s)
}

// Side names a bridged leg.
type Side int

const (
	A Side = iota
	B
)

func (s Side) peer() Side {
	return 1 - s
}

func (s Side) String() string {
	if s == A {
		return "A"
	}
	return "B"
}

const (
	// DefaultMaxWait bounds the sleep of the media loop in milliseconds.
	DefaultMaxWait = 1000
	defaultBacklog = 256
)

type input struct {
	to Side
	f  *frame.Frame
}

type Option func(b *Bridge)

func WithClock(c clock.Clock) Option {
	return func(b *Bridge) {
		b.clock = c
	}
}

func WithMaxWait(ms int64) Option {
	return func(b *Bridge) {
		if ms > 0 {
			b.maxWait = ms
		}
	}
}

func WithBacklog(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.backlog = n
		}
	}
}

// WithOnTeardown registers f to run on the media loop right before the legs
// are destroyed, e.g. to collect their statistics.
func WithOnTeardown(f func(a, b *abstractjb.Leg)) Option {
	return func(b *Bridge) {
		b.onTeardown = f
	}
}

func WithLogger(l log.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// Bridge owns both legs while Run is active. Feed and Terminate may be
// called from any goroutine.
type Bridge struct {
	id      string
	legs    [2]*abstractjb.Leg
	clock   clock.Clock
	logger  log.Logger
	maxWait int64
	backlog int

	onTeardown func(a, b *abstractjb.Leg)

	inbox   chan input
	done    chan struct{}
	once    sync.Once
	running *abool.AtomicBool
	// held for reading by Feed, for writing by teardown's final drain
	feedMu sync.RWMutex

	mu    sync.Mutex
	state State
}

func New(a, b *abstractjb.Leg, opts ...Option) *Bridge {
	br := &Bridge{
		id:      uuid.New().String(),
		legs:    [2]*abstractjb.Leg{a, b},
		clock:   clock.New(),
		logger:  logger,
		maxWait: DefaultMaxWait,
		backlog: defaultBacklog,
		done:    make(chan struct{}),
		running: abool.New(),
		state:   Idle,
	}
	for _, o := range opts {
		o(br)
	}
	br.inbox = make(chan input, br.backlog)
	br.logger = br.logger.WithFields(log.Fields{"bridge_id": br.id})
	return br
}

func (b *Bridge) ID() string {
	return b.id
}

func (b *Bridge) Leg(s Side) *abstractjb.Leg {
	return b.legs[s]
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(state State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state
}

// Feed passes a frame read from side from to the other leg. The bridge
// takes ownership of f, also when an error is returned.
func (b *Bridge) Feed(from Side, f *frame.Frame) error {
	b.feedMu.RLock()
	defer b.feedMu.RUnlock()
	select {
	case <-b.done:
		f.Release()
		return ErrTerminated
	default:
	}
	select {
	case b.inbox <- input{to: from.peer(), f: f}:
		return nil
	default:
		f.Release()
		return ErrBacklog
	}
}

// Run drives the legs until ctx is done or the bridge is terminated. Both
// legs are destroyed on return.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.running.SetToIf(false, true) {
		return ErrRunning
	}
	defer b.running.UnSet()

	select {
	case <-b.done:
		b.drain()
		return ErrTerminated
	default:
	}

	l0, l1 := b.legs[A], b.legs[B]
	b.setState(Bridged)
	if abstractjb.DoUseCheck(l0, l1) {
		b.logger.Infof("jitterbuffer in use: %s=%v, %s=%v", l0.Name(), l0.InUse(), l1.Name(), l1.InUse())
	}
	defer b.teardown()

	timer := b.clock.Timer(b.wait())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return nil
		case in := <-b.inbox:
			b.legs[in.to].Submit(in.f)
		case <-timer.C:
		}

		abstractjb.GetAndDeliver(l0, l1)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.wait())
	}
}

func (b *Bridge) wait() time.Duration {
	ms := abstractjb.WhenToWakeup(b.legs[A], b.legs[B], b.maxWait)
	return time.Duration(ms) * time.Millisecond
}

// Terminate stops the bridge. It is safe to call more than once.
func (b *Bridge) Terminate() {
	b.once.Do(func() {
		close(b.done)
		b.setState(Terminated)
	})
}

func (b *Bridge) IsRunning() bool {
	return b.running.IsSet()
}

func (b *Bridge) teardown() {
	b.Terminate()
	b.drain()
	if b.onTeardown != nil {
		b.onTeardown(b.legs[A], b.legs[B])
	}
	for _, l := range b.legs {
		l.Destroy()
	}
	b.logger.Infof("bridge %s torn down", b)
}

// drain releases the frames left in the inbox. done must be closed: once
// in-flight Feeds finish, nothing can enqueue any more.
func (b *Bridge) drain() {
	b.feedMu.Lock()
	defer b.feedMu.Unlock()
	for {
		select {
		case in := <-b.inbox:
			in.f.Release()
		default:
			return
		}
	}
}

func (b *Bridge) String() string {
	return fmt.Sprintf("[%s -> %s] %s", b.legs[A].Name(), b.legs[B].Name(), b.State())
}
