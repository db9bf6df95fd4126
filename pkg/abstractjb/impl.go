package abstractjb

import (
	"math"
	"sort"
	"strings"

	"github.com/ghettovoice/gosip/log"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/fixedjb"
	"github.com/cloudwebrtc/go-jitterbuf/pkg/frame"
	"github.com/cloudwebrtc/go-jitterbuf/pkg/jitterbuf"
)

// Result is the engine-independent outcome of a jitterbuffer call.
type Result int

const (
	OK Result = iota
	Drop
	Interp
	NoFrame
)

func (r Result) String() string {
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

// Forever is the Next value of an engine with nothing scheduled.
const Forever int64 = math.MaxInt64

// Stats is the engine-independent subset of engine statistics.
type Stats struct {
	FramesIn      uint64
	FramesOut     uint64
	FramesLate    uint64
	FramesLost    uint64
	FramesDropped uint64
	FramesOOO     uint64
	FramesCurrent int
	Current       int64
	Target        int64
	Jitter        int64
	// Silent engines may ask to be woken for a delay adjustment only, and
	// then have no frame to return.
	Silent bool
}

// Engine is the capability set every jitterbuffer implementation provides.
// Times are milliseconds since the leg's timebase.
type Engine interface {
	// PutFirst starts the stream. retained reports whether the engine kept
	// f; if not, the caller plays f out immediately.
	PutFirst(f *frame.Frame, now int64) (r Result, retained bool)
	// Put queues f. On anything but OK the caller keeps f.
	Put(f *frame.Frame, now int64) Result
	// Get returns the frame for now. On Interp the frame may be nil, in
	// which case the caller synthesizes one of interpl length.
	Get(now, interpl int64) (*frame.Frame, Result)
	Next() int64
	RemoveFirst() (*frame.Frame, Result)
	ForceResync()
	Stats() Stats
	Destroy()
}

// Impl is a named engine constructor.
type Impl struct {
	Name   string
	Create func(conf Config, logger log.Logger) (Engine, error)
}

var AdaptiveImpl = Impl{
	Name:   "adaptive",
	Create: newAdaptive,
}

var FixedImpl = Impl{
	Name:   "fixed",
	Create: newFixed,
}

// Registry maps implementation names to constructors. It is read-only once
// built; the first implementation is the default.
type Registry struct {
	impls  []Impl
	byName map[string]Impl
}

func NewRegistry(impls ...Impl) *Registry {
	r := &Registry{byName: make(map[string]Impl, len(impls))}
	for _, impl := range impls {
		key := strings.ToLower(impl.Name)
		if _, dup := r.byName[key]; dup {
			continue
		}
		r.impls = append(r.impls, impl)
		r.byName[key] = impl
	}
	return r
}

// DefaultRegistry holds the adaptive engine, as default, and the fixed one.
func DefaultRegistry() *Registry {
	return NewRegistry(AdaptiveImpl, FixedImpl)
}

func (r *Registry) Lookup(name string) (Impl, bool) {
	impl, ok := r.byName[strings.ToLower(name)]
	return impl, ok
}

func (r *Registry) Default() Impl {
	return r.impls[0]
}

// Choose returns the implementation called name, or the default one.
func (r *Registry) Choose(name string) Impl {
	if name == "" {
		return r.Default()
	}
	if impl, ok := r.Lookup(name); ok {
		return impl
	}
	logger.Warnf("unknown jitterbuffer implementation %q, using %s", name, r.Default().Name)
	return r.Default()
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.impls))
	for _, impl := range r.impls {
		names = append(names, impl.Name)
	}
	sort.Strings(names)
	return names
}

var adaptiveResults = [...]Result{
	jitterbuf.OK:      OK,
	jitterbuf.Empty:   NoFrame,
	jitterbuf.NoFrame: NoFrame,
	jitterbuf.Interp:  Interp,
	jitterbuf.Drop:    Drop,
	jitterbuf.Sched:   OK,
	jitterbuf.NoJB:    NoFrame,
}

var fixedResults = [...]Result{
	fixedjb.OK:      OK,
	fixedjb.Drop:    Drop,
	fixedjb.Interp:  Interp,
	fixedjb.NoFrame: NoFrame,
}

type adaptive struct {
	jb *jitterbuf.JitterBuf
}

func newAdaptive(conf Config, logger log.Logger) (Engine, error) {
	jbconf := jitterbuf.DefaultConfig()
	jbconf.MaxJitterbuf = conf.MaxSize
	jbconf.ResyncThreshold = conf.ResyncThreshold
	jbconf.TargetExtra = conf.TargetExtra
	jb, err := jitterbuf.New(jbconf, jitterbuf.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &adaptive{jb: jb}, nil
}

// The origin frame is never queued by the adaptive engine.
func (a *adaptive) PutFirst(f *frame.Frame, now int64) (Result, bool) {
	return adaptiveResults[a.jb.PutFirst(f, now)], false
}

func (a *adaptive) Put(f *frame.Frame, now int64) Result {
	return adaptiveResults[a.jb.Put(f, now)]
}

func (a *adaptive) Get(now, interpl int64) (*frame.Frame, Result) {
	f, r := a.jb.Get(now, interpl)
	return f, adaptiveResults[r]
}

func (a *adaptive) Next() int64 {
	return a.jb.Next()
}

func (a *adaptive) RemoveFirst() (*frame.Frame, Result) {
	f, r := a.jb.RemoveFirst()
	return f, adaptiveResults[r]
}

func (a *adaptive) ForceResync() {
	a.jb.ForceResync()
}

func (a *adaptive) Stats() Stats {
	info := a.jb.Info()
	return Stats{
		FramesIn:      info.FramesIn,
		FramesOut:     info.FramesOut,
		FramesLate:    info.FramesLate,
		FramesLost:    info.FramesLost,
		FramesDropped: info.FramesDropped,
		FramesOOO:     info.FramesOOO,
		FramesCurrent: info.FramesCurrent,
		Current:       info.Current,
		Target:        info.Target,
		Jitter:        info.Jitter,
		Silent:        info.Silent,
	}
}

func (a *adaptive) Destroy() {
	a.jb.Destroy()
}

type fixed struct {
	jb *fixedjb.FixedJB
}

func newFixed(conf Config, logger log.Logger) (Engine, error) {
	jb := fixedjb.New(fixedjb.Config{
		Size:            conf.MaxSize,
		ResyncThreshold: conf.ResyncThreshold,
	}, fixedjb.WithLogger(logger))
	return &fixed{jb: jb}, nil
}

func (x *fixed) PutFirst(f *frame.Frame, now int64) (Result, bool) {
	r := fixedResults[x.jb.PutFirst(f, now)]
	return r, r == OK
}

func (x *fixed) Put(f *frame.Frame, now int64) Result {
	return fixedResults[x.jb.Put(f, now)]
}

func (x *fixed) Get(now, interpl int64) (*frame.Frame, Result) {
	f, r := x.jb.Get(now, interpl)
	return f, fixedResults[r]
}

func (x *fixed) Next() int64 {
	return x.jb.Next()
}

func (x *fixed) RemoveFirst() (*frame.Frame, Result) {
	f, r := x.jb.Remove()
	return f, fixedResults[r]
}

func (x *fixed) ForceResync() {
	x.jb.SetForceResync()
}

func (x *fixed) Stats() Stats {
	info := x.jb.Info()
	return Stats{
		FramesIn:      info.FramesIn,
		FramesOut:     info.FramesOut,
		FramesLost:    info.FramesInterp,
		FramesDropped: info.FramesDropped,
		FramesCurrent: info.Len,
		Current:       info.Delay,
		Target:        info.Delay,
	}
}

func (x *fixed) Destroy() {
	x.jb.Destroy()
}
