package abstractjb

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/frame"
)

type sink struct {
	name  string
	props Properties
	n     int
}

func (s *sink) Name() string {
	return s.name
}

func (s *sink) Properties() Properties {
	return s.props
}

func (s *sink) Write(*frame.Frame) error {
	s.n++
	return nil
}

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	mock := clock.NewMock()
	conf := DefaultConfig()
	conf.Enabled = true
	conf.Impl = "fixed"

	a := NewLeg(&sink{name: "a", props: Properties{CreatesJitter: true}}, conf, WithClock(mock), WithMetrics(m))
	b := NewLeg(&sink{name: "b"}, conf, WithClock(mock), WithMetrics(m))
	require.True(t, DoUseCheck(a, b))

	b.Submit(frame.New(frame.Voice, 0, 20, nil))
	mock.Add(20 * time.Millisecond)
	b.Submit(frame.New(frame.Voice, 20, 20, nil))
	b.Submit(frame.New(frame.Voice, 0, 1, nil))
	require.EqualValues(t, 2, testutil.ToFloat64(m.frames.WithLabelValues("fixed", "queued")))
	require.EqualValues(t, 1, testutil.ToFloat64(m.frames.WithLabelValues("fixed", "rejected")))
	require.EqualValues(t, 2, testutil.ToFloat64(m.queued.WithLabelValues("b")))

	mock.Add(180 * time.Millisecond)
	GetAndDeliver(a, b)
	require.EqualValues(t, 1, testutil.ToFloat64(m.frames.WithLabelValues("fixed", "delivered")))
	require.EqualValues(t, 1, testutil.ToFloat64(m.queued.WithLabelValues("b")))
	require.EqualValues(t, 200, testutil.ToFloat64(m.delay.WithLabelValues("b")))

	b.Destroy()
	require.Zero(t, testutil.CollectAndCount(m.queued))
	require.Zero(t, testutil.CollectAndCount(m.delay))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.frame("adaptive", "queued")
	m.observe("leg", Stats{})
	m.forget("leg")
}
