package abstractjb

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports jitterbuffer activity. A nil *Metrics records nothing.
type Metrics struct {
	frames *prometheus.CounterVec
	delay  *prometheus.GaugeVec
	target *prometheus.GaugeVec
	queued *prometheus.GaugeVec
	jitter *prometheus.GaugeVec
}

// NewMetrics creates the jitterbuffer collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jitterbuf_frames_total",
			Help: "Frames handled by the jitterbuffers, by engine and action",
		}, []string{"impl", "action"}),
		delay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jitterbuf_current_delay_ms",
			Help: "Current playout delay of a leg in milliseconds",
		}, []string{"leg"}),
		target: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jitterbuf_target_delay_ms",
			Help: "Target playout delay of a leg in milliseconds",
		}, []string{"leg"}),
		queued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jitterbuf_queued_frames",
			Help: "Frames waiting in the jitterbuffer of a leg",
		}, []string{"leg"}),
		jitter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jitterbuf_jitter_ms",
			Help: "Measured jitter of a leg in milliseconds",
		}, []string{"leg"}),
	}
	reg.MustRegister(m.frames, m.delay, m.target, m.queued, m.jitter)
	return m
}

func (m *Metrics) frame(impl, action string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(impl, action).Inc()
}

func (m *Metrics) observe(leg string, s Stats) {
	if m == nil {
		return
	}
	m.delay.WithLabelValues(leg).Set(float64(s.Current))
	m.target.WithLabelValues(leg).Set(float64(s.Target))
	m.queued.WithLabelValues(leg).Set(float64(s.FramesCurrent))
	m.jitter.WithLabelValues(leg).Set(float64(s.Jitter))
}

func (m *Metrics) forget(leg string) {
	if m == nil {
		return
	}
	m.delay.DeleteLabelValues(leg)
	m.target.DeleteLabelValues(leg)
	m.queued.DeleteLabelValues(leg)
	m.jitter.DeleteLabelValues(leg)
}
