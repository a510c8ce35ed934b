package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the scheduler. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Refresh latency by outcome ("ok", "error")
	RefreshLatency *prometheus.HistogramVec

	// Status transitions by action and outcome ("ok", "rejected", "error")
	Transitions *prometheus.CounterVec

	// Directory lookups that fell back to a sentinel label
	LookupMisses prometheus.Counter

	// Audio uploads by outcome ("ok", "rejected", "error")
	Uploads *prometheus.CounterVec

	// Requests refused by the rate limiter, by method
	RateLimited *prometheus.CounterVec
}

// New registers all scheduler metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RefreshLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scheduler_refresh_duration_seconds",
			Help:    "Duration of appointment view refreshes, including name lookups",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"outcome"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_transitions_total",
			Help: "Appointment status transitions by action and outcome",
		}, []string{"action", "outcome"}),

		LookupMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_lookup_misses_total",
			Help: "Display name lookups resolved to a sentinel label",
		}),

		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_audio_uploads_total",
			Help: "Audio attachment uploads by outcome",
		}, []string{"outcome"}),

		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_rate_limited_total",
			Help: "Requests refused by the rate limiter",
		}, []string{"method"}),
	}
}

func (m *Metrics) ObserveRefresh(outcome string, d time.Duration) {
	if m != nil {
		m.RefreshLatency.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) IncTransition(action, outcome string) {
	if m != nil {
		m.Transitions.WithLabelValues(action, outcome).Inc()
	}
}

func (m *Metrics) IncLookupMiss() {
	if m != nil {
		m.LookupMisses.Inc()
	}
}

func (m *Metrics) IncUpload(outcome string) {
	if m != nil {
		m.Uploads.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncRateLimited(method string) {
	if m != nil {
		m.RateLimited.WithLabelValues(method).Inc()
	}
}
