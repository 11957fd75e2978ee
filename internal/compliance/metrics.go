package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts service activity. A nil registerer yields unregistered
// collectors, which keeps tests independent of the global registry.
type Metrics struct {
	writes      *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	buildTime   prometheus.Histogram
}

// NewMetrics creates the service collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_trace_writes_total",
			Help: "Accepted trace record writes by operation.",
		}, []string{"op"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_trace_rejections_total",
			Help: "Rejected trace record writes by reason.",
		}, []string{"reason"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_status_transitions_total",
			Help: "Compliance status transitions by source and target status.",
		}, []string{"from", "to"}),
		buildTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "passport_tree_build_seconds",
			Help:    "Time spent materializing product trees.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
}
