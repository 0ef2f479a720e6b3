package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the vendor application domain.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	IllegalAttempts prometheus.Counter
	OrphansRemoved  prometheus.Counter
}

// New creates and registers vendorapp metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mercato_vendorapp_transitions_total",
			Help: "Applied vendor application transitions by kind.",
		}, []string{"transition"}),
		IllegalAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mercato_vendorapp_illegal_transitions_total",
			Help: "Transition attempts rejected by the state machine.",
		}),
		OrphansRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mercato_vendorapp_orphans_removed_total",
			Help: "Vendor applications deleted because their owner was anonymized.",
		}),
	}
}
