package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the identity domain.
type Metrics struct {
	ReconcileOutcomes  *prometheus.CounterVec
	UsernameCollisions prometheus.Counter
	SubjectMismatches  prometheus.Counter
	LocalLoginFailures prometheus.Counter
}

// New creates and registers identity metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		ReconcileOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mercato_identity_reconcile_outcomes_total",
			Help: "Reconciliation results by outcome (linked, restored, created).",
		}, []string{"outcome"}),
		UsernameCollisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mercato_identity_username_collisions_total",
			Help: "Username allocation probes that found the candidate taken.",
		}),
		SubjectMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mercato_identity_subject_mismatches_total",
			Help: "Assertions whose subject ID conflicted with an account linked to a different subject.",
		}),
		LocalLoginFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mercato_identity_local_login_failures_total",
			Help: "Local credential authentications that failed verification.",
		}),
	}
}
