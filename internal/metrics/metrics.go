// Package metrics defines the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all engine collectors. A nil *Metrics disables
// instrumentation; consumers guard their increments.
type Metrics struct {
	SessionsStarted     prometheus.Counter
	SessionsEnded       prometheus.Counter
	SpecialtyActions    *prometheus.CounterVec
	GenerationFailures  prometheus.Counter
	FallbackEvaluations prometheus.Counter
	PropagationFailures prometheus.Counter
	AskDuration         prometheus.Histogram
}

// New registers and returns the engine collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "simcore_sessions_started_total",
			Help: "Sessions started, including retakes.",
		}),
		SessionsEnded: factory.NewCounter(prometheus.CounterOpts{
			Name: "simcore_sessions_ended_total",
			Help: "Sessions terminated with a persisted performance record.",
		}),
		SpecialtyActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "simcore_specialty_actions_total",
			Help: "Structured specialty actions dispatched, by action type.",
		}, []string{"action"}),
		GenerationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "simcore_generation_failures_total",
			Help: "Streamed patient-reply generations that failed.",
		}),
		FallbackEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "simcore_fallback_evaluations_total",
			Help: "Session evaluations that fell back to the fixed record.",
		}),
		PropagationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "simcore_propagation_failures_total",
			Help: "Best-effort progress propagation calls that failed.",
		}),
		AskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "simcore_ask_duration_seconds",
			Help:    "Wall time of ask operations, including streaming.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
