// Package metrics exposes the engine's prometheus series:
//
//   - position_evaluations_total{stage,outcome}  – monitor/reconcile step results
//   - position_signals_total{order_type,result}  – signals sent to the venue (ok|failed)
//   - position_transitions_total{from,to}        – committed status transitions
//   - position_tick_seconds{loop}                – wall time of one scheduler tick
//
// Registered in init() and served at /metrics by the status server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "position_evaluations_total",
			Help: "Position evaluations by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "position_signals_total",
			Help: "Signals submitted to the venue",
		},
		[]string{"order_type", "result"},
	)

	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "position_transitions_total",
			Help: "Committed position status transitions",
		},
		[]string{"from", "to"},
	)

	TickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "position_tick_seconds",
			Help:    "Duration of one scheduler tick",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"loop"},
	)
)

func init() {
	prometheus.MustRegister(Evaluations, Signals, Transitions, TickDuration)
}

// ObserveTransition counts a committed status change.
func ObserveTransition(from, to string) {
	Transitions.WithLabelValues(from, to).Inc()
}

// ObserveSignal counts a dispatched signal.
func ObserveSignal(orderType string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	Signals.WithLabelValues(orderType, result).Inc()
}

// ObserveEvaluation counts one evaluation outcome.
func ObserveEvaluation(stage, outcome string) {
	Evaluations.WithLabelValues(stage, outcome).Inc()
}
