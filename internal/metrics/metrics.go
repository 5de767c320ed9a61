// Package metrics holds the Prometheus collectors exported by JarvisPipe.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jarvis_http_requests_total",
			Help: "Total number of control API requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jarvis_http_request_duration_seconds",
			Help:    "Control API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jarvis_gate_decisions_total",
			Help: "Utterances evaluated by the wake-word gate.",
		},
		[]string{"decision"},
	)

	ActionsScheduledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jarvis_actions_scheduled_total",
			Help: "Deferred actions accepted by the scheduler.",
		},
		[]string{"kind"},
	)

	ActionsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jarvis_actions_completed_total",
			Help: "Deferred actions that left the registry.",
		},
		[]string{"kind", "status"},
	)

	ActionsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jarvis_actions_pending",
			Help: "Deferred actions currently waiting to fire.",
		},
	)

	SideEffectFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jarvis_side_effect_failures_total",
			Help: "Failed notifications or command-file writes.",
		},
		[]string{"kind"},
	)

	InjectedPromptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jarvis_injected_prompts_total",
			Help: "Follow-up prompts drained into the conversation.",
		},
	)

	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jarvis_tool_calls_total",
			Help: "Tool calls dispatched by the model.",
		},
		[]string{"tool", "success"},
	)

	InferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jarvis_inference_duration_seconds",
			Help:    "Wall time of one model response including tool rounds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GateDecisionsTotal,
		ActionsScheduledTotal,
		ActionsCompletedTotal,
		ActionsPending,
		SideEffectFailuresTotal,
		InjectedPromptsTotal,
		ToolCallsTotal,
		InferenceDuration,
	)
}
