package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is private to the assistant so tests and embedders never collide
// with the default global registry.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		RouteDecisions, ToolCalls, TurnDuration,
		LLMTokens, LLMCostUSD,
	)
}

// RouteDecisions counts classifier edge outcomes.
var RouteDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "assistant_route_decisions_total",
		Help: "Classifier edge decisions by edge and label.",
	},
	[]string{"edge", "label", "fallback"},
)

// ToolCalls counts tool invocations by outcome.
var ToolCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "assistant_tool_calls_total",
		Help: "Tool invocations by tool name and status.",
	},
	[]string{"tool", "status"}, // ok | error | unknown
)

// TurnDuration observes end-to-end turn latency.
var TurnDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "assistant_turn_duration_seconds",
		Help:    "Turn processing time in seconds.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	},
	[]string{"outcome"}, // ok | error | cancelled
)

// LLMTokens counts prompt and completion tokens.
var LLMTokens = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "assistant_llm_tokens_total",
		Help: "LLM tokens by model and kind.",
	},
	[]string{"model", "kind"}, // prompt | completion
)

// LLMCostUSD accumulates estimated spend.
var LLMCostUSD = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "assistant_llm_cost_usd_total",
		Help: "Estimated LLM cost in USD by model.",
	},
	[]string{"model"},
)

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// BoolLabel renders a bool as a metric label value.
func BoolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
