// Package telemetry holds the Prometheus metrics recorded by the turn pipeline.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metrics for turn processing.
//
// Metrics:
//   - botservice_turns_total{outcome} - turns by dispatcher action, or "error"
//   - botservice_turn_duration_seconds - histogram of turn latency
//   - botservice_turn_errors_total - turns that hit the error policy
//   - botservice_interruptions_rejected_total{intent} - intents denied by policy
//   - botservice_dialogs_begun_total{dialog} - dialogs begun by the dispatcher
//   - botservice_prompt_gave_up_total - prompts that exhausted their retries
//   - botservice_deliveries_total{status} - outbound reply deliveries
type Metrics struct {
	TurnsTotal            *prometheus.CounterVec
	TurnDuration          prometheus.Histogram
	TurnErrorsTotal       prometheus.Counter
	InterruptionsRejected *prometheus.CounterVec
	DialogsBegun          *prometheus.CounterVec
	PromptGaveUp          prometheus.Counter
	DeliveriesTotal       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the metrics on reg. A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botservice_turns_total",
				Help: "Total number of processed turns by outcome",
			},
			[]string{"outcome"},
		),
		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "botservice_turn_duration_seconds",
				Help:    "Duration of turn processing in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		TurnErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "botservice_turn_errors_total",
				Help: "Total number of turns that failed and reset conversation state",
			},
		),
		InterruptionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botservice_interruptions_rejected_total",
				Help: "Total number of intents rejected by the interruption policy",
			},
			[]string{"intent"},
		),
		DialogsBegun: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botservice_dialogs_begun_total",
				Help: "Total number of dialogs begun by the dispatcher",
			},
			[]string{"dialog"},
		),
		PromptGaveUp: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "botservice_prompt_gave_up_total",
				Help: "Total number of prompts that exhausted their retries",
			},
		),
		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botservice_deliveries_total",
				Help: "Total number of outbound reply deliveries by status",
			},
			[]string{"status"}, // "delivered", "failed", "circuit_open"
		),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
