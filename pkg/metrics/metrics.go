// Package metrics exposes the process-wide prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for ProviderCalls.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeOpen    = "open"
)

var (
	// ProviderCalls counts calls to external dependencies by outcome.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inmo_provider_calls_total",
		Help: "External dependency calls by dependency name and outcome.",
	}, []string{"dependency", "outcome"})

	// Failovers counts primary-to-fallback provider switches.
	Failovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inmo_provider_failovers_total",
		Help: "Completions retried against the fallback provider.",
	})

	// BreakerState tracks circuit state per dependency
	// (0 closed, 1 open, 2 half-open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "inmo_circuit_breaker_state",
		Help: "Circuit breaker state per dependency (0 closed, 1 open, 2 half-open).",
	}, []string{"dependency"})

	// Compressions counts context-compression runs by outcome.
	Compressions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inmo_context_compressions_total",
		Help: "Context compression runs by outcome.",
	}, []string{"outcome"})
)
