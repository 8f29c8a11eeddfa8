// Package metrics exposes Prometheus collectors for dialog turns and store calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts handled turns by event kind and outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricebot_turns_total",
			Help: "Total number of dialog turns handled",
		},
		[]string{"kind", "outcome"},
	)

	// TurnDuration measures end-to-end turn latency.
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricebot_turn_duration_seconds",
			Help:    "Duration of dialog turns in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// TurnsInFlight is the number of turns currently executing.
	TurnsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricebot_turns_in_flight",
			Help: "Number of dialog turns currently executing",
		},
	)

	// StoreOperationDuration measures entity store calls made by the dialog.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricebot_store_operation_duration_seconds",
			Help:    "Duration of entity store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"op", "outcome"},
	)

	// UpdatesReceived counts inbound transport updates by type.
	UpdatesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricebot_updates_received_total",
			Help: "Total number of inbound chat updates",
		},
		[]string{"type"},
	)
)

// ObserveTurn records one finished turn.
func ObserveTurn(kind, outcome string, d time.Duration) {
	TurnsTotal.WithLabelValues(kind, outcome).Inc()
	TurnDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveStoreOperation records one store call.
func ObserveStoreOperation(op, outcome string, d time.Duration) {
	StoreOperationDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}
