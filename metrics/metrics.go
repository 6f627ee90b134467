// Package metrics exposes bridge counters on the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SequencesTotal counts executed relay sequences by fan, operation
	// and outcome.
	SequencesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lunos",
		Name:      "sequences_total",
		Help:      "Relay sequences executed, by operation and outcome.",
	}, []string{"fan", "operation", "outcome"})

	// RelayWritesTotal counts individual relay writes that landed.
	RelayWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lunos",
		Name:      "relay_writes_total",
		Help:      "Relay state writes issued to W1/W2 handles.",
	}, []string{"fan"})

	// SequenceDuration tracks wall time of full sequences. Holds between
	// steps dominate, so buckets start at the settle delay.
	SequenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lunos",
		Name:      "sequence_duration_seconds",
		Help:      "Wall time of relay sequence execution.",
		Buckets:   []float64{3, 6, 9, 12, 18, 24, 36, 48},
	}, []string{"operation"})

	// LastReconcile records when a fan's speed was last re-derived from
	// the relay states.
	LastReconcile = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lunos",
		Name:      "last_reconcile_timestamp_seconds",
		Help:      "Unix time of the last relay state poll per fan.",
	}, []string{"fan"})
)
