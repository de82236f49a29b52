// Package metrics holds the process-wide Prometheus collectors, kept
// separate from internal/httpapi so internal/txengine and
// internal/rebalancer can record against them without an import cycle
// through the HTTP boundary.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TransactionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fx_engine_transactions_created_total",
		Help: "Total number of transactions created.",
	})

	TransactionsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fx_engine_transactions_completed_total",
		Help: "Total number of transactions that settled COMPLETED.",
	})

	TransactionsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fx_engine_transactions_failed_total",
		Help: "Total number of transactions that transitioned to FAILED.",
	})

	ReservationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fx_engine_reservation_failures_total",
		Help: "Total number of reserve_funds calls that failed with insufficient liquidity.",
	})

	RebalanceCyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fx_engine_rebalance_cycles_total",
		Help: "Total number of rebalancer cycles executed.",
	})

	SettlementDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fx_engine_settlement_duration_seconds",
		Help:    "Time from reservation to terminal status for a settlement.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(
		TransactionsCreatedTotal,
		TransactionsCompletedTotal,
		TransactionsFailedTotal,
		ReservationFailuresTotal,
		RebalanceCyclesTotal,
		SettlementDurationSeconds,
	)
}
