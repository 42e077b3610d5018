package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lastSeenBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "govlistener_last_seen_block",
			Help: "The last block number whose events have been fully reconciled",
		},
	)

	blocksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "govlistener_blocks_processed_total",
			Help: "Total number of confirmed blocks processed",
		},
	)

	eventsReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govlistener_events_reconciled_total",
			Help: "Total number of events reconciled by handler kind",
		},
		[]string{"handler"},
	)

	reconcileErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govlistener_reconcile_errors_total",
			Help: "Total number of reconciliation failures by handler kind",
		},
		[]string{"handler"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govlistener_events_dropped_total",
			Help: "Total number of events skipped, by reason (unknown, decode_error, duplicate)",
		},
		[]string{"reason"},
	)

	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govlistener_rpc_retries_total",
			Help: "Total number of RPC retries by operation",
		},
		[]string{"operation"},
	)

	voterRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govlistener_voter_refreshes_total",
			Help: "Voter vote power refresh outcomes (updated, unchanged, failed)",
		},
		[]string{"outcome"},
	)
)

func LastSeenBlockSet(block uint64) {
	lastSeenBlock.Set(float64(block))
}

func BlocksProcessedAdd(n uint64) {
	blocksProcessed.Add(float64(n))
}

func EventReconciledInc(handler string) {
	eventsReconciled.WithLabelValues(handler).Inc()
}

func ReconcileErrorInc(handler string) {
	reconcileErrors.WithLabelValues(handler).Inc()
}

func EventDroppedInc(reason string) {
	eventsDropped.WithLabelValues(reason).Inc()
}

func RPCRetryInc(operation string) {
	rpcRetries.WithLabelValues(operation).Inc()
}

func VoterRefreshInc(outcome string) {
	voterRefreshes.WithLabelValues(outcome).Inc()
}
