// Package metrics registers the Prometheus counters components D/E/F
// bump during scanning, reconciliation, and application. Entirely
// optional: callers who never call Handler can ignore this package
// without affecting correctness (spec.md §6, SPEC_FULL.md §6).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ScanRequestsTotal counts scan requests popped off the priority
	// queue, labeled by the action that was dispatched.
	ScanRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filoco_scan_requests_total",
		Help: "Scan requests processed by the scanner, by action.",
	}, []string{"action"})

	// MDSyncObjectsSentTotal counts syncables streamed to a peer during
	// an mdsync exchange.
	MDSyncObjectsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filoco_mdsync_objects_sent_total",
		Help: "Syncables sent to a peer during MDSync exchanges, by kind.",
	}, []string{"kind"})

	// MDSyncObjectsReceivedTotal counts syncables received from a peer.
	MDSyncObjectsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filoco_mdsync_objects_received_total",
		Help: "Syncables received from a peer during MDSync exchanges, by kind.",
	}, []string{"kind"})

	// MDApplyBatchesTotal counts batches MDApply has processed to
	// completion.
	MDApplyBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filoco_mdapply_batches_total",
		Help: "Update batches completed by MDApply.",
	})

	// MDApplyTooMessyTotal counts FOBs abandoned mid-batch with
	// ErrTooMessy.
	MDApplyTooMessyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filoco_mdapply_too_messy_total",
		Help: "FOBs that MDApply could not resolve due to a dependency cycle or ambiguous filesystem state.",
	})
)

// Handler returns the promhttp handler serving these metrics, for
// subcommands that were given a --metrics-addr flag.
func Handler() http.Handler {
	return promhttp.Handler()
}
