// Package metrics defines and registers all custom Prometheus metrics for the
// gatekeeper service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics register themselves with the default Prometheus registry at package
// load; the /metrics endpoint is mounted by the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gatekeeper"

// ── Verification metrics ──────────────────────────────────────────────────────

// ChallengesIssuedTotal counts issued verification challenges, re-issues included.
var ChallengesIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "challenges_issued_total",
		Help:      "Total number of verification challenges issued.",
	},
)

// VerificationsTotal counts confirmation outcomes.
// Label:
//   - result: "verified", "expired", or "below_threshold"
var VerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Total number of confirmation attempts that reached a verdict, by result.",
	},
	[]string{"result"},
)

// TransferMatchesTotal counts transfer scan outcomes.
// Label:
//   - result: "match" or "no_match"
var TransferMatchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfer_matches_total",
		Help:      "Total number of completed signature scans, by outcome.",
	},
	[]string{"result"},
)

// SupplyCacheTotal counts supply cache lookups.
// Label:
//   - result: "hit" or "miss"
var SupplyCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "supply_cache_total",
		Help:      "Total number of token supply cache lookups, by result.",
	},
	[]string{"result"},
)

// ── Sweep metrics ─────────────────────────────────────────────────────────────

// SweepRunsTotal counts completed sweep runs.
// Label:
//   - result: "ok" or "error" (error = listing verified members failed)
var SweepRunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Total number of sweep runs, by result.",
	},
	[]string{"result"},
)

// SweepRevocationsTotal counts members revoked by sweeps.
var SweepRevocationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_revocations_total",
		Help:      "Total number of members revoked by sweeps.",
	},
)

// SweepFailuresTotal counts per-member evaluation failures inside sweeps.
var SweepFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_failures_total",
		Help:      "Total number of per-member evaluation failures during sweeps.",
	},
)

// SweepDuration measures how long a full sweep takes.
var SweepDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of a full sweep run.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms .. ~51s
	},
)

// ── Access dispatcher metrics ─────────────────────────────────────────────────

// AccessActionsTotal counts access-manager side effects by outcome.
// Labels:
//   - action: "grant", "revoke", or "notify"
//   - result: "ok" or "error"
var AccessActionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_actions_total",
		Help:      "Total number of access actions executed against the chat layer.",
	},
	[]string{"action", "result"},
)

// AccessQueueDepth tracks actions waiting in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AccessQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "access_queue_depth",
		Help:      "Current number of access actions pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ── Ledger metrics ────────────────────────────────────────────────────────────

// LedgerRequestsTotal counts outbound ledger RPC calls.
// Labels:
//   - method: the RPC method name
//   - result: "ok" or "error"
var LedgerRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_requests_total",
		Help:      "Total number of ledger RPC requests, by method and result.",
	},
	[]string{"method", "result"},
)
