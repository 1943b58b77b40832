// Package metrics defines and registers all custom Prometheus metrics for the
// event planner service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "planner"

// ── Role resolution ───────────────────────────────────────────────────────────

// RoleResolutionsTotal counts completed resolutions.
// Labels:
//   - source: the provider that answered (e.g. "metadata", "profile", "default")
//   - role: the resolved role
var RoleResolutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "role_resolutions_total",
		Help:      "Total number of role resolutions, by answering source and role.",
	},
	[]string{"source", "role"},
)

// RoleSourceErrorsTotal counts provider failures.
// Labels:
//   - source: provider name
//   - kind: "unavailable" (table missing or misconfigured) or "error"
var RoleSourceErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "role_source_errors_total",
		Help:      "Total number of role provider failures, by source and kind.",
	},
	[]string{"source", "kind"},
)

// RoleWriteBackFailuresTotal counts failed write-backs of a resolved role.
// Label:
//   - target: "metadata", "profile", "cache" or "vendor"
var RoleWriteBackFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "role_write_back_failures_total",
		Help:      "Total number of failed role write-backs, by target.",
	},
	[]string{"target"},
)

// RoleResolutionDuration measures a full pass through the precedence chain.
var RoleResolutionDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "role_resolution_duration_seconds",
		Help:      "Duration of a role resolution pass.",
		Buckets:   prometheus.DefBuckets,
	},
)

// ── Session ───────────────────────────────────────────────────────────────────

// StaleResolutionsTotal counts resolution results discarded because a newer
// attempt had started.
var StaleResolutionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_resolutions_total",
		Help:      "Total number of resolution results discarded as superseded.",
	},
)

// AuthAttemptsTotal counts credential operations.
// Labels:
//   - op: "sign_in", "sign_up", "sign_out", "reset_password", "update_password"
//   - result: "ok" or a short failure reason
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Total number of credential operations, by operation and result.",
	},
	[]string{"op", "result"},
)

// ActiveSessions tracks the number of live session contexts.
var ActiveSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Current number of live session contexts.",
	},
)

// SessionsEvictedTotal counts session contexts dropped by the registry.
// Label:
//   - reason: "idle", "capacity"
var SessionsEvictedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_evicted_total",
		Help:      "Total number of session contexts evicted, by reason.",
	},
	[]string{"reason"},
)

// ── Guard ─────────────────────────────────────────────────────────────────────

// GuardDecisionsTotal counts route guard outcomes.
// Label:
//   - state: "checking", "unauthenticated", "authorized", "unauthorized"
var GuardDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_decisions_total",
		Help:      "Total number of route guard decisions, by resulting state.",
	},
	[]string{"state"},
)

// ── Change feed ───────────────────────────────────────────────────────────────

// ChangeEventsTotal counts change events received from the database.
// Labels:
//   - table: "profiles", "vendors", "admins"
//   - op: "insert", "update", "delete"
var ChangeEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "change_events_total",
		Help:      "Total number of change events received, by table and operation.",
	},
	[]string{"table", "op"},
)

// ChangeQueueDepth tracks pending events in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index
var ChangeQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "change_queue_depth",
		Help:      "Current number of change events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ChangeEventsDroppedTotal counts change events discarded because the
// worker queue was full.
var ChangeEventsDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "change_events_dropped_total",
		Help:      "Total number of change events dropped on a full worker queue, by table.",
	},
	[]string{"table"},
)
