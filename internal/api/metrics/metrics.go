// Package metrics defines and registers all custom Prometheus metrics for the
// tracking service. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics register with the default Prometheus registry at import time; the
// router exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tracking"

// ── Ingest metrics ────────────────────────────────────────────────────────────

// LocationsIngestedTotal counts location reports that completed processing.
// Label:
//   - vehicle_status: the derived status ("available", "stopped", "moving")
var LocationsIngestedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "locations_ingested_total",
		Help:      "Total number of location reports successfully processed.",
	},
	[]string{"vehicle_status"},
)

// IngestErrorsTotal counts location reports that failed processing.
// Label:
//   - reason: short description of the failure (e.g. "order_not_found", "storage")
var IngestErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_errors_total",
		Help:      "Total number of location reports that failed processing.",
	},
	[]string{"reason"},
)

// IngestQueueDepth tracks the number of reports waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var IngestQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ingest_queue_depth",
		Help:      "Current number of location reports pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// IngestProcessingDuration measures how long one report takes from dequeue to
// persistence and fan-out.
// Label:
//   - result: "ok" or "error"
var IngestProcessingDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_processing_duration_seconds",
		Help:      "Duration of location report processing from dequeue to fan-out.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)

// ── Order lifecycle metrics ───────────────────────────────────────────────────

// OrderTransitionsTotal counts applied lifecycle transitions.
// Label:
//   - to_status: the status applied (e.g. "in_transit", "delivered")
var OrderTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Total number of order lifecycle transitions applied, by target status.",
	},
	[]string{"to_status"},
)

// StaleOrdersCancelledTotal counts orders cancelled by the timeout sweep.
var StaleOrdersCancelledTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_orders_cancelled_total",
		Help:      "Total number of orders cancelled by the no-driver timeout sweep.",
	},
)

// ── Incident metrics ──────────────────────────────────────────────────────────

// IncidentsReportedTotal counts reported incidents.
// Label:
//   - type: incident type (e.g. "accident", "road_block")
var IncidentsReportedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "incidents_reported_total",
		Help:      "Total number of incidents reported, by type.",
	},
	[]string{"type"},
)

// IncidentsExpiredTotal counts incidents deactivated by the expiry sweep.
var IncidentsExpiredTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "incidents_expired_total",
		Help:      "Total number of incidents deactivated by the expiry sweep.",
	},
)

// ── Stream metrics ────────────────────────────────────────────────────────────

// StreamSubscribers tracks the number of live order-stream subscriptions.
var StreamSubscribers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_subscribers",
		Help:      "Current number of live order location stream subscriptions.",
	},
)
