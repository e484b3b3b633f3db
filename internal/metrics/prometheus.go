// Package metrics provides Prometheus metrics for supplier lookups and inventory syncs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup outcomes.
const (
	LookupFound       = "found"
	LookupNotFound    = "not_found"
	LookupUnavailable = "unavailable"
)

var (
	SupplierLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synctree_supplier_lookups_total",
			Help: "Total number of supplier part lookups by outcome",
		},
		[]string{"supplier", "outcome"},
	)

	SupplierLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synctree_supplier_lookup_duration_seconds",
			Help:    "Time taken for a supplier part lookup, including keyword fallback",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"supplier"},
	)

	InventoryCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synctree_inventory_api_calls_total",
			Help: "Total number of calls made to the inventory backend",
		},
		[]string{"entity", "op", "status"},
	)

	InventoryCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synctree_inventory_api_call_duration_seconds",
			Help:    "Duration of calls to the inventory backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity", "op"},
	)

	ResyncStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synctree_resync_items_total",
			Help: "Total number of supplier parts resynced by resulting status",
		},
		[]string{"supplier", "status"},
	)

	BomRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synctree_bom_rows_total",
			Help: "Total number of BOM rows processed by outcome",
		},
		[]string{"outcome"},
	)

	SideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synctree_side_effect_failures_total",
			Help: "Best-effort steps (images, parameters, price breaks) that failed",
		},
		[]string{"step"},
	)
)

// RecordLookup records a supplier lookup outcome and its duration.
func RecordLookup(supplier, outcome string, duration time.Duration) {
	SupplierLookupsTotal.WithLabelValues(supplier, outcome).Inc()
	SupplierLookupDuration.WithLabelValues(supplier).Observe(duration.Seconds())
}

// RecordInventoryCall records a call to the inventory backend.
func RecordInventoryCall(entity, op string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	InventoryCallsTotal.WithLabelValues(entity, op, status).Inc()
	InventoryCallDuration.WithLabelValues(entity, op).Observe(duration.Seconds())
}

// RecordResync records one resync status.
func RecordResync(supplier, status string) {
	ResyncStatusTotal.WithLabelValues(supplier, status).Inc()
}

// RecordBomRow records one BOM row outcome ("added", "not_found", "failed", "skipped").
func RecordBomRow(outcome string) {
	BomRowsTotal.WithLabelValues(outcome).Inc()
}

// RecordSideEffectFailure records a failed best-effort step.
func RecordSideEffectFailure(step string) {
	SideEffectFailuresTotal.WithLabelValues(step).Inc()
}

// Timer is a helper for measuring duration.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
