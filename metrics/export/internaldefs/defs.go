package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for [goGuard.Engine.AuditDropped].
const (
	AuditDroppedName = "goguard_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped under dispatcher backpressure."
)

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricCacheHitMemory, Name: "goguard_cache_hit_memory_total", Help: "Valid reads served from the in-process tier."},
	{ID: goGuard.MetricCacheHitDurable, Name: "goguard_cache_hit_durable_total", Help: "Valid reads rehydrated from the durable tier."},
	{ID: goGuard.MetricCacheHitStale, Name: "goguard_cache_hit_stale_total", Help: "Relaxed reads served past TTL."},
	{ID: goGuard.MetricCacheMiss, Name: "goguard_cache_miss_total", Help: "Reads with no usable snapshot."},
	{ID: goGuard.MetricCacheExpired, Name: "goguard_cache_expired_total", Help: "Snapshots evicted past their hard max age."},
	{ID: goGuard.MetricDurableError, Name: "goguard_durable_error_total", Help: "Failed durable tier operations."},
	{ID: goGuard.MetricFetchSuccess, Name: "goguard_fetch_success_total", Help: "Successful permission source fetches."},
	{ID: goGuard.MetricFetchFailure, Name: "goguard_fetch_failure_total", Help: "Failed permission source fetches."},
	{ID: goGuard.MetricFetchCoalesced, Name: "goguard_fetch_coalesced_total", Help: "Resolutions that joined an in-flight fetch."},
	{ID: goGuard.MetricStaleWriteDiscarded, Name: "goguard_stale_write_discarded_total", Help: "Fetch results discarded after an invalidation."},
	{ID: goGuard.MetricUnknownPermission, Name: "goguard_unknown_permission_total", Help: "Grants carrying unregistered permission names."},
	{ID: goGuard.MetricInvalidate, Name: "goguard_invalidate_total", Help: "Per-key cache invalidations."},
	{ID: goGuard.MetricClear, Name: "goguard_clear_total", Help: "Full cache clears."},
	{ID: goGuard.MetricDecisionGranted, Name: "goguard_decision_granted_total", Help: "Granted access decisions."},
	{ID: goGuard.MetricDecisionDenied, Name: "goguard_decision_denied_total", Help: "Denied access decisions, loading included."},
	{ID: goGuard.MetricOptimisticGrant, Name: "goguard_optimistic_grant_total", Help: "Grants made before resolution completed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricResolveLatency, Name: "goguard_resolve_latency_seconds", Help: "Permission source fetch latency."},
}

// HistogramBounds are the upper bounds in seconds of the first seven buckets.
// The eighth bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters
// without native histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding or truncating.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
