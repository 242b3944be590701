package goGuard

import (
	"time"

	"github.com/MrEthical07/goGuard/cache"
	"github.com/MrEthical07/goGuard/internal/metrics"
)

// MetricID identifies an engine counter or histogram.
type MetricID uint16

const (
	// MetricCacheHitMemory counts valid reads served from the volatile tier.
	MetricCacheHitMemory MetricID = iota
	// MetricCacheHitDurable counts valid reads rehydrated from the durable tier.
	MetricCacheHitDurable
	// MetricCacheHitStale counts relaxed reads past TTL but inside MaxAge.
	MetricCacheHitStale
	// MetricCacheMiss counts reads with no usable snapshot.
	MetricCacheMiss
	// MetricCacheExpired counts snapshots evicted past MaxAge on read.
	MetricCacheExpired
	// MetricDurableError counts durable tier failures.
	MetricDurableError
	// MetricFetchSuccess counts successful source fetches.
	MetricFetchSuccess
	// MetricFetchFailure counts failed source fetches.
	MetricFetchFailure
	// MetricFetchCoalesced counts resolutions that joined another caller's fetch.
	MetricFetchCoalesced
	// MetricStaleWriteDiscarded counts fetch results overtaken by an invalidation.
	MetricStaleWriteDiscarded
	// MetricUnknownPermission counts grants that carried unregistered names.
	MetricUnknownPermission
	// MetricInvalidate counts per-key invalidations.
	MetricInvalidate
	// MetricClear counts full cache clears.
	MetricClear
	// MetricDecisionGranted counts granted access decisions.
	MetricDecisionGranted
	// MetricDecisionDenied counts denied access decisions, loading included.
	MetricDecisionDenied
	// MetricOptimisticGrant counts grants made before resolution completed.
	MetricOptimisticGrant
	// MetricResolveLatency is the source fetch latency histogram.
	MetricResolveLatency
	metricIDCount
)

// Metrics is the engine's lock-free metric store.
type Metrics struct {
	enabled       bool
	enableLatency bool
	set           *metrics.Set
}

// MetricsSnapshot is a point-in-time copy of every metric.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds a metric store. A disabled config yields a store that
// records nothing.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
		set:           metrics.NewSet(int(metricIDCount)),
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.set.Inc(int(id))
}

// Observe records d when id is a histogram metric and latency recording is on.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricResolveLatency {
		return
	}
	m.set.Observe(int(id), d)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.set.Value(int(id))
}

// Snapshot copies every counter, and the histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricResolveLatency {
			continue
		}
		s.Counters[id] = m.set.Value(int(id))
	}
	if m.enableLatency {
		s.Histograms[MetricResolveLatency] = m.set.Buckets(int(MetricResolveLatency))
	}
	return s
}

func (m *Metrics) cacheEvent(ev cache.Event) {
	switch ev {
	case cache.EventHitMemory:
		m.Inc(MetricCacheHitMemory)
	case cache.EventHitDurable:
		m.Inc(MetricCacheHitDurable)
	case cache.EventHitStale:
		m.Inc(MetricCacheHitStale)
	case cache.EventMiss:
		m.Inc(MetricCacheMiss)
	case cache.EventExpired:
		m.Inc(MetricCacheExpired)
	case cache.EventDurableError:
		m.Inc(MetricDurableError)
	}
}
