package goGuard

import (
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/cache"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricCacheMiss)

	if got := m.Value(MetricCacheMiss); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricFetchSuccess)
	m.Inc(MetricFetchSuccess)
	m.Inc(MetricFetchSuccess)

	if got := m.Value(MetricFetchSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricCacheHitMemory)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricCacheHitMemory); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		3 * time.Millisecond,
		8 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		2 * time.Second,
	}
	for _, d := range observations {
		m.Observe(MetricResolveLatency, d)
	}

	buckets := m.Snapshot().Histograms[MetricResolveLatency]
	if len(buckets) != len(observations) {
		t.Fatalf("expected %d buckets, got %d", len(observations), len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricCacheMiss, time.Millisecond)

	if got := m.Value(MetricCacheMiss); got != 0 {
		t.Fatalf("expected counter untouched, got %d", got)
	}
}

func TestMetricsLatencyDisabledNoHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricResolveLatency, time.Millisecond)

	if _, ok := m.Snapshot().Histograms[MetricResolveLatency]; ok {
		t.Fatal("expected no histogram when latency disabled")
	}
}

func TestMetricsCacheEventMapping(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	events := map[cache.Event]MetricID{
		cache.EventHitMemory:    MetricCacheHitMemory,
		cache.EventHitDurable:   MetricCacheHitDurable,
		cache.EventHitStale:     MetricCacheHitStale,
		cache.EventMiss:         MetricCacheMiss,
		cache.EventExpired:      MetricCacheExpired,
		cache.EventDurableError: MetricDurableError,
	}
	for ev, id := range events {
		m.cacheEvent(ev)
		if got := m.Value(id); got != 1 {
			t.Fatalf("event %d: expected metric %d to be 1, got %d", ev, id, got)
		}
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricCacheMiss)
	m.Observe(MetricResolveLatency, time.Millisecond)
	if m.Enabled() || m.Value(MetricCacheMiss) != 0 {
		t.Fatal("nil metrics must be inert")
	}
}
