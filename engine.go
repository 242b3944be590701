package goGuard

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goGuard/access"
	"github.com/MrEthical07/goGuard/cache"
	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/resolver"
	"github.com/MrEthical07/goGuard/permission"
	"github.com/MrEthical07/goGuard/snapshot"
	"github.com/MrEthical07/goGuard/source"
	"github.com/rs/zerolog"
)

// Engine owns the permission cache, the resolver and the evaluator for one
// process. It is safe for concurrent use after [Builder.Build].
type Engine struct {
	config      Config
	log         zerolog.Logger
	now         func() time.Time
	registry    *permission.Registry
	roleManager *permission.RoleManager
	evaluator   *access.Evaluator
	source      source.Source
	store       *cache.Store
	resolver    *resolver.Resolver
	audit       *audit.Dispatcher
	metrics     *Metrics

	owned  []io.Closer
	closed atomic.Bool
	bg     sync.WaitGroup

	trackMu  sync.Mutex
	trackers map[snapshot.Key]map[*Tracker]struct{}
}

func (e *Engine) ready() error {
	if e == nil || e.resolver == nil {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

func identityKey(userID, organizationID string) (snapshot.Key, error) {
	key := snapshot.KeyOf(userID, organizationID)
	if !key.Valid() {
		return key, ErrInvalidIdentity
	}
	return key, nil
}

// Resolve returns the snapshot for (userID, organizationID), fetching it on a
// cache miss. Concurrent calls for one key share a single fetch. Failures wrap
// [ErrResolveFailed] and are never cached.
func (e *Engine) Resolve(ctx context.Context, userID, organizationID string) (*snapshot.Snapshot, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := identityKey(userID, organizationID); err != nil {
		return nil, err
	}
	return e.resolver.Resolve(ctx, userID, organizationID)
}

// Refresh drops the cached snapshot and resolves a fresh one.
func (e *Engine) Refresh(ctx context.Context, userID, organizationID string) (*snapshot.Snapshot, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := identityKey(userID, organizationID); err != nil {
		return nil, err
	}
	return e.resolver.Refresh(ctx, userID, organizationID)
}

// Has resolves the snapshot and reports whether it grants name.
func (e *Engine) Has(ctx context.Context, userID, organizationID, name string) (bool, error) {
	return e.HasAll(ctx, userID, organizationID, name)
}

// HasAll reports whether every name is granted. An empty list is granted.
func (e *Engine) HasAll(ctx context.Context, userID, organizationID string, names ...string) (bool, error) {
	snap, err := e.resolveFor(ctx, userID, organizationID, names)
	if err != nil {
		return false, err
	}
	return e.evaluator.HasAll(snap, names...), nil
}

// HasAny reports whether at least one name is granted. An empty list is denied.
func (e *Engine) HasAny(ctx context.Context, userID, organizationID string, names ...string) (bool, error) {
	snap, err := e.resolveFor(ctx, userID, organizationID, names)
	if err != nil {
		return false, err
	}
	return e.evaluator.HasAny(snap, names...), nil
}

func (e *Engine) resolveFor(ctx context.Context, userID, organizationID string, names []string) (*snapshot.Snapshot, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	for _, n := range names {
		if _, ok := e.registry.Bit(n); !ok {
			return nil, fmt.Errorf("%w: %s", ErrPermissionUnknown, n)
		}
	}
	return e.Resolve(ctx, userID, organizationID)
}

// Evaluate resolves the snapshot and evaluates req with the strict policy.
// A resolution failure is returned as an error with a denied decision.
func (e *Engine) Evaluate(ctx context.Context, userID, organizationID string, req access.Requirement) (access.Decision, error) {
	denied := access.Decision{Reason: access.ReasonNotInitialized}
	snap, err := e.Resolve(ctx, userID, organizationID)
	if err != nil {
		return denied, err
	}
	rd := access.Readiness{ProfileResolved: true, Initialized: true, ShowLoading: true}
	d := e.evaluator.Evaluate(snap, req, rd, access.PolicyStrict)
	e.recordDecision(ctx, snap.Key(), d, access.PolicyStrict)
	return d, nil
}

// Decide evaluates req against an already known state and records the outcome.
// Guards call it on every recomputation.
func (e *Engine) Decide(ctx context.Context, snap *snapshot.Snapshot, key snapshot.Key, req access.Requirement, rd access.Readiness, policy access.Policy) access.Decision {
	d := e.evaluator.Evaluate(snap, req, rd, policy)
	e.recordDecision(ctx, key, d, policy)
	return d
}

// Invalidate removes the cached snapshot for one key from both tiers and
// reloads any live tracker for it. Fetches already running for the key do not
// write their result back.
func (e *Engine) Invalidate(ctx context.Context, userID, organizationID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	key, err := identityKey(userID, organizationID)
	if err != nil {
		return err
	}
	e.resolver.Invalidate(ctx, userID, organizationID)
	e.metricInc(MetricInvalidate)
	e.emitAudit(ctx, AuditCacheInvalidated, true, key, "", nil, nil)
	e.log.Debug().Str("user_id", userID).Str("organization_id", organizationID).Msg("permission cache invalidated")

	e.notifyTrackers(func(k snapshot.Key) bool { return k == key })
	return nil
}

// Clear drops every cached snapshot under this engine's prefix.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.resolver.Clear(ctx)
	e.metricInc(MetricClear)
	e.emitAudit(ctx, AuditCacheCleared, true, snapshot.Key{}, "", nil, nil)
	e.log.Info().Str("prefix", e.store.Prefix()).Msg("permission cache cleared")

	e.notifyTrackers(func(snapshot.Key) bool { return true })
	return nil
}

// Close stops background reloads, flushes audit events and closes durable
// handles the engine opened itself. Close is idempotent.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	// notifyTrackers checks closed under trackMu before adding to bg.
	e.trackMu.Lock()
	e.trackMu.Unlock()
	e.bg.Wait()
	if e.audit != nil {
		e.audit.Close()
	}
	e.closeOwned()
}

func (e *Engine) closeOwned() {
	for _, c := range e.owned {
		if err := c.Close(); err != nil {
			e.log.Warn().Err(err).Msg("closing durable handle")
		}
	}
	e.owned = nil
}

// Registry returns the frozen permission registry.
func (e *Engine) Registry() *permission.Registry {
	return e.registry
}

// Roles returns the frozen role manager.
func (e *Engine) Roles() *permission.RoleManager {
	return e.roleManager
}

// Evaluator returns the access evaluator.
func (e *Engine) Evaluator() *access.Evaluator {
	return e.evaluator
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Logger returns the engine logger.
func (e *Engine) Logger() zerolog.Logger {
	return e.log
}

// Store returns the snapshot cache.
func (e *Engine) Store() *cache.Store {
	return e.store
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of every metric.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) resolverHooks() resolver.Hooks {
	return resolver.Hooks{
		OnFetch: func(key snapshot.Key, latency time.Duration, err error) {
			e.metrics.Observe(MetricResolveLatency, latency)
			if err == nil {
				e.metricInc(MetricFetchSuccess)
				return
			}
			e.metricInc(MetricFetchFailure)
			e.emitAudit(context.Background(), AuditResolveFailed, false, key, "", err, nil)
		},
		OnCoalesced: func(snapshot.Key) {
			e.metricInc(MetricFetchCoalesced)
		},
		OnStaleWrite: func(key snapshot.Key, epoch uint64) {
			e.metricInc(MetricStaleWriteDiscarded)
			e.emitAudit(context.Background(), AuditStaleWriteDiscarded, true, key, "", nil, func(ev *AuditEvent) {
				ev.Generation = epoch
			})
		},
		OnSkipped: func(snapshot.Key, []string) {
			e.metricInc(MetricUnknownPermission)
		},
	}
}
