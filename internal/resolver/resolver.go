package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/goGuard/cache"
	"github.com/MrEthical07/goGuard/permission"
	"github.com/MrEthical07/goGuard/snapshot"
	"github.com/MrEthical07/goGuard/source"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrResolveFailed wraps every source failure returned by [Resolver.Resolve].
var ErrResolveFailed = errors.New("permission resolution failed")

// Hooks receive resolver outcomes. Nil hooks are skipped.
type Hooks struct {
	OnFetch      func(key snapshot.Key, latency time.Duration, err error)
	OnCoalesced  func(key snapshot.Key)
	OnStaleWrite func(key snapshot.Key, epoch uint64)
	OnSkipped    func(key snapshot.Key, names []string)
}

// Config wires a [Resolver].
type Config struct {
	Store    *cache.Store
	Source   source.Source
	Registry *permission.Registry

	TTL    time.Duration
	MaxAge time.Duration
	// FetchTimeout bounds each shared fetch. Zero means no bound.
	FetchTimeout time.Duration
	// GenerationGuard discards writes from fetches that an Invalidate overtook.
	GenerationGuard bool

	Now    func() time.Time
	Logger zerolog.Logger
	Hooks  Hooks
}

type keyState struct {
	epoch   uint64
	running int
}

// Resolver returns cached snapshots and fetches missing ones once per key.
type Resolver struct {
	cfg   Config
	log   zerolog.Logger
	group singleflight.Group

	mu   sync.Mutex
	keys map[snapshot.Key]*keyState
}

// New builds a [Resolver].
func New(cfg Config) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, errors.New("resolver requires a cache store")
	}
	if cfg.Source == nil {
		return nil, errors.New("resolver requires a permission source")
	}
	if cfg.Registry == nil {
		return nil, errors.New("resolver requires a permission registry")
	}
	if cfg.TTL <= 0 || cfg.MaxAge <= 0 {
		return nil, errors.New("resolver requires positive TTL and MaxAge")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{
		cfg:  cfg,
		log:  cfg.Logger.With().Str("component", "resolver").Logger(),
		keys: make(map[snapshot.Key]*keyState),
	}, nil
}

// Resolve returns the snapshot for the key, fetching it on a cache miss.
// Waiters may give up through ctx; the shared fetch keeps running.
func (r *Resolver) Resolve(ctx context.Context, userID, organizationID string) (*snapshot.Snapshot, error) {
	key := snapshot.KeyOf(userID, organizationID)
	if !key.Valid() {
		return nil, fmt.Errorf("%w: incomplete key", ErrResolveFailed)
	}

	if snap, ok := r.cfg.Store.Get(ctx, userID, organizationID); ok {
		return snap, nil
	}

	epoch := r.currentEpoch(key)
	led := false
	ch := r.group.DoChan(flightKey(key, epoch), func() (any, error) {
		led = true
		return r.fetch(ctx, key, epoch)
	})

	select {
	case res := <-ch:
		if !led && r.cfg.Hooks.OnCoalesced != nil {
			r.cfg.Hooks.OnCoalesced(key)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*snapshot.Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refresh drops the cached snapshot and resolves a fresh one.
func (r *Resolver) Refresh(ctx context.Context, userID, organizationID string) (*snapshot.Snapshot, error) {
	r.Invalidate(ctx, userID, organizationID)
	return r.Resolve(ctx, userID, organizationID)
}

// Invalidate advances the key's epoch and removes it from the cache.
func (r *Resolver) Invalidate(ctx context.Context, userID, organizationID string) {
	key := snapshot.KeyOf(userID, organizationID)
	r.mu.Lock()
	if st, ok := r.keys[key]; ok {
		st.epoch++
	}
	r.mu.Unlock()
	r.cfg.Store.Invalidate(ctx, userID, organizationID)
}

// Clear advances every in-flight key's epoch and empties the cache.
func (r *Resolver) Clear(ctx context.Context) {
	r.mu.Lock()
	for _, st := range r.keys {
		st.epoch++
	}
	r.mu.Unlock()
	r.cfg.Store.Clear(ctx)
}

func flightKey(key snapshot.Key, epoch uint64) string {
	return strconv.FormatUint(epoch, 10) + "/" + key.String()
}

func (r *Resolver) currentEpoch(key snapshot.Key) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.keys[key]; ok {
		return st.epoch
	}
	return 0
}

func (r *Resolver) begin(key snapshot.Key, epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.keys[key]
	if !ok {
		st = &keyState{epoch: epoch}
		r.keys[key] = st
	}
	st.running++
}

// end reports whether epoch is still current and releases the key state once
// no fetch for it is running.
func (r *Resolver) end(key snapshot.Key, epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.keys[key]
	current := epoch >= st.epoch
	st.running--
	if st.running == 0 {
		delete(r.keys, key)
	}
	return current
}

func (r *Resolver) fetch(ctx context.Context, key snapshot.Key, epoch uint64) (*snapshot.Snapshot, error) {
	r.begin(key, epoch)
	committed := false
	defer func() {
		if !committed {
			r.end(key, epoch)
		}
	}()

	fetchCtx := context.WithoutCancel(ctx)
	if r.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, r.cfg.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	grant, err := r.cfg.Source.Fetch(fetchCtx, key.UserID, key.OrganizationID)
	if err == nil && grant == nil {
		err = source.ErrSourceMalformed
	}
	if r.cfg.Hooks.OnFetch != nil {
		r.cfg.Hooks.OnFetch(key, time.Since(start), err)
	}
	if err != nil {
		r.log.Error().Err(err).Str("user_id", key.UserID).Str("organization_id", key.OrganizationID).Msg("permission fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrResolveFailed, err)
	}

	snap := r.compile(key, grant)

	committed = true
	if current := r.end(key, epoch); !current && r.cfg.GenerationGuard {
		r.log.Debug().Str("key", key.String()).Uint64("generation", epoch).Msg("discarding stale fetch result")
		if r.cfg.Hooks.OnStaleWrite != nil {
			r.cfg.Hooks.OnStaleWrite(key, epoch)
		}
		return snap, nil
	}

	if err := r.cfg.Store.Set(fetchCtx, snap); err != nil {
		r.log.Warn().Err(err).Str("key", key.String()).Msg("cache write rejected")
	}
	return snap, nil
}

func (r *Resolver) compile(key snapshot.Key, grant *source.Grant) *snapshot.Snapshot {
	snap := &snapshot.Snapshot{
		UserID:         key.UserID,
		OrganizationID: key.OrganizationID,
		RoleID:         grant.RoleID,
		RoleName:       grant.RoleName,
		CapturedAt:     r.cfg.Now(),
		TTL:            r.cfg.TTL,
		MaxAge:         r.cfg.MaxAge,
	}
	if grant.Permissions == nil {
		return snap
	}

	mask, skipped := permission.Compile(r.cfg.Registry, grant.Permissions)
	snap.Permissions = mask
	if len(skipped) > 0 {
		r.log.Warn().Str("user_id", key.UserID).Str("organization_id", key.OrganizationID).
			Strs("names", skipped).Msg("dropping unregistered permissions")
		if r.cfg.Hooks.OnSkipped != nil {
			r.cfg.Hooks.OnSkipped(key, skipped)
		}
	}
	return snap
}
