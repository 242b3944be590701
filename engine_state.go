package goGuard

import (
	"context"
	"errors"
	"sync"

	"github.com/MrEthical07/goGuard/access"
	"github.com/MrEthical07/goGuard/snapshot"
)

// PermissionState is what a [Tracker] currently knows about one key.
type PermissionState struct {
	UserID         string
	OrganizationID string

	// Snapshot is the current snapshot, possibly stale when CacheUsed is set
	// and Initialized is not. Nil after a failed resolution.
	Snapshot *snapshot.Snapshot
	// Identified is false when the tracker has no complete identity.
	Identified bool
	// Initialized is true once a resolution has completed, or a valid cached
	// snapshot was found.
	Initialized bool
	// Loading is true while a resolution is running.
	Loading bool
	// CacheUsed is true while Snapshot came from the cache rather than a
	// resolution started by this tracker.
	CacheUsed bool
	// Err is the last resolution failure.
	Err error
	// Version increases on every change.
	Version uint64
}

// Key returns the tracked key.
func (s PermissionState) Key() snapshot.Key {
	return snapshot.KeyOf(s.UserID, s.OrganizationID)
}

// Readiness converts the state for the evaluator.
func (s PermissionState) Readiness(showLoading bool) access.Readiness {
	return access.Readiness{
		ProfileResolved: s.Identified,
		Initialized:     s.Initialized,
		ShowLoading:     showLoading,
	}
}

// Tracker follows the permission state of one (user, organization) pair.
// Every change closes the channel returned by [Tracker.Changed]. A tracker is
// reloaded automatically when its key is invalidated or the cache is cleared.
type Tracker struct {
	engine *Engine
	key    snapshot.Key

	mu      sync.Mutex
	state   PermissionState
	gen     uint64
	changed chan struct{}
	closed  bool
}

// Track returns a tracker primed from the cache. A valid cached snapshot makes
// it initialized immediately; a stale one is exposed with CacheUsed set. Call
// [Tracker.Load] to resolve and [Tracker.Close] when done.
func (e *Engine) Track(userID, organizationID string) *Tracker {
	t := &Tracker{
		engine:  e,
		key:     snapshot.KeyOf(userID, organizationID),
		changed: make(chan struct{}),
	}

	t.state.UserID, t.state.OrganizationID = userID, organizationID

	if err := e.ready(); err != nil {
		t.state.Err = err
		return t
	}
	if !t.key.Valid() {
		t.state.Err = ErrInvalidIdentity
		return t
	}

	t.state = e.primeState(t.key)

	e.trackMu.Lock()
	set, ok := e.trackers[t.key]
	if !ok {
		set = make(map[*Tracker]struct{})
		e.trackers[t.key] = set
	}
	set[t] = struct{}{}
	e.trackMu.Unlock()

	return t
}

func (e *Engine) primeState(key snapshot.Key) PermissionState {
	st := PermissionState{
		UserID:         key.UserID,
		OrganizationID: key.OrganizationID,
		Identified:     true,
		Loading:        true,
	}
	snap, ok := e.store.GetStale(context.Background(), key.UserID, key.OrganizationID)
	if !ok {
		return st
	}
	st.Snapshot = snap
	st.CacheUsed = true
	if snap.Valid(e.now()) {
		st.Initialized = true
		st.Loading = false
	}
	return st
}

// notifyTrackers resets every live tracker whose key matches and reloads it in
// the background.
func (e *Engine) notifyTrackers(match func(snapshot.Key) bool) {
	e.trackMu.Lock()
	defer e.trackMu.Unlock()
	if e.closed.Load() {
		return
	}

	for key, set := range e.trackers {
		if !match(key) {
			continue
		}
		for t := range set {
			if !t.reset() {
				continue
			}
			e.spawnLocked(func(ctx context.Context) {
				_ = t.Load(ctx)
			})
		}
	}
}

// Prefetch resolves the key in the background so a later read hits the
// cache. It is a no-op for incomplete keys and after Close.
func (e *Engine) Prefetch(userID, organizationID string) {
	if e.ready() != nil {
		return
	}
	if _, err := identityKey(userID, organizationID); err != nil {
		return
	}
	e.trackMu.Lock()
	defer e.trackMu.Unlock()
	if e.closed.Load() {
		return
	}
	e.spawnLocked(func(ctx context.Context) {
		if _, err := e.Resolve(ctx, userID, organizationID); err != nil {
			e.log.Debug().Err(err).Str("user_id", userID).Str("organization_id", organizationID).Msg("prefetch failed")
		}
	})
}

// spawnLocked runs fn on a goroutine Close waits for, bounded by the source
// timeout. trackMu must be held and the engine not closed.
func (e *Engine) spawnLocked(fn func(ctx context.Context)) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.config.Source.Timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (e *Engine) untrack(t *Tracker) {
	e.trackMu.Lock()
	defer e.trackMu.Unlock()
	set, ok := e.trackers[t.key]
	if !ok {
		return
	}
	delete(set, t)
	if len(set) == 0 {
		delete(e.trackers, t.key)
	}
}

// Identity returns the tracked key.
func (t *Tracker) Identity() (userID, organizationID string) {
	return t.key.UserID, t.key.OrganizationID
}

// State returns the current state.
func (t *Tracker) State() PermissionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Changed returns a channel closed on the next state change.
func (t *Tracker) Changed() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changed
}

// Load resolves through the cache and applies the result.
func (t *Tracker) Load(ctx context.Context) error {
	return t.load(ctx, false)
}

// Refresh bypasses the cache. The current snapshot stays visible until the
// fetch completes.
func (t *Tracker) Refresh(ctx context.Context) error {
	return t.load(ctx, true)
}

// Wait blocks until no resolution is running and returns that state.
func (t *Tracker) Wait(ctx context.Context) (PermissionState, error) {
	for {
		t.mu.Lock()
		st, ch := t.state, t.changed
		t.mu.Unlock()
		if !st.Loading || !st.Identified {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

func (t *Tracker) load(ctx context.Context, force bool) error {
	if !t.key.Valid() {
		return ErrInvalidIdentity
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	gen := t.gen
	if !t.state.Loading {
		t.state.Loading = true
		t.bumpLocked()
	}
	t.mu.Unlock()

	var (
		snap *snapshot.Snapshot
		err  error
	)
	if force {
		snap, err = t.engine.Refresh(ctx, t.key.UserID, t.key.OrganizationID)
	} else {
		snap, err = t.engine.Resolve(ctx, t.key.UserID, t.key.OrganizationID)
	}
	t.apply(gen, snap, err)
	return err
}

func (t *Tracker) apply(gen uint64, snap *snapshot.Snapshot, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || gen != t.gen {
		return
	}

	switch {
	case err == nil:
		t.state.Snapshot = snap
		t.state.Initialized = true
		t.state.CacheUsed = false
		t.state.Err = nil
	case errors.Is(err, ErrResolveFailed):
		t.state.Snapshot = nil
		t.state.Initialized = true
		t.state.CacheUsed = false
		t.state.Err = err
	default:
		// The caller gave up or the engine closed; the shared fetch may still
		// land in the cache for the next Load.
	}
	t.state.Loading = false
	t.bumpLocked()
}

// reset drops the current snapshot after an invalidation. It reports false
// for closed trackers.
func (t *Tracker) reset() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.gen++
	t.state.Snapshot = nil
	t.state.Initialized = false
	t.state.CacheUsed = false
	t.state.Loading = true
	t.state.Err = nil
	t.bumpLocked()
	return true
}

func (t *Tracker) bumpLocked() {
	t.state.Version++
	close(t.changed)
	t.changed = make(chan struct{})
}

// Has reports whether the current snapshot grants name.
func (t *Tracker) Has(name string) bool {
	if t.engine == nil || t.engine.evaluator == nil {
		return false
	}
	return t.engine.evaluator.Has(t.State().Snapshot, name)
}

// HasAll reports whether the current snapshot grants every name.
func (t *Tracker) HasAll(names ...string) bool {
	if t.engine == nil || t.engine.evaluator == nil {
		return false
	}
	return t.engine.evaluator.HasAll(t.State().Snapshot, names...)
}

// HasAny reports whether the current snapshot grants at least one name.
func (t *Tracker) HasAny(names ...string) bool {
	if t.engine == nil || t.engine.evaluator == nil {
		return false
	}
	return t.engine.evaluator.HasAny(t.State().Snapshot, names...)
}

// Engine returns the engine the tracker belongs to.
func (t *Tracker) Engine() *Engine {
	return t.engine
}

// Close stops change notifications and unregisters the tracker.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()
	if t.engine != nil {
		t.engine.untrack(t)
	}
}
