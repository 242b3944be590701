package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/goGuard/snapshot"
	"github.com/rs/zerolog"
)

// DefaultPrefix is the durable key namespace used when none is configured.
const DefaultPrefix = "goguard:perm"

// Event identifies an observable cache outcome.
type Event uint8

const (
	// EventHitMemory is a valid read served by the volatile tier.
	EventHitMemory Event = iota
	// EventHitDurable is a valid read rehydrated from the durable tier.
	EventHitDurable
	// EventHitStale is a relaxed read served past TTL but inside MaxAge.
	EventHitStale
	// EventMiss is a read that found no usable snapshot.
	EventMiss
	// EventExpired is a read that found a snapshot past its hard MaxAge.
	EventExpired
	// EventDurableError is any failed durable operation or codec error.
	EventDurableError
)

// Options configures a [Store].
type Options struct {
	Prefix  string
	Durable Durable
	Logger  zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// OnEvent is called synchronously for every cache outcome.
	OnEvent func(Event)
}

// Store is the two-tier snapshot cache.
type Store struct {
	prefix  string
	durable Durable
	log     zerolog.Logger
	now     func() time.Time
	onEvent func(Event)

	mu    sync.RWMutex
	items map[snapshot.Key]*snapshot.Snapshot
}

// NewStore builds a [Store]. A nil Durable selects memory-only mode.
func NewStore(opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Durable == nil {
		opts.Durable = NopDurable{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(Event) {}
	}

	return &Store{
		prefix:  opts.Prefix,
		durable: opts.Durable,
		log:     opts.Logger.With().Str("component", "cache").Logger(),
		now:     opts.Now,
		onEvent: opts.OnEvent,
		items:   make(map[snapshot.Key]*snapshot.Snapshot),
	}
}

func (s *Store) durableKey(k snapshot.Key) string {
	return s.prefix + ":" + k.String()
}

// Prefix returns the durable namespace of this store.
func (s *Store) Prefix() string {
	return s.prefix
}

// Get returns a snapshot that is inside both its TTL and MaxAge. The returned
// snapshot is shared and must not be mutated.
func (s *Store) Get(ctx context.Context, userID, organizationID string) (*snapshot.Snapshot, bool) {
	return s.get(ctx, snapshot.KeyOf(userID, organizationID), false)
}

// GetStale is Get with TTL relaxed: it returns any snapshot still inside its
// hard MaxAge.
func (s *Store) GetStale(ctx context.Context, userID, organizationID string) (*snapshot.Snapshot, bool) {
	return s.get(ctx, snapshot.KeyOf(userID, organizationID), true)
}

func (s *Store) get(ctx context.Context, key snapshot.Key, relaxed bool) (*snapshot.Snapshot, bool) {
	if !key.Valid() {
		s.onEvent(EventMiss)
		return nil, false
	}
	now := s.now()

	s.mu.RLock()
	snap, ok := s.items[key]
	s.mu.RUnlock()

	if ok {
		switch {
		case snap.Valid(now):
			s.onEvent(EventHitMemory)
			return snap, true
		case !snap.ValidRelaxed(now):
			s.dropVolatile(key, snap)
			s.onEvent(EventExpired)
		case relaxed:
			s.onEvent(EventHitStale)
			return snap, true
		}
	}

	snap, ok = s.loadDurable(ctx, key, now)
	if !ok {
		s.onEvent(EventMiss)
		return nil, false
	}

	if snap.Valid(now) {
		s.promote(key, snap)
		s.onEvent(EventHitDurable)
		return snap, true
	}
	if relaxed {
		s.promote(key, snap)
		s.onEvent(EventHitStale)
		return snap, true
	}

	s.onEvent(EventMiss)
	return nil, false
}

// loadDurable returns a decoded record inside its MaxAge. Corrupt and
// hard-expired records are deleted.
func (s *Store) loadDurable(ctx context.Context, key snapshot.Key, now time.Time) (*snapshot.Snapshot, bool) {
	dkey := s.durableKey(key)

	data, err := s.durable.Load(ctx, dkey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.onEvent(EventDurableError)
			s.log.Warn().Err(err).Str("key", dkey).Msg("durable read failed, treating as miss")
		}
		return nil, false
	}

	snap, err := snapshot.Decode(data)
	if err == nil && snap.Key() != key {
		err = snapshot.ErrCorrupt
	}
	if err != nil {
		s.onEvent(EventDurableError)
		s.log.Warn().Err(err).Str("key", dkey).Msg("discarding undecodable durable record")
		s.deleteDurable(ctx, dkey)
		return nil, false
	}

	if !snap.ValidRelaxed(now) {
		s.onEvent(EventExpired)
		s.log.Debug().Str("key", dkey).Dur("age", snap.Age(now)).Msg("evicting expired durable record")
		s.deleteDurable(ctx, dkey)
		return nil, false
	}

	return snap, true
}

// promote installs snap in the volatile tier unless a newer capture is already there.
func (s *Store) promote(key snapshot.Key, snap *snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.items[key]; ok && cur.CapturedAt.After(snap.CapturedAt) {
		return
	}
	s.items[key] = snap
}

func (s *Store) dropVolatile(key snapshot.Key, expected *snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.items[key]; ok && cur == expected {
		delete(s.items, key)
	}
}

// Set writes snap to both tiers. The volatile write always happens; the durable
// write is best-effort. Only an invalid snapshot is reported as an error.
func (s *Store) Set(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	key := snap.Key()
	if !key.Valid() {
		return errors.New("snapshot key incomplete")
	}

	stored := snap.Clone()

	s.mu.Lock()
	s.items[key] = stored
	s.mu.Unlock()

	dkey := s.durableKey(key)
	ttl := stored.HardExpiresAt().Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	data, err := snapshot.Encode(stored)
	if err != nil {
		s.onEvent(EventDurableError)
		s.log.Warn().Err(err).Str("key", dkey).Msg("snapshot encode failed, continuing memory-only")
		return nil
	}
	if err := s.durable.Store(ctx, dkey, data, ttl); err != nil {
		s.onEvent(EventDurableError)
		s.log.Warn().Err(err).Str("key", dkey).Msg("durable write failed, continuing memory-only")
	}
	return nil
}

// Invalidate removes the entry for (userID, organizationID) from both tiers.
// A durable failure never restores the volatile entry.
func (s *Store) Invalidate(ctx context.Context, userID, organizationID string) {
	key := snapshot.KeyOf(userID, organizationID)

	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()

	s.deleteDurable(ctx, s.durableKey(key))
}

// Clear drops every entry under this store's namespace from both tiers.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.items = make(map[snapshot.Key]*snapshot.Snapshot)
	s.mu.Unlock()

	if err := s.durable.DeletePrefix(ctx, s.prefix+":"); err != nil {
		s.onEvent(EventDurableError)
		s.log.Warn().Err(err).Str("prefix", s.prefix).Msg("durable clear failed")
	}
}

// Len returns the number of volatile entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) deleteDurable(ctx context.Context, dkey string) {
	if err := s.durable.Delete(ctx, dkey); err != nil {
		s.onEvent(EventDurableError)
		s.log.Warn().Err(err).Str("key", dkey).Msg("durable delete failed")
	}
}
