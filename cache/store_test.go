package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/permission"
	"github.com/MrEthical07/goGuard/snapshot"
	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mapDurable is an in-process Durable that can be switched into a failing mode.
type mapDurable struct {
	mu     sync.Mutex
	data   map[string][]byte
	failed error
}

func newMapDurable() *mapDurable {
	return &mapDurable{data: make(map[string][]byte)}
}

func (d *mapDurable) fail(err error) {
	d.mu.Lock()
	d.failed = err
	d.mu.Unlock()
}

func (d *mapDurable) Load(_ context.Context, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed != nil {
		return nil, d.failed
	}
	v, ok := d.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (d *mapDurable) Store(_ context.Context, key string, data []byte, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed != nil {
		return d.failed
	}
	d.data[key] = append([]byte(nil), data...)
	return nil
}

func (d *mapDurable) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed != nil {
		return d.failed
	}
	delete(d.data, key)
	return nil
}

func (d *mapDurable) DeletePrefix(_ context.Context, prefix string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed != nil {
		return d.failed
	}
	for k := range d.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(d.data, k)
		}
	}
	return nil
}

func (d *mapDurable) has(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.data[key]
	return ok
}

type eventLog struct {
	mu     sync.Mutex
	counts map[Event]int
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	if l.counts == nil {
		l.counts = make(map[Event]int)
	}
	l.counts[e]++
	l.mu.Unlock()
}

func (l *eventLog) count(e Event) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[e]
}

func testSnapshot(t *testing.T, clock *fakeClock, user, org string, bits ...int) *snapshot.Snapshot {
	t.Helper()
	mask, err := permission.NewMask(64)
	if err != nil {
		t.Fatalf("new mask: %v", err)
	}
	for _, b := range bits {
		mask.Set(b)
	}
	return &snapshot.Snapshot{
		UserID:         user,
		OrganizationID: org,
		RoleID:         "r-1",
		RoleName:       "editor",
		Permissions:    mask,
		CapturedAt:     clock.Now(),
		TTL:            5 * time.Minute,
		MaxAge:         30 * time.Minute,
	}
}

func newTestStore(durable Durable, clock *fakeClock, events *eventLog) *Store {
	return NewStore(Options{
		Prefix:  "test:perm",
		Durable: durable,
		Logger:  zerolog.Nop(),
		Now:     clock.Now,
		OnEvent: events.record,
	})
}

func TestStoreSetGetRoundTrip(t *testing.T) {
	clock := newFakeClock()
	events := &eventLog{}
	store := newTestStore(newMapDurable(), clock, events)
	ctx := context.Background()

	snap := testSnapshot(t, clock, "u1", "o1", 0, 3)
	if err := store.Set(ctx, snap); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok := store.Get(ctx, "u1", "o1")
	if !ok {
		t.Fatalf("expected hit")
	}
	if !got.Equal(snap) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, snap)
	}
	if events.count(EventHitMemory) != 1 {
		t.Fatalf("expected one memory hit, got %d", events.count(EventHitMemory))
	}
}

func TestStoreSetCopiesInput(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(nil, clock, &eventLog{})
	ctx := context.Background()

	snap := testSnapshot(t, clock, "u1", "o1", 1)
	if err := store.Set(ctx, snap); err != nil {
		t.Fatalf("set: %v", err)
	}
	snap.Permissions.Set(5)

	got, _ := store.Get(ctx, "u1", "o1")
	if got.Permissions.Has(5) {
		t.Fatalf("cached snapshot aliased caller mask")
	}
}

func TestStoreSetRejectsIncompleteKey(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(nil, clock, &eventLog{})

	if err := store.Set(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil snapshot")
	}
	if err := store.Set(context.Background(), testSnapshot(t, clock, "", "o1")); err == nil {
		t.Fatalf("expected error for missing user")
	}
}

func TestStoreDurableRehydratesAfterRestart(t *testing.T) {
	clock := newFakeClock()
	durable := newMapDurable()
	ctx := context.Background()

	first := newTestStore(durable, clock, &eventLog{})
	snap := testSnapshot(t, clock, "u1", "o1", 2)
	if err := first.Set(ctx, snap); err != nil {
		t.Fatalf("set: %v", err)
	}

	events := &eventLog{}
	second := newTestStore(durable, clock, events)
	got, ok := second.Get(ctx, "u1", "o1")
	if !ok || !got.Equal(snap) {
		t.Fatalf("expected durable hit, got %v %+v", ok, got)
	}
	if events.count(EventHitDurable) != 1 {
		t.Fatalf("expected durable hit event")
	}
	if second.Len() != 1 {
		t.Fatalf("expected promotion into memory, len=%d", second.Len())
	}
}

func TestStoreGetExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	durable := newMapDurable()
	store := newTestStore(durable, clock, &eventLog{})
	ctx := context.Background()

	if err := store.Set(ctx, testSnapshot(t, clock, "u1", "o1")); err != nil {
		t.Fatalf("set: %v", err)
	}

	clock.Advance(6 * time.Minute)
	if _, ok := store.Get(ctx, "u1", "o1"); ok {
		t.Fatalf("expected miss past TTL")
	}
	if _, ok := store.GetStale(ctx, "u1", "o1"); !ok {
		t.Fatalf("expected stale hit inside MaxAge")
	}
	if !durable.has("test:perm:2:o1:u1") {
		t.Fatalf("durable record past TTL but inside MaxAge must be retained")
	}
}

func TestStoreLazyEvictionPastMaxAge(t *testing.T) {
	clock := newFakeClock()
	durable := newMapDurable()
	events := &eventLog{}
	store := newTestStore(durable, clock, events)
	ctx := context.Background()

	if err := store.Set(ctx, testSnapshot(t, clock, "u1", "o1")); err != nil {
		t.Fatalf("set: %v", err)
	}

	clock.Advance(31 * time.Minute)
	if _, ok := store.GetStale(ctx, "u1", "o1"); ok {
		t.Fatalf("expected miss past MaxAge")
	}
	if store.Len() != 0 {
		t.Fatalf("expected volatile entry evicted")
	}
	if durable.has("test:perm:2:o1:u1") {
		t.Fatalf("expected durable entry evicted")
	}
	if events.count(EventExpired) == 0 {
		t.Fatalf("expected expired event")
	}
}

func TestStoreDurableFailureIsBestEffort(t *testing.T) {
	clock := newFakeClock()
	durable := newMapDurable()
	durable.fail(errors.New("quota exceeded"))
	events := &eventLog{}
	store := newTestStore(durable, clock, events)
	ctx := context.Background()

	snap := testSnapshot(t, clock, "u1", "o1", 4)
	if err := store.Set(ctx, snap); err != nil {
		t.Fatalf("durable failure must not surface from Set: %v", err)
	}
	got, ok := store.Get(ctx, "u1", "o1")
	if !ok || !got.Equal(snap) {
		t.Fatalf("expected memory-only hit")
	}
	if events.count(EventDurableError) != 1 {
		t.Fatalf("expected one durable error event, got %d", events.count(EventDurableError))
	}
}

func TestStoreInvalidateUnderDurableFailure(t *testing.T) {
	clock := newFakeClock()
	durable := newMapDurable()
	store := newTestStore(durable, clock, &eventLog{})
	ctx := context.Background()

	if err := store.Set(ctx, testSnapshot(t, clock, "u1", "o1")); err != nil {
		t.Fatalf("set: %v", err)
	}

	durable.fail(errors.New("connection reset"))
	store.Invalidate(ctx, "u1", "o1")

	if _, ok := store.Get(ctx, "u1", "o1"); ok {
		t.Fatalf("invalidated entry must not be served")
	}
	if store.Len() != 0 {
		t.Fatalf("expected volatile entry removed")
	}
}

func TestStoreInvalidateScopedToKey(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(newMapDurable(), clock, &eventLog{})
	ctx := context.Background()

	_ = store.Set(ctx, testSnapshot(t, clock, "u1", "o1"))
	_ = store.Set(ctx, testSnapshot(t, clock, "u1", "o2"))
	_ = store.Set(ctx, testSnapshot(t, clock, "u2", "o1"))

	store.Invalidate(ctx, "u1", "o1")

	if _, ok := store.Get(ctx, "u1", "o1"); ok {
		t.Fatalf("expected u1/o1 invalidated")
	}
	if _, ok := store.Get(ctx, "u1", "o2"); !ok {
		t.Fatalf("expected u1/o2 retained")
	}
	if _, ok := store.Get(ctx, "u2", "o1"); !ok {
		t.Fatalf("expected u2/o1 retained")
	}
}

func TestStoreClearKeepsForeignKeys(t *testing.T) {
	clock := newFakeClock()
	durable := newMapDurable()
	store := newTestStore(durable, clock, &eventLog{})
	ctx := context.Background()

	_ = store.Set(ctx, testSnapshot(t, clock, "u1", "o1"))
	_ = durable.Store(ctx, "other:app:key", []byte("x"), time.Minute)

	store.Clear(ctx)

	if store.Len() != 0 {
		t.Fatalf("expected empty volatile tier")
	}
	if durable.has("test:perm:2:o1:u1") {
		t.Fatalf("expected namespaced durable key cleared")
	}
	if !durable.has("other:app:key") {
		t.Fatalf("foreign key must survive Clear")
	}
}

func TestStoreCorruptDurableRecordIsMiss(t *testing.T) {
	clock := newFakeClock()
	durable := newMapDurable()
	events := &eventLog{}
	store := newTestStore(durable, clock, events)
	ctx := context.Background()

	_ = durable.Store(ctx, "test:perm:2:o1:u1", []byte{0xff, 0x00, 0x01}, time.Minute)

	if _, ok := store.Get(ctx, "u1", "o1"); ok {
		t.Fatalf("corrupt record must not be served")
	}
	if durable.has("test:perm:2:o1:u1") {
		t.Fatalf("corrupt record should be deleted")
	}
	if events.count(EventDurableError) == 0 {
		t.Fatalf("expected durable error event")
	}
}

func TestStorePromoteKeepsNewerMemoryEntry(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(nil, clock, &eventLog{})

	older := testSnapshot(t, clock, "u1", "o1", 1)
	clock.Advance(time.Second)
	newer := testSnapshot(t, clock, "u1", "o1", 2)

	store.promote(newer.Key(), newer)
	store.promote(older.Key(), older)

	got, ok := store.Get(context.Background(), "u1", "o1")
	if !ok || !got.Permissions.Has(2) {
		t.Fatalf("older durable copy replaced a newer memory entry")
	}
}

func TestStoreDurableKeysDoNotCollide(t *testing.T) {
	clock := newFakeClock()
	durable := newMapDurable()
	events := &eventLog{}
	ctx := context.Background()

	writer := newTestStore(durable, clock, events)
	if err := writer.Set(ctx, testSnapshot(t, clock, "b:c", "a", 1)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := writer.Set(ctx, testSnapshot(t, clock, "c", "a:b", 2)); err != nil {
		t.Fatalf("set: %v", err)
	}

	// A fresh store has an empty volatile tier, so both reads hit durable.
	reader := newTestStore(durable, clock, events)
	first, ok := reader.Get(ctx, "b:c", "a")
	if !ok || !first.Permissions.Has(1) || first.Permissions.Has(2) {
		t.Fatalf("unexpected snapshot for b:c/a: %+v ok=%v", first, ok)
	}
	second, ok := reader.Get(ctx, "c", "a:b")
	if !ok || !second.Permissions.Has(2) || second.Permissions.Has(1) {
		t.Fatalf("unexpected snapshot for c/a:b: %+v ok=%v", second, ok)
	}
}
