package goGuard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/source"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// grantSource serves a mutable grant per key and counts fetches.
type grantSource struct {
	calls atomic.Int64

	mu     sync.Mutex
	grants map[string]*source.Grant
	err    error
}

func newGrantSource() *grantSource {
	return &grantSource{grants: make(map[string]*source.Grant)}
}

func (s *grantSource) set(userID, organizationID string, g *source.Grant) {
	s.mu.Lock()
	s.grants[organizationID+":"+userID] = g
	s.mu.Unlock()
}

func (s *grantSource) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *grantSource) Fetch(_ context.Context, userID, organizationID string) (*source.Grant, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	g, ok := s.grants[organizationID+":"+userID]
	if !ok {
		return nil, source.ErrSourceNotFound
	}
	return g, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Cache.TTL = time.Minute
	cfg.Cache.MaxAge = 10 * time.Minute
	cfg.Metrics.Enabled = true
	return cfg
}

func testBuilder(cfg Config, src source.Source) *Builder {
	return New().
		WithConfig(cfg).
		WithPermissions([]string{"billing"}).
		WithModules(map[string][]string{
			"conversations": {"view", "reply"},
			"reports":       {"view"},
		}).
		WithSource(src)
}

func buildTestEngine(t testing.TB, b *Builder) *Engine {
	t.Helper()

	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func agentGrant() *source.Grant {
	return &source.Grant{
		RoleID:   "r-agent",
		RoleName: "agent",
		Permissions: map[string]any{
			"conversations": map[string]any{"view": true, "reply": false},
		},
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
}
