package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/source"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
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

// gateSource blocks every fetch until release is closed, when set.
type gateSource struct {
	calls   atomic.Int64
	release chan struct{}
	grant   *source.Grant
	err     error
}

func (s *gateSource) Fetch(ctx context.Context, _, _ string) (*source.Grant, error) {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.grant, nil
}

func agentSource() *gateSource {
	return &gateSource{grant: &source.Grant{
		RoleName:    "agent",
		Permissions: map[string]any{"conversations": map[string]any{"view": true}},
	}}
}

func newTestEngine(t *testing.T, src source.Source, clock *testClock) *goGuard.Engine {
	t.Helper()

	cfg := goGuard.DefaultConfig()
	cfg.Cache.TTL = time.Minute
	cfg.Cache.MaxAge = 10 * time.Minute
	cfg.Metrics.Enabled = true

	b := goGuard.New().
		WithConfig(cfg).
		WithPermissions([]string{"billing"}).
		WithModules(map[string][]string{"conversations": {"view", "reply"}}).
		WithSource(src)
	if clock != nil {
		b = b.WithClock(clock.Now)
	}
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}
