package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/access"
	"github.com/MrEthical07/goGuard/source"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type options struct {
	configPath    string
	users         int
	orgs          int
	concurrency   int
	ops           int
	redisAddr     string
	sourceLatency time.Duration
	invalidateOne int
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("goguard-loadtest", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "YAML config file; GOGUARD_* env vars apply on top")
	flagSet.IntVar(&opts.users, "users", 10000, "distinct users per organization")
	flagSet.IntVar(&opts.orgs, "orgs", 4, "organizations")
	flagSet.IntVar(&opts.concurrency, "concurrency", 256, "concurrent workers")
	flagSet.IntVar(&opts.ops, "ops", 200000, "operations per phase")
	flagSet.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; REDIS_ADDR or an in-process miniredis when empty")
	flagSet.DurationVar(&opts.sourceLatency, "source-latency", 2*time.Millisecond, "simulated permission source latency")
	flagSet.IntVar(&opts.invalidateOne, "invalidate-every", 50, "invalidate one key every N operations in the churn phase")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "Usage: goguard-loadtest [flags]")
		flagSet.PrintDefaults()
		return nil
	}
	if opts.users <= 0 || opts.orgs <= 0 || opts.concurrency <= 0 || opts.ops <= 0 || opts.invalidateOne <= 0 {
		return fmt.Errorf("users, orgs, concurrency, ops and invalidate-every must be > 0")
	}

	cfg, err := goGuard.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	log := goGuard.NewLogger(cfg.Logging, os.Stderr)

	client, cleanup, err := redisClient(log, opts.redisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	var fetches atomic.Int64
	src := source.Func(func(ctx context.Context, userID, _ string) (*source.Grant, error) {
		fetches.Add(1)
		select {
		case <-time.After(opts.sourceLatency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return grantFor(userID), nil
	})

	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	engine, err := goGuard.New().
		WithConfig(cfg).
		WithPermissions([]string{"billing"}).
		WithModules(map[string][]string{
			"conversations": {"view", "reply", "assign"},
			"reports":       {"view", "export"},
		}).
		WithRedis(client).
		WithSource(src).
		WithLogger(log).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	keys := buildKeys(opts.users, opts.orgs)
	ctx := context.Background()

	log.Info().Int("keys", len(keys)).Int("concurrency", opts.concurrency).Int("ops", opts.ops).Msg("starting load test")

	resolveStats := runPhase(opts, func(r *rand.Rand, _ int) error {
		k := keys[r.Intn(len(keys))]
		_, err := engine.Resolve(ctx, k.userID, k.orgID)
		return err
	})
	resolveFetches := fetches.Swap(0)

	req := access.Requirement{Required: []string{"conversations.view"}, Any: []string{"reports.view", "billing"}}
	evaluateStats := runPhase(opts, func(r *rand.Rand, _ int) error {
		k := keys[r.Intn(len(keys))]
		_, err := engine.Evaluate(ctx, k.userID, k.orgID, req)
		return err
	})
	evaluateFetches := fetches.Swap(0)

	churnStats := runPhase(opts, func(r *rand.Rand, i int) error {
		k := keys[r.Intn(len(keys))]
		if i%opts.invalidateOne == 0 {
			return engine.Invalidate(ctx, k.userID, k.orgID)
		}
		_, err := engine.Resolve(ctx, k.userID, k.orgID)
		return err
	})
	churnFetches := fetches.Swap(0)

	fmt.Println("---- results ----")
	printStats("resolve", resolveStats, resolveFetches)
	printStats("evaluate", evaluateStats, evaluateFetches)
	printStats("churn", churnStats, churnFetches)

	snap := engine.MetricsSnapshot()
	log.Info().
		Uint64("cache_hit_memory", snap.Counters[goGuard.MetricCacheHitMemory]).
		Uint64("cache_hit_durable", snap.Counters[goGuard.MetricCacheHitDurable]).
		Uint64("cache_miss", snap.Counters[goGuard.MetricCacheMiss]).
		Uint64("fetch_coalesced", snap.Counters[goGuard.MetricFetchCoalesced]).
		Uint64("stale_write_discarded", snap.Counters[goGuard.MetricStaleWriteDiscarded]).
		Uints64("resolve_latency_buckets", snap.Histograms[goGuard.MetricResolveLatency]).
		Msg("engine metrics")
	return nil
}

func redisClient(log zerolog.Logger, addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		log.Info().Str("addr", addr).Msg("using redis")
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	log.Info().Str("addr", mr.Addr()).Msg("using miniredis")
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

type key struct {
	userID string
	orgID  string
}

func buildKeys(users, orgs int) []key {
	out := make([]key, 0, users*orgs)
	for o := 0; o < orgs; o++ {
		orgID := uuid.NewString()
		for u := 0; u < users; u++ {
			out = append(out, key{userID: uuid.NewString(), orgID: orgID})
		}
	}
	return out
}

// grantFor derives a stable role from the user id so evaluations mix grants
// and denials.
func grantFor(userID string) *source.Grant {
	switch userID[0] % 3 {
	case 0:
		return &source.Grant{RoleName: "admin", Permissions: map[string]any{
			"billing":       true,
			"conversations": map[string]any{"view": true, "reply": true, "assign": true},
			"reports":       map[string]any{"view": true, "export": true},
		}}
	case 1:
		return &source.Grant{RoleName: "agent", Permissions: map[string]any{
			"conversations": map[string]any{"view": true, "reply": true},
		}}
	default:
		return &source.Grant{RoleName: "analyst", Permissions: map[string]any{
			"conversations": map[string]any{"view": true},
			"reports":       map[string]any{"view": true},
		}}
	}
}

func runPhase(opts options, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, opts.ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= opts.ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}
