package goGuard

import (
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/goGuard/access"
	"github.com/MrEthical07/goGuard/cache"
	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/resolver"
	"github.com/MrEthical07/goGuard/permission"
	"github.com/MrEthical07/goGuard/snapshot"
	"github.com/MrEthical07/goGuard/source"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SourceFactory builds a permission source once the registry and roles are
// frozen. Use it for sources that need them, such as [source.StaticSource].
type SourceFactory func(reg *permission.Registry, roles *permission.RoleManager) (source.Source, error)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config

	permissions []string
	modules     map[string][]string
	roles       map[string][]string

	src        source.Source
	srcFactory SourceFactory
	durable    cache.Durable
	redis      redis.UniversalClient
	badger     *badger.DB

	logger    zerolog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithPermissions registers flat permission names, in order.
func (b *Builder) WithPermissions(perms []string) *Builder {
	b.permissions = append(b.permissions, perms...)
	return b
}

// WithModules registers "module.sub" names. Modules are registered in sorted
// order after flat permissions so every process assigns the same bits.
func (b *Builder) WithModules(modules map[string][]string) *Builder {
	b.modules = modules
	return b
}

// WithRoles defines named roles as lists of registered permission names.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

// WithSource sets the permission source.
func (b *Builder) WithSource(s source.Source) *Builder {
	b.src = s
	return b
}

// WithSourceFactory defers source construction until the registry exists.
func (b *Builder) WithSourceFactory(f SourceFactory) *Builder {
	b.srcFactory = f
	return b
}

// WithRedis uses client as the durable tier. The caller keeps ownership.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBadger uses db as the durable tier. The caller keeps ownership.
func (b *Builder) WithBadger(db *badger.DB) *Builder {
	b.badger = db
	return b
}

// WithDurable uses d as the durable tier.
func (b *Builder) WithDurable(d cache.Durable) *Builder {
	b.durable = d
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the audit destination. Audit must also be enabled in config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the resolve latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides time.Now, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires every component. Durable
// handles opened from config are closed by [Engine.Close].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(b.permissions) == 0 && len(b.modules) == 0 {
		return nil, ErrPermissionsRequired
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- PERMISSION REGISTRY --------
	registry, err := permission.NewRegistry(cfg.Permission.MaxBits)
	if err != nil {
		return nil, err
	}
	for _, p := range b.permissions {
		if _, err := registry.Register(p); err != nil {
			return nil, fmt.Errorf("register %q: %w", p, err)
		}
	}
	moduleNames := make([]string, 0, len(b.modules))
	for m := range b.modules {
		moduleNames = append(moduleNames, m)
	}
	sort.Strings(moduleNames)
	for _, m := range moduleNames {
		if err := registry.RegisterModule(m, b.modules[m]...); err != nil {
			return nil, fmt.Errorf("register module %q: %w", m, err)
		}
	}
	registry.Freeze()

	// -------- ROLE MANAGER --------
	roleManager := permission.NewRoleManager(registry)
	roleNames := make([]string, 0, len(b.roles))
	for r := range b.roles {
		roleNames = append(roleNames, r)
	}
	sort.Strings(roleNames)
	for _, r := range roleNames {
		if err := roleManager.RegisterRole(r, b.roles[r]); err != nil {
			return nil, fmt.Errorf("register role %q: %w", r, err)
		}
	}
	roleManager.Freeze()

	// -------- SOURCE --------
	src := b.src
	if src == nil && b.srcFactory != nil {
		if src, err = b.srcFactory(registry, roleManager); err != nil {
			return nil, fmt.Errorf("source factory: %w", err)
		}
	}
	if src == nil && cfg.Source.BaseURL != "" {
		src, err = source.NewHTTPSource(source.HTTPConfig{
			BaseURL:         cfg.Source.BaseURL,
			Token:           cfg.Source.Token,
			Timeout:         cfg.Source.Timeout,
			BreakerFailures: cfg.Source.BreakerFailures,
			BreakerCooldown: cfg.Source.BreakerCooldown,
			Logger:          b.logger,
		})
		if err != nil {
			return nil, err
		}
	}
	if src == nil {
		return nil, ErrSourceRequired
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		log:         b.logger,
		now:         now,
		registry:    registry,
		roleManager: roleManager,
		evaluator:   access.NewEvaluator(registry, cfg.Permission.SuperAdminRoles...),
		source:      src,
		metrics:     NewMetrics(cfg.Metrics),
		trackers:    make(map[snapshot.Key]map[*Tracker]struct{}),
	}

	// -------- DURABLE TIER --------
	durable, err := b.durableTier(cfg.Cache, engine)
	if err != nil {
		return nil, err
	}

	engine.store = cache.NewStore(cache.Options{
		Prefix:  cfg.Cache.Prefix,
		Durable: durable,
		Logger:  b.logger,
		Now:     now,
		OnEvent: engine.metrics.cacheEvent,
	})

	// -------- RESOLVER --------
	res, err := resolver.New(resolver.Config{
		Store:           engine.store,
		Source:          src,
		Registry:        registry,
		TTL:             cfg.Cache.TTL,
		MaxAge:          cfg.Cache.MaxAge,
		FetchTimeout:    cfg.Source.Timeout,
		GenerationGuard: cfg.Resolver.GenerationGuard,
		Now:             now,
		Logger:          b.logger,
		Hooks:           engine.resolverHooks(),
	})
	if err != nil {
		engine.closeOwned()
		return nil, err
	}
	engine.resolver = res

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		SinkTimeout: cfg.Audit.SinkTimeout,
		OnDrop: func(ev audit.Event) {
			engine.log.Debug().Str("event_type", ev.EventType).Msg("audit buffer full, event dropped")
		},
	}, b.auditSink)

	b.built = true

	engine.log.Info().
		Int("permissions", registry.Count()).
		Int("roles", roleManager.Count()).
		Str("durable", durableName(durable)).
		Bool("generation_guard", cfg.Resolver.GenerationGuard).
		Msg("permission engine ready")

	return engine, nil
}

// durableTier picks, in order: an injected Durable, an injected client, then
// whatever cfg.Durable selects. Handles opened here are owned by e.
func (b *Builder) durableTier(cfg CacheConfig, e *Engine) (cache.Durable, error) {
	switch {
	case b.durable != nil:
		return b.durable, nil
	case b.redis != nil:
		return cache.NewRedisDurable(b.redis), nil
	case b.badger != nil:
		return cache.NewBadgerDurable(b.badger), nil
	}

	switch cfg.Durable {
	case DurableRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		e.owned = append(e.owned, client)
		return cache.NewRedisDurable(client), nil
	case DurableBadger:
		db, err := cache.OpenBadger(cfg.BadgerPath, cfg.BadgerInMemory)
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		e.owned = append(e.owned, db)
		return cache.NewBadgerDurable(db), nil
	default:
		return nil, nil
	}
}

func durableName(d cache.Durable) string {
	switch d.(type) {
	case nil:
		return DurableNone
	case *cache.RedisDurable:
		return DurableRedis
	case *cache.BadgerDurable:
		return DurableBadger
	default:
		return "custom"
	}
}
