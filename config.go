package goGuard

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/cache"
)

// Config is the full engine configuration. Build it with [DefaultConfig] or
// [LoadConfig] and treat it as immutable once handed to a [Builder].
type Config struct {
	Cache        CacheConfig        `koanf:"cache"`
	Permission   PermissionConfig   `koanf:"permission"`
	Resolver     ResolverConfig     `koanf:"resolver"`
	Guard        GuardConfig        `koanf:"guard"`
	Source       SourceConfig       `koanf:"source"`
	Audit        AuditConfig        `koanf:"audit"`
	Metrics      MetricsConfig      `koanf:"metrics"`
	Logging      LoggingConfig      `koanf:"logging"`
	Invalidation InvalidationConfig `koanf:"invalidation"`
}

/*
====================================
CACHE CONFIG
====================================
*/

// Durable tier selectors for [CacheConfig.Durable].
const (
	DurableNone   = "none"
	DurableRedis  = "redis"
	DurableBadger = "badger"
)

// CacheConfig controls snapshot validity and the durable tier.
type CacheConfig struct {
	// TTL is the soft expiry of a snapshot.
	TTL time.Duration `koanf:"ttl"`
	// MaxAge is the hard expiry, enforced even by relaxed reads.
	MaxAge time.Duration `koanf:"max_age"`
	// Prefix namespaces durable keys; Clear only touches keys under it.
	Prefix string `koanf:"prefix"`
	// Durable selects the durable tier: none, redis or badger.
	Durable string `koanf:"durable"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	BadgerPath     string `koanf:"badger_path"`
	BadgerInMemory bool   `koanf:"badger_in_memory"`
}

// PermissionConfig controls the permission registry.
type PermissionConfig struct {
	MaxBits int `koanf:"max_bits"` // 64, 128, 256, 512
	// SuperAdminRoles bypass every permission check.
	SuperAdminRoles []string `koanf:"super_admin_roles"`
}

// ResolverConfig controls fetch coalescing and write-back.
type ResolverConfig struct {
	// GenerationGuard discards fetch results that an invalidation overtook.
	GenerationGuard bool `koanf:"generation_guard"`
}

// GuardConfig controls the HTTP rendering of guard outcomes.
type GuardConfig struct {
	// DeniedMessage is the alert text for ordinary denials.
	DeniedMessage string `koanf:"denied_message"`
	// UnavailableMessage is the alert text when permissions could not be resolved.
	UnavailableMessage string `koanf:"unavailable_message"`
	// RetryAfter is advertised on loading responses.
	RetryAfter time.Duration `koanf:"retry_after"`
}

// SourceConfig configures the built-in HTTP permission source. It is ignored
// when a source is injected with [Builder.WithSource].
type SourceConfig struct {
	BaseURL         string        `koanf:"base_url"`
	Token           string        `koanf:"token"`
	Timeout         time.Duration `koanf:"timeout"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	DropIfFull bool `koanf:"drop_if_full"`

	// SinkTimeout bounds each sink write. Zero leaves writes unbounded.
	SinkTimeout time.Duration `koanf:"sink_timeout"`
}

// MetricsConfig controls in-process metric recording.
type MetricsConfig struct {
	Enabled                 bool `koanf:"enabled"`
	EnableLatencyHistograms bool `koanf:"enable_latency_histograms"`
}

// LoggingConfig is consumed by [NewLogger].
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// InvalidationConfig configures the NATS invalidation bus.
type InvalidationConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			TTL:     5 * time.Minute,
			MaxAge:  30 * time.Minute,
			Prefix:  cache.DefaultPrefix,
			Durable: DurableNone,
		},
		Permission: PermissionConfig{
			MaxBits:         64,
			SuperAdminRoles: []string{"super_admin"},
		},
		Resolver: ResolverConfig{
			GenerationGuard: true,
		},
		Guard: GuardConfig{
			DeniedMessage:      "you do not have access to this resource",
			UnavailableMessage: "unable to verify permissions",
			RetryAfter:         time.Second,
		},
		Source: SourceConfig{
			Timeout:         5 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Invalidation: InvalidationConfig{
			Subject: "goguard.invalidate",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Permission.SuperAdminRoles = append([]string(nil), cfg.Permission.SuperAdminRoles...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate returns the first configuration error found.
func (c *Config) Validate() error {
	// Cache
	if c.Cache.TTL <= 0 {
		return errors.New("Cache TTL must be > 0")
	}
	if c.Cache.MaxAge <= 0 {
		return errors.New("Cache MaxAge must be > 0")
	}
	if c.Cache.TTL > c.Cache.MaxAge {
		return errors.New("Cache TTL must be <= MaxAge")
	}
	if strings.TrimSpace(c.Cache.Prefix) == "" {
		return errors.New("Cache Prefix must not be empty")
	}
	if strings.ContainsAny(c.Cache.Prefix, "*?[]") {
		return errors.New("Cache Prefix must not contain glob characters")
	}
	switch c.Cache.Durable {
	case DurableNone, "":
	case DurableRedis:
	case DurableBadger:
		if !c.Cache.BadgerInMemory && c.Cache.BadgerPath == "" {
			return errors.New("Cache BadgerPath required when durable is badger")
		}
	default:
		return errors.New("Cache Durable must be 'none', 'redis' or 'badger'")
	}

	// Permission
	switch c.Permission.MaxBits {
	case 64, 128, 256, 512:
	default:
		return errors.New("Permission MaxBits must be 64, 128, 256 or 512")
	}
	for _, r := range c.Permission.SuperAdminRoles {
		if strings.TrimSpace(r) == "" {
			return errors.New("Permission SuperAdminRoles must not contain empty names")
		}
	}

	// Guard
	if c.Guard.RetryAfter < 0 {
		return errors.New("Guard RetryAfter must be >= 0")
	}

	// Source
	if c.Source.Timeout <= 0 {
		return errors.New("Source Timeout must be > 0")
	}
	if c.Source.BaseURL != "" && !strings.HasPrefix(c.Source.BaseURL, "http://") && !strings.HasPrefix(c.Source.BaseURL, "https://") {
		return errors.New("Source BaseURL must be an http(s) URL")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Logging
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return errors.New("Logging Format must be 'json' or 'console'")
	}

	return nil
}
