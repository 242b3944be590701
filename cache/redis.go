package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

// RedisDurable stores encoded snapshots as plain Redis strings with a native TTL.
type RedisDurable struct {
	redis redis.UniversalClient
}

// NewRedisDurable wraps an existing client. The caller owns the client lifecycle.
func NewRedisDurable(client redis.UniversalClient) *RedisDurable {
	return &RedisDurable{redis: client}
}

// Load returns the raw record under key, or [ErrNotFound].
func (d *RedisDurable) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := d.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return data, nil
}

// Store writes data under key with the given expiry.
func (d *RedisDurable) Store(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := d.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (d *RedisDurable) Delete(ctx context.Context, key string) error {
	if err := d.redis.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix using SCAN, so it never
// blocks the server the way KEYS would.
func (d *RedisDurable) DeletePrefix(ctx context.Context, prefix string) error {
	pattern := escapeGlob(prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := d.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
		}
		if len(keys) > 0 {
			if err := d.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping checks connectivity and reports round-trip latency.
func (d *RedisDurable) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := d.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return time.Since(start), nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
