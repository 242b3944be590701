package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by [Durable.Load] when no record exists.
	ErrNotFound = errors.New("durable record not found")
	// ErrDurableUnavailable wraps backend failures.
	ErrDurableUnavailable = errors.New("durable store unavailable")
)

// Durable is the persisted tier of the cache. Implementations must be safe for
// concurrent use.
type Durable interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// NopDurable is a durable tier that stores nothing. A [Store] built with it runs
// memory-only.
type NopDurable struct{}

func (NopDurable) Load(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

func (NopDurable) Store(context.Context, string, []byte, time.Duration) error { return nil }

func (NopDurable) Delete(context.Context, string) error { return nil }

func (NopDurable) DeletePrefix(context.Context, string) error { return nil }
