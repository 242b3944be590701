package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerDurable stores encoded snapshots in an embedded BadgerDB with per-entry TTL.
type BadgerDurable struct {
	db *badger.DB
}

// NewBadgerDurable wraps an open database. The caller owns the database lifecycle.
func NewBadgerDurable(db *badger.DB) *BadgerDurable {
	return &BadgerDurable{db: db}
}

// OpenBadger opens a database at path, or a purely in-memory one when inMemory
// is set. Badger's own logger is disabled.
func OpenBadger(path string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// Load returns the raw record under key, or [ErrNotFound].
func (d *BadgerDurable) Load(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return data, nil
}

// Store writes data under key with the given expiry.
func (d *BadgerDurable) Store(_ context.Context, key string, data []byte, ttl time.Duration) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (d *BadgerDurable) Delete(_ context.Context, key string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (d *BadgerDurable) DeletePrefix(_ context.Context, prefix string) error {
	if err := d.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return nil
}
