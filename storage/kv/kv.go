// Package kv is the process-local state store. It plays the part of browser
// local storage: a handful of well-known keys, each holding one JSON document
// that callers read, modify and write back whole.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQuotaExceeded is returned when a write would take the store past its
// total size limit.
var ErrQuotaExceeded = errors.New("kv: quota exceeded")

// Store is a byte-valued key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Usage returns the total size in bytes of all stored values.
	Usage(ctx context.Context) (int, error)
	Close() error
}

// Driver names a Store implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config selects and parameterises a driver.
type Config struct {
	Driver     Driver
	Path       string // sqlite file
	DSN        string // postgres
	QuotaBytes int    // 0 = unlimited
}

// Open constructs the store named by cfg.Driver, wrapped with the quota limit.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case DriverMemory, "":
		s = NewMemory()
	case DriverSQLite:
		s, err = NewSQLite(ctx, cfg.Path)
	case DriverPostgres:
		s, err = NewPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown kv driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return WithQuota(s, cfg.QuotaBytes), nil
}

type quotaStore struct {
	Store
	mu  sync.Mutex
	max int
}

// WithQuota limits the combined size of all values to max bytes, the way a
// browser limits local storage per origin. Freeing any key makes room for
// every other. A max of zero or less returns s unchanged.
func WithQuota(s Store, max int) Store {
	if max <= 0 {
		return s
	}
	return &quotaStore{Store: s, max: max}
}

func (q *quotaStore) Put(ctx context.Context, key string, value []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	used, err := q.Store.Usage(ctx)
	if err != nil {
		return err
	}
	current, _, err := q.Store.Get(ctx, key)
	if err != nil {
		return err
	}
	if total := used - len(current) + len(value); total > q.max {
		return fmt.Errorf("put %s (%d bytes, %d of %d in use): %w", key, len(value), used, q.max, ErrQuotaExceeded)
	}
	return q.Store.Put(ctx, key, value)
}

func (q *quotaStore) Delete(ctx context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.Store.Delete(ctx, key)
}
