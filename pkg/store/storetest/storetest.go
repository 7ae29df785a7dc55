// Package storetest provides key-value stores for tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sevaconnect-backend/pkg/database"
	"sevaconnect-backend/pkg/logging"
	"sevaconnect-backend/pkg/store"
)

// ErrUnavailable is returned by a Flaky store while it is failing.
var ErrUnavailable = errors.New("storage unavailable")

// NewBadger opens an in-memory badger store closed at test cleanup.
func NewBadger(t testing.TB) database.KeyValueStore {
	t.Helper()
	db, err := database.NewBadgerDatabase(database.InMemoryBadgerConfig())
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Flaky wraps a store and fails writes on demand.
type Flaky struct {
	database.KeyValueStore

	failing   atomic.Bool
	failAfter atomic.Int64

	mu     sync.Mutex
	writes []string
}

// NewFlaky wraps kv.
func NewFlaky(kv database.KeyValueStore) *Flaky {
	f := &Flaky{KeyValueStore: kv}
	f.failAfter.Store(-1)
	return f
}

// FailWrites makes every subsequent Set and Remove fail until Recover.
func (f *Flaky) FailWrites() { f.failing.Store(true) }

// FailOnce lets n more writes succeed, fails the one after, then recovers.
func (f *Flaky) FailOnce(n int) { f.failAfter.Store(int64(n)) }

// Recover makes writes succeed again.
func (f *Flaky) Recover() {
	f.failing.Store(false)
	f.failAfter.Store(-1)
}

// Writes returns the keys written so far, in order.
func (f *Flaky) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *Flaky) fail() bool {
	if f.failing.Load() {
		return true
	}
	for {
		n := f.failAfter.Load()
		if n < 0 {
			return false
		}
		if n == 0 {
			if f.failAfter.CompareAndSwap(0, -1) {
				return true
			}
			continue
		}
		if f.failAfter.CompareAndSwap(n, n-1) {
			return false
		}
	}
}

func (f *Flaky) Set(ctx context.Context, key string, value []byte) error {
	if f.fail() {
		return ErrUnavailable
	}
	f.mu.Lock()
	f.writes = append(f.writes, key)
	f.mu.Unlock()
	return f.KeyValueStore.Set(ctx, key, value)
}

func (f *Flaky) Remove(ctx context.Context, key string) error {
	if f.fail() {
		return ErrUnavailable
	}
	return f.KeyValueStore.Remove(ctx, key)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts at t.
func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Open returns a loaded store over kv with a quiet logger.
func Open(t testing.TB, kv database.KeyValueStore, clock *Clock) *store.Store {
	t.Helper()
	opts := store.Options{Prefix: "test", Logger: logging.Discard()}
	if clock != nil {
		opts.Now = clock.Now
	}
	s, err := store.Open(context.Background(), kv, opts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}
