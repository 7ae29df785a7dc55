package database

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadger(t *testing.T) *BadgerDatabase {
	t.Helper()
	db, err := NewBadgerDatabase(InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadgerDatabaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestBadger(t)

	_, ok, err := db.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Set(ctx, "k", []byte(`{"a":1}`)))
	value, ok, err := db.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(value))

	require.NoError(t, db.Remove(ctx, "k"))
	_, ok, err = db.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerDatabaseRequiresPath(t *testing.T) {
	_, err := NewBadgerDatabase(BadgerConfig{})
	assert.Error(t, err)
}

func TestBadgerDatabaseWatchExactKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db := newTestBadger(t)

	var exact, prefixed atomic.Int32
	_, err := db.Watch(ctx, "sevaconnect:needs", func() { exact.Add(1) })
	require.NoError(t, err)
	_, err = db.Watch(ctx, "sevaconnect:needs:archive", func() { prefixed.Add(1) })
	require.NoError(t, err)

	// the subscription starts asynchronously, so keep writing until it is seen
	assert.Eventually(t, func() bool {
		_ = db.Set(ctx, "sevaconnect:needs", []byte(`[]`))
		return exact.Load() > 0
	}, 2*time.Second, 20*time.Millisecond)
	assert.Zero(t, prefixed.Load())
}

func TestBadgerDatabaseCloseIsIdempotent(t *testing.T) {
	db, err := NewBadgerDatabase(InMemoryBadgerConfig())
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.NoError(t, db.Close())
	assert.Error(t, db.HealthCheck())
}
