package database

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevaconnect-backend/pkg/logging"
)

func TestLocalDatabaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := NewLocalDatabase(t.TempDir(), logging.Discard())
	defer db.Close()

	_, ok, err := db.Get(ctx, "sevaconnect:needs")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Set(ctx, "sevaconnect:needs", []byte(`[{"id":"1"}]`)))
	value, ok, err := db.Get(ctx, "sevaconnect:needs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"id":"1"}]`, string(value))

	require.NoError(t, db.Remove(ctx, "sevaconnect:needs"))
	require.NoError(t, db.Remove(ctx, "sevaconnect:needs"))
	_, ok, err = db.Get(ctx, "sevaconnect:needs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalDatabaseKeysDoNotCollideWithTempFiles(t *testing.T) {
	db := NewLocalDatabase(t.TempDir(), nil)
	assert.Equal(t, "sevaconnect_inventory.json", filepath.Base(db.pathFor("sevaconnect:inventory")))
}

func TestLocalDatabaseWatchSeesOtherWriter(t *testing.T) {
	dir := t.TempDir()
	reader := NewLocalDatabase(dir, logging.Discard())
	writer := NewLocalDatabase(dir, logging.Discard())
	defer reader.Close()

	var fired atomic.Int32
	stop, err := reader.Watch(context.Background(), "sevaconnect:alerts", func() { fired.Add(1) })
	require.NoError(t, err)
	defer stop()

	require.NoError(t, writer.Set(context.Background(), "sevaconnect:other", []byte(`[]`)))
	require.NoError(t, writer.Set(context.Background(), "sevaconnect:alerts", []byte(`[]`)))

	assert.Eventually(t, func() bool { return fired.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestLocalDatabaseHealthCheck(t *testing.T) {
	db := NewLocalDatabase(t.TempDir(), nil)
	assert.NoError(t, db.HealthCheck())
}
