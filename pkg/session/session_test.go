package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevaconnect-backend/pkg/database"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/session"
	"sevaconnect-backend/pkg/store/storetest"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	kv := database.NewLocalDatabase(t.TempDir(), nil)

	m := session.NewManager(kv, "test")
	s, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	_, ok := m.Current()
	assert.False(t, ok)

	want := session.Session{
		User:        models.User{ID: "ngo-1", Email: "team@seva.org", Role: models.RoleNGO},
		AccessToken: "access",
		ExpiresAt:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, m.Save(ctx, want))

	// a fresh manager, as on the next CLI invocation
	again := session.NewManager(kv, "test")
	got, err := again.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.User, got.User)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, again.Clear(ctx))
	_, ok = again.Current()
	assert.False(t, ok)
	got, err = session.NewManager(kv, "test").Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionSaveFailure(t *testing.T) {
	kv := storetest.NewFlaky(storetest.NewBadger(t))
	kv.FailWrites()
	m := session.NewManager(kv, "test")
	err := m.Save(context.Background(), session.Session{AccessToken: "x"})
	assert.Error(t, err)
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.False(t, session.Session{}.Expired(now))
	assert.True(t, session.Session{ExpiresAt: now}.Expired(now))
	assert.False(t, session.Session{ExpiresAt: now.Add(time.Minute)}.Expired(now))
}
