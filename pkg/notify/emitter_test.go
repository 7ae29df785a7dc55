package notify_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevaconnect-backend/pkg/logging"
	"sevaconnect-backend/pkg/models"
	"sevaconnect-backend/pkg/notify"
	"sevaconnect-backend/pkg/store/storetest"
)

type recordingPusher struct {
	mu     sync.Mutex
	titles []string
}

func (p *recordingPusher) Push(title, body string) {
	p.mu.Lock()
	p.titles = append(p.titles, title)
	p.mu.Unlock()
}

func TestEmitAppendsUnread(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t, storetest.NewBadger(t), nil)
	pusher := &recordingPusher{}
	e := notify.NewEmitter(s, pusher, logging.Discard())

	first := e.Emit(ctx, models.NotificationNewNGO, "New NGO registration", "Seva Trust registered", "ngo-1")
	second := e.Emit(ctx, models.NotificationNewDonor, "New donor", "Asha joined", "donor-1")

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.IsRead)
	assert.False(t, first.Timestamp.IsZero())
	assert.Equal(t, "ngo-1", first.RelatedID)

	list := e.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, 2, e.Unread(ctx))
	assert.Equal(t, []string{"New NGO registration", "New donor"}, pusher.titles)
}

func TestEmitSurvivesPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	kv := storetest.NewFlaky(storetest.NewBadger(t))
	s := storetest.Open(t, kv, nil)
	pusher := &recordingPusher{}
	e := notify.NewEmitter(s, pusher, logging.Discard())

	kv.FailWrites()
	n := e.Emit(ctx, models.NotificationNewDonation, "New donation", "Asha donated rice", "d1")
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Timestamp.IsZero())
	assert.Len(t, pusher.titles, 1)
	assert.Empty(t, e.List(ctx))
}

func TestMarkReadAndDelete(t *testing.T) {
	ctx := context.Background()
	s := storetest.Open(t, storetest.NewBadger(t), nil)
	e := notify.NewEmitter(s, nil, logging.Discard())

	n := e.Emit(ctx, models.NotificationNewDonor, "New donor", "Ravi joined", "donor-2")
	other := e.Emit(ctx, models.NotificationNewDonor, "New donor", "Meena joined", "donor-3")

	read, err := e.MarkRead(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	assert.Equal(t, n.Message, read.Message)
	assert.Equal(t, 1, e.Unread(ctx))

	require.NoError(t, e.Delete(ctx, n.ID))
	require.NoError(t, e.Delete(ctx, n.ID))
	list := e.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, other.ID, list[0].ID)
	assert.False(t, list[0].IsRead)
}
