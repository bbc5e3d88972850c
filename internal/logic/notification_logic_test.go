package logic

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

func TestNotificationsAreScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := newWallet(t), newWallet(t)

	a1, err := f.notifications.Append(ctx, strings.ToLower(alice.address), "first")
	require.NoError(t, err)
	_, err = f.notifications.Append(ctx, alice.address, "second")
	require.NoError(t, err)
	b1, err := f.notifications.Append(ctx, bob.address, "bob's")
	require.NoError(t, err)

	list, err := f.notifications.ListFor(ctx, alice.address)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// 不能标记别人的通知
	n, err := f.notifications.MarkRead(ctx, alice.address, []int64{a1.Id, b1.Id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread := "user_address = ? AND is_read = ?"
	assert.Equal(t, int64(1), f.countRows(t, &model.NotificationModel{}, unread, ledger.NormalizeAddress(bob.address), false))
	assert.Equal(t, int64(1), f.countRows(t, &model.NotificationModel{}, unread, ledger.NormalizeAddress(alice.address), false))

	_, err = f.notifications.Append(ctx, alice.address, "  ")
	assert.Error(t, err)
}

func TestAppendForEventIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := newWallet(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.notifications.AppendForEvent(ctx, 42, alice.address, "once"))
	}
	require.NoError(t, f.notifications.AppendForEvent(ctx, 43, alice.address, "other event"))

	var count int64
	require.NoError(t, f.db.Model(&model.NotificationModel{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestOutboxLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	woken := 0
	f.events.OnEnqueue(func() { woken++ })
	require.NoError(t, f.events.Publish(ctx, model.EventCampaignApproved, model.EventPayload{CampaignId: "c-1"}))
	require.NoError(t, f.events.Publish(ctx, model.EventCampaignRejected, model.EventPayload{CampaignId: "c-2"}))
	assert.Equal(t, 2, woken)

	pending, err := f.events.FetchPending(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, f.events.MarkProcessed(ctx, pending[0].Id))
	require.NoError(t, f.events.MarkFailed(ctx, pending[1].Id, assert.AnError))
	require.NoError(t, f.events.MarkFailed(ctx, pending[1].Id, assert.AnError))

	// 超过最大尝试次数后不再返回
	pending, err = f.events.FetchPending(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, pending)

	count, err := f.events.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
