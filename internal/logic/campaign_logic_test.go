package logic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshetendev/Startup-Investment/internal/model"
)

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := CreateCampaignInput{
		Title:          "Bikes",
		TargetAmount:   decimal.NewFromInt(10),
		EndTime:        time.Now().Add(time.Hour),
		CreatorAddress: f.creator.address,
	}

	c, err := f.campaigns.Create(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusPending, c.Status)
	assert.NotEmpty(t, c.CampaignId)
	assert.Greater(t, c.DurationDays, 0.0)

	bad := valid
	bad.Title = " "
	_, err = f.campaigns.Create(ctx, bad)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	bad = valid
	bad.TargetAmount = decimal.Zero
	_, err = f.campaigns.Create(ctx, bad)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	bad = valid
	bad.EndTime = time.Now().Add(-time.Hour)
	_, err = f.campaigns.Create(ctx, bad)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	bad = valid
	bad.CreatorAddress = "rNotAnAddress"
	_, err = f.campaigns.Create(ctx, bad)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestStatusTransitionsAreCompareAndSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.pendingCampaign(t, "100")

	err := f.campaigns.UpdateStatus(ctx, c.CampaignId, model.CampaignStatusActive, model.CampaignStatusCompleted)
	assert.True(t, errors.Is(err, model.ErrIllegalTransition), "campaign is still pending")

	err = f.campaigns.UpdateStatus(ctx, c.CampaignId, model.CampaignStatusPending, model.CampaignStatusCompleted)
	assert.True(t, errors.Is(err, model.ErrIllegalTransition))

	require.NoError(t, f.campaigns.UpdateStatus(ctx, c.CampaignId, model.CampaignStatusPending, model.CampaignStatusActive))

	_, err = f.campaigns.Approve(ctx, c.CampaignId)
	assert.True(t, errors.Is(err, model.ErrIllegalTransition))
	_, err = f.campaigns.Reject(ctx, c.CampaignId)
	assert.True(t, errors.Is(err, model.ErrIllegalTransition))
}

func TestMarkCompletedRequiresGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeCampaign(t, "50")
	investor := f.investor(t, "100")

	_, err := f.campaigns.MarkCompleted(ctx, c.CampaignId, f.creator.address)
	assert.True(t, errors.Is(err, ErrGoalNotReached))

	// 直接写入交易记录，模拟汇总尚未触发完成的情况
	_, err = f.txs.Record(ctx, &model.TransactionModel{
		TxHash:     "0x01",
		Sender:     investor.address,
		Receiver:   f.creator.address,
		Amount:     decimal.NewFromInt(50),
		CampaignId: c.CampaignId,
	}, nil)
	require.NoError(t, err)

	// 其他创建者不能标记
	_, err = f.campaigns.MarkCompleted(ctx, c.CampaignId, newWallet(t).address)
	assert.True(t, errors.Is(err, ErrNotOwner))

	done, err := f.campaigns.MarkCompleted(ctx, c.CampaignId, f.creator.address)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, done.Status)

	// 管理员重复标记不报错
	_, err = f.campaigns.MarkCompleted(ctx, c.CampaignId, "")
	assert.NoError(t, err)
}

func TestMarkEndedOnlyByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeCampaign(t, "50")

	_, err := f.campaigns.MarkEnded(ctx, c.CampaignId, newWallet(t).address)
	assert.True(t, errors.Is(err, ErrNotOwner))

	ended, err := f.campaigns.MarkEnded(ctx, c.CampaignId, strings.ToLower(f.creator.address))
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusEnded, ended.Status)
}

func TestMarkExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expired := f.activeCampaign(t, "100")
	running := f.activeCampaign(t, "100")
	pending := f.pendingCampaign(t, "100")

	past := time.Now().UTC().Add(-time.Hour)
	for _, id := range []string{expired.CampaignId, pending.CampaignId} {
		require.NoError(t, f.db.Model(&model.CampaignModel{}).Where("campaign_id = ?", id).
			Update("end_time", past).Error)
	}

	n, err := f.campaigns.MarkExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[string]model.CampaignStatus{
		expired.CampaignId: model.CampaignStatusEnded,
		running.CampaignId: model.CampaignStatusActive,
		pending.CampaignId: model.CampaignStatusPending,
	} {
		c, err := f.campaigns.FindById(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, c.Status)
	}

	// 再次执行没有变化
	n, err = f.campaigns.MarkExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDeleteCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeCampaign(t, "100")
	other := f.activeCampaign(t, "100")
	investor := f.investor(t, "100")

	_, err := f.invest.Invest(ctx, investReq(investor, c.CampaignId, "10"))
	require.NoError(t, err)
	_, err = f.invest.Invest(ctx, investReq(investor, other.CampaignId, "10"))
	require.NoError(t, err)

	deleted, err := f.campaigns.DeleteCascade(ctx, c.CampaignId)
	require.NoError(t, err)
	assert.Equal(t, f.creator.address, deleted.CreatorAddress)

	_, err = f.campaigns.FindById(ctx, c.CampaignId)
	assert.True(t, errors.Is(err, ErrCampaignNotFound))

	records, err := f.txs.ListByCampaign(ctx, c.CampaignId)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = f.txs.ListByCampaign(ctx, other.CampaignId)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	types := f.eventTypes(t)
	assert.Equal(t, model.EventCampaignDeleted, types[len(types)-1])

	_, err = f.campaigns.DeleteCascade(ctx, c.CampaignId)
	assert.True(t, errors.Is(err, ErrCampaignNotFound))
}

func TestListingsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeCampaign(t, "100")
	f.pendingCampaign(t, "100")
	rejected := f.pendingCampaign(t, "100")
	_, err := f.campaigns.Reject(ctx, rejected.CampaignId)
	require.NoError(t, err)

	visible, err := f.campaigns.ListByStatus(ctx, model.CampaignStatusActive, model.CampaignStatusCompleted, model.CampaignStatusEnded)
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	all, err := f.campaigns.ListByStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := f.campaigns.ListByCreator(ctx, strings.ToLower(f.creator.address))
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	others, err := f.campaigns.ListOthers(ctx, f.creator.address)
	require.NoError(t, err)
	assert.Empty(t, others)

	stats, err := f.campaigns.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalProjects)
	assert.Equal(t, int64(1), stats.ActiveProjects)
	assert.Equal(t, int64(1), stats.PendingProjects)
	assert.Equal(t, int64(1), stats.RejectedProjects)
}

func TestRebuildRaised(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeCampaign(t, "100")
	investor := f.investor(t, "100")

	_, err := f.invest.Invest(ctx, investReq(investor, c.CampaignId, "12.5"))
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.CampaignModel{}).Where("campaign_id = ?", c.CampaignId).
		Update("raised_amount", decimal.NewFromInt(999)).Error)

	total, err := f.txs.RebuildRaised(ctx, c.CampaignId)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("12.5")))

	stored, err := f.campaigns.FindById(ctx, c.CampaignId)
	require.NoError(t, err)
	assert.True(t, stored.RaisedAmount.Equal(decimal.RequireFromString("12.5")))
}
