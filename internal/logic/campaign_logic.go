package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/logger"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

// CampaignLogic 众筹活动业务逻辑
type CampaignLogic struct {
	db     *gorm.DB
	txs    *TransactionLogic
	events *EventLogic
	now    func() time.Time
}

// NewCampaignLogic 创建活动业务逻辑
func NewCampaignLogic(db *gorm.DB, txs *TransactionLogic, events *EventLogic) *CampaignLogic {
	return &CampaignLogic{db: db, txs: txs, events: events, now: time.Now}
}

// CreateCampaignInput 创建活动参数
type CreateCampaignInput struct {
	Title          string
	Description    string
	ImageURL       string
	TargetAmount   decimal.Decimal
	EndTime        time.Time
	CreatorAddress string
}

// Create 创建活动，初始状态为待审核
func (c *CampaignLogic) Create(ctx context.Context, in CreateCampaignInput) (*model.CampaignModel, error) {
	if err := c.validateCreate(in); err != nil {
		return nil, err
	}

	campaign := &model.CampaignModel{
		CampaignId:     uuid.NewString(),
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		ImageURL:       in.ImageURL,
		TargetAmount:   in.TargetAmount,
		RaisedAmount:   decimal.Zero,
		CreatorAddress: ledger.NormalizeAddress(in.CreatorAddress),
		Status:         model.CampaignStatusPending,
		CreatedAt:      c.now().UTC(),
		EndTime:        in.EndTime.UTC(),
	}
	if err := c.db.WithContext(ctx).Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("创建活动失败: %w", err)
	}
	logger.Info("Campaign created (id: %s, creator: %s)", campaign.CampaignId, campaign.CreatorAddress)
	return campaign, nil
}

func (c *CampaignLogic) validateCreate(in CreateCampaignInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !in.TargetAmount.IsPositive() {
		return fmt.Errorf("%w: target amount must be positive", ErrInvalidInput)
	}
	if _, err := ledger.ToWei(in.TargetAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.EndTime.IsZero() || !in.EndTime.After(c.now()) {
		return fmt.Errorf("%w: end time must be in the future", ErrInvalidInput)
	}
	if !ledger.IsAddress(in.CreatorAddress) {
		return fmt.Errorf("%w: invalid creator address", ErrInvalidInput)
	}
	return nil
}

// FindById 按业务ID查找活动
func (c *CampaignLogic) FindById(ctx context.Context, campaignId string) (*model.CampaignModel, error) {
	var campaign model.CampaignModel
	if err := c.db.WithContext(ctx).Where("campaign_id = ?", campaignId).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("获取活动失败: %w", err)
	}
	return &campaign, nil
}

// ListByStatus 按状态列出活动，不传状态时返回全部
func (c *CampaignLogic) ListByStatus(ctx context.Context, statuses ...model.CampaignStatus) ([]model.CampaignModel, error) {
	query := c.db.WithContext(ctx).Model(&model.CampaignModel{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var campaigns []model.CampaignModel
	if err := query.Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("获取活动列表失败: %w", err)
	}
	return campaigns, nil
}

// ListByCreator 创建者的活动
func (c *CampaignLogic) ListByCreator(ctx context.Context, address string) ([]model.CampaignModel, error) {
	var campaigns []model.CampaignModel
	if err := c.db.WithContext(ctx).Where("creator_address = ?", ledger.NormalizeAddress(address)).
		Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("获取活动列表失败: %w", err)
	}
	return campaigns, nil
}

// ListOthers 非该用户创建的活动
func (c *CampaignLogic) ListOthers(ctx context.Context, address string) ([]model.CampaignModel, error) {
	var campaigns []model.CampaignModel
	if err := c.db.WithContext(ctx).Where("creator_address <> ?", ledger.NormalizeAddress(address)).
		Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("获取活动列表失败: %w", err)
	}
	return campaigns, nil
}

// UpdateStatus 比较并设置状态，当前状态不是from时返回 ErrIllegalTransition
func (c *CampaignLogic) UpdateStatus(ctx context.Context, campaignId string, from, to model.CampaignStatus) error {
	return c.updateStatus(c.db.WithContext(ctx), campaignId, from, to)
}

func (c *CampaignLogic) updateStatus(tx *gorm.DB, campaignId string, from, to model.CampaignStatus) error {
	if err := model.CheckTransition(from, to); err != nil {
		return err
	}
	result := tx.Model(&model.CampaignModel{}).
		Where("campaign_id = ? AND status = ?", campaignId, from).
		Update("status", to)
	if result.Error != nil {
		return fmt.Errorf("更新活动状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: campaign %s is no longer %s", model.ErrIllegalTransition, campaignId, from)
	}
	return nil
}

// transition 状态迁移并在同一事务中写入事件
func (c *CampaignLogic) transition(ctx context.Context, campaign *model.CampaignModel, to model.CampaignStatus, eventType model.EventType, payload model.EventPayload) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.updateStatus(tx, campaign.CampaignId, campaign.Status, to); err != nil {
			return err
		}
		return c.events.Enqueue(tx, eventType, payload)
	})
	if err != nil {
		return err
	}
	c.events.Notify()
	logger.Info("Campaign %s: %s -> %s", campaign.CampaignId, campaign.Status, to)
	campaign.Status = to
	return nil
}

func payloadOf(campaign *model.CampaignModel) model.EventPayload {
	return model.EventPayload{
		CampaignId:     campaign.CampaignId,
		CampaignTitle:  campaign.Title,
		CreatorAddress: campaign.CreatorAddress,
		TargetAmount:   campaign.TargetAmount,
		TotalRaised:    campaign.RaisedAmount,
	}
}

// Approve 审核通过
func (c *CampaignLogic) Approve(ctx context.Context, campaignId string) (*model.CampaignModel, error) {
	campaign, err := c.FindById(ctx, campaignId)
	if err != nil {
		return nil, err
	}
	if err := c.transition(ctx, campaign, model.CampaignStatusActive, model.EventCampaignApproved, payloadOf(campaign)); err != nil {
		return nil, err
	}
	return campaign, nil
}

// Reject 驳回
func (c *CampaignLogic) Reject(ctx context.Context, campaignId string) (*model.CampaignModel, error) {
	campaign, err := c.FindById(ctx, campaignId)
	if err != nil {
		return nil, err
	}
	if err := c.transition(ctx, campaign, model.CampaignStatusRejected, model.EventCampaignRejected, payloadOf(campaign)); err != nil {
		return nil, err
	}
	return campaign, nil
}

// MarkEnded 创建者手动结束活动
func (c *CampaignLogic) MarkEnded(ctx context.Context, campaignId, requester string) (*model.CampaignModel, error) {
	campaign, err := c.FindById(ctx, campaignId)
	if err != nil {
		return nil, err
	}
	if !ledger.SameAddress(campaign.CreatorAddress, requester) {
		return nil, ErrNotOwner
	}
	payload := payloadOf(campaign)
	payload.Manual = true
	if err := c.transition(ctx, campaign, model.CampaignStatusEnded, model.EventCampaignEnded, payload); err != nil {
		return nil, err
	}
	return campaign, nil
}

// MarkCompleted 按交易记录汇总判断是否达成目标，未达成返回 ErrGoalNotReached
//
// requester 为空表示管理员操作，否则必须是活动创建者
func (c *CampaignLogic) MarkCompleted(ctx context.Context, campaignId, requester string) (*model.CampaignModel, error) {
	campaign, err := c.FindById(ctx, campaignId)
	if err != nil {
		return nil, err
	}
	if requester != "" && !ledger.SameAddress(campaign.CreatorAddress, requester) {
		return nil, ErrNotOwner
	}
	total, err := c.txs.TotalRaised(ctx, campaignId)
	if err != nil {
		return nil, err
	}
	if total.LessThan(campaign.TargetAmount) {
		return nil, ErrGoalNotReached
	}
	if campaign.Status == model.CampaignStatusCompleted {
		return campaign, nil
	}

	campaign.RaisedAmount = total
	payload := payloadOf(campaign)
	payload.Manual = true
	if err := c.transition(ctx, campaign, model.CampaignStatusCompleted, model.EventCampaignCompleted, payload); err != nil {
		return nil, err
	}
	return campaign, nil
}

// CompleteIfReached 投资后调用，已筹金额达到目标时进行中的活动转为已完成
//
// 返回是否由本次调用完成迁移，活动已被其他请求完成时返回false
func (c *CampaignLogic) CompleteIfReached(ctx context.Context, campaign *model.CampaignModel, total decimal.Decimal) (bool, error) {
	if campaign.Status != model.CampaignStatusActive || total.LessThan(campaign.TargetAmount) {
		return false, nil
	}
	current := *campaign
	current.RaisedAmount = total
	err := c.transition(ctx, &current, model.CampaignStatusCompleted, model.EventCampaignCompleted, payloadOf(&current))
	if errors.Is(err, model.ErrIllegalTransition) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	campaign.Status = current.Status
	return true, nil
}

// DeleteCascade 删除活动及其全部交易记录，并通知创建者
func (c *CampaignLogic) DeleteCascade(ctx context.Context, campaignId string) (*model.CampaignModel, error) {
	campaign, err := c.FindById(ctx, campaignId)
	if err != nil {
		return nil, err
	}
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", campaignId).Delete(&model.TransactionModel{}).Error; err != nil {
			return fmt.Errorf("删除交易记录失败: %w", err)
		}
		if err := tx.Where("campaign_id = ?", campaignId).Delete(&model.CampaignModel{}).Error; err != nil {
			return fmt.Errorf("删除活动失败: %w", err)
		}
		return c.events.Enqueue(tx, model.EventCampaignDeleted, payloadOf(campaign))
	})
	if err != nil {
		return nil, err
	}
	c.events.Notify()
	logger.Info("Campaign %s deleted with its transactions", campaignId)
	return campaign, nil
}

// MarkExpired 将所有已过结束时间的进行中活动标记为已结束，返回处理数量
func (c *CampaignLogic) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	var expired []model.CampaignModel
	if err := c.db.WithContext(ctx).
		Where("status = ? AND end_time < ?", model.CampaignStatusActive, now.UTC()).
		Find(&expired).Error; err != nil {
		return 0, fmt.Errorf("获取过期活动失败: %w", err)
	}

	count := 0
	for i := range expired {
		campaign := &expired[i]
		err := c.transition(ctx, campaign, model.CampaignStatusEnded, model.EventCampaignExpired, payloadOf(campaign))
		if errors.Is(err, model.ErrIllegalTransition) {
			// 已被其他请求完成或结束
			continue
		}
		if err != nil {
			return count, err
		}
		count++
	}
	if count > 0 {
		logger.Info("Marked %d expired campaigns as ended", count)
	}
	return count, nil
}

// CampaignStats 活动统计
type CampaignStats struct {
	TotalProjects     int64 `json:"totalProjects"`
	PendingProjects   int64 `json:"pendingProjects"`
	ActiveProjects    int64 `json:"activeProjects"`
	CompletedProjects int64 `json:"completedProjects"`
	EndedProjects     int64 `json:"endedProjects"`
	RejectedProjects  int64 `json:"rejectedProjects"`
}

// Stats 按状态统计活动数量
func (c *CampaignLogic) Stats(ctx context.Context) (*CampaignStats, error) {
	var rows []struct {
		Status model.CampaignStatus
		Count  int64
	}
	if err := c.db.WithContext(ctx).Model(&model.CampaignModel{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计活动失败: %w", err)
	}

	stats := &CampaignStats{}
	for _, row := range rows {
		stats.TotalProjects += row.Count
		switch row.Status {
		case model.CampaignStatusPending:
			stats.PendingProjects = row.Count
		case model.CampaignStatusActive:
			stats.ActiveProjects = row.Count
		case model.CampaignStatusCompleted:
			stats.CompletedProjects = row.Count
		case model.CampaignStatusEnded:
			stats.EndedProjects = row.Count
		case model.CampaignStatusRejected:
			stats.RejectedProjects = row.Count
		}
	}
	return stats, nil
}
