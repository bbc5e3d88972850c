package logic

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

// TransactionLogic 交易记录业务逻辑
type TransactionLogic struct {
	db *gorm.DB
}

// NewTransactionLogic 创建交易记录业务逻辑
func NewTransactionLogic(db *gorm.DB) *TransactionLogic {
	return &TransactionLogic{db: db}
}

// timestamp 在PostgreSQL中是关键字，需要加引号
var newestFirst = clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}

// Record 写入交易记录，哈希已存在时视为已写入
//
// 新写入时在同一事务中累加活动的 raised_amount 并调用 onInsert，onInsert 出错时整体回滚
func (t *TransactionLogic) Record(ctx context.Context, record *model.TransactionModel, onInsert func(tx *gorm.DB) error) (bool, error) {
	if record.TxHash == "" {
		return false, fmt.Errorf("%w: tx hash is required", ErrInvalidInput)
	}
	if !record.Amount.IsPositive() {
		return false, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	inserted := false
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
		if result.Error != nil {
			return fmt.Errorf("创建交易记录失败: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true

		// 更新活动已筹金额
		if err := tx.Model(&model.CampaignModel{}).Where("campaign_id = ?", record.CampaignId).
			Update("raised_amount", gorm.Expr("raised_amount + ?", record.Amount)).Error; err != nil {
			return fmt.Errorf("更新已筹金额失败: %w", err)
		}
		if onInsert != nil {
			return onInsert(tx)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// TotalRaised 重新汇总活动的全部交易金额
func (t *TransactionLogic) TotalRaised(ctx context.Context, campaignId string) (decimal.Decimal, error) {
	return t.sum(t.db.WithContext(ctx).Model(&model.TransactionModel{}).Where("campaign_id = ?", campaignId))
}

// TotalRaisedAll 平台全部交易金额
func (t *TransactionLogic) TotalRaisedAll(ctx context.Context) (decimal.Decimal, error) {
	return t.sum(t.db.WithContext(ctx).Model(&model.TransactionModel{}))
}

// sum 在应用层求和，避免数据库浮点误差
func (t *TransactionLogic) sum(query *gorm.DB) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	if err := query.Pluck("amount", &amounts).Error; err != nil {
		return decimal.Zero, fmt.Errorf("汇总交易金额失败: %w", err)
	}
	return decimal.Sum(decimal.Zero, amounts...), nil
}

// RebuildRaised 以交易记录为准重建物化的已筹金额
func (t *TransactionLogic) RebuildRaised(ctx context.Context, campaignId string) (decimal.Decimal, error) {
	total, err := t.TotalRaised(ctx, campaignId)
	if err != nil {
		return decimal.Zero, err
	}
	if err := t.db.WithContext(ctx).Model(&model.CampaignModel{}).Where("campaign_id = ?", campaignId).
		Update("raised_amount", total).Error; err != nil {
		return decimal.Zero, fmt.Errorf("重建已筹金额失败: %w", err)
	}
	return total, nil
}

// ListByCampaign 活动的交易记录
func (t *TransactionLogic) ListByCampaign(ctx context.Context, campaignId string) ([]model.TransactionModel, error) {
	var records []model.TransactionModel
	if err := t.db.WithContext(ctx).Where("campaign_id = ?", campaignId).
		Order(newestFirst).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("获取交易记录失败: %w", err)
	}
	return records, nil
}

// InvestmentView 用户投资记录及对应活动
type InvestmentView struct {
	model.TransactionModel
	Campaign *model.CampaignModel `json:"campaign,omitempty"`
}

// ListBySender 用户的投资记录，附带活动信息
func (t *TransactionLogic) ListBySender(ctx context.Context, address string) ([]InvestmentView, error) {
	var records []model.TransactionModel
	if err := t.db.WithContext(ctx).Where("sender = ?", ledger.NormalizeAddress(address)).
		Order(newestFirst).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("获取交易记录失败: %w", err)
	}
	if len(records) == 0 {
		return []InvestmentView{}, nil
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.CampaignId)
	}
	var campaigns []model.CampaignModel
	if err := t.db.WithContext(ctx).Where("campaign_id IN ?", ids).Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("获取活动失败: %w", err)
	}
	byId := make(map[string]*model.CampaignModel, len(campaigns))
	for i := range campaigns {
		byId[campaigns[i].CampaignId] = &campaigns[i]
	}

	views := make([]InvestmentView, 0, len(records))
	for _, r := range records {
		views = append(views, InvestmentView{TransactionModel: r, Campaign: byId[r.CampaignId]})
	}
	return views, nil
}
