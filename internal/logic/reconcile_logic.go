package logic

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tshetendev/Startup-Investment/internal/model"
)

// ReconcileLogic 对账记录存储
type ReconcileLogic struct {
	db *gorm.DB
}

// NewReconcileLogic 创建对账业务逻辑
func NewReconcileLogic(db *gorm.DB) *ReconcileLogic {
	return &ReconcileLogic{db: db}
}

// Open 登记需要对账的交易，同一哈希只登记一次
func (r *ReconcileLogic) Open(ctx context.Context, record *model.ReconciliationModel) error {
	record.Status = model.ReconcileStatusPending
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error; err != nil {
		return fmt.Errorf("创建对账记录失败: %w", err)
	}
	return nil
}

// Pending 待处理的对账记录
func (r *ReconcileLogic) Pending(ctx context.Context, limit int) ([]model.ReconciliationModel, error) {
	var records []model.ReconciliationModel
	if err := r.db.WithContext(ctx).Where("status = ?", model.ReconcileStatusPending).
		Order("id ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("获取对账记录失败: %w", err)
	}
	return records, nil
}

// Resolve 标记已补记
func (r *ReconcileLogic) Resolve(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	return r.close(ctx, id, model.ReconcileStatusResolved, "", &now)
}

// Fail 账本确认交易失败
func (r *ReconcileLogic) Fail(ctx context.Context, id int64, cause error) error {
	now := time.Now().UTC()
	return r.close(ctx, id, model.ReconcileStatusFailed, cause.Error(), &now)
}

// Abandon 超过最长等待时间，需要人工处理
func (r *ReconcileLogic) Abandon(ctx context.Context, id int64, cause error) error {
	return r.close(ctx, id, model.ReconcileStatusAbandoned, cause.Error(), nil)
}

// Orphan 支付已结算但活动已删除
func (r *ReconcileLogic) Orphan(ctx context.Context, id int64, cause error) error {
	now := time.Now().UTC()
	return r.close(ctx, id, model.ReconcileStatusOrphaned, cause.Error(), &now)
}

func (r *ReconcileLogic) close(ctx context.Context, id int64, status model.ReconcileStatus, lastError string, resolvedAt *time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.ReconciliationModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"last_error":  lastError,
			"resolved_at": resolvedAt,
			"attempts":    gorm.Expr("attempts + ?", 1),
		}).Error; err != nil {
		return fmt.Errorf("更新对账记录失败: %w", err)
	}
	return nil
}

// Retry 记录一次未成功的尝试
func (r *ReconcileLogic) Retry(ctx context.Context, id int64, cause error) error {
	if err := r.db.WithContext(ctx).Model(&model.ReconciliationModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + ?", 1),
			"last_error": cause.Error(),
		}).Error; err != nil {
		return fmt.Errorf("更新对账记录失败: %w", err)
	}
	return nil
}
