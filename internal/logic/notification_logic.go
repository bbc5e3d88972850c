package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

// NotificationLogic 通知业务逻辑，只追加
type NotificationLogic struct {
	db *gorm.DB
}

// NewNotificationLogic 创建通知业务逻辑
func NewNotificationLogic(db *gorm.DB) *NotificationLogic {
	return &NotificationLogic{db: db}
}

func (n *NotificationLogic) validate(address, message string) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("%w: user address is required", ErrInvalidInput)
	}
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	return nil
}

// Append 追加通知
func (n *NotificationLogic) Append(ctx context.Context, address, message string) (*model.NotificationModel, error) {
	if err := n.validate(address, message); err != nil {
		return nil, err
	}
	notification := &model.NotificationModel{
		UserAddress: ledger.NormalizeAddress(address),
		Message:     message,
	}
	if err := n.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, fmt.Errorf("创建通知失败: %w", err)
	}
	return notification, nil
}

// AppendForEvent 由事件生成通知，同一事件对同一用户重复调用不会产生新记录
func (n *NotificationLogic) AppendForEvent(ctx context.Context, eventId int64, address, message string) error {
	if err := n.validate(address, message); err != nil {
		return err
	}
	notification := &model.NotificationModel{
		UserAddress: ledger.NormalizeAddress(address),
		EventId:     &eventId,
		Message:     message,
	}
	err := n.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_address"}, {Name: "event_id"}},
		DoNothing: true,
	}).Create(notification).Error
	if err != nil {
		return fmt.Errorf("创建通知失败: %w", err)
	}
	return nil
}

// ListFor 用户的全部通知，最新的在前
func (n *NotificationLogic) ListFor(ctx context.Context, address string) ([]model.NotificationModel, error) {
	var notifications []model.NotificationModel
	if err := n.db.WithContext(ctx).
		Where("user_address = ?", ledger.NormalizeAddress(address)).
		Order("created_at DESC, id DESC").
		Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("获取通知失败: %w", err)
	}
	return notifications, nil
}

// MarkRead 标记已读，只能操作自己的通知
func (n *NotificationLogic) MarkRead(ctx context.Context, address string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, errors.New("no notification ids given")
	}
	result := n.db.WithContext(ctx).Model(&model.NotificationModel{}).
		Where("user_address = ? AND id IN ?", ledger.NormalizeAddress(address), ids).
		Update("is_read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("更新通知失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}
