package logic

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/tshetendev/Startup-Investment/internal/model"
)

// EventLogic 发件箱事件业务逻辑
type EventLogic struct {
	db *gorm.DB

	mu        sync.RWMutex
	onEnqueue func()
}

// NewEventLogic 创建事件业务逻辑
func NewEventLogic(db *gorm.DB) *EventLogic {
	return &EventLogic{db: db}
}

// OnEnqueue 事件提交后的回调，分发器用来提前唤醒
func (e *EventLogic) OnEnqueue(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnqueue = fn
}

// Notify 通知有新事件
func (e *EventLogic) Notify() {
	e.mu.RLock()
	fn := e.onEnqueue
	e.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Enqueue 在给定事务中写入事件，调用方提交后应调用 Notify
func (e *EventLogic) Enqueue(tx *gorm.DB, eventType model.EventType, payload model.EventPayload) error {
	event, err := model.NewEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("编码事件失败: %w", err)
	}
	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("创建事件记录失败: %w", err)
	}
	return nil
}

// Publish 单独写入一个事件并通知
func (e *EventLogic) Publish(ctx context.Context, eventType model.EventType, payload model.EventPayload) error {
	if err := e.Enqueue(e.db.WithContext(ctx), eventType, payload); err != nil {
		return err
	}
	e.Notify()
	return nil
}

// FetchPending 获取待处理事件，超过最大尝试次数的不再返回
func (e *EventLogic) FetchPending(ctx context.Context, limit, maxAttempts int) ([]model.EventModel, error) {
	var events []model.EventModel
	query := e.db.WithContext(ctx).Where("processed = ?", false)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	if err := query.Order("id ASC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("获取未处理事件失败: %w", err)
	}
	return events, nil
}

// MarkProcessed 标记事件已处理
func (e *EventLogic) MarkProcessed(ctx context.Context, id int64) error {
	if err := e.db.WithContext(ctx).Model(&model.EventModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "last_error": ""}).Error; err != nil {
		return fmt.Errorf("更新事件处理状态失败: %w", err)
	}
	return nil
}

// MarkFailed 记录一次失败
func (e *EventLogic) MarkFailed(ctx context.Context, id int64, cause error) error {
	if err := e.db.WithContext(ctx).Model(&model.EventModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + ?", 1),
			"last_error": cause.Error(),
		}).Error; err != nil {
		return fmt.Errorf("更新事件失败次数失败: %w", err)
	}
	return nil
}

// CountPending 待处理事件数
func (e *EventLogic) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := e.db.WithContext(ctx).Model(&model.EventModel{}).Where("processed = ?", false).Count(&n).Error
	return n, err
}
