package model

import (
	"time"
)

// NotificationModel 用户通知
type NotificationModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	// 以账本地址作为路由键
	UserAddress string `json:"user_address" gorm:"size:64;not null;index;uniqueIndex:idx_notification_event_user"`
	// EventId 产生该通知的发件箱事件，同一事件对同一用户只产生一条通知
	EventId *int64 `json:"event_id,omitempty" gorm:"uniqueIndex:idx_notification_event_user"`
	Message string `json:"message" gorm:"type:text;not null"`
	IsRead  bool   `json:"is_read" gorm:"default:false"`
}

// TableName 自定义表名
func (NotificationModel) TableName() string {
	return "notification"
}
