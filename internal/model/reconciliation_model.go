package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconcileReason 需要对账的原因
type ReconcileReason string

const (
	ReconcileReasonAmbiguous         ReconcileReason = "ambiguous_settlement" // 已提交但结算结果未知
	ReconcileReasonPersistenceFailed ReconcileReason = "persistence_failed"   // 已结算但本地落库失败
)

// ReconcileStatus 对账状态
type ReconcileStatus string

const (
	ReconcileStatusPending   ReconcileStatus = "pending"   // 待处理
	ReconcileStatusResolved  ReconcileStatus = "resolved"  // 已补记
	ReconcileStatusFailed    ReconcileStatus = "failed"    // 账本确认失败，无需补记
	ReconcileStatusAbandoned ReconcileStatus = "abandoned" // 超过最长等待时间
	ReconcileStatusOrphaned  ReconcileStatus = "orphaned"  // 已结算但活动已删除，不补记
)

// ReconciliationModel 对账记录，账本已提交而本地未落库的交易
type ReconciliationModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TxHash     string          `json:"tx_hash" gorm:"size:80;uniqueIndex;not null"`
	CampaignId string          `json:"campaign_id" gorm:"size:64;index;not null"`
	Sender     string          `json:"sender" gorm:"size:64;not null"`
	Receiver   string          `json:"receiver" gorm:"size:64;not null"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:numeric(38,18);not null"`

	Reason     ReconcileReason `json:"reason" gorm:"size:32;not null"`
	Status     ReconcileStatus `json:"status" gorm:"size:16;index;default:'pending'"`
	Attempts   int             `json:"attempts" gorm:"default:0"`
	LastError  string          `json:"last_error" gorm:"type:text"`
	ResolvedAt *time.Time      `json:"resolved_at"`
}

// TableName 自定义表名
func (ReconciliationModel) TableName() string {
	return "reconciliation_record"
}
