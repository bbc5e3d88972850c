package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventType 发件箱事件类型
type EventType string

const (
	EventInvestmentSettled EventType = "InvestmentSettled"
	EventCampaignCompleted EventType = "CampaignCompleted"
	EventCampaignApproved  EventType = "CampaignApproved"
	EventCampaignRejected  EventType = "CampaignRejected"
	EventCampaignEnded     EventType = "CampaignEnded"
	EventCampaignExpired   EventType = "CampaignExpired"
	EventCampaignDeleted   EventType = "CampaignDeleted"
)

// EventModel 发件箱事件，与业务写入在同一事务中落库，由分发器异步处理
type EventModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EventType  EventType `json:"event_type" gorm:"size:40;not null;index"`
	CampaignId string    `json:"campaign_id" gorm:"size:64;index"`
	TxHash     string    `json:"tx_hash" gorm:"size:80"`
	Data       string    `json:"data" gorm:"type:text"`
	Processed  bool      `json:"processed" gorm:"default:false;index"`
	Attempts   int       `json:"attempts" gorm:"default:0"`
	LastError  string    `json:"last_error" gorm:"type:text"`
}

// TableName 自定义表名
func (EventModel) TableName() string {
	return "event"
}

// EventPayload 事件内容
type EventPayload struct {
	CampaignId      string          `json:"campaign_id"`
	CampaignTitle   string          `json:"campaign_title"`
	CreatorAddress  string          `json:"creator_address"`
	InvestorAddress string          `json:"investor_address,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	TotalRaised     decimal.Decimal `json:"total_raised"`
	TargetAmount    decimal.Decimal `json:"target_amount"`
	TxHash          string          `json:"tx_hash,omitempty"`
	LedgerIndex     int64           `json:"ledger_index,omitempty"`
	// Manual 由管理员或创建者手动标记
	Manual bool `json:"manual,omitempty"`
}

// NewEvent 构造待发送事件
func NewEvent(eventType EventType, payload EventPayload) (*EventModel, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &EventModel{
		EventType:  eventType,
		CampaignId: payload.CampaignId,
		TxHash:     payload.TxHash,
		Data:       string(data),
	}, nil
}

// Payload 解析事件内容
func (e *EventModel) Payload() (EventPayload, error) {
	var payload EventPayload
	if e.Data == "" {
		return payload, nil
	}
	err := json.Unmarshal([]byte(e.Data), &payload)
	return payload, err
}
