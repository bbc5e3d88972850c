package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionModel 投资交易记录，以账本交易哈希为唯一键，写入后不可修改
type TransactionModel struct {
	TxHash      string          `json:"tx_hash" gorm:"primaryKey;size:80"`
	LedgerIndex int64           `json:"ledger_index" gorm:"not null"`
	Sender      string          `json:"sender" gorm:"size:64;index;not null"`
	Receiver    string          `json:"receiver" gorm:"size:64;index;not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(38,18);not null"`
	CampaignId  string          `json:"campaign_id" gorm:"size:64;index;not null"`
	Timestamp   time.Time       `json:"timestamp" gorm:"not null"`
}

// TableName 自定义表名
func (TransactionModel) TableName() string {
	return "transaction_record"
}
