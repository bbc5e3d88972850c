package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CampaignModel 众筹活动
type CampaignModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 业务标识，与数据库自增ID无关
	CampaignId string `json:"campaign_id" gorm:"size:64;uniqueIndex;not null"`

	// 基本信息
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
	ImageURL    string `json:"image_url"`

	// 众筹信息
	TargetAmount decimal.Decimal `json:"target_amount" gorm:"type:numeric(38,18);not null"`
	// RaisedAmount 交易记录的物化累计值，仅用于展示，达成判断总是重新汇总交易记录
	RaisedAmount decimal.Decimal `json:"raised_amount" gorm:"type:numeric(38,18);not null;default:0"`

	// 创建者账本地址
	CreatorAddress string `json:"creator_address" gorm:"size:64;index;not null"`

	Status CampaignStatus `json:"status" gorm:"size:16;index;not null;default:'pending'"`

	// 时间信息
	EndTime      time.Time `json:"end_time" gorm:"index;not null"`
	DurationDays float64   `json:"duration_days"`
}

// TableName 自定义表名
func (CampaignModel) TableName() string {
	return "campaign"
}

// BeforeSave 保存前重新计算持续时间
func (c *CampaignModel) BeforeSave(tx *gorm.DB) error {
	if c.EndTime.IsZero() {
		return nil
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.DurationDays = Duration(c.CreatedAt, c.EndTime).Hours() / 24
	return nil
}

// Duration 活动持续时间
func Duration(createdAt, endTime time.Time) time.Duration {
	return endTime.Sub(createdAt)
}

// IsExpired 进行中且已过结束时间
func (c *CampaignModel) IsExpired(now time.Time) bool {
	return c.Status == CampaignStatusActive && c.EndTime.Before(now)
}
