package model

import (
	"errors"
	"fmt"
)

// CampaignStatus 众筹活动状态
type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "pending"   // 待审核
	CampaignStatusActive    CampaignStatus = "active"    // 进行中
	CampaignStatusCompleted CampaignStatus = "completed" // 已达成目标
	CampaignStatusEnded     CampaignStatus = "ended"     // 已结束
	CampaignStatusRejected  CampaignStatus = "rejected"  // 已驳回
)

// ErrIllegalTransition 非法状态迁移
var ErrIllegalTransition = errors.New("illegal campaign status transition")

// campaignTransitions 状态迁移表，未列出的迁移一律非法
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusPending: {CampaignStatusActive, CampaignStatusRejected},
	CampaignStatusActive:  {CampaignStatusCompleted, CampaignStatusEnded},
}

// AllCampaignStatuses 全部状态
func AllCampaignStatuses() []CampaignStatus {
	return []CampaignStatus{
		CampaignStatusPending,
		CampaignStatusActive,
		CampaignStatusCompleted,
		CampaignStatusEnded,
		CampaignStatusRejected,
	}
}

// ParseCampaignStatus 解析状态字符串
func ParseCampaignStatus(s string) (CampaignStatus, error) {
	for _, status := range AllCampaignStatuses() {
		if string(status) == s {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown campaign status %q", s)
}

// CanTransitionTo 是否允许迁移到目标状态
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	for _, allowed := range campaignTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal 终态不再有任何迁移
func (s CampaignStatus) IsTerminal() bool {
	return len(campaignTransitions[s]) == 0
}

// IsClosed 不再接受投资
func (s CampaignStatus) IsClosed() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusEnded || s == CampaignStatusRejected
}

// CheckTransition 校验迁移是否合法
func CheckTransition(from, to CampaignStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
