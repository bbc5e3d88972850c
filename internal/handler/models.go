package handler

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/logic"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

// 通用响应结构
type Response struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message,omitempty"`
	Error         string      `json:"error,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	TransactionId string      `json:"transactionId,omitempty"`
	Data          interface{} `json:"data,omitempty"`
}

// 请求模型

// InvestRequest 投资请求，地址取自登录身份
type InvestRequest struct {
	WalletSecret string          `json:"walletSecret"`
	Amount       json.RawMessage `json:"amount"`
	ProjectId    string          `json:"projectId"`
}

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	ImageURL     string          `json:"imageUrl"`
	TargetAmount json.RawMessage `json:"targetAmount"`
	EndDate      string          `json:"endDate"`
}

// SendNotificationRequest 发送通知请求
type SendNotificationRequest struct {
	UserAddress string `json:"userAddress"`
	Message     string `json:"message"`
}

// MarkReadRequest 标记已读请求
type MarkReadRequest struct {
	Notifications []int64 `json:"notifications"`
}

var errBadAmount = errors.New("amount must be a decimal number")

// parseAmount 金额可以是JSON数字或字符串
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, errBadAmount
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero, errBadAmount
		}
		s = strings.TrimSpace(str)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errBadAmount
	}
	if err := ledger.CheckMagnitude(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// 响应模型

// InvestResponse 投资成功响应
type InvestResponse struct {
	Success bool `json:"success"`
	*logic.InvestResult
}

// ProjectResponse 项目响应模型
type ProjectResponse struct {
	ProjectId      string          `json:"projectId"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	ImageURL       string          `json:"imageUrl"`
	CreatorAddress string          `json:"creatorAddress"`
	TargetAmount   decimal.Decimal `json:"targetAmount"`
	RaisedAmount   decimal.Decimal `json:"raisedAmount"`
	Status         string          `json:"status"`
	DurationDays   float64         `json:"durationDays"`
	EndTime        time.Time       `json:"endTime"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// TransactionResponse 交易记录响应模型
type TransactionResponse struct {
	TxHash      string           `json:"transactionId"`
	LedgerIndex int64            `json:"ledgerIndex"`
	Sender      string           `json:"sender"`
	Receiver    string           `json:"receiver"`
	Amount      decimal.Decimal  `json:"amount"`
	ProjectId   string           `json:"projectId"`
	Timestamp   time.Time        `json:"timestamp"`
	Project     *ProjectResponse `json:"project,omitempty"`
}

// RaisedResponse 项目已筹金额
type RaisedResponse struct {
	ProjectId   string          `json:"projectId"`
	TotalRaised decimal.Decimal `json:"totalRaised"`
}

// NotificationResponse 通知响应模型
type NotificationResponse struct {
	Id        int64     `json:"id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// 转换函数

// ToProjectResponse 将数据库模型转换为响应模型
func ToProjectResponse(c *model.CampaignModel) ProjectResponse {
	return ProjectResponse{
		ProjectId:      c.CampaignId,
		Title:          c.Title,
		Description:    c.Description,
		ImageURL:       c.ImageURL,
		CreatorAddress: c.CreatorAddress,
		TargetAmount:   c.TargetAmount,
		RaisedAmount:   c.RaisedAmount,
		Status:         string(c.Status),
		DurationDays:   c.DurationDays,
		EndTime:        c.EndTime,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// ToProjectResponseList 将数据库模型列表转换为响应模型列表
func ToProjectResponseList(campaigns []model.CampaignModel) []ProjectResponse {
	result := make([]ProjectResponse, len(campaigns))
	for i := range campaigns {
		result[i] = ToProjectResponse(&campaigns[i])
	}
	return result
}

// ToTransactionResponse 将交易记录转换为响应模型
func ToTransactionResponse(t *model.TransactionModel) TransactionResponse {
	return TransactionResponse{
		TxHash:      t.TxHash,
		LedgerIndex: t.LedgerIndex,
		Sender:      t.Sender,
		Receiver:    t.Receiver,
		Amount:      t.Amount,
		ProjectId:   t.CampaignId,
		Timestamp:   t.Timestamp,
	}
}

// ToTransactionResponseList 将交易记录列表转换为响应模型列表
func ToTransactionResponseList(records []model.TransactionModel) []TransactionResponse {
	result := make([]TransactionResponse, len(records))
	for i := range records {
		result[i] = ToTransactionResponse(&records[i])
	}
	return result
}

// ToInvestmentResponseList 用户投资记录附带项目信息
func ToInvestmentResponseList(views []logic.InvestmentView) []TransactionResponse {
	result := make([]TransactionResponse, len(views))
	for i := range views {
		result[i] = ToTransactionResponse(&views[i].TransactionModel)
		if views[i].Campaign != nil {
			p := ToProjectResponse(views[i].Campaign)
			result[i].Project = &p
		}
	}
	return result
}

// ToNotificationResponseList 将通知列表转换为响应模型列表
func ToNotificationResponseList(notifications []model.NotificationModel) []NotificationResponse {
	result := make([]NotificationResponse, len(notifications))
	for i, n := range notifications {
		result[i] = NotificationResponse{
			Id:        n.Id,
			Message:   n.Message,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		}
	}
	return result
}
