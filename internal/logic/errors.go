package logic

import (
	"errors"
	"fmt"
)

// Reason 拒绝原因码，对外稳定
type Reason string

const (
	ReasonInvalidRequest      Reason = "INVALID_REQUEST"
	ReasonInvalidAmount       Reason = "INVALID_AMOUNT"
	ReasonCredentialFormat    Reason = "CREDENTIAL_FORMAT"
	ReasonInvalidCredential   Reason = "INVALID_CREDENTIAL"
	ReasonCampaignNotFound    Reason = "CAMPAIGN_NOT_FOUND"
	ReasonCampaignClosed      Reason = "CAMPAIGN_CLOSED"
	ReasonCampaignNotActive   Reason = "CAMPAIGN_NOT_ACTIVE"
	ReasonSelfInvestment      Reason = "SELF_INVESTMENT"
	ReasonInsufficientBalance Reason = "INSUFFICIENT_BALANCE"
	ReasonAccountNotFound     Reason = "ACCOUNT_NOT_FOUND"
	ReasonInsufficientFunds   Reason = "INSUFFICIENT_FUNDS"
	ReasonSubmissionRejected  Reason = "SUBMISSION_REJECTED"
	ReasonNetworkError        Reason = "NETWORK_ERROR"
	ReasonPersistenceError    Reason = "PERSISTENCE_ERROR"
)

// Rejection 投资流程的结构化拒绝
type Rejection struct {
	Reason  Reason
	Message string
	// TxHash 账本上可能或已经执行的交易
	TxHash string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Reason, r.Message, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

func reject(reason Reason, message string) *Rejection {
	return &Rejection{Reason: reason, Message: message}
}

// AsRejection 取出拒绝信息
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// 业务错误
var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrGoalNotReached   = errors.New("campaign goal not reached yet")
	ErrNotOwner         = errors.New("only the campaign owner can do this")
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidInput     = errors.New("invalid input")
)
