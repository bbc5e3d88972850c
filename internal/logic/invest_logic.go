package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/logger"
	"github.com/tshetendev/Startup-Investment/internal/metrics"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

// Ledger 投资流程依赖的账本操作
type Ledger interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	SubmitPayment(ctx context.Context, req ledger.PaymentRequest) (*ledger.PaymentResult, error)
	LookupPayment(ctx context.Context, txHash string) (*ledger.PaymentResult, error)
}

// InvestState 投资流程状态
type InvestState string

const (
	StateRequested          InvestState = "Requested"
	StateCredentialChecked  InvestState = "CredentialChecked"
	StateEligibilityChecked InvestState = "EligibilityChecked"
	StateSubmitted          InvestState = "Submitted"
	StateSettled            InvestState = "Settled"
	StatePersisted          InvestState = "Persisted"
	StateAggregateUpdated   InvestState = "AggregateUpdated"
	StateNotificationsSent  InvestState = "NotificationsSent"
	StateRejected           InvestState = "Rejected"
)

// InvestRequest 投资请求
type InvestRequest struct {
	InvestorAddress string
	WalletSecret    string
	Amount          decimal.Decimal
	CampaignId      string
}

// String 不输出私钥
func (r InvestRequest) String() string {
	return fmt.Sprintf("invest %s into %s by %s", r.Amount, r.CampaignId, r.InvestorAddress)
}

// InvestResult 投资成功结果
type InvestResult struct {
	TxHash         string                 `json:"transactionId"`
	LedgerIndex    int64                  `json:"ledgerIndex"`
	BalanceChanges []ledger.BalanceChange `json:"balanceChanges"`
	TotalRaised    decimal.Decimal        `json:"totalRaised"`
	Completed      bool                   `json:"completed"`
	// AlreadyRecorded 交易此前已记录
	AlreadyRecorded bool `json:"alreadyRecorded,omitempty"`
}

// InvestLogic 投资编排：凭证校验、资格检查、账本提交、结算、落库、汇总、通知
type InvestLogic struct {
	db        *gorm.DB
	ledger    Ledger
	campaigns *CampaignLogic
	txs       *TransactionLogic
	events    *EventLogic
	recon     *ReconcileLogic
	metrics   *metrics.Metrics
}

// NewInvestLogic 创建投资业务逻辑
func NewInvestLogic(db *gorm.DB, l Ledger, campaigns *CampaignLogic, txs *TransactionLogic,
	events *EventLogic, recon *ReconcileLogic, m *metrics.Metrics) *InvestLogic {
	return &InvestLogic{
		db:        db,
		ledger:    l,
		campaigns: campaigns,
		txs:       txs,
		events:    events,
		recon:     recon,
		metrics:   m,
	}
}

// Invest 执行一次投资，失败时返回 *Rejection
func (l *InvestLogic) Invest(ctx context.Context, req InvestRequest) (res *InvestResult, err error) {
	state := StateRequested
	defer func() {
		if err != nil {
			rej, ok := AsRejection(err)
			if !ok {
				rej = &Rejection{Reason: ReasonPersistenceError, Message: "internal error", Err: err}
				err = rej
			}
			logger.Warn("Investment rejected at %s (%s): %s", state, req, rej)
			l.metrics.InvestResult(string(rej.Reason))
			return
		}
		l.metrics.InvestResult("")
	}()

	if strings.TrimSpace(req.CampaignId) == "" || strings.TrimSpace(req.InvestorAddress) == "" {
		return nil, reject(ReasonInvalidRequest, "projectId and wallet address are required")
	}
	if !req.Amount.IsPositive() {
		return nil, reject(ReasonInvalidAmount, "amount must be a positive number")
	}
	if _, err := ledger.ToWei(req.Amount); err != nil {
		return nil, &Rejection{Reason: ReasonInvalidAmount, Message: "amount is too large or has too many decimal places", Err: err}
	}

	// Requested -> CredentialChecked
	check, err := ledger.ValidateCredential(req.InvestorAddress, req.WalletSecret)
	switch {
	case errors.Is(err, ledger.ErrCredentialFormat):
		return nil, reject(ReasonCredentialFormat, "wallet secret is malformed")
	case check != ledger.CredentialValid:
		return nil, reject(ReasonInvalidCredential, "wallet secret does not match the wallet address")
	}
	state = StateCredentialChecked

	// CredentialChecked -> EligibilityChecked
	campaign, err := l.campaigns.FindById(ctx, req.CampaignId)
	if errors.Is(err, ErrCampaignNotFound) {
		return nil, reject(ReasonCampaignNotFound, "project not found")
	}
	if err != nil {
		return nil, &Rejection{Reason: ReasonPersistenceError, Message: "failed to load project", Err: err}
	}
	switch campaign.Status {
	case model.CampaignStatusCompleted:
		return nil, reject(ReasonCampaignClosed, "project is already completed, further investments are not allowed")
	case model.CampaignStatusEnded:
		return nil, reject(ReasonCampaignClosed, "project has ended, further investments are not allowed")
	case model.CampaignStatusRejected:
		return nil, reject(ReasonCampaignClosed, "project was rejected")
	case model.CampaignStatusPending:
		return nil, reject(ReasonCampaignNotActive, "project is pending approval")
	}
	if ledger.SameAddress(req.InvestorAddress, campaign.CreatorAddress) {
		return nil, reject(ReasonSelfInvestment, "you can't invest in your own project")
	}
	state = StateEligibilityChecked

	// EligibilityChecked -> Submitted，余额检查与提交之间余额可能变化
	balance, err := l.ledger.GetBalance(ctx, req.InvestorAddress)
	if err != nil {
		return nil, ledgerRejection(err)
	}
	if balance.LessThan(req.Amount) {
		return nil, reject(ReasonInsufficientBalance, "insufficient balance")
	}
	state = StateSubmitted

	// Submitted -> Settled
	payment, err := l.ledger.SubmitPayment(ctx, ledger.PaymentRequest{
		SenderAddress: req.InvestorAddress,
		SenderSecret:  req.WalletSecret,
		Destination:   campaign.CreatorAddress,
		Amount:        req.Amount,
	})
	if err != nil {
		// 已提交的支付不因客户端断开而放弃记账
		payment, err = l.resolveSubmitError(context.WithoutCancel(ctx), campaign, req, err)
		if err != nil {
			return nil, err
		}
	}
	state = StateSettled

	res, err = l.settle(context.WithoutCancel(ctx), campaign, payment, &state)
	if err != nil {
		return nil, l.persistenceFailed(context.WithoutCancel(ctx), campaign.CampaignId, payment, err)
	}
	return res, nil
}

// resolveSubmitError 网络错误时结果未知，按交易哈希再查询一次
func (l *InvestLogic) resolveSubmitError(ctx context.Context, campaign *model.CampaignModel, req InvestRequest, submitErr error) (*ledger.PaymentResult, error) {
	txHash := ledger.TxHashOf(submitErr)
	if !errors.Is(submitErr, ledger.ErrNetwork) || txHash == "" {
		return nil, ledgerRejection(submitErr)
	}

	logger.Warn("Settlement of %s is ambiguous, querying ledger: %v", txHash, submitErr)
	payment, err := l.ledger.LookupPayment(ctx, txHash)
	switch {
	case err == nil:
		logger.Info("Ambiguous payment %s found settled", txHash)
		return payment, nil
	case errors.Is(err, ledger.ErrSubmissionRejected):
		return nil, &Rejection{Reason: ReasonSubmissionRejected, Message: "payment failed on the ledger", TxHash: txHash, Err: err}
	}

	record := &model.ReconciliationModel{
		TxHash:     txHash,
		CampaignId: campaign.CampaignId,
		Sender:     ledger.NormalizeAddress(req.InvestorAddress),
		Receiver:   campaign.CreatorAddress,
		Amount:     req.Amount,
		Reason:     model.ReconcileReasonAmbiguous,
	}
	if rerr := l.recon.Open(ctx, record); rerr != nil {
		logger.Error("Failed to record ambiguous settlement %s: %v", txHash, rerr)
	}
	return nil, &Rejection{
		Reason:  ReasonNetworkError,
		Message: "payment outcome unknown, it will be reconciled",
		TxHash:  txHash,
		Err:     submitErr,
	}
}

// persistenceFailed 支付已执行但本地记账失败，登记对账记录
func (l *InvestLogic) persistenceFailed(ctx context.Context, campaignId string, payment *ledger.PaymentResult, cause error) error {
	logger.Error("Reconciliation required: payment %s settled at ledger index %d but was not recorded: %v",
		payment.TxHash, payment.LedgerIndex, cause)
	record := &model.ReconciliationModel{
		TxHash:     payment.TxHash,
		CampaignId: campaignId,
		Sender:     ledger.NormalizeAddress(payment.Sender),
		Receiver:   ledger.NormalizeAddress(payment.Destination),
		Amount:     payment.Amount,
		Reason:     model.ReconcileReasonPersistenceFailed,
		LastError:  cause.Error(),
	}
	if err := l.recon.Open(ctx, record); err != nil {
		logger.Error("Reconciliation required: failed to store reconciliation record for %s: %v", payment.TxHash, err)
	}
	return &Rejection{
		Reason:  ReasonPersistenceError,
		Message: "payment executed but could not be recorded, it will be reconciled",
		TxHash:  payment.TxHash,
		Err:     cause,
	}
}

// FinalizeSettlement 记录已结算的支付并更新活动，可重复调用
//
// 活动已删除时返回 ErrCampaignNotFound，不写入交易记录
func (l *InvestLogic) FinalizeSettlement(ctx context.Context, campaignId string, payment *ledger.PaymentResult) (*InvestResult, error) {
	campaign, err := l.campaigns.FindById(ctx, campaignId)
	if err != nil {
		return nil, err
	}
	state := StateSettled
	return l.settle(ctx, campaign, payment, &state)
}

// settle Settled -> Persisted -> AggregateUpdated -> NotificationsSent
//
// 交易记录与投资事件在同一事务中写入，完成迁移在其后
func (l *InvestLogic) settle(ctx context.Context, campaign *model.CampaignModel, payment *ledger.PaymentResult, state *InvestState) (*InvestResult, error) {
	record := &model.TransactionModel{
		TxHash:      payment.TxHash,
		LedgerIndex: payment.LedgerIndex,
		Sender:      ledger.NormalizeAddress(payment.Sender),
		Receiver:    ledger.NormalizeAddress(payment.Destination),
		Amount:      payment.Amount,
		CampaignId:  campaign.CampaignId,
		Timestamp:   payment.SettledAt,
	}
	inserted, err := l.txs.Record(ctx, record, func(tx *gorm.DB) error {
		total, err := l.txs.sum(tx.Model(&model.TransactionModel{}).Where("campaign_id = ?", campaign.CampaignId))
		if err != nil {
			return err
		}
		payload := payloadOf(campaign)
		payload.InvestorAddress = record.Sender
		payload.Amount = record.Amount
		payload.TotalRaised = total
		payload.TxHash = record.TxHash
		payload.LedgerIndex = record.LedgerIndex
		return l.events.Enqueue(tx, model.EventInvestmentSettled, payload)
	})
	if err != nil {
		return nil, err
	}
	if inserted {
		l.events.Notify()
	} else {
		logger.Info("Transaction %s already recorded", payment.TxHash)
	}
	*state = StatePersisted

	res := &InvestResult{
		TxHash:          payment.TxHash,
		LedgerIndex:     payment.LedgerIndex,
		BalanceChanges:  payment.BalanceChanges,
		AlreadyRecorded: !inserted,
	}

	// 以交易记录重新汇总，失败不回滚已记录的交易
	total, err := l.txs.TotalRaised(ctx, campaign.CampaignId)
	if err != nil {
		logger.Error("Failed to recompute raised amount of %s: %v", campaign.CampaignId, err)
	} else {
		res.TotalRaised = total
		completed, err := l.campaigns.CompleteIfReached(ctx, campaign, total)
		if err != nil {
			logger.Error("Failed to complete campaign %s: %v", campaign.CampaignId, err)
		}
		res.Completed = completed || campaign.Status == model.CampaignStatusCompleted
	}
	*state = StateAggregateUpdated

	// 通知由发件箱异步投递
	*state = StateNotificationsSent
	return res, nil
}

// ReconcileSummary 一轮对账结果
type ReconcileSummary struct {
	Resolved  int
	Failed    int
	Pending   int
	Abandoned int
	// Orphaned 支付已结算但活动已删除
	Orphaned int
}

// Reconcile 处理待对账记录，超过maxAge仍无法确认的放弃
func (l *InvestLogic) Reconcile(ctx context.Context, limit int, maxAge time.Duration) (ReconcileSummary, error) {
	var summary ReconcileSummary
	records, err := l.recon.Pending(ctx, limit)
	if err != nil {
		return summary, err
	}

	for i := range records {
		rec := &records[i]
		payment, err := l.ledger.LookupPayment(ctx, rec.TxHash)
		switch {
		case err == nil:
			_, ferr := l.FinalizeSettlement(ctx, rec.CampaignId, payment)
			if errors.Is(ferr, ErrCampaignNotFound) {
				_ = l.recon.Orphan(ctx, rec.Id, ferr)
				logger.Error("Reconciliation required: payment %s settled for deleted campaign %s", rec.TxHash, rec.CampaignId)
				summary.Orphaned++
				continue
			}
			if ferr != nil {
				logger.Error("Reconciliation of %s failed: %v", rec.TxHash, ferr)
				_ = l.recon.Retry(ctx, rec.Id, ferr)
				summary.Pending++
				continue
			}
			// 补记后以交易记录重建物化金额
			if _, rerr := l.txs.RebuildRaised(ctx, rec.CampaignId); rerr != nil {
				logger.Warn("Failed to rebuild raised amount of %s: %v", rec.CampaignId, rerr)
			}
			_ = l.recon.Resolve(ctx, rec.Id)
			logger.Info("Reconciled payment %s into campaign %s", rec.TxHash, rec.CampaignId)
			summary.Resolved++
		case errors.Is(err, ledger.ErrSubmissionRejected):
			_ = l.recon.Fail(ctx, rec.Id, err)
			logger.Warn("Payment %s failed on ledger, nothing to reconcile", rec.TxHash)
			summary.Failed++
		default:
			if maxAge > 0 && time.Since(rec.CreatedAt) > maxAge {
				_ = l.recon.Abandon(ctx, rec.Id, err)
				logger.Error("Reconciliation required: giving up on payment %s after %s: %v", rec.TxHash, maxAge, err)
				summary.Abandoned++
				continue
			}
			_ = l.recon.Retry(ctx, rec.Id, err)
			summary.Pending++
		}
	}
	return summary, nil
}

// ledgerRejection 账本错误映射为拒绝原因
func ledgerRejection(err error) *Rejection {
	txHash := ledger.TxHashOf(err)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return &Rejection{Reason: ReasonAccountNotFound, Message: "wallet account not found on the ledger", Err: err}
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return &Rejection{Reason: ReasonInsufficientFunds, Message: "insufficient funds to cover amount and fee", Err: err}
	case errors.Is(err, ledger.ErrNetwork):
		return &Rejection{Reason: ReasonNetworkError, Message: "ledger network unavailable", TxHash: txHash, Err: err}
	default:
		return &Rejection{Reason: ReasonSubmissionRejected, Message: "ledger rejected the payment", Err: err}
	}
}
