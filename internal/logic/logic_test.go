package logic

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tshetendev/Startup-Investment/internal/database"
	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接独立
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type wallet struct {
	address string
	secret  string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		secret:  common.Bytes2Hex(crypto.FromECDSA(key)),
	}
}

// fakeLedger 内存账本
type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	settled  map[string]*ledger.PaymentResult

	submitErr error
	seq       int

	balanceCalls int
	submitCalls  int
	lookupCalls  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: map[string]decimal.Decimal{},
		settled:  map[string]*ledger.PaymentResult{},
	}
}

func (f *fakeLedger) fund(address string, amount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[ledger.NormalizeAddress(address)] = decimal.RequireFromString(amount)
}

func (f *fakeLedger) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	balance, ok := f.balances[ledger.NormalizeAddress(address)]
	if !ok {
		return decimal.Zero, &ledger.Error{Kind: ledger.ErrAccountNotFound}
	}
	return balance, nil
}

func (f *fakeLedger) payment(req ledger.PaymentRequest) *ledger.PaymentResult {
	f.seq++
	from, to := ledger.NormalizeAddress(req.SenderAddress), ledger.NormalizeAddress(req.Destination)
	return &ledger.PaymentResult{
		TxHash:      fmt.Sprintf("0x%064x", f.seq),
		LedgerIndex: int64(100 + f.seq),
		Sender:      from,
		Destination: to,
		Amount:      req.Amount,
		BalanceChanges: []ledger.BalanceChange{
			{Address: from, Delta: req.Amount.Neg()},
			{Address: to, Delta: req.Amount},
		},
		SettledAt: time.Now().UTC(),
	}
}

func (f *fakeLedger) SubmitPayment(ctx context.Context, req ledger.PaymentRequest) (*ledger.PaymentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	p := f.payment(req)
	f.balances[p.Sender] = f.balances[p.Sender].Sub(req.Amount)
	f.balances[p.Destination] = f.balances[p.Destination].Add(req.Amount)
	f.settled[p.TxHash] = p
	return p, nil
}

func (f *fakeLedger) LookupPayment(ctx context.Context, txHash string) (*ledger.PaymentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	if p, ok := f.settled[txHash]; ok {
		return p, nil
	}
	return nil, &ledger.Error{Kind: ledger.ErrTxNotFound, TxHash: txHash}
}

type fixture struct {
	db            *gorm.DB
	ledger        *fakeLedger
	events        *EventLogic
	txs           *TransactionLogic
	campaigns     *CampaignLogic
	notifications *NotificationLogic
	recon         *ReconcileLogic
	invest        *InvestLogic
	creator       wallet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		db:            db,
		ledger:        newFakeLedger(),
		events:        NewEventLogic(db),
		txs:           NewTransactionLogic(db),
		notifications: NewNotificationLogic(db),
		recon:         NewReconcileLogic(db),
		creator:       newWallet(t),
	}
	f.campaigns = NewCampaignLogic(db, f.txs, f.events)
	f.invest = NewInvestLogic(db, f.ledger, f.campaigns, f.txs, f.events, f.recon, nil)
	return f
}

func (f *fixture) pendingCampaign(t *testing.T, target string) *model.CampaignModel {
	t.Helper()
	c, err := f.campaigns.Create(context.Background(), CreateCampaignInput{
		Title:          "Solar roofs",
		Description:    "community solar",
		TargetAmount:   decimal.RequireFromString(target),
		EndTime:        time.Now().Add(72 * time.Hour),
		CreatorAddress: f.creator.address,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) activeCampaign(t *testing.T, target string) *model.CampaignModel {
	t.Helper()
	c := f.pendingCampaign(t, target)
	c, err := f.campaigns.Approve(context.Background(), c.CampaignId)
	require.NoError(t, err)
	return c
}

func (f *fixture) investor(t *testing.T, balance string) wallet {
	t.Helper()
	w := newWallet(t)
	f.ledger.fund(w.address, balance)
	return w
}

func (f *fixture) eventTypes(t *testing.T) []model.EventType {
	t.Helper()
	var events []model.EventModel
	require.NoError(t, f.db.Order("id ASC").Find(&events).Error)
	types := make([]model.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

func (f *fixture) reconRecord(t *testing.T, txHash string) *model.ReconciliationModel {
	t.Helper()
	var record model.ReconciliationModel
	require.NoError(t, f.db.Where("tx_hash = ?", txHash).First(&record).Error)
	return &record
}

func (f *fixture) countRows(t *testing.T, value interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(value).Where(query, args...).Count(&n).Error)
	return n
}

func investReq(w wallet, campaignId, amount string) InvestRequest {
	return InvestRequest{
		InvestorAddress: strings.ToLower(w.address),
		WalletSecret:    w.secret,
		Amount:          decimal.RequireFromString(amount),
		CampaignId:      campaignId,
	}
}
