package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshetendev/Startup-Investment/internal/config"
)

type simAccount struct {
	secret  string
	address common.Address
}

func newAccount(t *testing.T) simAccount {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return simAccount{
		secret:  common.Bytes2Hex(crypto.FromECDSA(key)),
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether))
}

func testLedgerConfig() config.LedgerConfig {
	return config.LedgerConfig{
		RequestTimeout: 5 * time.Second,
		SettleTimeout:  20 * time.Second,
		PollInterval:   10 * time.Millisecond,
		GasLimit:       21000,
	}
}

// startSimulated 启动模拟链并持续出块
func startSimulated(t *testing.T, alloc types.GenesisAlloc) *simulated.Backend {
	t.Helper()
	backend := simulated.NewBackend(alloc)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				backend.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		wg.Wait()
		_ = backend.Close()
	})
	return backend
}

func newSimulatedClient(t *testing.T, alloc types.GenesisAlloc) *Client {
	t.Helper()
	backend := startSimulated(t, alloc)
	return NewClient(testLedgerConfig(), WithDialer(func(ctx context.Context) (Backend, error) {
		return backend.Client(), nil
	}))
}

func TestSubmitPaymentSettles(t *testing.T) {
	investor, creator := newAccount(t), newAccount(t)
	client := newSimulatedClient(t, types.GenesisAlloc{
		investor.address: {Balance: ether(100)},
		creator.address:  {Balance: ether(1)},
	})
	ctx := context.Background()

	before, err := client.GetBalance(ctx, investor.address.Hex())
	require.NoError(t, err)
	assert.True(t, before.Equal(decimal.NewFromInt(100)))

	amount := decimal.RequireFromString("1.5")
	res, err := client.SubmitPayment(ctx, PaymentRequest{
		SenderAddress: investor.address.Hex(),
		SenderSecret:  investor.secret,
		Destination:   creator.address.Hex(),
		Amount:        amount,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.TxHash)
	assert.Positive(t, res.LedgerIndex)
	assert.True(t, res.Amount.Equal(amount))
	require.Len(t, res.BalanceChanges, 2)
	assert.True(t, res.BalanceChanges[1].Delta.Equal(amount))
	assert.True(t, res.BalanceChanges[0].Delta.Equal(amount.Add(res.Fee).Neg()))

	received, err := client.GetBalance(ctx, creator.address.Hex())
	require.NoError(t, err)
	assert.True(t, received.Equal(decimal.NewFromInt(1).Add(amount)))

	after, err := client.GetBalance(ctx, investor.address.Hex())
	require.NoError(t, err)
	assert.True(t, after.Equal(before.Sub(amount).Sub(res.Fee)))

	found, err := client.LookupPayment(ctx, res.TxHash)
	require.NoError(t, err)
	assert.Equal(t, res.TxHash, found.TxHash)
	assert.Equal(t, res.LedgerIndex, found.LedgerIndex)
	assert.Equal(t, investor.address.Hex(), found.Sender)
	assert.True(t, found.Amount.Equal(amount))
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	funded := newAccount(t)
	client := newSimulatedClient(t, types.GenesisAlloc{funded.address: {Balance: ether(1)}})

	_, err := client.GetBalance(context.Background(), newAccount(t).address.Hex())
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestSubmitPaymentInsufficientFunds(t *testing.T) {
	poor, creator := newAccount(t), newAccount(t)
	client := newSimulatedClient(t, types.GenesisAlloc{
		poor.address:    {Balance: ether(1)},
		creator.address: {Balance: ether(1)},
	})

	_, err := client.SubmitPayment(context.Background(), PaymentRequest{
		SenderAddress: poor.address.Hex(),
		SenderSecret:  poor.secret,
		Destination:   creator.address.Hex(),
		Amount:        decimal.NewFromInt(5),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.Empty(t, TxHashOf(err))
}

func TestConcurrentSubmissionsFromSameSender(t *testing.T) {
	investor, creator := newAccount(t), newAccount(t)
	client := newSimulatedClient(t, types.GenesisAlloc{
		investor.address: {Balance: ether(100)},
		creator.address:  {Balance: ether(1)},
	})

	const n = 4
	hashes := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := client.SubmitPayment(context.Background(), PaymentRequest{
				SenderAddress: investor.address.Hex(),
				SenderSecret:  investor.secret,
				Destination:   creator.address.Hex(),
				Amount:        decimal.NewFromInt(1),
			})
			errs[i] = err
			if res != nil {
				hashes[i] = res.TxHash
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[hashes[i]], "duplicate tx hash")
		seen[hashes[i]] = true
	}

	received, err := client.GetBalance(context.Background(), creator.address.Hex())
	require.NoError(t, err)
	assert.True(t, received.Equal(decimal.NewFromInt(1+n)))
}

func TestLookupUnknownPayment(t *testing.T) {
	funded := newAccount(t)
	client := newSimulatedClient(t, types.GenesisAlloc{funded.address: {Balance: ether(1)}})

	_, err := client.LookupPayment(context.Background(), common.HexToHash("0x01").Hex())
	assert.True(t, errors.Is(err, ErrTxNotFound))
}

func TestSubmitPaymentRejectsBadInput(t *testing.T) {
	client := NewClient(testLedgerConfig(), WithDialer(func(ctx context.Context) (Backend, error) {
		t.Fatal("must not dial")
		return nil, nil
	}))
	investor := newAccount(t)

	_, err := client.SubmitPayment(context.Background(), PaymentRequest{
		SenderAddress: investor.address.Hex(),
		SenderSecret:  investor.secret,
		Destination:   "not-an-address",
		Amount:        decimal.NewFromInt(1),
	})
	assert.True(t, errors.Is(err, ErrSubmissionRejected))

	_, err = client.SubmitPayment(context.Background(), PaymentRequest{
		SenderAddress: investor.address.Hex(),
		SenderSecret:  investor.secret,
		Destination:   newAccount(t).address.Hex(),
		Amount:        decimal.Zero,
	})
	assert.True(t, errors.Is(err, ErrSubmissionRejected))
}

// flakyBackend 广播时返回网络错误
type flakyBackend struct {
	Backend
	closed bool
}

func (f *flakyBackend) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(1337), nil }
func (f *flakyBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (f *flakyBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(params.GWei), nil
}
func (f *flakyBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return errors.New("write tcp 127.0.0.1:8545: connection reset by peer")
}
func (f *flakyBackend) Close() { f.closed = true }

func TestNetworkFailureCarriesHashAndRedials(t *testing.T) {
	var dials int
	var last *flakyBackend
	client := NewClient(testLedgerConfig(), WithDialer(func(ctx context.Context) (Backend, error) {
		dials++
		last = &flakyBackend{}
		return last, nil
	}))
	investor := newAccount(t)
	req := PaymentRequest{
		SenderAddress: investor.address.Hex(),
		SenderSecret:  investor.secret,
		Destination:   newAccount(t).address.Hex(),
		Amount:        decimal.NewFromInt(1),
	}

	_, err := client.SubmitPayment(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.NotEmpty(t, TxHashOf(err))
	assert.True(t, last.closed)

	_, err = client.SubmitPayment(context.Background(), req)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.Equal(t, 2, dials)
}

// sharedBackend 共享连接，关闭后的调用返回 client is closed
type sharedBackend struct {
	Backend
	closed atomic.Bool
	sent   chan struct{}
}

func (s *sharedBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, errors.New("client is closed")
	}
	return s.Backend.BalanceAt(ctx, account, blockNumber)
}

func (s *sharedBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	err := s.Backend.SendTransaction(ctx, tx)
	close(s.sent)
	return err
}

func (s *sharedBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if s.closed.Load() {
		return nil, errors.New("client is closed")
	}
	return s.Backend.TransactionReceipt(ctx, txHash)
}

func (s *sharedBackend) Close() { s.closed.Store(true) }

func TestCancelledCallKeepsSharedConnection(t *testing.T) {
	investor, creator := newAccount(t), newAccount(t)
	sim := startSimulated(t, types.GenesisAlloc{
		investor.address: {Balance: ether(100)},
		creator.address:  {Balance: ether(1)},
	})
	var dials atomic.Int32
	shared := &sharedBackend{Backend: sim.Client(), sent: make(chan struct{})}
	client := NewClient(testLedgerConfig(), WithDialer(func(ctx context.Context) (Backend, error) {
		dials.Add(1)
		return shared, nil
	}))

	type outcome struct {
		res *PaymentResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := client.SubmitPayment(context.Background(), PaymentRequest{
			SenderAddress: investor.address.Hex(),
			SenderSecret:  investor.secret,
			Destination:   creator.address.Hex(),
			Amount:        decimal.NewFromInt(2),
		})
		done <- outcome{res, err}
	}()

	// 支付已广播、等待结算时，另一个请求被客户端取消
	select {
	case <-shared.sent:
	case <-time.After(10 * time.Second):
		t.Fatal("payment was not broadcast")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.GetBalance(ctx, investor.address.Hex())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.False(t, shared.closed.Load())

	got := <-done
	require.NoError(t, got.err)
	assert.NotEmpty(t, got.res.TxHash)

	balance, err := client.GetBalance(context.Background(), creator.address.Hex())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, int32(1), dials.Load())
}
