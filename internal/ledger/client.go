package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/tshetendev/Startup-Investment/internal/config"
	"github.com/tshetendev/Startup-Investment/internal/logger"
	"github.com/tshetendev/Startup-Investment/internal/metrics"
)

// Backend 账本节点接口，ethclient.Client 与模拟链客户端均满足
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Dialer 建立账本连接
type Dialer func(ctx context.Context) (Backend, error)

// PaymentRequest 支付请求
type PaymentRequest struct {
	SenderAddress string
	SenderSecret  string
	Destination   string
	Amount        decimal.Decimal
}

// String 不输出私钥
func (r PaymentRequest) String() string {
	return fmt.Sprintf("payment %s -> %s amount %s", r.SenderAddress, r.Destination, r.Amount)
}

// BalanceChange 账户余额变化
type BalanceChange struct {
	Address string          `json:"address"`
	Delta   decimal.Decimal `json:"delta"`
}

// PaymentResult 已结算支付
type PaymentResult struct {
	TxHash         string          `json:"tx_hash"`
	LedgerIndex    int64           `json:"ledger_index"`
	Sender         string          `json:"sender"`
	Destination    string          `json:"destination"`
	Amount         decimal.Decimal `json:"amount"`
	Fee            decimal.Decimal `json:"fee"`
	BalanceChanges []BalanceChange `json:"balance_changes"`
	SettledAt      time.Time       `json:"settled_at"`
}

// Client 账本客户端，全局共享，可被任意数量的请求并发调用
type Client struct {
	cfg     config.LedgerConfig
	dial    Dialer
	metrics *metrics.Metrics

	mu      sync.Mutex
	backend Backend
	chainID *big.Int

	// 同一发送方从取nonce到广播串行执行
	senders sync.Map
}

// Option 客户端选项
type Option func(*Client)

// WithDialer 自定义连接方式
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// WithMetrics 记录调用耗时
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient 创建客户端，首次调用时才建立连接
func NewClient(cfg config.LedgerConfig, opts ...Option) *Client {
	c := &Client{cfg: cfg}
	c.dial = func(ctx context.Context) (Backend, error) {
		if cfg.RpcUrl == "" {
			return nil, errors.New("no RPC URL configured")
		}
		return ethclient.DialContext(ctx, cfg.RpcUrl)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.RequestTimeout <= 0 {
		c.cfg.RequestTimeout = 15 * time.Second
	}
	if c.cfg.SettleTimeout <= 0 {
		c.cfg.SettleTimeout = 2 * time.Minute
	}
	if c.cfg.PollInterval <= 0 {
		c.cfg.PollInterval = 2 * time.Second
	}
	if c.cfg.GasLimit == 0 {
		c.cfg.GasLimit = 21000
	}
	return c
}

// conn 获取连接，断开后重新建立
func (c *Client) conn(ctx context.Context) (Backend, *big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil {
		return c.backend, c.chainID, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	b, err := c.dial(ctx)
	if err != nil {
		return nil, nil, &Error{Kind: ErrNetwork, Err: fmt.Errorf("dial ledger: %w", err)}
	}

	chainID := big.NewInt(c.cfg.ChainId)
	if c.cfg.ChainId <= 0 {
		chainID, err = b.ChainID(ctx)
		if err != nil {
			closeBackend(b)
			return nil, nil, &Error{Kind: ErrNetwork, Err: fmt.Errorf("query chain id: %w", err)}
		}
	}

	logger.Info("Connected to ledger (chain id: %s)", chainID)
	c.backend = b
	c.chainID = chainID
	return b, chainID, nil
}

// invalidate 丢弃失效连接，下次调用重新连接
func (c *Client) invalidate(b Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != b {
		return
	}
	logger.Warn("Dropping ledger connection after network failure")
	closeBackend(b)
	c.backend = nil
}

// Close 关闭连接
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		closeBackend(c.backend)
		c.backend = nil
	}
}

func closeBackend(b Backend) {
	if closer, ok := b.(interface{ Close() }); ok {
		closer.Close()
	}
}

// fail 包装错误，连接层面的网络错误时丢弃连接
//
// 调用方取消或超时只影响本次调用，共享连接继续供其他请求使用
func (c *Client) fail(ctx context.Context, b Backend, txHash string, err error, fallback error) *Error {
	kind := classify(err, fallback)
	if kind != ErrNetwork {
		return &Error{Kind: kind, Err: err}
	}
	if ctx.Err() == nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		c.invalidate(b)
	}
	return &Error{Kind: kind, TxHash: txHash, Err: err}
}

func (c *Client) observe(op string, start time.Time, err error) {
	c.metrics.LedgerCall(op, time.Since(start), err)
}

// GetBalance 查询账户余额
func (c *Client) GetBalance(ctx context.Context, address string) (balance decimal.Decimal, err error) {
	defer func(start time.Time) { c.observe("balance", start, err) }(time.Now())

	if !common.IsHexAddress(address) {
		return decimal.Zero, &Error{Kind: ErrAccountNotFound, Err: fmt.Errorf("invalid address %q", address)}
	}
	b, _, err := c.conn(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	account := common.HexToAddress(address)
	wei, err := b.BalanceAt(ctx, account, nil)
	if err != nil {
		return decimal.Zero, c.fail(ctx, b, "", err, ErrNetwork)
	}
	if wei.Sign() == 0 {
		// 余额与nonce均为0视为账本上不存在的账户
		nonce, err := b.NonceAt(ctx, account, nil)
		if err != nil {
			return decimal.Zero, c.fail(ctx, b, "", err, ErrNetwork)
		}
		if nonce == 0 {
			return decimal.Zero, &Error{Kind: ErrAccountNotFound, Err: fmt.Errorf("account %s has no history", account.Hex())}
		}
	}
	return FromWei(wei), nil
}

// SubmitPayment 签名并提交支付，阻塞直到结算或超时
//
// 超时或断线时返回 ErrNetwork，结果未知，错误中携带交易哈希
func (c *Client) SubmitPayment(ctx context.Context, req PaymentRequest) (res *PaymentResult, err error) {
	defer func(start time.Time) { c.observe("submit", start, err) }(time.Now())

	key, err := ParseSecret(req.SenderSecret)
	if err != nil {
		return nil, &Error{Kind: ErrSubmissionRejected, Err: err}
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	if !common.IsHexAddress(req.Destination) {
		return nil, &Error{Kind: ErrSubmissionRejected, Err: fmt.Errorf("invalid destination %q", req.Destination)}
	}
	to := common.HexToAddress(req.Destination)
	value, err := ToWei(req.Amount)
	if err != nil {
		return nil, &Error{Kind: ErrSubmissionRejected, Err: err}
	}

	b, chainID, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := c.send(ctx, b, chainID, key, from, to, value)
	if err != nil {
		return nil, err
	}
	logger.Info("Payment submitted (tx: %s, from: %s, to: %s)", tx.Hash().Hex(), from.Hex(), to.Hex())

	return c.waitSettled(ctx, b, tx, from)
}

// send 分配nonce、签名并广播
func (c *Client) send(ctx context.Context, b Backend, chainID *big.Int, key *ecdsa.PrivateKey, from, to common.Address, value *big.Int) (*types.Transaction, error) {
	unlock := c.lockSender(from)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	nonce, err := b.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, c.fail(ctx, b, "", err, ErrNetwork)
	}
	gasPrice, err := b.SuggestGasPrice(ctx)
	if err != nil {
		return nil, c.fail(ctx, b, "", err, ErrNetwork)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      c.cfg.GasLimit,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, &Error{Kind: ErrSubmissionRejected, Err: fmt.Errorf("sign transaction: %w", err)}
	}

	if err := b.SendTransaction(ctx, signed); err != nil {
		return nil, c.fail(ctx, b, signed.Hash().Hex(), err, ErrSubmissionRejected)
	}
	return signed, nil
}

func (c *Client) lockSender(addr common.Address) func() {
	v, _ := c.senders.LoadOrStore(addr, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// waitSettled 轮询回执直到达到确认数
func (c *Client) waitSettled(ctx context.Context, b Backend, tx *types.Transaction, from common.Address) (*PaymentResult, error) {
	hash := tx.Hash()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := b.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			head, err := b.BlockNumber(ctx)
			if err == nil && head >= receipt.BlockNumber.Uint64()+c.cfg.Confirmations {
				return c.settled(ctx, b, tx, receipt, from)
			}
		case err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil:
			if classify(err, nil) == ErrNetwork {
				c.invalidate(b)
				return nil, &Error{Kind: ErrNetwork, TxHash: hash.Hex(), Err: err}
			}
			logger.Warn("Receipt query failed, will retry (tx: %s): %v", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, &Error{Kind: ErrNetwork, TxHash: hash.Hex(), Err: fmt.Errorf("settlement not observed: %w", ctx.Err())}
		case <-ticker.C:
		}
	}
}

// settled 根据回执构造结算结果
func (c *Client) settled(ctx context.Context, b Backend, tx *types.Transaction, receipt *types.Receipt, from common.Address) (*PaymentResult, error) {
	hash := tx.Hash().Hex()
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &Error{Kind: ErrSubmissionRejected, Err: fmt.Errorf("transaction %s failed on ledger", hash)}
	}

	price := receipt.EffectiveGasPrice
	if price == nil {
		price = tx.GasPrice()
	}
	feeWei := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price)
	value := tx.Value()
	to := *tx.To()

	settledAt := time.Now().UTC()
	if header, err := b.HeaderByNumber(ctx, receipt.BlockNumber); err == nil && header != nil {
		settledAt = time.Unix(int64(header.Time), 0).UTC()
	}

	spent := new(big.Int).Add(value, feeWei)
	return &PaymentResult{
		TxHash:      hash,
		LedgerIndex: receipt.BlockNumber.Int64(),
		Sender:      from.Hex(),
		Destination: to.Hex(),
		Amount:      FromWei(value),
		Fee:         FromWei(feeWei),
		BalanceChanges: []BalanceChange{
			{Address: from.Hex(), Delta: FromWei(spent).Neg()},
			{Address: to.Hex(), Delta: FromWei(value)},
		},
		SettledAt: settledAt,
	}, nil
}

// LookupPayment 按哈希查询已提交的支付，用于对账
func (c *Client) LookupPayment(ctx context.Context, txHash string) (res *PaymentResult, err error) {
	defer func(start time.Time) { c.observe("lookup", start, err) }(time.Now())

	b, chainID, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	hash := common.HexToHash(txHash)
	tx, pending, err := b.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, &Error{Kind: ErrTxNotFound, TxHash: txHash}
	}
	if err != nil {
		return nil, c.fail(ctx, b, txHash, err, ErrNetwork)
	}
	if pending || tx.To() == nil {
		return nil, &Error{Kind: ErrTxNotFound, TxHash: txHash, Err: errors.New("transaction not settled")}
	}

	receipt, err := b.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, &Error{Kind: ErrTxNotFound, TxHash: txHash}
	}
	if err != nil {
		return nil, c.fail(ctx, b, txHash, err, ErrNetwork)
	}
	head, err := b.BlockNumber(ctx)
	if err != nil {
		return nil, c.fail(ctx, b, txHash, err, ErrNetwork)
	}
	if head < receipt.BlockNumber.Uint64()+c.cfg.Confirmations {
		return nil, &Error{Kind: ErrTxNotFound, TxHash: txHash, Err: errors.New("awaiting confirmations")}
	}

	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, &Error{Kind: ErrSubmissionRejected, Err: fmt.Errorf("recover sender: %w", err)}
	}
	return c.settled(ctx, b, tx, receipt, from)
}
