package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// 账本错误类别
var (
	ErrNetwork            = errors.New("ledger network error")
	ErrAccountNotFound    = errors.New("ledger account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds on ledger")
	ErrSubmissionRejected = errors.New("ledger rejected submission")
	ErrTxNotFound         = errors.New("ledger transaction not found")
)

// Error 账本调用错误，Kind为上面的类别之一
//
// 网络错误时结果未知，TxHash为本地已签名交易的哈希，供后续对账使用
type Error struct {
	Kind   error
	TxHash string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.TxHash != "" {
		fmt.Fprintf(&b, " (tx %s)", e.TxHash)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is 按类别匹配
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TxHashOf 取出错误携带的交易哈希
func TxHashOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.TxHash
	}
	return ""
}

var networkHints = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"eof",
	"client is closed",
}

// classify 将底层错误映射到类别，无法识别时使用fallback
func classify(err error, fallback error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrNetwork
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "insufficient funds") {
		return ErrInsufficientFunds
	}
	for _, hint := range networkHints {
		if strings.Contains(msg, hint) {
			return ErrNetwork
		}
	}
	return fallback
}
