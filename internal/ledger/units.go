package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals 账本原生单位的小数位数
const Decimals = 18

const (
	// maxIntegerDigits 金额整数部分最多位数
	maxIntegerDigits = 30
	// maxScale 最多接受的小数位数，包括末尾的0
	maxScale = 64
)

// ErrInvalidAmount 金额非法
var ErrInvalidAmount = errors.New("invalid amount")

// ToWei 将账本单位金额转换为最小单位
func ToWei(amount decimal.Decimal) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if err := CheckMagnitude(amount); err != nil {
		return nil, err
	}
	scaled := amount.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, Decimals)
	}
	return scaled.BigInt(), nil
}

// CheckMagnitude 检查金额量级，指数过大时 Shift/BigInt 的开销不可控，需在换算前调用
func CheckMagnitude(amount decimal.Decimal) error {
	if int64(amount.NumDigits())+int64(amount.Exponent()) > maxIntegerDigits {
		return fmt.Errorf("%w: more than %d integer digits", ErrInvalidAmount, maxIntegerDigits)
	}
	if amount.Exponent() < -maxScale {
		return fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, Decimals)
	}
	return nil
}

// FromWei 最小单位转换为账本单位
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -Decimals)
}
