package ledger

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CredentialResult 钱包凭证校验结果
type CredentialResult int

const (
	CredentialValid CredentialResult = iota
	CredentialMismatch
	CredentialValidationError
)

func (r CredentialResult) String() string {
	switch r {
	case CredentialValid:
		return "valid"
	case CredentialMismatch:
		return "mismatch"
	default:
		return "validation_error"
	}
}

// ErrCredentialFormat 私钥格式错误（长度或编码）
var ErrCredentialFormat = errors.New("malformed wallet secret")

const secretHexLen = 64

// ParseSecret 解析十六进制私钥，可带0x前缀
func ParseSecret(secret string) (*ecdsa.PrivateKey, error) {
	s := strings.TrimSpace(secret)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if len(s) != secretHexLen {
		return nil, fmt.Errorf("%w: expected %d hex digits", ErrCredentialFormat, secretHexLen)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return nil, fmt.Errorf("%w: invalid hex", ErrCredentialFormat)
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// DeriveAddress 由私钥推导账户地址
func DeriveAddress(secret string) (string, error) {
	key, err := ParseSecret(secret)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// ValidateCredential 校验私钥与声明的地址是否一致，私钥不会被保存或记录
func ValidateCredential(address, secret string) (CredentialResult, error) {
	derived, err := DeriveAddress(secret)
	if err != nil {
		return CredentialValidationError, err
	}
	if !common.IsHexAddress(address) {
		return CredentialMismatch, nil
	}
	if common.HexToAddress(address) != common.HexToAddress(derived) {
		return CredentialMismatch, nil
	}
	return CredentialValid, nil
}

// IsAddress 是否为合法账户地址
func IsAddress(address string) bool {
	return common.IsHexAddress(strings.TrimSpace(address))
}

// NormalizeAddress 统一地址格式，非法地址原样返回
func NormalizeAddress(address string) string {
	if !common.IsHexAddress(address) {
		return strings.TrimSpace(address)
	}
	return common.HexToAddress(address).Hex()
}

// SameAddress 地址比较，不区分大小写
func SameAddress(a, b string) bool {
	return strings.EqualFold(NormalizeAddress(a), NormalizeAddress(b))
}
