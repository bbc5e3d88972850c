package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tshetendev/Startup-Investment/internal/config"
	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/logger"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

const identityKey = "auth.identity"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims 身份令牌内容，由外部登录服务签发
type Claims struct {
	WalletAddress string         `json:"wallet_address"`
	UserType      model.UserType `json:"user_type"`
	jwt.RegisteredClaims
}

// Identity 当前请求的用户
type Identity struct {
	WalletAddress string
	UserType      model.UserType
}

// Directory 用户目录
type Directory interface {
	FindByWallet(ctx context.Context, address string) (*model.UserModel, error)
}

// Authenticator 校验令牌并查询用户目录
type Authenticator struct {
	secret    []byte
	issuer    string
	directory Directory
}

// NewAuthenticator 创建认证器
func NewAuthenticator(cfg config.AuthConfig, directory Directory) *Authenticator {
	return &Authenticator{
		secret:    []byte(cfg.JwtSecret),
		issuer:    cfg.Issuer,
		directory: directory,
	}
}

// Issue 签发令牌，测试和运维脚本使用
func (a *Authenticator) Issue(address string, userType model.UserType, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := Claims{
		WalletAddress: ledger.NormalizeAddress(address),
		UserType:      userType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   ledger.NormalizeAddress(address),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse 校验签名和有效期
func (a *Authenticator) Parse(token string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, fmt.Errorf("%w: jwt secret is not configured", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !ledger.IsAddress(claims.WalletAddress) {
		return nil, fmt.Errorf("%w: wallet_address claim is not a valid address", ErrInvalidToken)
	}
	return &claims, nil
}

// Middleware 要求请求携带有效令牌，且钱包地址在用户目录中
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearer(c.GetHeader("Authorization"))
		if err != nil {
			abort(c, http.StatusUnauthorized, "User is not logged in")
			return
		}
		claims, err := a.Parse(token)
		if err != nil {
			logger.Debug("Rejected token: %v", err)
			abort(c, http.StatusUnauthorized, "User is not logged in")
			return
		}

		// 用户类型以目录为准
		user, err := a.directory.FindByWallet(c.Request.Context(), claims.WalletAddress)
		if err != nil {
			logger.Debug("Wallet %s not found in user directory: %v", claims.WalletAddress, err)
			abort(c, http.StatusUnauthorized, "User is not registered")
			return
		}

		c.Set(identityKey, &Identity{
			WalletAddress: user.WalletAddress,
			UserType:      user.UserType,
		})
		c.Next()
	}
}

// RequireRole 限制用户类型，需在 Middleware 之后使用
func RequireRole(types ...model.UserType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := Current(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "User is not logged in")
			return
		}
		for _, t := range types {
			if id.UserType == t {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, fmt.Sprintf("User type %s is not authorized for this action", id.UserType))
	}
}

// Current 获取当前用户
func Current(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok
}

func bearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}
