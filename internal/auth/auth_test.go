package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshetendev/Startup-Investment/internal/config"
	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

const (
	investorAddr = "0x1111111111111111111111111111111111111111"
	adminAddr    = "0x2222222222222222222222222222222222222222"
	strangerAddr = "0x3333333333333333333333333333333333333333"
)

type mapDirectory map[string]model.UserType

func (d mapDirectory) FindByWallet(ctx context.Context, address string) (*model.UserModel, error) {
	t, ok := d[ledger.NormalizeAddress(address)]
	if !ok {
		return nil, errors.New("not found")
	}
	return &model.UserModel{WalletAddress: ledger.NormalizeAddress(address), UserType: t}, nil
}

func newTestAuth() *Authenticator {
	gin.SetMode(gin.TestMode)
	return NewAuthenticator(config.AuthConfig{JwtSecret: "test-secret", Issuer: "cfs"}, mapDirectory{
		ledger.NormalizeAddress(investorAddr): model.UserTypeInvestor,
		ledger.NormalizeAddress(adminAddr):    model.UserTypeAdmin,
	})
}

func newTestRouter(a *Authenticator) *gin.Engine {
	r := gin.New()
	r.Use(a.Middleware())
	r.GET("/me", func(c *gin.Context) {
		id, _ := Current(c)
		c.JSON(http.StatusOK, gin.H{"wallet": id.WalletAddress, "type": id.UserType})
	})
	r.GET("/admin", RequireRole(model.UserTypeAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareAcceptsRegisteredWallet(t *testing.T) {
	a := newTestAuth()
	r := newTestRouter(a)

	token, err := a.Issue(investorAddr, model.UserTypeInvestor, time.Hour)
	require.NoError(t, err)

	w := do(r, "/me", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ledger.NormalizeAddress(investorAddr))
	assert.Contains(t, w.Body.String(), `"investor"`)
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	a := newTestAuth()
	r := newTestRouter(a)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "garbage").Code)

	expired, err := a.Issue(investorAddr, model.UserTypeInvestor, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", expired).Code)

	// 其他密钥签发
	other := NewAuthenticator(config.AuthConfig{JwtSecret: "other", Issuer: "cfs"}, mapDirectory{})
	forged, err := other.Issue(investorAddr, model.UserTypeAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", forged).Code)

	// 不在用户目录中
	unknown, err := a.Issue(strangerAddr, model.UserTypeInvestor, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", unknown).Code)
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	a := newTestAuth()
	claims := Claims{
		WalletAddress: investorAddr,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "cfs",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = a.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireRoleUsesDirectoryType(t *testing.T) {
	a := newTestAuth()
	r := newTestRouter(a)

	admin, err := a.Issue(adminAddr, model.UserTypeAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", admin).Code)

	// 令牌声称是管理员，但目录中是投资者
	claimed, err := a.Issue(investorAddr, model.UserTypeAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(r, "/admin", claimed).Code)
}

func TestMissingSecretRejectsEverything(t *testing.T) {
	a := NewAuthenticator(config.AuthConfig{}, mapDirectory{})
	_, err := a.Issue(investorAddr, model.UserTypeInvestor, time.Hour)
	assert.Error(t, err)
	_, err = a.Parse("a.b.c")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
