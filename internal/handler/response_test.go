package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/logic"
)

func TestStatusForReason(t *testing.T) {
	cases := map[logic.Reason]int{
		logic.ReasonInvalidRequest:      http.StatusBadRequest,
		logic.ReasonInvalidAmount:       http.StatusBadRequest,
		logic.ReasonCredentialFormat:    http.StatusBadRequest,
		logic.ReasonInvalidCredential:   http.StatusBadRequest,
		logic.ReasonSelfInvestment:      http.StatusBadRequest,
		logic.ReasonInsufficientBalance: http.StatusBadRequest,
		logic.ReasonInsufficientFunds:   http.StatusBadRequest,
		logic.ReasonAccountNotFound:     http.StatusBadRequest,
		logic.ReasonCampaignNotFound:    http.StatusNotFound,
		logic.ReasonCampaignClosed:      http.StatusConflict,
		logic.ReasonCampaignNotActive:   http.StatusConflict,
		logic.ReasonSubmissionRejected:  http.StatusUnprocessableEntity,
		logic.ReasonNetworkError:        http.StatusGatewayTimeout,
		logic.ReasonPersistenceError:    http.StatusInternalServerError,
	}
	for reason, want := range cases {
		assert.Equal(t, want, StatusForReason(reason), string(reason))
	}
}

func TestParseAmount(t *testing.T) {
	for _, raw := range []string{`12.5`, `"12.5"`, `" 12.5 "`} {
		d, err := parseAmount(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, "12.5", d.String())
	}
	for _, raw := range []string{``, `null`, `"abc"`, `true`, `"`} {
		_, err := parseAmount(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
	// 超大指数在解析时拒绝
	for _, raw := range []string{`1e2000000000`, `"1e2000000000"`, `"-1e2000000000"`, `"1e-2000000000"`} {
		_, err := parseAmount(json.RawMessage(raw))
		assert.True(t, errors.Is(err, ledger.ErrInvalidAmount), raw)
	}
}
