package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tshetendev/Startup-Investment/internal/auth"
	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/logger"
	"github.com/tshetendev/Startup-Investment/internal/logic"
)

type WalletHandler struct {
	ledger           logic.Ledger
	transactionLogic *logic.TransactionLogic
}

func NewWalletHandler(l logic.Ledger, transactionLogic *logic.TransactionLogic) *WalletHandler {
	return &WalletHandler{ledger: l, transactionLogic: transactionLogic}
}

// GetBalance 当前用户钱包余额
func (h *WalletHandler) GetBalance(c *gin.Context) {
	id, _ := auth.Current(c)
	balance, err := h.ledger.GetBalance(c.Request.Context(), id.WalletAddress)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAccountNotFound):
			ErrorResponse(c, http.StatusNotFound, "Wallet account not found on the ledger")
		case errors.Is(err, ledger.ErrNetwork):
			ErrorResponse(c, http.StatusGatewayTimeout, "Ledger network unavailable")
		default:
			logger.Error("Failed to fetch wallet balance of %s: %v", id.WalletAddress, err)
			ErrorResponse(c, http.StatusInternalServerError, "Failed to fetch wallet balance")
		}
		return
	}
	SuccessResponse(c, http.StatusOK, "", gin.H{"address": id.WalletAddress, "balance": balance})
}

// GetMyTransactions 当前用户的投资记录
func (h *WalletHandler) GetMyTransactions(c *gin.Context) {
	id, _ := auth.Current(c)
	views, err := h.transactionLogic.ListBySender(c.Request.Context(), id.WalletAddress)
	if err != nil {
		LogicErrorResponse(c, err, "Error retrieving user transactions")
		return
	}
	SuccessResponse(c, http.StatusOK, "", ToInvestmentResponseList(views))
}
