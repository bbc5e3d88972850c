package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tshetendev/Startup-Investment/internal/auth"
	"github.com/tshetendev/Startup-Investment/internal/logic"
)

type InvestHandler struct {
	investLogic *logic.InvestLogic
}

func NewInvestHandler(investLogic *logic.InvestLogic) *InvestHandler {
	return &InvestHandler{investLogic: investLogic}
}

// Invest 投资项目
func (h *InvestHandler) Invest(c *gin.Context) {
	id, ok := auth.Current(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User is not logged in")
		return
	}

	var req InvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RejectionResponse(c, &logic.Rejection{Reason: logic.ReasonInvalidRequest, Message: "invalid request body"})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		RejectionResponse(c, &logic.Rejection{Reason: logic.ReasonInvalidAmount, Message: err.Error()})
		return
	}

	result, err := h.investLogic.Invest(c.Request.Context(), logic.InvestRequest{
		InvestorAddress: id.WalletAddress,
		WalletSecret:    req.WalletSecret,
		Amount:          amount,
		CampaignId:      req.ProjectId,
	})
	if err != nil {
		if rej, ok := logic.AsRejection(err); ok {
			RejectionResponse(c, rej)
			return
		}
		LogicErrorResponse(c, err, "Error processing investment")
		return
	}

	c.JSON(http.StatusOK, InvestResponse{Success: true, InvestResult: result})
}
