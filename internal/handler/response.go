package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tshetendev/Startup-Investment/internal/logger"
	"github.com/tshetendev/Startup-Investment/internal/logic"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error:   message,
	})
}

// RejectionResponse 投资拒绝响应
func RejectionResponse(c *gin.Context, rej *logic.Rejection) {
	c.JSON(StatusForReason(rej.Reason), Response{
		Success:       false,
		Error:         rej.Message,
		Reason:        string(rej.Reason),
		TransactionId: rej.TxHash,
	})
}

// StatusForReason 拒绝原因对应的HTTP状态码
func StatusForReason(reason logic.Reason) int {
	switch reason {
	case logic.ReasonCampaignNotFound:
		return http.StatusNotFound
	case logic.ReasonCampaignClosed, logic.ReasonCampaignNotActive:
		return http.StatusConflict
	case logic.ReasonSubmissionRejected:
		return http.StatusUnprocessableEntity
	case logic.ReasonNetworkError:
		return http.StatusGatewayTimeout
	case logic.ReasonPersistenceError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// LogicErrorResponse 业务错误响应，未知错误不向外暴露细节
func LogicErrorResponse(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, logic.ErrCampaignNotFound):
		ErrorResponse(c, http.StatusNotFound, "Project not found")
	case errors.Is(err, logic.ErrNotOwner):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, logic.ErrGoalNotReached):
		ErrorResponse(c, http.StatusBadRequest, "Project goal not reached yet")
	case errors.Is(err, model.ErrIllegalTransition):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, logic.ErrInvalidInput):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		logger.Error("%s: %v", fallback, err)
		ErrorResponse(c, http.StatusInternalServerError, fallback)
	}
}
