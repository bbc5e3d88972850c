package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tshetendev/Startup-Investment/internal/auth"
	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/logic"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

type NotificationHandler struct {
	notificationLogic *logic.NotificationLogic
}

func NewNotificationHandler(notificationLogic *logic.NotificationLogic) *NotificationHandler {
	return &NotificationHandler{notificationLogic: notificationLogic}
}

// SendNotification 直接发送一条通知
func (h *NotificationHandler) SendNotification(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if !ledger.IsAddress(req.UserAddress) {
		ErrorResponse(c, http.StatusBadRequest, "User address and message are required")
		return
	}
	n, err := h.notificationLogic.Append(c.Request.Context(), req.UserAddress, req.Message)
	if err != nil {
		LogicErrorResponse(c, err, "Error creating notification")
		return
	}
	SuccessResponse(c, http.StatusCreated, "Notification created successfully", ToNotificationResponseList([]model.NotificationModel{*n})[0])
}

// GetNotifications 当前用户的通知
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	id, _ := auth.Current(c)
	notifications, err := h.notificationLogic.ListFor(c.Request.Context(), id.WalletAddress)
	if err != nil {
		LogicErrorResponse(c, err, "Error retrieving notifications")
		return
	}
	SuccessResponse(c, http.StatusOK, "", ToNotificationResponseList(notifications))
}

// MarkAsRead 标记通知已读，只能标记自己的通知
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, _ := auth.Current(c)
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Notifications) == 0 {
		ErrorResponse(c, http.StatusBadRequest, "notifications must be a non-empty list of ids")
		return
	}
	n, err := h.notificationLogic.MarkRead(c.Request.Context(), id.WalletAddress, req.Notifications)
	if err != nil {
		LogicErrorResponse(c, err, "Error marking notifications as read")
		return
	}
	SuccessResponse(c, http.StatusOK, "Notifications marked as read", gin.H{"updated": n})
}
