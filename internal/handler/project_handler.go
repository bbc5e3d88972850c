package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tshetendev/Startup-Investment/internal/auth"
	"github.com/tshetendev/Startup-Investment/internal/logic"
	"github.com/tshetendev/Startup-Investment/internal/metrics"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

type ProjectHandler struct {
	campaignLogic    *logic.CampaignLogic
	transactionLogic *logic.TransactionLogic
	metrics          *metrics.Metrics
}

func NewProjectHandler(campaignLogic *logic.CampaignLogic, transactionLogic *logic.TransactionLogic, m *metrics.Metrics) *ProjectHandler {
	return &ProjectHandler{
		campaignLogic:    campaignLogic,
		transactionLogic: transactionLogic,
		metrics:          m,
	}
}

// CreateProject 创建项目，等待管理员审核
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	id, _ := auth.Current(c)

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	target, err := parseAmount(req.TargetAmount)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "targetAmount must be a decimal number")
		return
	}
	endTime, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndDate))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid end date format. Please provide a valid ISO date string.")
		return
	}

	project, err := h.campaignLogic.Create(c.Request.Context(), logic.CreateCampaignInput{
		Title:          req.Title,
		Description:    req.Description,
		ImageURL:       req.ImageURL,
		TargetAmount:   target,
		EndTime:        endTime,
		CreatorAddress: id.WalletAddress,
	})
	if err != nil {
		LogicErrorResponse(c, err, "Error creating project")
		return
	}
	SuccessResponse(c, http.StatusCreated, "Project created successfully, pending approval", ToProjectResponse(project))
}

// ApproveProject 管理员审核通过
func (h *ProjectHandler) ApproveProject(c *gin.Context) {
	project, err := h.campaignLogic.Approve(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		LogicErrorResponse(c, err, "Error approving project")
		return
	}
	SuccessResponse(c, http.StatusOK, "Project approved successfully", ToProjectResponse(project))
}

// RejectProject 管理员驳回
func (h *ProjectHandler) RejectProject(c *gin.Context) {
	project, err := h.campaignLogic.Reject(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		LogicErrorResponse(c, err, "Error rejecting project")
		return
	}
	SuccessResponse(c, http.StatusOK, "Project rejected successfully", ToProjectResponse(project))
}

// DeleteProject 删除项目及其交易记录
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	if _, err := h.campaignLogic.DeleteCascade(c.Request.Context(), c.Param("projectId")); err != nil {
		LogicErrorResponse(c, err, "Error deleting project")
		return
	}
	SuccessResponse(c, http.StatusOK, "Project deleted successfully", nil)
}

// MarkCompleted 已筹金额达到目标时标记完成
func (h *ProjectHandler) MarkCompleted(c *gin.Context) {
	id, _ := auth.Current(c)
	requester := id.WalletAddress
	if id.UserType == model.UserTypeAdmin {
		requester = ""
	}
	if _, err := h.campaignLogic.MarkCompleted(c.Request.Context(), c.Param("projectId"), requester); err != nil {
		LogicErrorResponse(c, err, "Error marking project as completed")
		return
	}
	SuccessResponse(c, http.StatusOK, "Project marked as completed", nil)
}

// MarkEnded 创建者手动结束项目
func (h *ProjectHandler) MarkEnded(c *gin.Context) {
	id, _ := auth.Current(c)
	if _, err := h.campaignLogic.MarkEnded(c.Request.Context(), c.Param("projectId"), id.WalletAddress); err != nil {
		LogicErrorResponse(c, err, "Error marking project as ended")
		return
	}
	SuccessResponse(c, http.StatusOK, "Project marked as ended successfully", nil)
}

// MarkExpired 结束所有已过期的进行中项目
func (h *ProjectHandler) MarkExpired(c *gin.Context) {
	n, err := h.campaignLogic.MarkExpired(c.Request.Context(), time.Now())
	h.metrics.CampaignsExpired(n)
	if err != nil {
		LogicErrorResponse(c, err, "Error marking projects as ended")
		return
	}
	SuccessResponse(c, http.StatusOK, "Projects marked as ended successfully", gin.H{"ended": n})
}

// GetProject 获取单个项目详情
func (h *ProjectHandler) GetProject(c *gin.Context) {
	project, err := h.campaignLogic.FindById(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		LogicErrorResponse(c, err, "Error fetching project details")
		return
	}
	SuccessResponse(c, http.StatusOK, "", ToProjectResponse(project))
}

// GetAllProjects 全部项目
func (h *ProjectHandler) GetAllProjects(c *gin.Context) {
	h.listByStatus(c)
}

// GetVisibleProjects 排除待审核和已驳回的项目
func (h *ProjectHandler) GetVisibleProjects(c *gin.Context) {
	h.listByStatus(c, model.CampaignStatusActive, model.CampaignStatusCompleted, model.CampaignStatusEnded)
}

// GetActiveProjects 进行中的项目
func (h *ProjectHandler) GetActiveProjects(c *gin.Context) {
	h.listByStatus(c, model.CampaignStatusActive)
}

// GetCompletedProjects 已完成的项目
func (h *ProjectHandler) GetCompletedProjects(c *gin.Context) {
	h.listByStatus(c, model.CampaignStatusCompleted)
}

// GetEndedProjects 已结束的项目
func (h *ProjectHandler) GetEndedProjects(c *gin.Context) {
	h.listByStatus(c, model.CampaignStatusEnded)
}

func (h *ProjectHandler) listByStatus(c *gin.Context, statuses ...model.CampaignStatus) {
	// 支持 ?status= 进一步过滤
	if s := c.Query("status"); s != "" {
		status, err := model.ParseCampaignStatus(s)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		if len(statuses) > 0 && !containsStatus(statuses, status) {
			SuccessResponse(c, http.StatusOK, "", []ProjectResponse{})
			return
		}
		statuses = []model.CampaignStatus{status}
	}
	projects, err := h.campaignLogic.ListByStatus(c.Request.Context(), statuses...)
	if err != nil {
		LogicErrorResponse(c, err, "Error retrieving projects")
		return
	}
	SuccessResponse(c, http.StatusOK, "", ToProjectResponseList(projects))
}

func containsStatus(statuses []model.CampaignStatus, s model.CampaignStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

// GetMyProjects 当前用户创建的项目
func (h *ProjectHandler) GetMyProjects(c *gin.Context) {
	id, _ := auth.Current(c)
	projects, err := h.campaignLogic.ListByCreator(c.Request.Context(), id.WalletAddress)
	if err != nil {
		LogicErrorResponse(c, err, "Error retrieving projects")
		return
	}
	SuccessResponse(c, http.StatusOK, "", ToProjectResponseList(projects))
}

// GetOtherProjects 其他用户创建的项目
func (h *ProjectHandler) GetOtherProjects(c *gin.Context) {
	id, _ := auth.Current(c)
	projects, err := h.campaignLogic.ListOthers(c.Request.Context(), id.WalletAddress)
	if err != nil {
		LogicErrorResponse(c, err, "Error retrieving other projects")
		return
	}
	SuccessResponse(c, http.StatusOK, "", ToProjectResponseList(projects))
}

// GetProjectTransactions 项目的交易记录
func (h *ProjectHandler) GetProjectTransactions(c *gin.Context) {
	projectId := c.Param("projectId")
	if _, err := h.campaignLogic.FindById(c.Request.Context(), projectId); err != nil {
		LogicErrorResponse(c, err, "Error retrieving transactions")
		return
	}
	records, err := h.transactionLogic.ListByCampaign(c.Request.Context(), projectId)
	if err != nil {
		LogicErrorResponse(c, err, "Error retrieving transactions")
		return
	}
	SuccessResponse(c, http.StatusOK, "", ToTransactionResponseList(records))
}

// GetProjectRaised 项目已筹金额，按交易记录汇总
func (h *ProjectHandler) GetProjectRaised(c *gin.Context) {
	projectId := c.Param("projectId")
	if _, err := h.campaignLogic.FindById(c.Request.Context(), projectId); err != nil {
		LogicErrorResponse(c, err, "Error retrieving raised amount for the project")
		return
	}
	total, err := h.transactionLogic.TotalRaised(c.Request.Context(), projectId)
	if err != nil {
		LogicErrorResponse(c, err, "Error retrieving raised amount for the project")
		return
	}
	SuccessResponse(c, http.StatusOK, "", RaisedResponse{ProjectId: projectId, TotalRaised: total})
}

// GetProjectStats 按状态统计项目数量
func (h *ProjectHandler) GetProjectStats(c *gin.Context) {
	stats, err := h.campaignLogic.Stats(c.Request.Context())
	if err != nil {
		LogicErrorResponse(c, err, "Error retrieving project stats")
		return
	}
	SuccessResponse(c, http.StatusOK, "", stats)
}

// GetTotalRaised 平台总筹集金额
func (h *ProjectHandler) GetTotalRaised(c *gin.Context) {
	total, err := h.transactionLogic.TotalRaisedAll(c.Request.Context())
	if err != nil {
		LogicErrorResponse(c, err, "Error calculating total raised amount")
		return
	}
	SuccessResponse(c, http.StatusOK, "", gin.H{"totalRaised": total})
}
