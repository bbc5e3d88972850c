package router

import (
	"github.com/gin-gonic/gin"

	"github.com/tshetendev/Startup-Investment/internal/auth"
	"github.com/tshetendev/Startup-Investment/internal/handler"
	"github.com/tshetendev/Startup-Investment/internal/logic"
	"github.com/tshetendev/Startup-Investment/internal/metrics"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

// Deps 路由依赖
type Deps struct {
	Auth          *auth.Authenticator
	Ledger        logic.Ledger
	Campaigns     *logic.CampaignLogic
	Transactions  *logic.TransactionLogic
	Notifications *logic.NotificationLogic
	Invest        *logic.InvestLogic
	Metrics       *metrics.Metrics
}

func Setup(d Deps) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "crowdfunding-service",
		})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	projectHandler := handler.NewProjectHandler(d.Campaigns, d.Transactions, d.Metrics)
	investHandler := handler.NewInvestHandler(d.Invest)
	walletHandler := handler.NewWalletHandler(d.Ledger, d.Transactions)
	notificationHandler := handler.NewNotificationHandler(d.Notifications)

	// 公开查询
	r.GET("/projects/all", projectHandler.GetAllProjects)
	r.GET("/projects/exclude-rejected-pending", projectHandler.GetVisibleProjects)
	r.GET("/projects/:projectId", projectHandler.GetProject)
	r.GET("/projects/:projectId/transactions", projectHandler.GetProjectTransactions)
	r.GET("/projects/:projectId/raised", projectHandler.GetProjectRaised)
	r.GET("/active-projects", projectHandler.GetActiveProjects)
	r.GET("/completed-projects", projectHandler.GetCompletedProjects)
	r.GET("/ended-projects", projectHandler.GetEndedProjects)
	r.GET("/project-stats", projectHandler.GetProjectStats)
	r.GET("/total-raised", projectHandler.GetTotalRaised)

	// 需要登录
	authed := r.Group("", d.Auth.Middleware())
	{
		authed.POST("/invest", auth.RequireRole(model.UserTypeInvestor), investHandler.Invest)
		authed.POST("/create-project", auth.RequireRole(model.UserTypeCreator), projectHandler.CreateProject)

		authed.GET("/myprojects", projectHandler.GetMyProjects)
		authed.GET("/other-projects", projectHandler.GetOtherProjects)
		authed.PUT("/projects/:projectId/mark-ended", projectHandler.MarkEnded)
		authed.PUT("/projects/:projectId/mark-completed",
			auth.RequireRole(model.UserTypeCreator, model.UserTypeAdmin), projectHandler.MarkCompleted)

		authed.GET("/wallet-balance", walletHandler.GetBalance)
		authed.GET("/my-transactions", walletHandler.GetMyTransactions)

		authed.GET("/notifications", notificationHandler.GetNotifications)
		authed.POST("/notifications/markAsRead", notificationHandler.MarkAsRead)
	}

	// 管理员
	admin := authed.Group("", auth.RequireRole(model.UserTypeAdmin))
	{
		admin.PUT("/projects/:projectId/approve", projectHandler.ApproveProject)
		admin.PUT("/projects/:projectId/reject", projectHandler.RejectProject)
		admin.DELETE("/projects/:projectId", projectHandler.DeleteProject)
		admin.PUT("/mark-ended", projectHandler.MarkExpired)
		admin.POST("/notifications", notificationHandler.SendNotification)
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
