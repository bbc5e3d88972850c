package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tshetendev/Startup-Investment/internal/auth"
	"github.com/tshetendev/Startup-Investment/internal/config"
	"github.com/tshetendev/Startup-Investment/internal/database"
	"github.com/tshetendev/Startup-Investment/internal/event"
	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/logger"
	"github.com/tshetendev/Startup-Investment/internal/logic"
	"github.com/tshetendev/Startup-Investment/internal/metrics"
	"github.com/tshetendev/Startup-Investment/internal/router"
	"github.com/tshetendev/Startup-Investment/internal/scheduler"
)

func main() {
	// 加载配置
	cfg := config.Load()

	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	m := metrics.New()

	// 账本客户端，全局共享
	ledgerClient := ledger.NewClient(cfg.Ledger, ledger.WithMetrics(m))
	defer ledgerClient.Close()

	// 业务逻辑
	events := logic.NewEventLogic(db)
	txs := logic.NewTransactionLogic(db)
	campaigns := logic.NewCampaignLogic(db, txs, events)
	notifications := logic.NewNotificationLogic(db)
	recon := logic.NewReconcileLogic(db)
	users := logic.NewUserLogic(db)
	invest := logic.NewInvestLogic(db, ledgerClient, campaigns, txs, events, recon, m)

	// 发件箱分发
	var publisher event.Publisher
	if cfg.Kafka.Enabled {
		kp, err := event.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			logger.Fatal("Failed to create kafka publisher: %v", err)
		}
		publisher = kp
		logger.Info("Mirroring events to kafka topic %s", cfg.Kafka.Topic)
	}
	dispatcher, err := event.NewDispatcher(cfg.Outbox, events, notifications, publisher, m)
	if err != nil {
		logger.Fatal("Failed to create outbox dispatcher: %v", err)
	}
	dispatcher.Start()

	// 定时任务
	tasks, err := scheduler.NewManager(
		scheduler.NewCampaignExpiryJob(campaigns, cfg.Task.ExpiryInterval, m),
		scheduler.NewReconcileJob(invest, cfg.Task.ReconcileInterval, cfg.Task.ReconcileMaxAge, m),
	)
	if err != nil {
		logger.Fatal("Failed to create task manager: %v", err)
	}
	if err := tasks.Start(); err != nil {
		logger.Fatal("Failed to start task manager: %v", err)
	}

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(router.Deps{
		Auth:          auth.NewAuthenticator(cfg.Auth, users),
		Ledger:        ledgerClient,
		Campaigns:     campaigns,
		Transactions:  txs,
		Notifications: notifications,
		Invest:        invest,
		Metrics:       m,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// 先停止接收请求，再停止后台任务，进行中的结算可以完成落库
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Ledger.SettleTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
	tasks.Stop()
	dispatcher.Stop()

	logger.Info("Server exited")
}
