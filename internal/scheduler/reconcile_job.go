package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/tshetendev/Startup-Investment/internal/logger"
	"github.com/tshetendev/Startup-Investment/internal/logic"
	"github.com/tshetendev/Startup-Investment/internal/metrics"
)

const reconcileBatch = 50

// Reconciler 处理待对账记录
type Reconciler interface {
	Reconcile(ctx context.Context, limit int, maxAge time.Duration) (logic.ReconcileSummary, error)
}

// ReconcileJob 对账任务，补全结果不明或落库失败的支付
type ReconcileJob struct {
	reconciler Reconciler
	interval   time.Duration
	maxAge     time.Duration
	metrics    *metrics.Metrics
}

// NewReconcileJob 创建对账任务
func NewReconcileJob(reconciler Reconciler, interval, maxAge time.Duration, m *metrics.Metrics) *ReconcileJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &ReconcileJob{
		reconciler: reconciler,
		interval:   interval,
		maxAge:     maxAge,
		metrics:    m,
	}
}

// GetName 获取任务名称
func (j *ReconcileJob) GetName() string {
	return "payment_reconcile"
}

// GetSchedule 获取调度配置
func (j *ReconcileJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *ReconcileJob) Execute() {
	// 单次对账可能包含多次账本查询
	ctx, cancel := context.WithTimeout(context.Background(), 4*j.interval)
	defer cancel()

	summary, err := j.reconciler.Reconcile(ctx, reconcileBatch, j.maxAge)
	j.record(summary)
	if err != nil {
		logger.Error("Reconciliation failed: %v", err)
		return
	}
	if summary.Resolved+summary.Failed+summary.Abandoned+summary.Orphaned > 0 {
		logger.Info("Reconciliation completed (resolved: %d, failed: %d, pending: %d, abandoned: %d, orphaned: %d)",
			summary.Resolved, summary.Failed, summary.Pending, summary.Abandoned, summary.Orphaned)
	}
}

// record 对账结果只在这里计数
func (j *ReconcileJob) record(s logic.ReconcileSummary) {
	for outcome, n := range map[string]int{
		"resolved":  s.Resolved,
		"failed":    s.Failed,
		"pending":   s.Pending,
		"abandoned": s.Abandoned,
		"orphaned":  s.Orphaned,
	} {
		for i := 0; i < n; i++ {
			j.metrics.Reconcile(outcome)
		}
	}
}
