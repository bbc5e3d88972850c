package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/tshetendev/Startup-Investment/internal/logger"
	"github.com/tshetendev/Startup-Investment/internal/metrics"
)

// Expirer 结束过期活动
type Expirer interface {
	MarkExpired(ctx context.Context, now time.Time) (int, error)
}

// CampaignExpiryJob 将超过结束时间的进行中活动标记为已结束
type CampaignExpiryJob struct {
	campaigns Expirer
	interval  time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewCampaignExpiryJob 创建活动过期任务
func NewCampaignExpiryJob(campaigns Expirer, interval time.Duration, m *metrics.Metrics) *CampaignExpiryJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CampaignExpiryJob{
		campaigns: campaigns,
		interval:  interval,
		metrics:   m,
		now:       time.Now,
	}
}

// GetName 获取任务名称
func (j *CampaignExpiryJob) GetName() string {
	return "campaign_expiry"
}

// GetSchedule 获取调度配置
func (j *CampaignExpiryJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *CampaignExpiryJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	n, err := j.campaigns.MarkExpired(ctx, j.now())
	j.metrics.CampaignsExpired(n)
	if err != nil {
		logger.Error("Campaign expiry sweep failed after %d campaigns: %v", n, err)
		return
	}
	logger.Debug("Campaign expiry sweep completed, ended %d campaigns", n)
}
