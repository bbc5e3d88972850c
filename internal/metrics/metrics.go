package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crowdfunding"

// Metrics 服务指标，所有方法对nil接收者安全
type Metrics struct {
	registry *prometheus.Registry

	investTotal     *prometheus.CounterVec
	ledgerDuration  *prometheus.HistogramVec
	outboxTotal     *prometheus.CounterVec
	reconcileTotal  *prometheus.CounterVec
	campaignExpired prometheus.Counter
}

// New 创建并注册指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		investTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invest_total",
			Help:      "Investment requests by outcome reason.",
		}, []string{"reason"}),
		ledgerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_call_duration_seconds",
			Help:      "Ledger call latency by operation and result.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"op", "result"}),
		outboxTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_dispatch_total",
			Help:      "Outbox events dispatched by type and result.",
		}, []string{"event_type", "result"}),
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Reconciliation attempts by result.",
		}, []string{"result"}),
		campaignExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_expired_total",
			Help:      "Campaigns moved to ended by the expiry sweep.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.investTotal,
		m.ledgerDuration,
		m.outboxTotal,
		m.reconcileTotal,
		m.campaignExpired,
	)
	return m
}

// Registry 指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InvestResult 投资结果，reason为空表示成功
func (m *Metrics) InvestResult(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "OK"
	}
	m.investTotal.WithLabelValues(reason).Inc()
}

// LedgerCall 账本调用耗时
func (m *Metrics) LedgerCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ledgerDuration.WithLabelValues(op, result(err)).Observe(d.Seconds())
}

// OutboxDispatch 发件箱分发结果
func (m *Metrics) OutboxDispatch(eventType string, err error) {
	if m == nil {
		return
	}
	m.outboxTotal.WithLabelValues(eventType, result(err)).Inc()
}

// Reconcile 对账结果
func (m *Metrics) Reconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(outcome).Inc()
}

// CampaignsExpired 到期活动数
func (m *Metrics) CampaignsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.campaignExpired.Add(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
