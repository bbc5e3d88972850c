package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/tshetendev/Startup-Investment/internal/config"
	"github.com/tshetendev/Startup-Investment/internal/logger"
	"github.com/tshetendev/Startup-Investment/internal/metrics"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

// Store 发件箱存储
type Store interface {
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]model.EventModel, error)
	MarkProcessed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, cause error) error
	OnEnqueue(fn func())
}

// Sink 通知落地
type Sink interface {
	AppendForEvent(ctx context.Context, eventId int64, address, message string) error
}

// Dispatcher 发件箱分发器，至少一次投递
type Dispatcher struct {
	cfg       config.OutboxConfig
	store     Store
	sink      Sink
	publisher Publisher
	metrics   *metrics.Metrics

	pool *ants.Pool
	wake chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// 同一时间只有一轮分发
	drainMu sync.Mutex
}

// NewDispatcher 创建分发器，publisher 可以为 nil
func NewDispatcher(cfg config.OutboxConfig, store Store, sink Sink, publisher Publisher, m *metrics.Metrics) (*Dispatcher, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}

	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:       cfg,
		store:     store,
		sink:      sink,
		publisher: publisher,
		metrics:   m,
		pool:      pool,
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start 启动分发循环
func (d *Dispatcher) Start() {
	logger.Info("Starting outbox dispatcher (pool: %d, interval: %s)", d.cfg.PoolSize, d.cfg.Interval)
	d.store.OnEnqueue(d.Wake)
	d.wg.Add(1)
	go d.loop()
}

// Stop 停止分发，等待进行中的任务完成
func (d *Dispatcher) Stop() {
	logger.Info("Stopping outbox dispatcher")
	d.store.OnEnqueue(nil)
	d.cancel()
	d.wg.Wait()
	d.pool.Release()
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			logger.Warn("Failed to close event publisher: %v", err)
		}
	}
}

// Wake 有新事件时提前触发一轮分发
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			logger.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
		case <-d.wake:
		}
		if _, err := d.DrainOnce(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Outbox dispatch failed: %v", err)
		}
	}
}

// DrainOnce 处理一批待发送事件，返回成功处理的数量
//
// 同一活动的事件在一个任务中按顺序处理，不同活动并行
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	d.drainMu.Lock()
	defer d.drainMu.Unlock()

	events, err := d.store.FetchPending(ctx, d.cfg.BatchSize, d.cfg.MaxAttempts)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	logger.Debug("Dispatching %d outbox events", len(events))

	// 按活动分组
	groups := make(map[string][]*model.EventModel)
	order := make([]string, 0)
	for i := range events {
		ev := &events[i]
		if _, ok := groups[ev.CampaignId]; !ok {
			order = append(order, ev.CampaignId)
		}
		groups[ev.CampaignId] = append(groups[ev.CampaignId], ev)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for _, campaignId := range order {
		group := groups[campaignId]
		wg.Add(1)
		err := d.pool.Submit(func() {
			defer wg.Done()
			n := d.dispatchGroup(ctx, group)
			mu.Lock()
			done += n
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit outbox task for campaign %s: %v", campaignId, err)
		}
	}
	wg.Wait()
	return done, nil
}

// dispatchGroup 顺序处理，前一个失败时后续事件留到下一轮，保证顺序
func (d *Dispatcher) dispatchGroup(ctx context.Context, group []*model.EventModel) int {
	done := 0
	for _, ev := range group {
		err := d.dispatch(ctx, ev)
		d.metrics.OutboxDispatch(string(ev.EventType), err)
		if err != nil {
			logger.Warn("Outbox event %d (%s) failed, attempt %d: %v", ev.Id, ev.EventType, ev.Attempts+1, err)
			if merr := d.store.MarkFailed(ctx, ev.Id, err); merr != nil {
				logger.Error("Failed to record outbox failure of event %d: %v", ev.Id, merr)
			}
			if d.cfg.MaxAttempts > 0 && ev.Attempts+1 >= d.cfg.MaxAttempts {
				logger.Error("Outbox event %d (%s) exceeded %d attempts and will not be retried", ev.Id, ev.EventType, d.cfg.MaxAttempts)
				continue
			}
			return done
		}
		if err := d.store.MarkProcessed(ctx, ev.Id); err != nil {
			logger.Error("Failed to mark outbox event %d processed: %v", ev.Id, err)
			return done
		}
		done++
	}
	return done
}

// dispatch 写入通知并对外发布，通知写入是幂等的
func (d *Dispatcher) dispatch(ctx context.Context, ev *model.EventModel) error {
	messages, err := Render(ev)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		if msg.Address == "" {
			continue
		}
		if err := d.sink.AppendForEvent(ctx, ev.Id, msg.Address, msg.Text); err != nil {
			return fmt.Errorf("append notification for %s: %w", msg.Address, err)
		}
	}
	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
