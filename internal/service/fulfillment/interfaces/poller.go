package interfaces

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"digital-fulfillment/internal/pkg/lock"
	"digital-fulfillment/internal/pkg/logger"
	"digital-fulfillment/internal/pkg/metrics"
	"digital-fulfillment/internal/service/fulfillment/application"
)

// Runner 是 Poller 驱动的应用服务
type Runner interface {
	RunOnce(ctx context.Context) (*application.PollReport, error)
	InspectInventory(ctx context.Context) (*application.InventorySnapshot, error)
}

// PollStatus 是最近一次轮询的状态，供健康检查读取
type PollStatus struct {
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Received  int       `json:"received"`
	Skipped   bool      `json:"skipped,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Poller 按固定间隔驱动轮询，间隔与单次轮询耗时无关。
// 任何 error 或 panic 都只影响当前这一轮。
type Poller struct {
	runner   Runner
	locker   lock.Locker
	interval time.Duration
	metrics  *metrics.Collector
	now      func() time.Time

	mu   sync.RWMutex
	last PollStatus
	runs int
}

func NewPoller(runner Runner, locker lock.Locker, interval time.Duration, collector *metrics.Collector) *Poller {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Poller{runner: runner, locker: locker, interval: interval, metrics: collector, now: time.Now}
}

// Start 立即执行第一轮，然后每个 interval 执行一次，直到 ctx 被取消。
func (p *Poller) Start(ctx context.Context) error {
	logger.Ctx(ctx).Info().Dur("interval", p.interval).Msg("Polling scheduler started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			p.Tick(ctx)
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("Shutting down polling scheduler")
			return nil
		}
	}
}

// Tick 执行一轮受保护的轮询：获取租约、拉单处理、刷新库存指标。
func (p *Poller) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runID := uuid.NewString()
	ctx = application.WithRunID(ctx, runID)
	ctx = logger.WithContext(ctx, map[string]string{"run_id": runID})
	status := PollStatus{RunID: runID, StartedAt: p.now().UTC()}
	defer func() { p.setStatus(status) }()

	acquired, err := p.locker.TryLock(ctx)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("Failed to acquire instance lease, skipping poll")
		status.Skipped, status.Error = true, err.Error()
		return
	}
	if !acquired {
		logger.Ctx(ctx).Warn().Msg("Instance lease held by another worker, skipping poll")
		status.Skipped = true
		return
	}
	defer func() {
		if err := p.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("Failed to release instance lease")
		}
	}()

	report, err := p.runSafely(ctx)
	if err != nil {
		p.metrics.PollFailed()
		logger.Ctx(ctx).Error().Err(err).Msg("Poll failed, retrying on next tick")
		status.Error = err.Error()
	} else {
		status.Received = report.Received
		status.Duration = report.Duration.String()
		p.metrics.ObservePoll(report.Duration, report.Received)
	}

	if _, err := p.inspectSafely(ctx); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("Failed to inspect inventory")
	}
}

func (p *Poller) runSafely(ctx context.Context) (report *application.PollReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during poll: %v", r)
		}
	}()
	return p.runner.RunOnce(ctx)
}

func (p *Poller) inspectSafely(ctx context.Context) (snapshot *application.InventorySnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during inventory inspection: %v", r)
		}
	}()
	return p.runner.InspectInventory(ctx)
}

func (p *Poller) setStatus(s PollStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = s
	p.runs++
}

// LastStatus 返回最近一次轮询的状态和累计轮询次数
func (p *Poller) LastStatus() (PollStatus, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.runs
}
