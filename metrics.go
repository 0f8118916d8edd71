// Scheduler monitoring for rxcore
// 调度器性能监控，指标同时写入 OpenTelemetry 与本地快照
package rxcore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/xinjiayu/rxcore"

// ============================================================================
// 调度器性能监控
// ============================================================================

// SchedulerMetrics 调度器性能指标快照
type SchedulerMetrics struct {
	WorkersCreated int64
	TasksScheduled int64
	TasksCompleted int64
	TasksFailed    int64
	AverageLatency time.Duration
}

// MonitoredScheduler 带监控的调度器包装器
type MonitoredScheduler struct {
	scheduler Scheduler

	workers   atomic.Int64
	scheduled atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	latencyNs atomic.Int64

	scheduledCounter metric.Int64Counter
	completedCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
	latency          metric.Float64Histogram
}

// NewMonitoredScheduler 创建带监控的调度器，meter 为 nil 时只保留本地快照
func NewMonitoredScheduler(scheduler Scheduler, meter metric.Meter) (*MonitoredScheduler, error) {
	if meter == nil {
		meter = DefaultConfig().Meter
	}

	s := &MonitoredScheduler{scheduler: scheduler}

	var err error
	if s.scheduledCounter, err = meter.Int64Counter("rxcore.scheduler.tasks.scheduled",
		metric.WithDescription("Actions submitted to workers")); err != nil {
		return nil, errors.Wrap(err, "create scheduled counter")
	}
	if s.completedCounter, err = meter.Int64Counter("rxcore.scheduler.tasks.completed",
		metric.WithDescription("Actions that ran to completion")); err != nil {
		return nil, errors.Wrap(err, "create completed counter")
	}
	if s.failedCounter, err = meter.Int64Counter("rxcore.scheduler.tasks.failed",
		metric.WithDescription("Actions that panicked")); err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}
	if s.latency, err = meter.Float64Histogram("rxcore.scheduler.tasks.latency",
		metric.WithDescription("Time from submission to completion"),
		metric.WithUnit("ms")); err != nil {
		return nil, errors.Wrap(err, "create latency histogram")
	}

	return s, nil
}

// CreateWorker 创建带监控的Worker
func (s *MonitoredScheduler) CreateWorker() Worker {
	s.workers.Add(1)
	return &monitoredWorker{Worker: s.scheduler.CreateWorker(), parent: s}
}

// GetMetrics 获取调度器指标
func (s *MonitoredScheduler) GetMetrics() SchedulerMetrics {
	return SchedulerMetrics{
		WorkersCreated: s.workers.Load(),
		TasksScheduled: s.scheduled.Load(),
		TasksCompleted: s.completed.Load(),
		TasksFailed:    s.failed.Load(),
		AverageLatency: time.Duration(s.latencyNs.Load()),
	}
}

// updateAverageLatency 更新平均延迟
func (s *MonitoredScheduler) updateAverageLatency(latency time.Duration) {
	for {
		old := s.latencyNs.Load()
		next := int64(latency)
		// 简单的移动平均计算
		if old != 0 {
			next = (old + next) / 2
		}
		if s.latencyNs.CompareAndSwap(old, next) {
			return
		}
	}
}

// wrap 包装任务以记录指标；panic 继续向外抛给Worker的恢复逻辑
func (s *MonitoredScheduler) wrap(action func()) func() {
	s.scheduled.Add(1)
	s.scheduledCounter.Add(context.Background(), 1)

	startTime := time.Now()
	return func() {
		defer func() {
			latency := time.Since(startTime)
			s.updateAverageLatency(latency)
			s.latency.Record(context.Background(), float64(latency)/float64(time.Millisecond))

			if r := recover(); r != nil {
				s.failed.Add(1)
				s.failedCounter.Add(context.Background(), 1)
				panic(r)
			}
			s.completed.Add(1)
			s.completedCounter.Add(context.Background(), 1)
		}()

		action()
	}
}

// monitoredWorker 记录指标的Worker
type monitoredWorker struct {
	Worker
	parent *MonitoredScheduler
}

// Schedule 调度任务并记录指标
func (w *monitoredWorker) Schedule(action func()) Subscription {
	return w.Worker.Schedule(w.parent.wrap(action))
}

// ScheduleAfter 延迟调度任务并记录指标
func (w *monitoredWorker) ScheduleAfter(action func(), delay time.Duration) Subscription {
	return w.Worker.ScheduleAfter(w.parent.wrap(action), delay)
}
