// Factory functions for rxcore
// 工厂函数，提供符合Go习惯的API设计
package rxcore

import (
	"time"
)

// ============================================================================
// 基础工厂函数
// ============================================================================

// Just 从给定的值创建Observable，在订阅的goroutine上同步发射
func Just[T any](values ...T) Observable[T] {
	return FromSlice(values)
}

// FromSlice 从切片创建Observable，取消订阅后停止发射
func FromSlice[T any](slice []T) Observable[T] {
	return Create(func(s *Subscriber[T]) {
		for _, value := range slice {
			if s.IsUnsubscribed() {
				return
			}
			s.OnNext(value)
		}
		if !s.IsUnsubscribed() {
			s.OnCompleted()
		}
	})
}

// Empty 创建一个空的Observable，立即完成
func Empty[T any]() Observable[T] {
	return Create(func(s *Subscriber[T]) {
		s.OnCompleted()
	})
}

// Never 创建一个永不发射任何值的Observable
func Never[T any]() Observable[T] {
	return Create(func(s *Subscriber[T]) {})
}

// Error 创建一个立即发射错误的Observable
func Error[T any](err error) Observable[T] {
	return Create(func(s *Subscriber[T]) {
		s.OnError(err)
	})
}

// ============================================================================
// 时间相关
// ============================================================================

// Timer 在 delay 之后于 scheduler 的 Worker 上发射 0 并完成
func Timer(delay time.Duration, scheduler Scheduler) Observable[int64] {
	return Create(func(s *Subscriber[int64]) {
		worker := scheduler.CreateWorker()
		s.Add(worker)
		worker.ScheduleAfter(func() {
			s.OnNext(0)
			s.OnCompleted()
		}, delay)
	})
}

// Interval 每隔 period 于 scheduler 的 Worker 上发射递增的序号，直到取消
func Interval(period time.Duration, scheduler Scheduler) Observable[int64] {
	return Create(func(s *Subscriber[int64]) {
		worker := scheduler.CreateWorker()
		s.Add(worker)
		var counter int64
		s.Add(SchedulePeriodically(worker, func() {
			s.OnNext(counter)
			counter++
		}, period, period))
	})
}
