// Subscriber implementation for rxcore
// 订阅者：持有资源集合，保证至多一次终止事件
package rxcore

import (
	"sync/atomic"
)

// ============================================================================
// Observer 观察者
// ============================================================================

// Observer 接收序列事件的消费端
type Observer[T any] interface {
	OnNext(value T)
	OnError(err error)
	OnCompleted()
}

// ObserverFuncs 用回调函数实现 Observer，nil 回调被忽略
type ObserverFuncs[T any] struct {
	Next      func(value T)
	Error     func(err error)
	Completed func()
}

// OnNext 处理下一个值
func (o ObserverFuncs[T]) OnNext(value T) {
	if o.Next != nil {
		o.Next(value)
	}
}

// OnError 处理错误
func (o ObserverFuncs[T]) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

// OnCompleted 处理完成
func (o ObserverFuncs[T]) OnCompleted() {
	if o.Completed != nil {
		o.Completed()
	}
}

// ============================================================================
// Subscriber 订阅者
// ============================================================================

// Subscriber 包装下游 Observer，强制执行发射协议：
// 第一个终止事件把状态从 Active 变为 Terminated，先同步取消 resources，
// 再把终止事件交给下游；之后的任何事件都被丢弃。
// 仅仅取消订阅不会产生终止事件。
type Subscriber[T any] struct {
	downstream Observer[T]
	resources  *CompositeSubscription
	terminated atomic.Bool
}

// NewSubscriber 创建包装 downstream 的订阅者
func NewSubscriber[T any](downstream Observer[T]) *Subscriber[T] {
	return newSubscriberWith(downstream, NewCompositeSubscription())
}

func newSubscriberWith[T any](downstream Observer[T], resources *CompositeSubscription) *Subscriber[T] {
	if downstream == nil {
		downstream = ObserverFuncs[T]{}
	}
	return &Subscriber[T]{downstream: downstream, resources: resources}
}

// OnNext 发送下一个值；下游 panic 会被转换为 OnError
func (s *Subscriber[T]) OnNext(value T) {
	if s.terminated.Load() {
		return
	}
	if err := recoverAsError(func() { s.downstream.OnNext(value) }); err != nil {
		s.OnError(err)
	}
}

// OnError 发送错误并终止
func (s *Subscriber[T]) OnError(err error) {
	if !s.terminate() {
		return
	}
	if perr := recoverAsError(func() { s.downstream.OnError(err) }); perr != nil {
		DefaultLogger().Error(perr, "OnError handler panicked", "cause", err)
	}
}

// OnCompleted 发送完成信号并终止
func (s *Subscriber[T]) OnCompleted() {
	if !s.terminate() {
		return
	}
	if err := recoverAsError(s.downstream.OnCompleted); err != nil {
		DefaultLogger().Error(err, "OnCompleted handler panicked")
	}
}

// terminate 抢占终止权并在交付终止事件之前取消资源
func (s *Subscriber[T]) terminate() bool {
	if !s.terminated.CompareAndSwap(false, true) {
		return false
	}
	if err := recoverAsError(s.resources.Unsubscribe); err != nil {
		DefaultLogger().Error(err, "releasing subscriber resources")
	}
	return true
}

// Add 把资源挂到订阅者上，随订阅者一起取消
func (s *Subscriber[T]) Add(sub Subscription) {
	s.resources.Add(sub)
}

// Remove 移除并取消资源
func (s *Subscriber[T]) Remove(sub Subscription) {
	s.resources.Remove(sub)
}

// Unsubscribe 取消订阅，不产生终止事件
func (s *Subscriber[T]) Unsubscribe() {
	s.resources.Unsubscribe()
}

// IsUnsubscribed 检查是否已取消订阅
func (s *Subscriber[T]) IsUnsubscribed() bool {
	return s.resources.IsUnsubscribed()
}

// IsTerminated 检查是否已收到终止事件
func (s *Subscriber[T]) IsTerminated() bool {
	return s.terminated.Load()
}
