// Subject implementations for rxcore
// 最小的 PublishSubject，只向当前订阅者发送新的值
package rxcore

import (
	"sync"
)

// ============================================================================
// PublishSubject - 发布主题
// ============================================================================

// PublishSubject 发布主题，既是 Observer 也可以作为 Observable 被订阅。
// 终止之后的订阅者会立即收到相同的终止事件。
type PublishSubject[T any] struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber[T]]struct{}
	terminated  bool
	err         error
}

// NewPublishSubject 创建新的发布主题
func NewPublishSubject[T any]() *PublishSubject[T] {
	return &PublishSubject[T]{
		subscribers: make(map[*Subscriber[T]]struct{}),
	}
}

// AsObservable 返回订阅该主题的 Observable
func (ps *PublishSubject[T]) AsObservable() Observable[T] {
	return Create(ps.subscribe)
}

// Subscribe 订阅观察者
func (ps *PublishSubject[T]) Subscribe(observer Observer[T]) Subscription {
	return ps.AsObservable().Subscribe(observer)
}

func (ps *PublishSubject[T]) subscribe(s *Subscriber[T]) {
	ps.mu.Lock()
	if ps.terminated {
		err := ps.err
		ps.mu.Unlock()
		// 如果已经完成或出错，立即通知观察者
		if err != nil {
			s.OnError(err)
		} else {
			s.OnCompleted()
		}
		return
	}
	ps.subscribers[s] = struct{}{}
	ps.mu.Unlock()

	s.Add(NewSubscription(func() {
		ps.mu.Lock()
		delete(ps.subscribers, s)
		ps.mu.Unlock()
	}))
}

// snapshot 复制当前订阅者，发射时不持锁
func (ps *PublishSubject[T]) snapshot() []*Subscriber[T] {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	subscribers := make([]*Subscriber[T], 0, len(ps.subscribers))
	for s := range ps.subscribers {
		subscribers = append(subscribers, s)
	}
	return subscribers
}

// OnNext 发送下一个值
func (ps *PublishSubject[T]) OnNext(value T) {
	ps.mu.RLock()
	done := ps.terminated
	ps.mu.RUnlock()
	if done {
		return
	}

	// 同步调用观察者以保证顺序和完整性
	for _, s := range ps.snapshot() {
		s.OnNext(value)
	}
}

// OnError 发送错误
func (ps *PublishSubject[T]) OnError(err error) {
	for _, s := range ps.terminate(err) {
		s.OnError(err)
	}
}

// OnCompleted 发送完成信号
func (ps *PublishSubject[T]) OnCompleted() {
	for _, s := range ps.terminate(nil) {
		s.OnCompleted()
	}
}

// terminate 标记终止并取走所有订阅者；已终止时返回 nil
func (ps *PublishSubject[T]) terminate(err error) []*Subscriber[T] {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.terminated {
		return nil
	}
	ps.terminated = true
	ps.err = err

	subscribers := make([]*Subscriber[T], 0, len(ps.subscribers))
	for s := range ps.subscribers {
		subscribers = append(subscribers, s)
	}
	ps.subscribers = make(map[*Subscriber[T]]struct{})
	return subscribers
}

// HasObservers 检查是否有观察者
func (ps *PublishSubject[T]) HasObservers() bool {
	return ps.ObserverCount() > 0
}

// ObserverCount 获取观察者数量
func (ps *PublishSubject[T]) ObserverCount() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers)
}
