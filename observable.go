// Observable implementation for rxcore
// Observable 核心实现：惰性、可重复订阅的生产者描述
package rxcore

// ============================================================================
// Observable 核心实现
// ============================================================================

// OnSubscribe 生产者函数，每次订阅都会重新调用
type OnSubscribe[T any] func(subscriber *Subscriber[T])

// Observable 不可变的值，持有生产者函数。
// 创建时不执行生产者；每次 Subscribe 都会重新执行（冷、单播、可重启）。
type Observable[T any] struct {
	onSubscribe OnSubscribe[T]
}

// Create 从生产者函数创建 Observable
func Create[T any](onSubscribe OnSubscribe[T]) Observable[T] {
	return Observable[T]{onSubscribe: onSubscribe}
}

// Subscribe 订阅观察者，返回可以取消的订阅。
// 若 observer 本身是 *Subscriber[T]，直接使用它。
func (o Observable[T]) Subscribe(observer Observer[T]) Subscription {
	subscriber, ok := observer.(*Subscriber[T])
	if !ok {
		subscriber = NewSubscriber(observer)
	}
	o.unsafeSubscribe(subscriber)
	return subscriber
}

// SubscribeWithCallbacks 使用回调函数订阅
func (o Observable[T]) SubscribeWithCallbacks(onNext func(T), onError func(error), onCompleted func()) Subscription {
	return o.Subscribe(ObserverFuncs[T]{
		Next:      onNext,
		Error:     onError,
		Completed: onCompleted,
	})
}

// unsafeSubscribe 执行生产者，生产者 panic 转换为 OnError
func (o Observable[T]) unsafeSubscribe(subscriber *Subscriber[T]) {
	if o.onSubscribe == nil {
		return
	}
	if err := recoverAsError(func() { o.onSubscribe(subscriber) }); err != nil {
		subscriber.OnError(err)
	}
}

// relayTo 创建把事件转发给 child 的订阅者，并挂在 child 上随之取消
func relayTo[T any](child *Subscriber[T]) *Subscriber[T] {
	inner := NewSubscriber[T](child)
	child.Add(inner)
	return inner
}

// AsAny 把 Observable[T] 转换为 Observable[any]
func AsAny[T any](o Observable[T]) Observable[any] {
	return Create(func(child *Subscriber[any]) {
		inner := NewSubscriber[T](ObserverFuncs[T]{
			Next:      func(v T) { child.OnNext(v) },
			Error:     child.OnError,
			Completed: child.OnCompleted,
		})
		child.Add(inner)
		o.unsafeSubscribe(inner)
	})
}
