// Timeout operators for rxcore
// 基于选择器的超时操作符，用代数计数器仲裁数据与超时窗口之间的竞争
package rxcore

import (
	"math"
	"sync/atomic"
	"time"
)

// terminatedGeneration 代数计数器的终止值，任何比较交换都不会再成功
const terminatedGeneration = math.MaxUint64

// ============================================================================
// 超时操作符
// ============================================================================

// TimeoutWithSelector 基于选择器的超时。
// first 提供第一个窗口（为 nil 时不设第一个窗口），perItem 为每个数据项提供下一个窗口。
// 窗口发射值或完成即表示超时，此时以 *TimeoutError 终止。
func TimeoutWithSelector[T, U any](
	source Observable[T],
	first func() (Observable[U], error),
	perItem func(T) (Observable[U], error),
) Observable[T] {
	return timeoutWithSelector(source, first, perItem, nil)
}

// TimeoutWithSelectorOrElse 与 TimeoutWithSelector 相同，但超时后切换到 fallback
func TimeoutWithSelectorOrElse[T, U any](
	source Observable[T],
	first func() (Observable[U], error),
	perItem func(T) (Observable[U], error),
	fallback Observable[T],
) Observable[T] {
	return timeoutWithSelector(source, first, perItem, &fallback)
}

// Timeout 使用 any 类型窗口的 TimeoutWithSelector
func (o Observable[T]) Timeout(
	first func() (Observable[any], error),
	perItem func(T) (Observable[any], error),
) Observable[T] {
	return timeoutWithSelector(o, first, perItem, nil)
}

// TimeoutOrElse 使用 any 类型窗口的 TimeoutWithSelectorOrElse
func (o Observable[T]) TimeoutOrElse(
	first func() (Observable[any], error),
	perItem func(T) (Observable[any], error),
	fallback Observable[T],
) Observable[T] {
	return timeoutWithSelector(o, first, perItem, &fallback)
}

// TimeoutAfter 第一个数据项之前以及相邻数据项之间超过 d 没有数据时以 *TimeoutError 终止
func (o Observable[T]) TimeoutAfter(d time.Duration, scheduler Scheduler) Observable[T] {
	first, perItem := timerWindows[T](d, scheduler)
	return timeoutWithSelector(o, first, perItem, nil)
}

// TimeoutAfterOrElse 与 TimeoutAfter 相同，但超时后切换到 fallback
func (o Observable[T]) TimeoutAfterOrElse(d time.Duration, scheduler Scheduler, fallback Observable[T]) Observable[T] {
	first, perItem := timerWindows[T](d, scheduler)
	return timeoutWithSelector(o, first, perItem, &fallback)
}

func timerWindows[T any](d time.Duration, scheduler Scheduler) (func() (Observable[int64], error), func(T) (Observable[int64], error)) {
	first := func() (Observable[int64], error) {
		return Timer(d, scheduler), nil
	}
	perItem := func(T) (Observable[int64], error) {
		return Timer(d, scheduler), nil
	}
	return first, perItem
}

func timeoutWithSelector[T, U any](
	source Observable[T],
	first func() (Observable[U], error),
	perItem func(T) (Observable[U], error),
	fallback *Observable[T],
) Observable[T] {
	return Create(func(child *Subscriber[T]) {
		ts := &timeoutSubscriber[T, U]{
			child:    child,
			guard:    NewSerialSubscription(),
			perItem:  perItem,
			fallback: fallback,
		}
		child.Add(ts.guard)
		ts.upstream = NewSubscriber[T](ts)
		child.Add(ts.upstream)

		if first != nil && !ts.arm(0, first) {
			return
		}
		// 第一个窗口可能在订阅时就已经同步触发
		if ts.upstream.IsUnsubscribed() {
			return
		}
		source.unsafeSubscribe(ts.upstream)
	})
}

// ============================================================================
// 超时订阅者
// ============================================================================

// timeoutSubscriber 上游数据、上游终止、窗口信号三方竞争同一个代数计数器。
// 每条路径都必须在自己捕获的代数上比较交换成功才能影响下游，失败者静默丢弃。
type timeoutSubscriber[T, U any] struct {
	child      *Subscriber[T]
	upstream   *Subscriber[T]
	generation atomic.Uint64
	guard      *SerialSubscription
	perItem    func(T) (Observable[U], error)
	fallback   *Observable[T]
}

// OnNext 数据项赢得竞争后转发，并为新的代数重新设置窗口
func (ts *timeoutSubscriber[T, U]) OnNext(value T) {
	g := ts.generation.Load()
	if g == terminatedGeneration || !ts.generation.CompareAndSwap(g, g+1) {
		return
	}

	ts.child.OnNext(value)

	ts.guard.Set(nil)
	ts.arm(g+1, func() (Observable[U], error) {
		if ts.perItem == nil {
			return Never[U](), nil
		}
		return ts.perItem(value)
	})
}

// OnError 上游错误，未被超时抢先时转发
func (ts *timeoutSubscriber[T, U]) OnError(err error) {
	if ts.terminateCurrent() {
		ts.child.OnError(err)
	}
}

// OnCompleted 上游完成，未被超时抢先时转发
func (ts *timeoutSubscriber[T, U]) OnCompleted() {
	if ts.terminateCurrent() {
		ts.child.OnCompleted()
	}
}

// terminateCurrent 把当前代数推进到终止值
func (ts *timeoutSubscriber[T, U]) terminateCurrent() bool {
	for {
		g := ts.generation.Load()
		if g == terminatedGeneration {
			return false
		}
		if ts.generation.CompareAndSwap(g, terminatedGeneration) {
			ts.guard.Unsubscribe()
			return true
		}
	}
}

// arm 在代数 g 上调用选择器并订阅窗口；选择器失败时发出错误并返回 false
func (ts *timeoutSubscriber[T, U]) arm(g uint64, selector func() (Observable[U], error)) bool {
	window, err := callSelector(selector)
	if err != nil {
		ts.onWindowError(g, err)
		return false
	}
	ts.guard.Set(window.Subscribe(&timeoutWindow[T, U]{parent: ts, generation: g}))
	return true
}

// onTimeout 窗口在代数 g 上发出超时信号
func (ts *timeoutSubscriber[T, U]) onTimeout(g uint64) {
	if !ts.generation.CompareAndSwap(g, terminatedGeneration) {
		return
	}
	if ts.fallback == nil {
		ts.child.OnError(newTimeoutErrorAt(g))
		return
	}

	ts.upstream.Unsubscribe()
	ts.guard.Unsubscribe()
	ts.fallback.unsafeSubscribe(relayTo(ts.child))
}

// onWindowError 选择器或窗口在代数 g 上失败
func (ts *timeoutSubscriber[T, U]) onWindowError(g uint64, err error) {
	if ts.generation.CompareAndSwap(g, terminatedGeneration) {
		ts.child.OnError(err)
	}
}

// timeoutWindow 订阅窗口 Observable，把事件连同捕获的代数交给 timeoutSubscriber
type timeoutWindow[T, U any] struct {
	parent     *timeoutSubscriber[T, U]
	generation uint64
}

func (w *timeoutWindow[T, U]) OnNext(U) {
	w.parent.onTimeout(w.generation)
}

func (w *timeoutWindow[T, U]) OnError(err error) {
	w.parent.onWindowError(w.generation, err)
}

func (w *timeoutWindow[T, U]) OnCompleted() {
	w.parent.onTimeout(w.generation)
}

// callSelector 调用用户选择器，panic 转换为错误
func callSelector[U any](selector func() (Observable[U], error)) (window Observable[U], err error) {
	if perr := recoverAsError(func() { window, err = selector() }); perr != nil {
		return window, perr
	}
	return window, err
}
