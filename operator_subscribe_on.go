// SubscribeOn operator for rxcore
// SubscribeOn：把生产者的执行和取消都转移到调度器的 Worker 上
package rxcore

// ============================================================================
// SubscribeOn 操作符
// ============================================================================

// SubscribeOn 指定订阅时使用的调度器。
//
// Subscribe 立即返回，生产者在 Worker 上执行。生产者通过 Add 登记的清理动作
// 同样投递到该 Worker 执行，而不是在调用 Unsubscribe 的 goroutine 上执行；
// 生产者看到的 IsUnsubscribed 在外部取消后立即为 true。
// 在生产者开始之前取消订阅，生产者不会执行。
// Worker 在清理动作执行后才释放：生产者永久阻塞且不检查 IsUnsubscribed 时，
// 取消之后 Worker（新线程调度器上即其goroutine）会一直被占用。
func (o Observable[T]) SubscribeOn(scheduler Scheduler) Observable[T] {
	return Create(func(child *Subscriber[T]) {
		worker := scheduler.CreateWorker()

		// 清理在Worker上执行完之后才释放Worker，
		// 所以Worker不直接挂在child上，而是随inner的清理一起释放
		inner := newSubscriberWith[T](child, newDispatchedComposite(func(cleanup func()) {
			worker.Schedule(func() {
				defer worker.Unsubscribe()
				cleanup()
			})
		}))
		child.Add(inner)

		worker.Schedule(func() {
			if inner.IsUnsubscribed() {
				return
			}
			o.unsafeSubscribe(inner)
		})
	})
}
