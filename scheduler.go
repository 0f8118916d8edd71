// Scheduler implementations for rxcore
// 实现调度器系统，支持不同的执行策略
package rxcore

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/semaphore"
)

// ============================================================================
// 调度器接口
// ============================================================================

// Scheduler 调度器接口，是 Worker 的工厂
type Scheduler interface {
	// CreateWorker 创建一个新的 Worker
	CreateWorker() Worker
}

// Worker 串行执行提交给它的任务：同一个 Worker 上的任务按提交顺序逐个执行，
// 不同 Worker 之间可以并发。取消 Worker 会取消它所有尚未执行的任务。
type Worker interface {
	Subscription

	// Schedule 调度一个任务。在任务执行前取消返回的订阅会阻止执行；
	// 执行过程中取消不会中断正在运行的任务。
	Schedule(action func()) Subscription

	// ScheduleAfter 延迟调度一个任务，到期后按串行顺序进入执行队列
	ScheduleAfter(action func(), delay time.Duration) Subscription

	// UnscheduleAll 取消所有尚未执行的任务，Worker 仍可继续使用
	UnscheduleAll()
}

// ============================================================================
// 调度的任务
// ============================================================================

// scheduledAction 一次调度，运行与取消二者只有一个会成功
type scheduledAction struct {
	action  func()
	claimed atomic.Bool
	timer   atomic.Pointer[time.Timer]
	owner   *CompositeSubscription
}

// Unsubscribe 取消任务
func (a *scheduledAction) Unsubscribe() {
	if !a.claimed.CompareAndSwap(false, true) {
		return
	}
	if t := a.timer.Load(); t != nil {
		t.Stop()
	}
	a.owner.detach(a)
}

// IsUnsubscribed 任务已被取消或已开始执行
func (a *scheduledAction) IsUnsubscribed() bool {
	return a.claimed.Load()
}

func (a *scheduledAction) setTimer(t *time.Timer) {
	a.timer.Store(t)
	if a.claimed.Load() {
		t.Stop()
	}
}

// claim 抢占执行权，成功后任务不再可被取消
func (a *scheduledAction) claim() bool {
	if !a.claimed.CompareAndSwap(false, true) {
		return false
	}
	a.owner.detach(a)
	return true
}

// actionQueue 任务队列，draining 标记是否已有 goroutine 在消费
type actionQueue struct {
	mu       sync.Mutex
	items    []*scheduledAction
	draining bool
}

// push 入队，返回调用方是否需要开始消费
func (q *actionQueue) push(a *scheduledAction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, a)
	if q.draining {
		return false
	}
	q.draining = true
	return true
}

// next 出队，队列为空时结束本轮消费并返回 nil
func (q *actionQueue) next() *scheduledAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.draining = false
		return nil
	}
	a := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return a
}

func (q *actionQueue) clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// workerBase Worker 的公共部分：待执行任务集合与panic恢复
type workerBase struct {
	id      string
	logger  logr.Logger
	pending *CompositeSubscription
}

func newWorkerBase(config *Config, kind string) workerBase {
	id := config.WorkerID()
	return workerBase{
		id:      id,
		logger:  config.Logger.WithValues("worker", id, "kind", kind),
		pending: NewCompositeSubscription(),
	}
}

// newAction 创建任务并登记到待执行集合；Worker 已取消时返回已取消的任务
func (w *workerBase) newAction(action func()) *scheduledAction {
	a := &scheduledAction{action: action, owner: w.pending}
	w.pending.Add(a)
	return a
}

// execute 执行任务，panic 被恢复并记录，不会逃出调度循环
func (w *workerBase) execute(a *scheduledAction) {
	if !a.claim() {
		return
	}
	if err := recoverAsError(a.action); err != nil {
		w.logger.Error(err, "scheduled action panicked")
	}
}

// UnscheduleAll 取消所有尚未执行的任务
func (w *workerBase) UnscheduleAll() {
	w.pending.Clear()
}

// ============================================================================
// 立即调度器 - Immediate Scheduler
// ============================================================================

// immediateScheduler 立即在当前goroutine中执行任务
type immediateScheduler struct {
	config *Config
}

// NewImmediateScheduler 创建立即调度器
func NewImmediateScheduler(options ...Option) Scheduler {
	return &immediateScheduler{config: newConfig(options)}
}

// CreateWorker 创建立即执行的 Worker
func (s *immediateScheduler) CreateWorker() Worker {
	return &immediateWorker{workerBase: newWorkerBase(s.config, "immediate")}
}

type immediateWorker struct {
	workerBase
}

// Schedule 立即执行任务
func (w *immediateWorker) Schedule(action func()) Subscription {
	a := w.newAction(action)
	w.execute(a)
	return a
}

// ScheduleAfter 在调用方goroutine中等待 delay 后执行
func (w *immediateWorker) ScheduleAfter(action func(), delay time.Duration) Subscription {
	if delay > 0 {
		time.Sleep(delay)
	}
	return w.Schedule(action)
}

// Unsubscribe 取消Worker
func (w *immediateWorker) Unsubscribe() {
	w.pending.Unsubscribe()
}

// IsUnsubscribed 检查Worker是否已取消
func (w *immediateWorker) IsUnsubscribed() bool {
	return w.pending.IsUnsubscribed()
}

// ============================================================================
// 当前线程调度器 - Current Thread Scheduler
// ============================================================================

// currentThreadScheduler 在调用Schedule的goroutine中按顺序执行任务（trampoline）
type currentThreadScheduler struct {
	config *Config
}

// NewCurrentThreadScheduler 创建当前线程调度器
func NewCurrentThreadScheduler(options ...Option) Scheduler {
	return &currentThreadScheduler{config: newConfig(options)}
}

// CreateWorker 创建trampoline Worker
func (s *currentThreadScheduler) CreateWorker() Worker {
	return &trampolineWorker{workerBase: newWorkerBase(s.config, "trampoline")}
}

// trampolineWorker 第一个调度者负责消费队列，重入的调度只入队
type trampolineWorker struct {
	workerBase
	queue actionQueue
}

// Schedule 在当前goroutine中调度任务
func (w *trampolineWorker) Schedule(action func()) Subscription {
	a := w.newAction(action)
	if a.IsUnsubscribed() {
		return a
	}
	if w.queue.push(a) {
		for next := w.queue.next(); next != nil; next = w.queue.next() {
			w.execute(next)
		}
	}
	return a
}

// ScheduleAfter 在调用方goroutine中等待 delay 后调度
func (w *trampolineWorker) ScheduleAfter(action func(), delay time.Duration) Subscription {
	if delay > 0 {
		time.Sleep(delay)
	}
	return w.Schedule(action)
}

// Unsubscribe 取消Worker
func (w *trampolineWorker) Unsubscribe() {
	w.pending.Unsubscribe()
	w.queue.clear()
}

// IsUnsubscribed 检查Worker是否已取消
func (w *trampolineWorker) IsUnsubscribed() bool {
	return w.pending.IsUnsubscribed()
}

// ============================================================================
// 新线程调度器 - New Thread Scheduler
// ============================================================================

// newThreadScheduler 为每个Worker创建一个专属的goroutine
type newThreadScheduler struct {
	config *Config
}

// NewNewThreadScheduler 创建新线程调度器
func NewNewThreadScheduler(options ...Option) Scheduler {
	return &newThreadScheduler{config: newConfig(options)}
}

// CreateWorker 创建Worker并启动其专属goroutine
func (s *newThreadScheduler) CreateWorker() Worker {
	w := &newThreadWorker{
		workerBase: newWorkerBase(s.config, "new-thread"),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go w.loop()
	return w
}

// newThreadWorker 整个生命周期内只在一个goroutine上执行任务
type newThreadWorker struct {
	workerBase
	queue  actionQueue
	wake   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// Schedule 将任务投递到专属goroutine
func (w *newThreadWorker) Schedule(action func()) Subscription {
	a := w.newAction(action)
	if !a.IsUnsubscribed() {
		w.enqueue(a)
	}
	return a
}

// ScheduleAfter 到期后将任务投递到专属goroutine
func (w *newThreadWorker) ScheduleAfter(action func(), delay time.Duration) Subscription {
	if delay <= 0 {
		return w.Schedule(action)
	}
	a := w.newAction(action)
	if !a.IsUnsubscribed() {
		a.setTimer(time.AfterFunc(delay, func() { w.enqueue(a) }))
	}
	return a
}

func (w *newThreadWorker) enqueue(a *scheduledAction) {
	if w.closed.Load() {
		return
	}
	w.queue.push(a)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// loop 专属goroutine的执行循环
func (w *newThreadWorker) loop() {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}
		for next := w.queue.next(); next != nil; next = w.queue.next() {
			if w.closed.Load() {
				break
			}
			w.execute(next)
		}
	}
}

// Unsubscribe 取消所有待执行任务并结束专属goroutine。
// 可以在Worker自己的任务中调用，当前任务会执行完毕。
func (w *newThreadWorker) Unsubscribe() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	close(w.done)
	w.pending.Unsubscribe()
	w.queue.clear()
}

// IsUnsubscribed 检查Worker是否已取消
func (w *newThreadWorker) IsUnsubscribed() bool {
	return w.closed.Load()
}

// ============================================================================
// 线程池调度器 - Thread Pool Scheduler
// ============================================================================

// threadPoolScheduler 所有Worker共享一个有界的goroutine池（计算调度器）
type threadPoolScheduler struct {
	config *Config
	slots  *semaphore.Weighted
	size   int
}

// NewThreadPoolScheduler 创建线程池调度器，workers<=0 时使用CPU核数
func NewThreadPoolScheduler(workers int, options ...Option) Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &threadPoolScheduler{
		config: newConfig(options),
		slots:  semaphore.NewWeighted(int64(workers)),
		size:   workers,
	}
}

// Size 返回池的大小
func (s *threadPoolScheduler) Size() int {
	return s.size
}

// CreateWorker 创建共享线程池的Worker
func (s *threadPoolScheduler) CreateWorker() Worker {
	return &poolWorker{
		workerBase: newWorkerBase(s.config, "pool"),
		slots:      s.slots,
	}
}

// poolWorker 在池中借用goroutine消费自己的队列，同一时刻至多一个消费者
type poolWorker struct {
	workerBase
	queue  actionQueue
	slots  *semaphore.Weighted
	closed atomic.Bool
}

// Schedule 在线程池中执行任务
func (w *poolWorker) Schedule(action func()) Subscription {
	a := w.newAction(action)
	if !a.IsUnsubscribed() {
		w.enqueue(a)
	}
	return a
}

// ScheduleAfter 延迟在线程池中执行任务
func (w *poolWorker) ScheduleAfter(action func(), delay time.Duration) Subscription {
	if delay <= 0 {
		return w.Schedule(action)
	}
	a := w.newAction(action)
	if !a.IsUnsubscribed() {
		a.setTimer(time.AfterFunc(delay, func() { w.enqueue(a) }))
	}
	return a
}

func (w *poolWorker) enqueue(a *scheduledAction) {
	if w.closed.Load() {
		return
	}
	if w.queue.push(a) {
		go w.drain()
	}
}

// drain 占用一个池位置，消费队列直到为空
func (w *poolWorker) drain() {
	if err := w.slots.Acquire(context.Background(), 1); err != nil {
		w.logger.Error(err, "acquire pool slot")
		return
	}
	defer w.slots.Release(1)

	for next := w.queue.next(); next != nil; next = w.queue.next() {
		w.execute(next)
	}
}

// Unsubscribe 取消所有待执行任务
func (w *poolWorker) Unsubscribe() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	w.pending.Unsubscribe()
	w.queue.clear()
}

// IsUnsubscribed 检查Worker是否已取消
func (w *poolWorker) IsUnsubscribed() bool {
	return w.closed.Load()
}

// ============================================================================
// 调度器辅助函数
// ============================================================================

// SchedulePeriodically 周期调度任务。取消返回的订阅后不再安排新的执行。
// 不适用于立即调度器。
func SchedulePeriodically(w Worker, action func(), initialDelay, period time.Duration) Subscription {
	serial := NewSerialSubscription()

	var tick func()
	tick = func() {
		if serial.IsUnsubscribed() {
			return
		}
		action()
		serial.Set(w.ScheduleAfter(tick, period))
	}

	serial.Set(w.ScheduleAfter(tick, initialDelay))
	return serial
}

// ScheduleWithContext 带上下文调度任务，ctx 结束时取消尚未执行的任务
func ScheduleWithContext(ctx context.Context, w Worker, action func()) Subscription {
	sub := w.Schedule(func() {
		if ctx.Err() != nil {
			return
		}
		action()
	})
	stop := context.AfterFunc(ctx, sub.Unsubscribe)

	return NewSubscription(func() {
		stop()
		sub.Unsubscribe()
	})
}
