// Virtual time scheduler for rxcore
// 测试调度器：手动推进的虚拟时间
package rxcore

import (
	"sort"
	"sync"
	"time"
)

// ============================================================================
// 测试调度器 - Test Scheduler
// ============================================================================

// TestScheduler 用于测试的调度器，只有在推进虚拟时间时才执行任务。
// 所有Worker共享同一条时间线，同一时刻的任务按提交顺序执行。
type TestScheduler struct {
	mu     sync.Mutex
	clock  time.Duration
	seq    uint64
	queue  []timedAction
	config *Config
}

// timedAction 调度在虚拟时间 due 的动作
type timedAction struct {
	due    time.Duration
	seq    uint64
	action *scheduledAction
	worker *testWorker
}

// NewTestScheduler 创建测试调度器
func NewTestScheduler(options ...Option) *TestScheduler {
	return &TestScheduler{config: newConfig(options)}
}

// CreateWorker 创建虚拟时间Worker
func (s *TestScheduler) CreateWorker() Worker {
	return &testWorker{
		workerBase: newWorkerBase(s.config, "test"),
		scheduler:  s,
	}
}

// Now 返回当前虚拟时间
func (s *TestScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// AdvanceTimeBy 推进时间
func (s *TestScheduler) AdvanceTimeBy(d time.Duration) {
	s.AdvanceTimeTo(s.Now() + d)
}

// AdvanceTimeTo 推进时间到指定时刻，执行期间新调度的到期任务也会被执行
func (s *TestScheduler) AdvanceTimeTo(target time.Duration) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.queue[0].due > target {
			if target > s.clock {
				s.clock = target
			}
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		if next.due > s.clock {
			s.clock = next.due
		}
		s.mu.Unlock()

		// 解锁以允许action执行时调度新任务
		next.worker.execute(next.action)
	}
}

// TriggerActions 执行所有在当前时间到期的任务
func (s *TestScheduler) TriggerActions() {
	s.AdvanceTimeTo(s.Now())
}

// Pending 返回尚未执行也未取消的任务数量
func (s *TestScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.queue {
		if !t.action.IsUnsubscribed() {
			n++
		}
	}
	return n
}

func (s *TestScheduler) enqueue(w *testWorker, a *scheduledAction, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.queue = append(s.queue, timedAction{due: s.clock + delay, seq: s.seq, action: a, worker: w})
	sort.SliceStable(s.queue, func(i, j int) bool {
		if s.queue[i].due == s.queue[j].due {
			return s.queue[i].seq < s.queue[j].seq
		}
		return s.queue[i].due < s.queue[j].due
	})
}

// testWorker 把任务放到测试调度器的时间线上
type testWorker struct {
	workerBase
	scheduler *TestScheduler
}

// Schedule 在当前虚拟时间调度任务
func (w *testWorker) Schedule(action func()) Subscription {
	return w.ScheduleAfter(action, 0)
}

// ScheduleAfter 在 Now()+delay 调度任务
func (w *testWorker) ScheduleAfter(action func(), delay time.Duration) Subscription {
	a := w.newAction(action)
	if !a.IsUnsubscribed() {
		w.scheduler.enqueue(w, a, delay)
	}
	return a
}

// Unsubscribe 取消所有待执行任务
func (w *testWorker) Unsubscribe() {
	w.pending.Unsubscribe()
}

// IsUnsubscribed 检查Worker是否已取消
func (w *testWorker) IsUnsubscribed() bool {
	return w.pending.IsUnsubscribed()
}
