package rxcore

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeOnRunsProducerOnWorker(t *testing.T) {
	caller := goroutineID()
	var producer, cleanupOn atomic.Uint64
	cleaned := make(chan struct{})

	source := Create(func(s *Subscriber[int]) {
		producer.Store(goroutineID())
		s.Add(NewSubscription(func() {
			cleanupOn.Store(goroutineID())
			close(cleaned)
		}))
		s.OnNext(1)
		s.OnNext(2)
		s.OnCompleted()
	})

	observer := newRecordingObserver[int]()
	source.SubscribeOn(NewNewThreadScheduler()).Subscribe(observer)
	observer.awaitTerminal(t, time.Second)
	await(t, cleaned, time.Second)

	assert.Equal(t, []int{1, 2}, observer.Values())
	assert.Equal(t, 1, observer.Completions())
	assert.NotEqual(t, caller, producer.Load(), "生产者不能在订阅的goroutine上执行")
	assert.Equal(t, producer.Load(), cleanupOn.Load(), "清理动作与生产者在同一个goroutine上执行")
}

// 外部取消时，生产者登记的清理动作在生产者所在的goroutine上执行
func TestSubscribeOnUnsubscribeRunsCleanupOnProducerGoroutine(t *testing.T) {
	for range 50 {
		caller := goroutineID()
		var producer, cleanupOn atomic.Uint64
		started := make(chan struct{})
		cleaned := make(chan struct{})

		sub := Create(func(s *Subscriber[int]) {
			producer.Store(goroutineID())
			s.Add(NewSubscription(func() {
				cleanupOn.Store(goroutineID())
				close(cleaned)
			}))
			close(started)
		}).SubscribeOn(NewNewThreadScheduler()).Subscribe(newRecordingObserver[int]())

		await(t, started, time.Second)
		sub.Unsubscribe()
		await(t, cleaned, time.Second)

		require.NotEqual(t, caller, cleanupOn.Load(), "清理动作不能在调用 Unsubscribe 的goroutine上执行")
		require.Equal(t, producer.Load(), cleanupOn.Load())
	}
}

func TestSubscribeOnReturnsBeforeProducerRuns(t *testing.T) {
	scheduler := NewTestScheduler()
	var ran atomic.Bool

	observer := newRecordingObserver[int]()
	Create(func(s *Subscriber[int]) {
		ran.Store(true)
		s.OnCompleted()
	}).SubscribeOn(scheduler).Subscribe(observer)

	assert.False(t, ran.Load(), "Subscribe 必须在生产者执行前返回")
	assert.Equal(t, 1, scheduler.Pending())

	scheduler.TriggerActions()
	assert.True(t, ran.Load())
	assert.Equal(t, 1, observer.Completions())
}

func TestSubscribeOnCancelBeforeRunSkipsProducer(t *testing.T) {
	scheduler := NewTestScheduler()
	var ran atomic.Bool

	observer := newRecordingObserver[int]()
	sub := Create(func(s *Subscriber[int]) {
		ran.Store(true)
		s.OnNext(1)
	}).SubscribeOn(scheduler).Subscribe(observer)

	sub.Unsubscribe()
	scheduler.TriggerActions()

	assert.False(t, ran.Load(), "执行前取消，生产者不会执行")
	assert.Empty(t, observer.Values())
	assert.Equal(t, 0, scheduler.Pending())
}

func TestSubscribeOnDispatchesCleanupToWorker(t *testing.T) {
	scheduler := NewTestScheduler()
	var (
		producerSub *Subscriber[int]
		cleaned     atomic.Int32
	)

	sub := Create(func(s *Subscriber[int]) {
		producerSub = s
		s.Add(NewSubscription(func() { cleaned.Add(1) }))
	}).SubscribeOn(scheduler).Subscribe(newRecordingObserver[int]())

	scheduler.TriggerActions()
	require.NotNil(t, producerSub)

	sub.Unsubscribe()
	assert.True(t, producerSub.IsUnsubscribed(), "生产者立即看到取消状态")
	assert.Equal(t, int32(0), cleaned.Load(), "清理动作尚未在Worker上执行")
	assert.Equal(t, 1, scheduler.Pending())

	scheduler.TriggerActions()
	assert.Equal(t, int32(1), cleaned.Load())
	assert.Equal(t, 0, scheduler.Pending())

	// 取消之后登记的资源被同步取消
	late := NewBooleanSubscription()
	producerSub.Add(late)
	assert.True(t, late.IsUnsubscribed())
}

// 生产者阻塞期间被取消：生产者能看到取消状态，清理动作在Worker上于生产者返回后执行，
// 之后生产者发出的完成事件仍然送达。
func TestSubscribeOnUnsubscribeWhileProducerBlocked(t *testing.T) {
	scheduler := NewThreadPoolScheduler(2)
	caller := goroutineID()

	started := make(chan struct{})
	latch := make(chan struct{})
	cleaned := make(chan struct{})
	var (
		sawUnsubscribed atomic.Bool
		cleanupOn       atomic.Uint64
	)

	source := Create(func(s *Subscriber[int]) {
		s.Add(NewSubscription(func() {
			cleanupOn.Store(goroutineID())
			close(cleaned)
		}))
		close(started)
		<-latch
		sawUnsubscribed.Store(s.IsUnsubscribed())
		s.OnCompleted()
	})

	observer := newRecordingObserver[int]()
	sub := source.SubscribeOn(scheduler).Subscribe(observer)

	await(t, started, time.Second)
	sub.Unsubscribe()
	close(latch)

	observer.awaitTerminal(t, time.Second)
	await(t, cleaned, time.Second)

	assert.True(t, sawUnsubscribed.Load())
	assert.Empty(t, observer.Errors())
	assert.Equal(t, 1, observer.Completions())
	assert.NotEqual(t, caller, cleanupOn.Load(), "清理动作不能在调用 Unsubscribe 的goroutine上执行")
}

func TestSubscribeOnProducerPanic(t *testing.T) {
	observer := newRecordingObserver[int]()
	Create(func(s *Subscriber[int]) {
		panic("producer")
	}).SubscribeOn(NewNewThreadScheduler()).Subscribe(observer)

	observer.awaitTerminal(t, time.Second)
	require.Len(t, observer.Errors(), 1)
	var perr *PanicError
	assert.ErrorAs(t, observer.Errors()[0], &perr)
}
