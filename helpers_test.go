package rxcore

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// goroutineID 从调用栈头部解析当前goroutine编号，只用于测试线程归属
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}

// recordingObserver 记录收到的全部事件
type recordingObserver[T any] struct {
	mu          sync.Mutex
	values      []T
	errs        []error
	completions int
	done        chan struct{}
	once        sync.Once

	// onNext 在记录之后调用，可以为 nil
	onNext func(T)
}

func newRecordingObserver[T any]() *recordingObserver[T] {
	return &recordingObserver[T]{done: make(chan struct{})}
}

func (r *recordingObserver[T]) OnNext(value T) {
	r.mu.Lock()
	r.values = append(r.values, value)
	r.mu.Unlock()

	if r.onNext != nil {
		r.onNext(value)
	}
}

func (r *recordingObserver[T]) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recordingObserver[T]) OnCompleted() {
	r.mu.Lock()
	r.completions++
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recordingObserver[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func (r *recordingObserver[T]) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recordingObserver[T]) Completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completions
}

// awaitTerminal 等待终止事件，超时则测试失败
func (r *recordingObserver[T]) awaitTerminal(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(timeout):
		require.FailNow(t, "测试超时", "no terminal event within %v", timeout)
	}
}

// await 等待 channel 关闭，超时则测试失败
func await(t *testing.T, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.FailNow(t, "测试超时", "channel not closed within %v", timeout)
	}
}
