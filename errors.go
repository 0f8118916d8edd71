// Error types for rxcore
// 错误类型：超时错误、panic包装错误、组合错误
package rxcore

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// ErrTimeout 超时错误的哨兵值，可以通过 errors.Is 判断
var ErrTimeout = errors.New("rxcore: observable timed out")

// ============================================================================
// TimeoutError 超时错误
// ============================================================================

// TimeoutError 超时窗口赢得竞争且没有配置后备序列时发出的错误
type TimeoutError struct {
	message    string
	generation uint64
}

func (e *TimeoutError) Error() string {
	return e.message
}

// Is 使 errors.Is(err, ErrTimeout) 成立
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Generation 返回赢得竞争的超时窗口的代数
func (e *TimeoutError) Generation() uint64 {
	return e.generation
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(message string) *TimeoutError {
	return &TimeoutError{message: message}
}

func newTimeoutErrorAt(generation uint64) *TimeoutError {
	return &TimeoutError{
		message:    fmt.Sprintf("rxcore: no item within timeout window (generation %d)", generation),
		generation: generation,
	}
}

// IsTimeout 判断错误是否为超时错误
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// ============================================================================
// PanicError panic包装
// ============================================================================

// PanicError 用户代码（生产者、选择器、调度任务）panic时捕获的值和调用栈
type PanicError struct {
	// Value 是传给 panic() 的原始值
	Value interface{}
	// Stack 是 panic 时的 goroutine 调用栈
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("rxcore: panic: %v\n\n%s", e.Value, e.Stack)
}

// Unwrap 如果 panic 的值本身是 error，则返回它
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(v interface{}) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{
		Value: v,
		Stack: string(buf[:n]),
	}
}

// ============================================================================
// CompositeError 组合错误
// ============================================================================

// CompositeError 批量取消订阅时多个子订阅失败的集合
type CompositeError struct {
	Errors []error
}

func (e *CompositeError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("rxcore: %d errors occurred: [%s]", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap 返回所有子错误，供 errors.Is/As 遍历
func (e *CompositeError) Unwrap() []error {
	return e.Errors
}

// recoverAsError 执行 action，把 panic 转换为 error
func recoverAsError(action func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()

	action()
	return nil
}
