// Subscription implementations for rxcore
// 订阅的生命周期管理：空订阅、动作订阅、组合订阅、串行订阅
package rxcore

import (
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// ============================================================================
// 生命周期管理
// ============================================================================

// Subscription 订阅接口，管理订阅的生命周期。
// Unsubscribe 可以在任意 goroutine 中调用任意次，第二次及之后的调用无效果。
type Subscription interface {
	// Unsubscribe 取消订阅
	Unsubscribe()
	// IsUnsubscribed 检查是否已取消订阅
	IsUnsubscribed() bool
}

// BooleanSubscription 只记录取消状态的订阅
type BooleanSubscription struct {
	unsubscribed atomic.Bool
}

// NewBooleanSubscription 创建布尔订阅
func NewBooleanSubscription() *BooleanSubscription {
	return &BooleanSubscription{}
}

// Unsubscribe 取消订阅
func (s *BooleanSubscription) Unsubscribe() {
	s.unsubscribed.Store(true)
}

// IsUnsubscribed 检查是否已取消订阅
func (s *BooleanSubscription) IsUnsubscribed() bool {
	return s.unsubscribed.Load()
}

// EmptySubscription 创建一个没有清理动作的订阅
func EmptySubscription() Subscription {
	return NewBooleanSubscription()
}

// actionSubscription 第一次取消时执行一次清理动作
type actionSubscription struct {
	unsubscribed atomic.Bool
	action       func()
}

// NewSubscription 创建在首次取消时执行 action 的订阅，action 最多执行一次
func NewSubscription(action func()) Subscription {
	return &actionSubscription{action: action}
}

// Unsubscribe 取消订阅
func (s *actionSubscription) Unsubscribe() {
	if s.unsubscribed.CompareAndSwap(false, true) {
		if s.action != nil {
			s.action()
		}
	}
}

// IsUnsubscribed 检查是否已取消订阅
func (s *actionSubscription) IsUnsubscribed() bool {
	return s.unsubscribed.Load()
}

// ============================================================================
// CompositeSubscription 组合订阅
// ============================================================================

// CompositeSubscription 持有一组子订阅，取消时一起取消。
// 取消之后再加入的子订阅会被立即同步取消，而不是保存下来。
// 子订阅可以是任意类型，包括函数类型等不可比较的类型。
type CompositeSubscription struct {
	mu           sync.Mutex
	unsubscribed atomic.Bool
	children     childSet

	// dispatch 不为 nil 时，批量取消通过它执行（例如投递到 Worker），
	// 即使没有子订阅也会调用一次。取消标志仍然立即翻转。
	dispatch func(func())
}

// NewCompositeSubscription 创建组合订阅
func NewCompositeSubscription(children ...Subscription) *CompositeSubscription {
	cs := &CompositeSubscription{}
	for _, child := range children {
		cs.Add(child)
	}
	return cs
}

func newDispatchedComposite(dispatch func(func())) *CompositeSubscription {
	return &CompositeSubscription{dispatch: dispatch}
}

// Add 添加子订阅，如果已经取消则立即取消 child
func (cs *CompositeSubscription) Add(child Subscription) {
	if child == nil {
		return
	}

	cs.mu.Lock()
	if cs.unsubscribed.Load() {
		cs.mu.Unlock()
		child.Unsubscribe()
		return
	}
	cs.children.add(child)
	cs.mu.Unlock()
}

// Remove 移除并取消子订阅
func (cs *CompositeSubscription) Remove(child Subscription) {
	if child == nil {
		return
	}
	if stored, ok := cs.take(child); ok {
		stored.Unsubscribe()
	}
}

// detach 只移除不取消，返回 child 是否存在
func (cs *CompositeSubscription) detach(child Subscription) bool {
	_, ok := cs.take(child)
	return ok
}

func (cs *CompositeSubscription) take(child Subscription) (Subscription, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.unsubscribed.Load() {
		return nil, false
	}
	return cs.children.remove(child)
}

// Clear 取消并移除所有子订阅，但组合订阅本身保持可用
func (cs *CompositeSubscription) Clear() {
	cs.mu.Lock()
	if cs.unsubscribed.Load() {
		cs.mu.Unlock()
		return
	}
	children := cs.children.drain()
	cs.mu.Unlock()

	unsubscribeAll(children)
}

// Len 返回当前持有的子订阅数量
func (cs *CompositeSubscription) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.children.len()
}

// Unsubscribe 取消所有子订阅。
// 若有子订阅 panic，所有子订阅处理完后再以 *CompositeError 重新抛出。
func (cs *CompositeSubscription) Unsubscribe() {
	cs.mu.Lock()
	if cs.unsubscribed.Load() {
		cs.mu.Unlock()
		return
	}
	cs.unsubscribed.Store(true)
	children := cs.children.drain()
	cs.mu.Unlock()

	if cs.dispatch != nil {
		cs.dispatch(func() { unsubscribeAll(children) })
		return
	}
	unsubscribeAll(children)
}

// IsUnsubscribed 检查是否已取消订阅
func (cs *CompositeSubscription) IsUnsubscribed() bool {
	return cs.unsubscribed.Load()
}

func unsubscribeAll(children []Subscription) {
	var errs []error
	for _, child := range children {
		if err := recoverAsError(child.Unsubscribe); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		panic(&CompositeError{Errors: errs})
	}
}

// childSet 子订阅集合。可以作为 map 键的子订阅放在 keyed 中；
// 函数类型、含切片的结构体等不可比较的子订阅放在 others 中按 sameSubscription 查找。
type childSet struct {
	keyed  map[Subscription]struct{}
	others []Subscription
}

func (c *childSet) add(child Subscription) {
	if !hashable(child) {
		c.others = append(c.others, child)
		return
	}
	if c.keyed == nil {
		c.keyed = make(map[Subscription]struct{}, 4)
	}
	c.keyed[child] = struct{}{}
}

// remove 移除 child，返回集合中保存的那个值
func (c *childSet) remove(child Subscription) (Subscription, bool) {
	if hashable(child) {
		if _, ok := c.keyed[child]; !ok {
			return nil, false
		}
		delete(c.keyed, child)
		return child, true
	}
	for i, stored := range c.others {
		if sameSubscription(stored, child) {
			c.others = slices.Delete(c.others, i, i+1)
			return stored, true
		}
	}
	return nil, false
}

func (c *childSet) len() int {
	return len(c.keyed) + len(c.others)
}

// drain 取出全部子订阅并清空集合
func (c *childSet) drain() []Subscription {
	all := make([]Subscription, 0, c.len())
	for child := range c.keyed {
		all = append(all, child)
	}
	all = append(all, c.others...)
	c.keyed = nil
	c.others = nil
	return all
}

// hashable 判断 v 能否作为 map 键；动态类型不可比较时 == 会 panic
func hashable(v Subscription) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return v == v
}

// sameSubscription 比较两个不可比较的子订阅。
// 函数、map、切片按底层指针比较（函数取的是代码指针），其余按 reflect.DeepEqual。
func sameSubscription(a, b Subscription) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Func, reflect.Map:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	default:
		return reflect.DeepEqual(a, b)
	}
}

// ============================================================================
// SerialSubscription 串行订阅
// ============================================================================

// SerialSubscription 只持有一个可替换的子订阅，替换时取消旧值。
// 取消之后设置的新值会被立即取消。
type SerialSubscription struct {
	mu           sync.Mutex
	unsubscribed bool
	current      Subscription
}

// NewSerialSubscription 创建串行订阅
func NewSerialSubscription() *SerialSubscription {
	return &SerialSubscription{}
}

// Set 替换当前子订阅，并取消被替换的旧值
func (s *SerialSubscription) Set(next Subscription) {
	s.mu.Lock()
	if s.unsubscribed {
		s.mu.Unlock()
		if next != nil {
			next.Unsubscribe()
		}
		return
	}
	prev := s.current
	s.current = next
	s.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}
}

// Get 返回当前子订阅
func (s *SerialSubscription) Get() Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Unsubscribe 取消订阅
func (s *SerialSubscription) Unsubscribe() {
	s.mu.Lock()
	if s.unsubscribed {
		s.mu.Unlock()
		return
	}
	s.unsubscribed = true
	current := s.current
	s.current = nil
	s.mu.Unlock()

	if current != nil {
		current.Unsubscribe()
	}
}

// IsUnsubscribed 检查是否已取消订阅
func (s *SerialSubscription) IsUnsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}
