package rxcore

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPublishSubjectMulticastsToCurrentSubscribers(t *testing.T) {
	subject := NewPublishSubject[int]()

	early := newRecordingObserver[int]()
	subject.Subscribe(early)
	subject.OnNext(1)

	late := newRecordingObserver[int]()
	subject.Subscribe(late)
	subject.OnNext(2)
	assert.Equal(t, 2, subject.ObserverCount())

	subject.OnCompleted()
	subject.OnNext(3)

	assert.Equal(t, []int{1, 2}, early.Values())
	assert.Equal(t, []int{2}, late.Values(), "只接收订阅之后的值")
	assert.Equal(t, 1, early.Completions())
	assert.Equal(t, 1, late.Completions())
	assert.False(t, subject.HasObservers())
}

func TestPublishSubjectReplaysTerminalEvent(t *testing.T) {
	subject := NewPublishSubject[int]()
	cause := errors.New("boom")
	subject.OnError(cause)
	subject.OnCompleted()

	observer := newRecordingObserver[int]()
	subject.Subscribe(observer)

	assert.Equal(t, []error{cause}, observer.Errors())
	assert.Equal(t, 0, observer.Completions())
}

func TestPublishSubjectUnsubscribeRemovesObserver(t *testing.T) {
	subject := NewPublishSubject[string]()

	observer := newRecordingObserver[string]()
	sub := subject.Subscribe(observer)
	assert.True(t, subject.HasObservers())

	sub.Unsubscribe()
	subject.OnNext("ignored")

	assert.False(t, subject.HasObservers())
	assert.Empty(t, observer.Values())
}
