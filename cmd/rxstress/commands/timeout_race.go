package commands

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/xinjiayu/rxcore"
)

var TimeoutRaceCmd = &cobra.Command{
	Use:     "timeout-race",
	Aliases: []string{"tr"},
	Short:   "Race a stale timeout window against a newer item",
	Long: `Each run emits items 1 and 2 from a SubscribeOn source. The window armed
for item 1 fires on its own goroutine only after the observer has received
item 2, so it must lose the generation check: the run must end with [1 2],
one completion and no switch to the fallback.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := LoadSettings()
		if err != nil {
			return err
		}

		scheduler := rxcore.NewThreadPoolScheduler(s.PoolSize)
		report, err := runScenario("timeout-race", s, func(int) error {
			return timeoutRace(scheduler)
		})
		fmt.Println(report)
		return err
	},
}

// timeoutRace runs the stale window scenario once
func timeoutRace(scheduler rxcore.Scheduler) error {
	receivedTwo := make(chan struct{})
	windowFired := make(chan struct{})
	done := make(chan struct{})

	var (
		mu             sync.Mutex
		values         []int
		errs           []error
		completions    int
		usedFallback   atomic.Bool
		closeReceived  sync.Once
		closeTerminate sync.Once
	)

	perItem := func(v int) (rxcore.Observable[any], error) {
		if v != 1 {
			return rxcore.Never[any](), nil
		}
		return rxcore.Create(func(w *rxcore.Subscriber[any]) {
			go func() {
				<-receivedTwo
				w.OnNext(struct{}{})
				close(windowFired)
			}()
		}), nil
	}
	source := rxcore.Create(func(s *rxcore.Subscriber[int]) {
		s.OnNext(1)
		s.OnNext(2)
		<-windowFired
		s.OnCompleted()
	}).SubscribeOn(scheduler)
	fallback := rxcore.Create(func(s *rxcore.Subscriber[int]) {
		usedFallback.Store(true)
		s.OnCompleted()
	})

	source.TimeoutOrElse(nil, perItem, fallback).Subscribe(rxcore.ObserverFuncs[int]{
		Next: func(v int) {
			mu.Lock()
			values = append(values, v)
			mu.Unlock()
			if v == 2 {
				closeReceived.Do(func() { close(receivedTwo) })
			}
		},
		Error: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			closeTerminate.Do(func() { close(done) })
		},
		Completed: func() {
			mu.Lock()
			completions++
			mu.Unlock()
			closeTerminate.Do(func() { close(done) })
		},
	})

	if err := await(done, "waiting for terminal event"); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	switch {
	case len(errs) > 0:
		return errors.Wrap(errs[0], "unexpected error")
	case completions != 1:
		return errors.Errorf("expected one completion, got %d", completions)
	case !slices.Equal(values, []int{1, 2}):
		return errors.Errorf("expected items [1 2], got %v", values)
	case usedFallback.Load():
		return errors.New("stale window switched to the fallback")
	}
	return nil
}
