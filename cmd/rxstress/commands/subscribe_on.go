package commands

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/xinjiayu/rxcore"
)

var SubscribeOnCmd = &cobra.Command{
	Use:     "subscribe-on",
	Aliases: []string{"so"},
	Short:   "Cancel a SubscribeOn producer while it is blocked on its worker",
	Long: `Each run starts a producer on the thread pool scheduler, unsubscribes while
the producer is blocked, then releases it. The producer must observe the
cancellation, its completion must still be delivered exactly once, and its
cleanup must run on the worker after the producer returned.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := LoadSettings()
		if err != nil {
			return err
		}

		scheduler, err := rxcore.NewMonitoredScheduler(rxcore.NewThreadPoolScheduler(s.PoolSize), nil)
		if err != nil {
			return err
		}
		report, err := runScenario("subscribe-on", s, func(int) error {
			return subscribeOnCancel(scheduler)
		})
		fmt.Println(report)

		m := scheduler.GetMetrics()
		logger.Info("scheduler metrics",
			"workers", m.WorkersCreated,
			"scheduled", m.TasksScheduled,
			"completed", m.TasksCompleted,
			"failed", m.TasksFailed,
			"avgLatency", m.AverageLatency)
		return err
	},
}

// subscribeOnCancel runs the blocked producer cancellation scenario once
func subscribeOnCancel(scheduler rxcore.Scheduler) error {
	started := make(chan struct{})
	latch := make(chan struct{})
	cleaned := make(chan struct{})
	completed := make(chan struct{})

	var (
		producerReturned   atomic.Bool
		sawUnsubscribed    atomic.Bool
		cleanupAfterReturn atomic.Bool
		completions        atomic.Int32
		failures           atomic.Int32
	)

	source := rxcore.Create(func(s *rxcore.Subscriber[int]) {
		defer producerReturned.Store(true)
		s.Add(rxcore.NewSubscription(func() {
			cleanupAfterReturn.Store(producerReturned.Load())
			close(cleaned)
		}))
		close(started)
		<-latch
		sawUnsubscribed.Store(s.IsUnsubscribed())
		s.OnCompleted()
	})

	sub := source.SubscribeOn(scheduler).Subscribe(rxcore.ObserverFuncs[int]{
		Error: func(error) { failures.Add(1) },
		Completed: func() {
			if completions.Add(1) == 1 {
				close(completed)
			}
		},
	})

	if err := await(started, "waiting for producer"); err != nil {
		return err
	}
	sub.Unsubscribe()
	close(latch)

	if err := await(completed, "waiting for completion"); err != nil {
		return err
	}
	if err := await(cleaned, "waiting for cleanup"); err != nil {
		return err
	}

	switch {
	case !sawUnsubscribed.Load():
		return errors.New("producer did not observe the cancellation")
	case failures.Load() != 0:
		return errors.Errorf("unexpected error events: %d", failures.Load())
	case completions.Load() != 1:
		return errors.Errorf("expected one completion, got %d", completions.Load())
	case !cleanupAfterReturn.Load():
		return errors.New("cleanup ran before the producer returned")
	}
	return nil
}
