package commands

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
)

// scenarioTimeout bounds a single scenario run
const scenarioTimeout = 5 * time.Second

// errTimedOut marks a run that never reached its terminal event
var errTimedOut = errors.New("scenario timed out")

// Report summarizes a batch of scenario runs
type Report struct {
	Scenario  string
	Runs      int64
	Anomalies int64
	Elapsed   time.Duration
}

func (r Report) String() string {
	return fmt.Sprintf("%s: %d runs, %d anomalies in %v", r.Scenario, r.Runs, r.Anomalies, r.Elapsed.Round(time.Millisecond))
}

// runScenario runs scenario iterations times with at most parallel runs in flight.
// Every returned error counts as one anomaly and is logged.
func runScenario(name string, s Settings, scenario func(run int) error) (Report, error) {
	log := logger.WithValues("scenario", name)
	log.V(1).Info("starting", "iterations", s.Iterations, "parallel", s.Parallel, "poolSize", s.PoolSize)

	var runs, anomalies atomic.Int64
	start := time.Now()

	p := pool.New().WithMaxGoroutines(s.Parallel)
	for i := range s.Iterations {
		p.Go(func() {
			runs.Add(1)
			if err := scenario(i); err != nil {
				anomalies.Add(1)
				log.Error(err, "anomaly", "run", i)
				return
			}
			log.V(2).Info("run ok", "run", i)
		})
	}
	p.Wait()

	report := Report{
		Scenario:  name,
		Runs:      runs.Load(),
		Anomalies: anomalies.Load(),
		Elapsed:   time.Since(start),
	}
	if report.Anomalies > 0 {
		return report, errors.Errorf("%d of %d %s runs misbehaved", report.Anomalies, report.Runs, name)
	}
	return report, nil
}

// await waits for ch or fails with errTimedOut
func await(ch <-chan struct{}, what string) error {
	select {
	case <-ch:
		return nil
	case <-time.After(scenarioTimeout):
		return errors.Wrap(errTimedOut, what)
	}
}
