package commands

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xinjiayu/rxcore"
)

func TestLoadSettingsValidates(t *testing.T) {
	defer viper.Reset()

	viper.Set("iterations", 10)
	viper.Set("parallel", 2)
	viper.Set("pool-size", 0)
	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, Settings{Iterations: 10, Parallel: 2, PoolSize: 0}, s)

	viper.Set("parallel", 0)
	_, err = LoadSettings()
	assert.Error(t, err)

	viper.Set("parallel", 1)
	viper.Set("pool-size", -1)
	_, err = LoadSettings()
	assert.Error(t, err)
}

func TestScenariosRunClean(t *testing.T) {
	s := Settings{Iterations: 20, Parallel: 4, PoolSize: 2}
	pool := rxcore.NewThreadPoolScheduler(s.PoolSize)

	report, err := runScenario("timeout-race", s, func(int) error { return timeoutRace(pool) })
	require.NoError(t, err)
	assert.Equal(t, int64(20), report.Runs)
	assert.Equal(t, int64(0), report.Anomalies)

	report, err = runScenario("subscribe-on", s, func(int) error { return subscribeOnCancel(pool) })
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Anomalies)
}

func TestRunScenarioCountsAnomalies(t *testing.T) {
	s := Settings{Iterations: 6, Parallel: 3}
	report, err := runScenario("odd", s, func(run int) error {
		if run%2 == 1 {
			return errTimedOut
		}
		return nil
	})

	assert.Error(t, err)
	assert.Equal(t, int64(6), report.Runs)
	assert.Equal(t, int64(3), report.Anomalies)
	assert.Contains(t, report.String(), "3 anomalies")
}
