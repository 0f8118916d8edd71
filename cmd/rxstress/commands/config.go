package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logger = logr.Discard()

// SetLogger sets the logger used by all subcommands
func SetLogger(l logr.Logger) {
	logger = l.WithName("rxstress")
}

// Settings is the resolved run configuration (flags, RXSTRESS_* env, config file)
type Settings struct {
	Iterations int
	Parallel   int
	PoolSize   int
}

// LoadSettings reads and validates the run configuration from viper
func LoadSettings() (Settings, error) {
	s := Settings{
		Iterations: viper.GetInt("iterations"),
		Parallel:   viper.GetInt("parallel"),
		PoolSize:   viper.GetInt("pool-size"),
	}
	if s.Iterations <= 0 {
		return s, errors.Errorf("iterations must be positive, got %d", s.Iterations)
	}
	if s.Parallel <= 0 {
		return s, errors.Errorf("parallel must be positive, got %d", s.Parallel)
	}
	if s.PoolSize < 0 {
		return s, errors.Errorf("pool-size must not be negative, got %d", s.PoolSize)
	}
	return s, nil
}

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := LoadSettings()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE")
		fmt.Fprintf(w, "iterations\t%d\n", s.Iterations)
		fmt.Fprintf(w, "parallel\t%d\n", s.Parallel)
		fmt.Fprintf(w, "pool-size\t%d\n", s.PoolSize)
		fmt.Fprintf(w, "config file\t%s\n", viper.ConfigFileUsed())
		return w.Flush()
	},
}
