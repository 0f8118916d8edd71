package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/xinjiayu/rxcore"
	"github.com/xinjiayu/rxcore/cmd/rxstress/commands"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rxstress",
	Short: "rxstress - race scenarios for the rxcore scheduler and timeout operators",
	Long: `rxstress repeatedly runs the concurrency scenarios that rxcore must survive:
a stale timeout window racing a newer item, and cancellation of a
SubscribeOn producer while it is blocked on its worker.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		stdr.SetVerbosity(viper.GetInt("verbose"))
		logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds))
		rxcore.SetDefaultLogger(logger)
		commands.SetLogger(logger)
	},
}

func main() {
	rootCmd.AddCommand(commands.TimeoutRaceCmd)
	rootCmd.AddCommand(commands.SubscribeOnCmd)
	rootCmd.AddCommand(commands.ConfigCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rxstress.yaml)")
	flags.Int("iterations", 1000, "number of scenario runs")
	flags.Int("parallel", 8, "number of scenario runs in flight at once")
	flags.Int("pool-size", 0, "thread pool scheduler size (0 means one slot per CPU)")
	flags.CountP("verbose", "v", "log verbosity, repeat for more detail")

	bindFlags(flags, "iterations", "parallel", "pool-size", "verbose")
}

// bindFlags lets RXSTRESS_* env vars and the config file fill in unset flags
func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding flag %s: %v\n", name, err)
			os.Exit(1)
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".rxstress")
	}

	viper.SetEnvPrefix("RXSTRESS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}
