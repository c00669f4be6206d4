package cmd

import (
	"fmt"
	"os"

	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "HIVE - flight daemon",
	Long: `HIVE runs the flight controller of a small fixed-wing device.

It polls the GPS receiver and the sensor board, keeps every reading in
the shared register store, drives the wing servos and the cooling fan,
and serves the operator interface over HTTP.

Commands:
  serve    - start the daemon
  status   - query gateway and gRPC health
  monitor  - live register view in the terminal
  events   - read the event log`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HIVE_CONFIG or ./configs/hive.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads --config, then $HIVE_CONFIG and the default paths. When
// no file exists the defaults are returned with an empty path.
func loadConfig() (*config.Config, string, error) {
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		return cfg, cfgFile, err
	}

	cfg, path, err := config.LoadFromEnv()
	if err != nil && path == "" && apperr.HasCode(err, apperr.CodeConfigError) {
		return config.Default(), "", nil
	}
	return cfg, path, err
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
