package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/msto63/hive/internal/daemon"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flight daemon",
	Long: `Start the flight daemon in the foreground.

The daemon stops gracefully on SIGINT or SIGTERM. Log level and fan
thresholds are reloaded when the config file changes.

Examples:
  hive serve
  hive serve --config /etc/hive/hive.toml -v`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		printError("failed to load config", err)
		return err
	}

	level := cfg.General.LogLevel
	if verbose {
		level = "debug"
	}
	zl := logging.Init(logging.LoggerConfig{
		ServiceName: cfg.General.Name,
		Level:       level,
		Format:      cfg.General.LogFormat,
	})
	defer logging.Sync()

	logger := logging.FromZap(zl, "hive")
	if path == "" {
		logger.Warn("No config file found, using defaults")
	} else {
		logger.Info("Configuration loaded", "path", path)
	}

	d, err := daemon.New(cfg, daemon.Options{
		ConfigPath: path,
		Logger:     logger,
	})
	if err != nil {
		printError("failed to build daemon", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	return nil
}
