package cmd

import (
	"fmt"
	"time"

	"github.com/msto63/hive/internal/tui/monitor"
	"github.com/spf13/cobra"
)

var (
	monitorAddress  string
	monitorInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live register monitor",
	Long: `Show the flight mode, partition fill levels and all registers,
refreshed from the gateway.

Keys: p pause, r refresh, q quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if monitorAddress == "" {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			monitorAddress = fmt.Sprintf("localhost:%d", cfg.Gateway.Port)
		}
		return monitor.Run(monitor.Config{
			Address:  monitorAddress,
			Interval: monitorInterval,
		})
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorAddress, "address", "", "gateway address (host:port)")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 2*time.Second, "poll interval")
}
