package cmd

import (
	"fmt"

	"github.com/msto63/hive/pkg/core/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
		if verbose {
			for _, c := range []string{"store", "gateway", "eventlog", "sensors", "monitor"} {
				fmt.Printf("  %-9s %s\n", c, version.ComponentVersion(c))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
