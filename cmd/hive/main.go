package main

import (
	"os"

	"github.com/msto63/hive/cmd/hive/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
