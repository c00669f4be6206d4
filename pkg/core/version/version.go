// ============================================================================
// HIVE - Flight Daemon
// ============================================================================
//
// Package:     version
// Description: Central version management for the daemon and its components
// Author:      Mike Stoffels
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package version

import (
	"fmt"
	"runtime"
)

// Version constants for hive components
const (
	// Daemon version
	Daemon = "0.4.0"

	// Component versions
	Store    = "1.0.0"
	Gateway  = "0.4.0"
	EventLog = "0.3.0"
	Sensors  = "0.2.0"
	Monitor  = "0.2.0"
)

// Set at build time via -ldflags "-X github.com/msto63/hive/pkg/core/version.Commit=..."
var (
	Commit    = "dev"
	BuildDate = "unknown"
)

// ComponentVersion returns the version for a given component name
func ComponentVersion(name string) string {
	switch name {
	case "ptam", "store":
		return Store
	case "gateway":
		return Gateway
	case "eventlog":
		return EventLog
	case "sensors":
		return Sensors
	case "monitor":
		return Monitor
	default:
		return Daemon
	}
}

// String returns the full version line printed by "hive version"
func String() string {
	return fmt.Sprintf("hive %s (commit %s, built %s, %s %s/%s)",
		Daemon, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
