// File: severity.go
// Title: Error Severity Levels
// Description: Severity levels used to classify routine failures. The event
//              recorder maps high and critical severities to hard failures.
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-10-16

package apperr

// Severity represents the severity level of an error
type Severity int

const (
	// SeverityLow indicates a condition the caller can absorb, e.g. a missing register
	SeverityLow Severity = iota

	// SeverityMedium indicates degraded functionality with a workaround
	SeverityMedium

	// SeverityHigh indicates a failing device or storage path
	SeverityHigh

	// SeverityCritical indicates the daemon cannot continue
	SeverityCritical
)

// String returns the string representation of the severity level
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SeverityFromCode returns the default severity for a code
func SeverityFromCode(c Code) Severity {
	switch c {
	case CodeNotFound, CodeInvalidInput, CodeInvalidToken, CodeTypeMismatch:
		return SeverityLow
	case CodeQuotaExceeded, CodeInvalidState, CodeTimeout, CodeUnavailable:
		return SeverityMedium
	case CodeDeviceError, CodeDatabase, CodeConfigError:
		return SeverityHigh
	case CodeInternal:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}
