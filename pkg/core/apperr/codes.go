// File: codes.go
// Title: Error Code Definitions
// Description: Standardized error codes shared by the register store, the
//              flight state machine and the control surfaces. Codes drive
//              HTTP status mapping, gRPC status mapping and event severity.
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-10-16
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation with core error codes
// - 2026-10-16 v0.2.0: Reduced to the codes used by the flight daemon

package apperr

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code represents a structured error code for categorizing errors
type Code string

const (
	// Generic codes
	CodeUnknown      Code = "UNKNOWN"
	CodeInternal     Code = "INTERNAL"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeTimeout      Code = "TIMEOUT"

	// Register store
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"
	CodeTypeMismatch  Code = "TYPE_MISMATCH"

	// Flight control
	CodeInvalidToken Code = "INVALID_TOKEN"
	CodeInvalidState Code = "INVALID_STATE"

	// Devices and services
	CodeUnavailable Code = "UNAVAILABLE"
	CodeDeviceError Code = "DEVICE_ERROR"
	CodeDatabase    Code = "DATABASE_ERROR"

	// Configuration
	CodeConfigError Code = "CONFIG_ERROR"
)

// String returns the string representation of the error code
func (c Code) String() string {
	return string(c)
}

// HTTPStatus maps a code to the HTTP status used by the control surface
func HTTPStatus(c Code) int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidInput, CodeTypeMismatch:
		return http.StatusBadRequest
	case CodeInvalidToken:
		return http.StatusUnauthorized
	case CodeInvalidState:
		return http.StatusConflict
	case CodeQuotaExceeded:
		return http.StatusInsufficientStorage
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable, CodeDeviceError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps a code to a gRPC status code
func GRPCCode(c Code) codes.Code {
	switch c {
	case CodeNotFound:
		return codes.NotFound
	case CodeInvalidInput, CodeTypeMismatch:
		return codes.InvalidArgument
	case CodeInvalidToken:
		return codes.Unauthenticated
	case CodeInvalidState:
		return codes.FailedPrecondition
	case CodeQuotaExceeded:
		return codes.ResourceExhausted
	case CodeTimeout:
		return codes.DeadlineExceeded
	case CodeUnavailable, CodeDeviceError:
		return codes.Unavailable
	case CodeUnknown:
		return codes.Unknown
	default:
		return codes.Internal
	}
}
