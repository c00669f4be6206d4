// ============================================================================
// HIVE - Flight Daemon
// ============================================================================
//
// Package:     logging
// Description: Key/value logger used across the daemon
// Author:      Mike Stoffels
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package logging

import (
	"go.uber.org/zap"
)

// Level represents log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is a named logger taking alternating key/value pairs
type Logger struct {
	sugar *zap.SugaredLogger
	name  string
}

// New creates a logger named after a component
func New(name string) *Logger {
	return &Logger{
		sugar: base().Named(name).Sugar(),
		name:  name,
	}
}

// FromZap wraps an existing zap logger
func FromZap(l *zap.Logger, name string) *Logger {
	if name != "" {
		l = l.Named(name)
	}
	return &Logger{sugar: l.Sugar(), name: name}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), name: "nop"}
}

// Name returns the component name
func (l *Logger) Name() string {
	return l.name
}

// With returns a child logger carrying the given key/value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...), name: l.name}
}

// Zap returns the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs an info message
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Log logs at the given level
func (l *Logger) Log(level Level, msg string, keysAndValues ...interface{}) {
	switch level {
	case LevelDebug:
		l.Debug(msg, keysAndValues...)
	case LevelWarn:
		l.Warn(msg, keysAndValues...)
	case LevelError:
		l.Error(msg, keysAndValues...)
	default:
		l.Info(msg, keysAndValues...)
	}
}
