// ============================================================================
// HIVE - Flight Daemon
// ============================================================================
//
// Package:     logging
// Description: Factory functions for zap loggers with a shared runtime level
// Author:      Mike Stoffels
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Shared by every logger built from this package, so a config reload
	// changes the level process-wide.
	globalLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	baseMu     sync.RWMutex
	baseLogger *zap.Logger
)

// LoggerConfig holds configuration for creating loggers
type LoggerConfig struct {
	// Service name
	ServiceName string

	// Log level (debug, info, warn, error)
	Level string

	// Output format: "json" or "text" (default: json)
	Format string

	// Additional outputs besides stdout
	AdditionalOutputs []io.Writer
}

// DefaultLoggerConfig returns a default configuration
func DefaultLoggerConfig(serviceName string) LoggerConfig {
	return LoggerConfig{
		ServiceName: serviceName,
		Level:       "info",
		Format:      "json",
	}
}

// NewLogger creates a zap logger and sets the process-wide level to cfg.Level
func NewLogger(cfg LoggerConfig) *zap.Logger {
	globalLevel.SetLevel(parseLevel(cfg.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.TimeKey = "time"

	var encoder zapcore.Encoder
	if cfg.Format == "text" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	syncers := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	for _, w := range cfg.AdditionalOutputs {
		syncers = append(syncers, zapcore.AddSync(w))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), globalLevel)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if cfg.ServiceName != "" {
		logger = logger.Named(cfg.ServiceName)
	}
	return logger
}

// Init installs the base logger used by New. Call once at startup.
func Init(cfg LoggerConfig) *zap.Logger {
	logger := NewLogger(cfg)

	baseMu.Lock()
	baseLogger = logger
	baseMu.Unlock()

	return logger
}

// base returns the installed base logger, creating a default one on first use
func base() *zap.Logger {
	baseMu.RLock()
	l := baseLogger
	baseMu.RUnlock()
	if l != nil {
		return l
	}

	baseMu.Lock()
	defer baseMu.Unlock()
	if baseLogger == nil {
		baseLogger = NewLogger(DefaultLoggerConfig("hive"))
	}
	return baseLogger
}

// SetLevel changes the level of every logger created by this package
func SetLevel(level string) {
	globalLevel.SetLevel(parseLevel(level))
}

// CurrentLevel returns the active level name
func CurrentLevel() string {
	return globalLevel.Level().String()
}

// Sync flushes the base logger
func Sync() error {
	return base().Sync()
}

// parseLevel converts a string level to a zap level
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
