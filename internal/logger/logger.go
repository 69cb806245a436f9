// Package logger builds the zap loggers used by docbridge binaries.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production JSON logger at the given level. The debug level
// and development mode produce a console logger instead.
func New(level string, development bool) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development || lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Install builds a logger with New and makes it the global zap logger. The
// returned function restores the previous globals.
func Install(level string, development bool) (func(), error) {
	logger, err := New(level, development)
	if err != nil {
		return nil, err
	}
	return zap.ReplaceGlobals(logger), nil
}
