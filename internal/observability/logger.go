// Package observability owns the process-wide CLI logger.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by the command layer. It is a no-op logger
// until InitCLILogger runs, so library code and tests never see nil.
var CLILogger = zap.NewNop()

// InitCLILogger replaces CLILogger. Logs go to stderr in a console format
// when path is empty, otherwise they are appended to path as JSON. An
// unknown level falls back to info.
func InitCLILogger(name, level, path string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	var cfg zap.Config
	if path == "" {
		cfg = zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		cfg.DisableStacktrace = true
	} else {
		cfg = zap.NewProductionConfig()
		cfg.OutputPaths = []string{path}
		cfg.Sampling = nil
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	CLILogger = logger.Named(name)
	return nil
}

// Sync flushes buffered log entries.
func Sync() {
	_ = CLILogger.Sync()
}
