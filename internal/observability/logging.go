// Package observability holds the process-wide loggers. CLI commands use the
// global CLILogger; the daemon builds a service logger from config and passes
// it down explicitly.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger for command-line entry points. It is a
// no-op logger until InitCLILogger runs, so early failures can still log.
var CLILogger = zap.NewNop()

// InitCLILogger configures the global CLI logger. With structured=false the
// output is the human console encoding; structured=true emits JSON lines.
func InitCLILogger(level string, structured bool) error {
	logger, err := NewLogger(level, structured)
	if err != nil {
		return err
	}
	CLILogger = logger
	return nil
}

// NewLogger builds a zap logger at the given level. Unknown levels are an
// error rather than a silent default.
func NewLogger(level string, structured bool) (*zap.Logger, error) {
	parsed, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	if structured {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// ServiceLogger builds the daemon logger from the logging profile name used
// in configuration ("STRUCTURED" or "CONSOLE").
func ServiceLogger(level, profile string) (*zap.Logger, error) {
	switch strings.ToUpper(strings.TrimSpace(profile)) {
	case "", "STRUCTURED":
		return NewLogger(level, true)
	case "CONSOLE":
		return NewLogger(level, false)
	default:
		return nil, fmt.Errorf("unknown logging profile %q", profile)
	}
}

// Sync flushes the global CLI logger; callers ignore the error on stderr
// sinks where Sync is not supported.
func Sync() error {
	return CLILogger.Sync()
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info", "test":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}
