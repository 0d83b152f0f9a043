// Package logging builds the zap loggers used by the service and the CLI
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mikey/mailgraph/internal/config"
)

// ParseLevel maps a configured level name to a zap level; unknown names
// fall back to info
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewConfig returns the zap configuration for a level and output format.
// JSON uses the production encoder, anything else a coloured console one
func NewConfig(level zapcore.Level, jsonFormat bool) zap.Config {
	var logConfig zap.Config
	if jsonFormat {
		logConfig = zap.NewProductionConfig()
	} else {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)
	// CLI output goes to stdout, logs to stderr
	logConfig.OutputPaths = []string{"stderr"}
	return logConfig
}

// InitLogger initializes a logger from the logging.* configuration keys
func InitLogger(cfg *config.Config) (*zap.Logger, error) {
	level := ParseLevel(cfg.GetString("logging.level"))
	return build(NewConfig(level, cfg.GetString("logging.format") == "json"))
}

// InitConsoleLogger initializes a logger for interactive use
func InitConsoleLogger(verbose bool, jsonFormat bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	return build(NewConfig(level, jsonFormat))
}

func build(logConfig zap.Config) (*zap.Logger, error) {
	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
