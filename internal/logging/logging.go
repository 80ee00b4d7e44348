// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "market-sentinel", "logs", "sentinel.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	// Console writer
	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	// File writer with rotation
	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			}
			writers = append(writers, fileWriter)
		}
	}

	var writer io.Writer
	if len(writers) == 0 {
		writer = os.Stdout
	} else if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithInstrument adds an instrument to the logger context.
func WithInstrument(logger zerolog.Logger, instrument string) zerolog.Logger {
	return logger.With().Str("instrument", instrument).Logger()
}

// WithCycle adds a cycle ID to the logger context.
func WithCycle(logger zerolog.Logger, cycleID string) zerolog.Logger {
	return logger.With().Str("cycle_id", cycleID).Logger()
}

// LogAlert logs an alert event being raised.
func LogAlert(logger zerolog.Logger, eventID, instrument, ruleID, severity string) {
	logger.Info().
		Str("event", "alert").
		Str("event_id", eventID).
		Str("instrument", instrument).
		Str("rule_id", ruleID).
		Str("severity", severity).
		Msg("Alert raised")
}

// LogDispatch logs the outcome of a delivery attempt.
func LogDispatch(logger zerolog.Logger, eventID, channel string, attempt int, outcome string, err error) {
	event := logger.Info().
		Str("event", "dispatch").
		Str("event_id", eventID).
		Str("channel", channel).
		Int("attempt", attempt).
		Str("outcome", outcome)

	if err != nil {
		event.Err(err).Msg("Delivery attempt failed")
	} else {
		event.Msg("Delivery attempt completed")
	}
}

// LogCycle logs a completed evaluation cycle.
func LogCycle(logger zerolog.Logger, cycleID string, evaluated, skipped, raised int, duration time.Duration) {
	logger.Info().
		Str("event", "cycle").
		Str("cycle_id", cycleID).
		Int("evaluated", evaluated).
		Int("skipped", skipped).
		Int("alerts_raised", raised).
		Dur("duration", duration).
		Msg("Cycle completed")
}
