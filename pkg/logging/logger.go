// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-fetch detail
//   - Operation start/finish (op, page, batch size, has_more)
//   - Dropped operations (guard held, no more data, missing cursor)
//   - Stale results discarded after reset or close
//
// Info: lifecycle events
//   - Reset and restore of scroll state
//   - Session creation/removal in the proxy
//   - Server startup/shutdown
//
// Warn: failures that are surfaced on state, not returned
//   - Fetch failures (recorded on State.Error)
//   - Upstream retries and error-budget throttling
//   - Snapshot persistence errors
//
// Error: conditions requiring attention
//   - Published state failing validation
//   - Upstream blocked by the error budget
//   - Configuration errors
//
// Context Fields:
//   - component: scroll, httpsource, ratelimit, persist, proxy
//   - mode: page or cursor
//   - op: load_initial, load_more, refresh, reset
//   - page / has_cursor: the batch being fetched
//   - items / batch / has_more: merge outcome
//   - endpoint / status / error_class: upstream requests
//   - session: proxy session id
//   - duration: fetch or request duration
