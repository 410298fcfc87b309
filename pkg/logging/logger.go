// Package logging configures zerolog for the catalog binaries and hands out
// component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as accepted from LOG_LEVEL.
type LogLevel string

const (
	LevelDebug    LogLevel = "debug"
	LevelInfo     LogLevel = "info"
	LevelWarn     LogLevel = "warn"
	LevelError    LogLevel = "error"
	LevelDisabled LogLevel = "disabled"
)

// levels maps accepted spellings to their canonical level.
var levels = map[string]LogLevel{
	"":         LevelInfo,
	"debug":    LevelDebug,
	"info":     LevelInfo,
	"warn":     LevelWarn,
	"warning":  LevelWarn,
	"error":    LevelError,
	"disabled": LevelDisabled,
	"off":      LevelDisabled,
	"none":     LevelDisabled,
}

// ParseLevel validates a level name and returns its canonical form.
func ParseLevel(s string) (LogLevel, error) {
	level, ok := levels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Zerolog returns the zerolog level. Unknown names log at Info.
func (l LogLevel) Zerolog() zerolog.Level {
	canonical, err := ParseLevel(string(l))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch canonical {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelDisabled:
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON logging at Info to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup installs the global logger and level and returns the logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.Zerolog())

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// NewLogger derives a logger tagged with component from the global logger.
// Call it after Setup; loggers created earlier keep the previous output.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level usage across the catalog packages:
//
// Debug: conditional requests and 304 answers, normalization issue counts,
// durable store misses, background revalidation starts, HTTP access lines.
//
// Info: catalog fetched, refreshed or restored (entries, age), server
// startup and shutdown.
//
// Warn: retries exhausted, origin cooldowns, durable store failures with
// the catalog kept in memory, stale catalog served after a failed refresh,
// 5xx API replies.
//
// Error: no catalog available from any tier, configuration errors.
//
// Common fields: component, entries, age, status, error_class, etag,
// request_id, run_id (catalogctl).
