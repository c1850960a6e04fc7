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

// Format selects the log line encoding.
type Format string

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"

	// FormatConsole writes human-readable colored lines.
	FormatConsole Format = "console"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Format is the output encoding (default: json).
	Format Format

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if parseFormat(cfg.Format) == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
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

// parseFormat maps unknown formats to json.
func parseFormat(f Format) Format {
	if strings.EqualFold(string(f), string(FormatConsole)) {
		return FormatConsole
	}
	return FormatJSON
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Per-record and per-page detail
//   - Page fetched (page, items)
//   - Cache hit/miss for a detail record
//   - Retry waits (attempt, backoff)
//
// Info: Run milestones
//   - Run started/finished (run_id, duration)
//   - Total pages learned, fetch progress
//   - Chunk posted, chunk completed (done/total)
//
// Warn: Degraded but continuing
//   - Transient request failure before a retry
//   - Chunk with nothing to post
//   - Transformation errors in a chunk
//   - Cache errors (fallback to the network)
//
// Error: Something was dropped or the run failed
//   - Page skipped, record dropped after retries
//   - Chunk post rejected
//   - Extraction or run failure
//
// Context Fields:
//   - component: emitting component (client, paginator, scheduler, pipeline)
//   - run_id: pipeline run identifier
//   - endpoint, status, error_class, attempt: transport details
//   - page, total_pages: listing position
//   - animal_id, chunk, worker_id: load position
//   - duration: elapsed time of the logged step
