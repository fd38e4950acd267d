//go:build linux

package logger

import (
	"log/slog"
	"os"
)

/**
 * Represents a log format.
 */
type LogFormat int

/**
 * Supported log formats.
 */
const (
	LogText LogFormat = iota
	LogJSON
)

/**
 * Logger options.
 */
type LoggerOpts struct {
	LogLevel  slog.Level
	LogFormat LogFormat
}

/**
 * The global logger instance.
 */
var Log *slog.Logger

/**
 * Creates a global structured logger.
 * @param opts the logger options.
 * @return the created logger instance.
 */
func CreateLogger(opts *LoggerOpts) *slog.Logger {
	var logHandler slog.Handler

	if Log != nil {
		return Log
	}

	handlerOpts := &slog.HandlerOptions{
		Level: opts.LogLevel,
	}

	// Choose the log format.
	if opts.LogFormat == LogText {
		logHandler = slog.NewTextHandler(os.Stdout, handlerOpts)
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	}

	// Create a new structured logger.
	logger := slog.New(logHandler)

	// Add context fields.
	Log = logger.With(
		slog.Int("pid", os.Getpid()),
	)

	// Set as the default logger.
	slog.SetDefault(Log)

	return Log
}

// WithInstance scopes a logger to a single sandbox run so its log lines can
// be told apart from other runs sharing the same supervisor process log
// stream. Every run is identified by the instance name that also names its
// cgroup directory and, in bridge mode, its veth pair, so an operator can
// correlate a log line with the on-disk/on-wire state of the same run.
//
// A nil log falls back to slog.Default, so library callers that never went
// through CreateLogger still get a working logger.
func WithInstance(log *slog.Logger, instance string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	if instance == "" {
		return log
	}
	return log.With(slog.String("instance", instance))
}
