// Package log provides structured logging for go-focus.
// It wraps slog with sensible defaults and an optional rotating file sink.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Options configures the global logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to info.
	Level string

	// File, when set, also writes logs to a size-rotated file.
	File string

	// MaxSizeMB is the rotation size of File. Zero means 10MB.
	MaxSizeMB int
}

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	InitWithOptions(Options{Level: level})
}

// InitWithOptions initializes the global logger. Only the first call has effect.
func InitWithOptions(o Options) {
	once.Do(func() {
		opts := &slog.HandlerOptions{
			Level: ParseLevel(o.Level),
		}

		var w io.Writer = os.Stdout
		if o.File != "" {
			size := o.MaxSizeMB
			if size <= 0 {
				size = 10
			}
			w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   o.File,
				MaxSize:    size,
				MaxBackups: 3,
				MaxAge:     7,
				LocalTime:  true,
			})
		}

		// Use JSON in production, text in development
		if os.Getenv("GO_ENV") == "production" {
			logger = slog.New(slog.NewJSONHandler(w, opts))
		} else {
			logger = slog.New(slog.NewTextHandler(w, opts))
		}

		slog.SetDefault(logger)
	})
}

// ParseLevel maps a level name to a slog.Level, falling back to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
