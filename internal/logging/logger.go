// Package logging sets up the process-wide slog logger with console
// and rotating file sinks.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"rategate/internal/config"
)

var (
	// Closers for file sinks, flushed on Shutdown.
	sinks   []io.Closer
	sinksMu sync.Mutex
)

// Initialize sets up the global logger based on configuration.
func Initialize(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	slog.SetDefault(logger)

	slog.Info("Logging initialized",
		"level", cfg.Level,
		"format", cfg.Format,
		"dir", cfg.Dir,
		"console_enabled", cfg.Console.Enabled,
		"file_enabled", cfg.File.Enabled,
	)

	return nil
}

// NewLogger creates a logger instance with the given configuration.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	var handlers []slog.Handler

	if cfg.Console.Enabled {
		level := ParseLevel(cfg.Console.Level)
		handlers = append(handlers, createHandler(os.Stdout, cfg.Console.Format, level))
	}

	if cfg.File.Enabled {
		// Main log file, all levels at or above the configured one.
		mainFile := newRotatingFile(cfg, filepath.Join(cfg.Dir, "rategate.log"))
		mainWriter := registerSink(newAsyncWriter(mainFile))
		handlers = append(handlers, createHandler(mainWriter, cfg.File.Format, ParseLevel(cfg.File.Level)))

		// Error log file, warn and error only.
		errorFile := newRotatingFile(cfg, filepath.Join(cfg.Dir, "errors.log"))
		errorWriter := registerSink(newAsyncWriter(errorFile))
		errorHandler := createHandler(errorWriter, cfg.File.Format, slog.LevelWarn)
		handlers = append(handlers, NewLevelFilter(errorHandler, slog.LevelWarn))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, nil)
	case 1:
		handler = handlers[0]
	default:
		handler = NewMultiHandler(handlers...)
	}

	return slog.New(handler), nil
}

// Shutdown flushes and closes all file sinks.
func Shutdown() error {
	sinksMu.Lock()
	defer sinksMu.Unlock()

	for _, s := range sinks {
		if err := s.Close(); err != nil {
			return fmt.Errorf("failed to close log sink: %w", err)
		}
	}
	sinks = nil
	return nil
}

func newRotatingFile(cfg config.LoggingConfig, path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
}

func newAsyncWriter(w io.WriteCloser) io.WriteCloser {
	return NewAsyncWriter(w)
}

func registerSink(s io.WriteCloser) io.Writer {
	sinksMu.Lock()
	defer sinksMu.Unlock()
	sinks = append(sinks, s)
	return s
}

// ParseLevel maps a config string to a slog level. Unknown strings
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
