// Package log provides structured logging for datacore: JSON to stderr,
// with one child logger per subsystem.
package log

import (
	"log/slog"
	"os"
)

var root = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// Logger is a leveled logger scoped to one subsystem.
type Logger struct {
	inner *slog.Logger
}

// Module returns a logger tagged with the given subsystem name (core,
// protocol, link, ...).
func Module(name string) *Logger {
	return &Logger{inner: root.With("module", name)}
}

// Debug logs at LevelDebug.
func (l *Logger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }

// Info logs at LevelInfo.
func (l *Logger) Info(msg string, args ...any) { l.inner.Info(msg, args...) }

// Warn logs at LevelWarn.
func (l *Logger) Warn(msg string, args ...any) { l.inner.Warn(msg, args...) }

// Error logs at LevelError.
func (l *Logger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

// Error logs an untagged process-level failure.
func Error(msg string, args ...any) { root.Error(msg, args...) }
