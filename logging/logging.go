// Package logging provides the logger facade the core binds to, a thin
// wrapper over log/slog. Components take a *Logger field at construction
// so applications can inject their own slog handler.
package logging

import (
	"log/slog"
	"os"
)

// Logger is the facade every core component logs through. Bind a concrete
// backend with New or Default; both return the same type so call sites
// never depend on the slog import directly.
type Logger struct {
	slog *slog.Logger
}

// Default returns a Logger writing text-formatted records to stderr at
// Info level, the fallback used when no logger is bound explicitly.
func Default() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(os.Stderr, nil))}
}

// New wraps an application-supplied *slog.Logger.
func New(l *slog.Logger) *Logger {
	if l == nil {
		return Default()
	}
	return &Logger{slog: l}
}

// With returns a child logger with the given key/value pairs attached to
// every subsequent record, mirroring slog.Logger.With.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }
