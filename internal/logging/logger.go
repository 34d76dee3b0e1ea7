// Package logging is a small interface over slog so components depend on
// Logger rather than on a concrete handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the structured logger every component accepts. Args are
// alternating key/value pairs, as with slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a Logger that adds args to every entry.
	With(args ...any) Logger
}

// Config selects the level, format and destination of a Logger.
type Config struct {
	Level  string // debug, info, warn or error
	Format string // json or text
	Output io.Writer
}

// New builds a slog-backed Logger. An unknown level is an error; an empty
// level means info and an empty format means text.
func New(cfg Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	return FromSlog(slog.New(handler)), nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// FromSlog wraps an existing *slog.Logger.
func FromSlog(l *slog.Logger) Logger {
	return slogAdapter{l}
}

// Default wraps slog.Default().
func Default() Logger {
	return FromSlog(slog.Default())
}

// Component returns l tagged with the component attribute.
func Component(l Logger, name string) Logger {
	if l == nil {
		l = NoOp{}
	}
	return l.With("component", name)
}

type slogAdapter struct {
	l *slog.Logger
}

func (s slogAdapter) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s slogAdapter) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogAdapter) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogAdapter) Error(msg string, args ...any) { s.l.Error(msg, args...) }
func (s slogAdapter) With(args ...any) Logger       { return slogAdapter{s.l.With(args...)} }

// NoOp discards everything.
type NoOp struct{}

func (NoOp) Debug(string, ...any) {}
func (NoOp) Info(string, ...any)  {}
func (NoOp) Warn(string, ...any)  {}
func (NoOp) Error(string, ...any) {}
func (n NoOp) With(...any) Logger { return n }
