// Package slogx holds the small amount of glue every binary needs around
// log/slog: handler selection, level parsing and a uniform error attribute.
package slogx

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// ErrAttr returns the attribute used for errors in every log line.
func ErrAttr(err error) slog.Attr {
	return slog.Any("error", err)
}

// Replacer renders durations as human strings ("2.5s") instead of nanoseconds.
func Replacer(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.String(a.Key, a.Value.Duration().String())
	}
	return a
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a level, falling back to def.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return def
}

// New builds a logger writing to w. format is "json" or "text" (default).
func New(w io.Writer, level slog.Leveler, format string) *slog.Logger {
	opts := slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: Replacer,
	}
	var h slog.Handler = slog.NewTextHandler(w, &opts)
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, &opts)
	}
	return slog.New(h)
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Since is a convenience attribute for elapsed time.
func Since(key string, start time.Time) slog.Attr {
	return slog.Duration(key, time.Since(start))
}
