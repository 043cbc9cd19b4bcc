package slogx

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestErrAttr(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	attr := ErrAttr(err)
	if attr.Key != "error" {
		t.Errorf("ErrAttr() Key = %v, want error", attr.Key)
	}
	if attr.Value.Any() != err {
		t.Errorf("ErrAttr() Value = %v, want %v", attr.Value.Any(), err)
	}
}

func TestReplacer(t *testing.T) {
	t.Parallel()

	got := Replacer(nil, slog.Duration("elapsed", 2500*time.Millisecond))
	if got.Value.Kind() != slog.KindString || got.Value.String() != "2.5s" {
		t.Errorf("duration rendered as %v (%v)", got.Value, got.Value.Kind())
	}
	same := Replacer(nil, slog.Int("n", 3))
	if same.Value.Kind() != slog.KindInt64 {
		t.Errorf("int kind changed to %v", same.Value.Kind())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in, slog.LevelInfo); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_Formats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&buf, slog.LevelInfo, "json").Info("hello", slog.Duration("d", time.Second))
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"d":"1s"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	New(&buf, slog.LevelWarn, "text").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged below warn level: %q", buf.String())
	}
}
