package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Fatalf("expected NopLogger for nil")
	}
	l := NewSlogLogger(nil)
	if OrNop(l) != Logger(l) {
		t.Fatalf("expected logger to be passed through")
	}
}

func TestSlogLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	l := NewSlogLogger(slog.New(h)).With(String("doc", "a.pdf"))
	l.Warn("load failed", Int("page", 3), Float64("scale", 1.5), Error("err", errors.New("boom")))

	out := buf.String()
	for _, want := range []string{"level=WARN", "doc=a.pdf", "page=3", "scale=1.5", "err=boom", `msg="load failed"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":  slog.LevelDebug,
		"info":   slog.LevelInfo,
		"warn":   slog.LevelWarn,
		"error":  slog.LevelError,
		"":       slog.LevelInfo,
		"DEBUG":  slog.LevelDebug,
		"Warn":   slog.LevelWarn,
		" error": slog.LevelError,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
