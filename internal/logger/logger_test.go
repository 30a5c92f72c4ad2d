package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	log := Default()
	if log == nil {
		t.Fatal("Default() returned nil")
	}
	log.Debug("debug message")
	log.Info("info message")
}

func TestNewJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, FormatJSON, slog.LevelInfo)
	log.Info("parsed", "tensors", 3)

	out := buf.String()
	if !strings.Contains(out, `"msg":"parsed"`) {
		t.Fatalf("expected message in JSON output, got: %s", out)
	}
	if !strings.Contains(out, `"tensors":3`) {
		t.Fatalf("expected tensors=3 in JSON output, got: %s", out)
	}
	if !strings.Contains(out, `"level":"INFO"`) {
		t.Fatalf("expected INFO level, got: %s", out)
	}
}

func TestNewLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, FormatText, slog.LevelWarn)
	log.Info("hidden")
	log.Debug("hidden too")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected warn output, got: %s", buf.String())
	}
}

func TestNewPretty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, FormatPretty, slog.LevelDebug)
	log.Debug("skipped tensor", "name", "w", "reason", "missing dtype")

	out := buf.String()
	if !strings.Contains(out, "DBG") {
		t.Fatalf("expected DBG tag, got: %s", out)
	}
	if !strings.Contains(out, "name=w") {
		t.Fatalf("expected name=w, got: %s", out)
	}
	if !strings.Contains(out, `reason="missing dtype"`) {
		t.Fatalf("expected quoted reason, got: %s", out)
	}
}

func TestResolveFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	tests := []struct {
		in   string
		want string
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"text", FormatText},
		{"pretty", FormatPretty},
		{"auto", FormatText},
		{"", FormatText},
		{"bogus", FormatText},
	}
	for _, tc := range tests {
		if got := ResolveFormat(tc.in, &buf); got != tc.want {
			t.Errorf("ResolveFormat(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestWithAndGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, FormatJSON, slog.LevelInfo)
	log.With("component", "safetensors").WithGroup("header").Info("read", "len", 58)

	out := buf.String()
	if !strings.Contains(out, `"component":"safetensors"`) {
		t.Fatalf("expected component attr, got: %s", out)
	}
	if !strings.Contains(out, `"header":{"len":58}`) {
		t.Fatalf("expected grouped attr, got: %s", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), New(&buf, FormatJSON, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip")
	if !strings.Contains(buf.String(), "roundtrip") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without logger returned nil")
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	Discard().Error("nothing to see")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestPrettyHandlerGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)
	slog.New(h.WithGroup("a").WithGroup("b").WithAttrs([]slog.Attr{slog.String("k", "v")})).Info("nested")
	if !strings.Contains(buf.String(), "a.b.k=v") {
		t.Fatalf("expected a.b.k=v, got: %s", buf.String())
	}
	if h.WithGroup("") != h {
		t.Fatal("WithGroup(\"\") should return the same handler")
	}
}

func TestPrettyHighlightsErrors(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, nil)).Error("parse failed", "err", "truncated")
	if !strings.Contains(buf.String(), colorRed+"err=truncated") {
		t.Fatalf("expected red err attr, got: %q", buf.String())
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want bool
	}{
		{"simple", false},
		{"has space", true},
		{"has\ttab", true},
		{`has"quote`, true},
		{"k=v", true},
		{"", false},
	}
	for _, tc := range tests {
		if got := needsQuoting(tc.in); got != tc.want {
			t.Errorf("needsQuoting(%q): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}
