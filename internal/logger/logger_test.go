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
	// Should not panic
	log.Debug("created instance")
	log.Info("selected resource")
	log.Warn("rescaling disabled")
	log.Error("peel failed")
}

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("instance created", "instance", 3, "resource", "cpu")

	output := buf.String()
	if !strings.Contains(output, "instance created") {
		t.Fatalf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, `"resource":"cpu"`) {
		t.Fatalf("expected resource attr in JSON output, got: %s", output)
	}
	if !strings.Contains(output, `"level":"INFO"`) {
		t.Fatalf("expected level INFO in output, got: %s", output)
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Debug("suppressed")
	log.Info("suppressed")

	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn level, got: %s", buf.String())
	}

	log.Warn("underflow at site")
	if !strings.Contains(buf.String(), "underflow at site") {
		t.Fatalf("expected warn message in output, got: %s", buf.String())
	}
}

func TestPretty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug)
	log.Debug("matrices updated", "eigen", 0, "count", 4)

	output := buf.String()
	if !strings.Contains(output, "matrices updated") {
		t.Fatalf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, "count=4") {
		t.Fatalf("expected 'count=4' in output, got: %s", output)
	}
}

func TestWith(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	child := log.With("instance", 7)
	child.Info("partials loaded")

	output := buf.String()
	if !strings.Contains(output, `"instance":7`) {
		t.Fatalf("expected instance attr in output, got: %s", output)
	}
	if !strings.Contains(output, "partials loaded") {
		t.Fatalf("expected message in output, got: %s", output)
	}
}

func TestFromContextDefault(t *testing.T) {
	t.Parallel()
	log := FromContext(context.Background())
	if log == nil {
		t.Fatal("FromContext with no logger returned nil")
	}
	// Should not panic
	log.Info("from context")
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)

	ctx := WithContext(context.Background(), log)
	retrieved := FromContext(ctx)

	retrieved.Info("context round trip")
	if !strings.Contains(buf.String(), "context round trip") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelInfo}, // case-sensitive
	}

	for _, tc := range tests {
		result := ParseLevel(tc.input)
		if result != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, result)
		}
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected warn to be enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
}

func TestPrettyHandlerGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)

	grouped := slog.New(h.WithGroup("engine").WithGroup("store"))
	grouped.Info("allocated", "buffers", 5)

	output := buf.String()
	if !strings.Contains(output, "engine.store.buffers=5") {
		t.Fatalf("expected group-prefixed attr, got: %s", output)
	}

	if h.WithGroup("") != h {
		t.Fatal("WithGroup empty string should return same handler")
	}
}

func TestPrettyHandlerWithAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)

	bound := slog.New(h.WithAttrs([]slog.Attr{slog.String("resource", "cpu-vector")}))
	bound.Info("selected")

	output := buf.String()
	if !strings.Contains(output, "resource=cpu-vector") {
		t.Fatalf("expected bound attr in output, got: %s", output)
	}
}

func TestPrettyQuoting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil))
	log.Info("quoting", "err", "invalid site likelihood", "name", "jc69")

	output := buf.String()
	if !strings.Contains(output, `err="invalid site likelihood"`) {
		t.Fatalf("expected quoted string with spaces, got: %s", output)
	}
	if !strings.Contains(output, "name=jc69") || strings.Contains(output, `name="jc69"`) {
		t.Fatalf("simple strings should not be quoted, got: %s", output)
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bool
	}{
		{"cpu-vector", false},
		{"no resource", true},
		{"tab\there", true},
		{"line\nbreak", true},
		{`a"b`, true},
		{"", false},
	}

	for _, tc := range tests {
		result := needsQuoting(tc.input)
		if result != tc.expected {
			t.Errorf("needsQuoting(%q): expected %v, got %v", tc.input, tc.expected, result)
		}
	}
}
