package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	NewComponentLogger(logger, "staging").Info("operation staged",
		String(FieldBatchID, "batch-1"),
		Float64(FieldConfidence, 0.92),
	)

	out := buf.String()
	if !strings.Contains(out, "[staging]") {
		t.Fatalf("expected component prefix, got %q", out)
	}
	if !strings.Contains(out, "batch_id=batch-1") {
		t.Fatalf("expected batch attr, got %q", out)
	}
	if !strings.Contains(out, "operation staged") {
		t.Fatalf("expected message, got %q", out)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected info record to be suppressed, got %q", buf.String())
	}

	logger.Warn("surfaced")
	if !strings.Contains(buf.String(), "surfaced") {
		t.Fatalf("expected warn record, got %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("dropped", Error(nil))
}
