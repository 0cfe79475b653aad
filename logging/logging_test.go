package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo, false)
	log.Info("paging enabled", "bytes", 16777216)

	line := buf.String()
	if !strings.Contains(line, "INFO [kernel] paging enabled") {
		t.Fatalf("line = %q, want level, component tag, and message", line)
	}
	if !strings.Contains(line, "bytes=16777216") {
		t.Fatalf("line = %q, want key=value attrs", line)
	}
}

func TestWithGroupRetagsComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo, false).WithGroup("console")
	log.Info("ready")

	if !strings.Contains(buf.String(), "[console]") {
		t.Fatalf("line = %q, want the console component tag", buf.String())
	}
}

func TestWithAttrsCarriedOnEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo, false).With("task", 3)
	log.Info("sleeping")

	if !strings.Contains(buf.String(), "task=3") {
		t.Fatalf("line = %q, want the bound attr", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelWarn, false)
	log.Info("hidden")

	if buf.Len() != 0 {
		t.Fatalf("info record leaked past a warn-level handler: %q", buf.String())
	}
}

func TestLastErrorRetained(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, slog.LevelInfo, false)
	log := slog.New(h)

	if h.LastError() != "" {
		t.Fatalf("LastError before any error = %q, want empty", h.LastError())
	}
	log.Info("not an error")
	if h.LastError() != "" {
		t.Fatalf("info record must not populate LastError")
	}
	log.Error("page fault, machine halted", "cr2", "DEADBEEF")
	if !strings.Contains(h.LastError(), "page fault, machine halted") {
		t.Fatalf("LastError = %q, want the fault line", h.LastError())
	}

	// Derived component handlers share the same slot.
	slog.New(h.WithGroup("console")).Error("line editor failed")
	if !strings.Contains(h.LastError(), "line editor failed") {
		t.Fatalf("LastError = %q, want the most recent error", h.LastError())
	}
}
