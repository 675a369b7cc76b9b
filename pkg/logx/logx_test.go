package logx

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// setupTestLogger swaps the package sink for a bytes.Buffer.
func setupTestLogger() *bytes.Buffer {
	var buf bytes.Buffer
	logWriterLock.Lock()
	logWriter = &buf
	logWriterLock.Unlock()
	return &buf
}

// resetTestLogger restores the default stderr sink.
func resetTestLogger() {
	logWriterLock.Lock()
	logWriter = nil
	logWriterLock.Unlock()
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("autoloop")

	if logger.Component() != "autoloop" {
		t.Errorf("Expected component 'autoloop', got '%s'", logger.Component())
	}
}

func TestLogFormat(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	logger := NewLogger("approval-gate")
	logger.Info("Test message with %s", "formatting")

	output := buf.String()

	if !strings.Contains(output, "[approval-gate]") {
		t.Errorf("Expected component ID in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}
	if !strings.Contains(output, "Test message with formatting") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}
	if !strings.Contains(output, "T") || !strings.Contains(output, "Z") {
		t.Errorf("Expected ISO timestamp in output, got: %s", output)
	}
}

func TestDebugSuppressedByDefault(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	SetDebug(false, nil)
	logger := NewLogger("worktree")
	logger.Debug("should not appear")

	if strings.Contains(buf.String(), "should not appear") {
		t.Errorf("Debug output emitted while debug disabled: %s", buf.String())
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	buf := setupTestLogger()
	defer func() {
		resetTestLogger()
		SetDebug(false, nil)
	}()

	SetDebug(true, []string{"autoloop"})

	NewLogger("autoloop").Debug("loop detail")
	NewLogger("worktree").Debug("worktree detail")

	output := buf.String()
	if !strings.Contains(output, "loop detail") {
		t.Errorf("Expected enabled domain to log, got: %s", output)
	}
	if strings.Contains(output, "worktree detail") {
		t.Errorf("Expected filtered domain to be silent, got: %s", output)
	}
}

func TestIsDebugEnabled(t *testing.T) {
	defer SetDebug(false, nil)

	SetDebug(true, nil)
	if !IsDebugEnabled("anything") {
		t.Error("Expected all domains enabled when no filter set")
	}

	SetDebug(true, []string{"tasks"})
	if !IsDebugEnabled("tasks") {
		t.Error("Expected 'tasks' domain enabled")
	}
	if IsDebugEnabled("provider") {
		t.Error("Expected 'provider' domain disabled")
	}

	SetDebug(false, nil)
	if IsDebugEnabled("tasks") {
		t.Error("Expected all domains disabled when debug off")
	}
}

func TestBufferSnapshot(t *testing.T) {
	setupTestLogger()
	defer resetTestLogger()

	before := time.Now().UTC().Add(-time.Second)

	NewLogger("kernel").Info("kernel up")
	NewLogger("httpapi").Warn("slow request")

	entries := RecentEntries("kernel", before)
	found := false
	for _, e := range entries {
		if e.Component != "kernel" {
			t.Errorf("Component filter leaked entry for %q", e.Component)
		}
		if e.Message == "kernel up" {
			found = true
		}
	}
	if !found {
		t.Error("Expected buffered entry for kernel message")
	}
}

func TestBufferCapBounded(t *testing.T) {
	setupTestLogger()
	defer resetTestLogger()

	b := &Buffer{maxSize: 3}
	for i := 0; i < 10; i++ {
		b.add(Entry{Message: "m", Timestamp: time.Now().UTC().Format(timestampLayout)})
	}
	if got := len(b.Snapshot("", time.Time{})); got != 3 {
		t.Errorf("Expected buffer capped at 3 entries, got %d", got)
	}
}

func TestErrorfReturnsError(t *testing.T) {
	setupTestLogger()
	defer resetTestLogger()

	err := Errorf("bad thing: %d", 42)
	if err == nil {
		t.Fatal("Expected error return")
	}
	if err.Error() != "bad thing: 42" {
		t.Errorf("Unexpected error text: %v", err)
	}
}

func TestWrap(t *testing.T) {
	setupTestLogger()
	defer resetTestLogger()

	if Wrap(nil, "context") != nil {
		t.Error("Expected nil passthrough for nil error")
	}

	base := errors.New("boom")
	wrapped := Wrap(base, "opening store")
	if wrapped == nil {
		t.Fatal("Expected wrapped error")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Expected wrapped error to unwrap to base")
	}
	if !strings.Contains(wrapped.Error(), "opening store") {
		t.Errorf("Expected context in message, got: %v", wrapped)
	}
}
