// Package logx provides component-scoped logging with env-driven debug domains.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes leveled, component-tagged lines to the package sink
// (stderr unless overridden for tests).
type Logger struct {
	component string
}

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // nil means all domains
}

// Entry is a structured log record kept in the in-memory buffer for the
// status API.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Buffer stores the most recent log entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
}

var (
	debugConfig = &DebugConfig{}
	debugMu     sync.RWMutex

	// logWriter overrides the stderr sink when non-nil. Tests swap in a
	// bytes.Buffer here.
	logWriter     io.Writer
	logWriterLock sync.RWMutex

	// Recent entries are retained so the HTTP status API can serve them
	// without scraping stderr.
	buffer = &Buffer{maxSize: 1000}
)

func init() { //nolint:gochecknoinits // env var initialization
	initDebugFromEnv()
}

// initDebugFromEnv reads AUTOMAKER_DEBUG and AUTOMAKER_DEBUG_DOMAINS.
// Plain DEBUG=1 is honored too for muscle-memory compatibility.
func initDebugFromEnv() {
	debugMu.Lock()
	defer debugMu.Unlock()

	for _, key := range []string{"AUTOMAKER_DEBUG", "DEBUG"} {
		if v := os.Getenv(key); v == "1" || strings.EqualFold(v, "true") {
			debugConfig.Enabled = true
			break
		}
	}

	if domains := os.Getenv("AUTOMAKER_DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(d)] = true
		}
	}
}

// NewLogger creates a logger tagged with a component ID, e.g. "autoloop"
// or "approval-gate".
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// SetDebug configures global debug logging at runtime, overriding the env.
func SetDebug(enabled bool, domains []string) {
	debugMu.Lock()
	defer debugMu.Unlock()

	debugConfig.Enabled = enabled
	if len(domains) == 0 {
		debugConfig.Domains = nil
		return
	}
	debugConfig.Domains = make(map[string]bool)
	for _, d := range domains {
		debugConfig.Domains[strings.TrimSpace(d)] = true
	}
}

// IsDebugEnabled reports whether debug logging is on for the given domain.
// An empty domain checks the global switch only.
func IsDebugEnabled(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if domain == "" || debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

func writeLine(line string) {
	logWriterLock.RLock()
	w := logWriter
	logWriterLock.RUnlock()
	if w == nil {
		w = os.Stderr // stderr keeps stdout clean for CLI output
	}
	fmt.Fprintln(w, line)
}

func (b *Buffer) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, e)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// Snapshot returns a copy of buffered entries, optionally filtered by
// component and minimum timestamp.
func (b *Buffer) Snapshot(component string, since time.Time) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, 0, len(b.entries))
	for i := range b.entries {
		e := &b.entries[i]
		if component != "" && !strings.EqualFold(e.Component, component) {
			continue
		}
		if !since.IsZero() {
			ts, err := time.Parse(timestampLayout, e.Timestamp)
			if err != nil || ts.Before(since) {
				continue
			}
		}
		out = append(out, *e)
	}
	return out
}

// RecentEntries exposes the global buffer for the status API.
func RecentEntries(component string, since time.Time) []Entry {
	return buffer.Snapshot(component, since)
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format(timestampLayout)
	message := fmt.Sprintf(format, args...)
	writeLine(fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.component, level, message))

	buffer.add(Entry{
		Timestamp: timestamp,
		Component: l.component,
		Level:     string(level),
		Message:   message,
	})
}

// Debug logs when debug is enabled for this logger's component domain.
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled(l.component) {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Component returns the component ID this logger is tagged with.
func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a logger under a new component tag.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component}
}

// Global convenience logger for code without an obvious owner.
var defaultLogger = NewLogger("system")

func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
// Use when a failure needs both logging and propagation:
//
//	return logx.Errorf("store open failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err and returns the wrapped error. A nil err
// passes through untouched.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
