package exec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalExecName(t *testing.T) {
	e := NewLocalExec()
	if e.Name() != "local" {
		t.Errorf("Expected name 'local', got %s", e.Name())
	}
}

func TestLocalExecRun(t *testing.T) {
	e := NewLocalExec()

	result, err := e.Run(context.Background(), []string{"echo", "hello world"}, DefaultOpts())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "hello world" {
		t.Errorf("Expected 'hello world', got %q", result.Stdout)
	}
	if result.Duration <= 0 {
		t.Error("Expected positive duration")
	}
}

func TestLocalExecNonZeroExit(t *testing.T) {
	e := NewLocalExec()

	// Non-zero exit is reported through ExitCode, not the error return.
	result, err := e.Run(context.Background(), []string{"sh", "-c", "exit 3"}, DefaultOpts())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", result.ExitCode)
	}
}

func TestLocalExecEmptyCommand(t *testing.T) {
	e := NewLocalExec()

	if _, err := e.Run(context.Background(), nil, DefaultOpts()); err == nil {
		t.Error("Expected error for empty command")
	}
}

func TestLocalExecWorkDir(t *testing.T) {
	e := NewLocalExec()
	dir := t.TempDir()

	result, err := e.Run(context.Background(), []string{"sh", "-c", "echo ok > marker && cat marker"}, &Opts{WorkDir: dir})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "ok" {
		t.Errorf("Expected command to run in the work dir, got %q", result.Stdout)
	}
}

func TestLocalExecMissingWorkDir(t *testing.T) {
	e := NewLocalExec()

	_, err := e.Run(context.Background(), []string{"true"}, &Opts{WorkDir: "/no/such/dir"})
	if err == nil {
		t.Error("Expected error for missing working directory")
	}
}

func TestLocalExecEnv(t *testing.T) {
	e := NewLocalExec()

	result, err := e.Run(context.Background(), []string{"sh", "-c", "echo $AUTOMAKER_TEST_VAR"},
		&Opts{Env: []string{"AUTOMAKER_TEST_VAR=wired"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "wired" {
		t.Errorf("Expected injected env value, got %q", result.Stdout)
	}
}

func TestLocalExecTimeout(t *testing.T) {
	e := NewLocalExec()

	result, err := e.Run(context.Background(), []string{"sleep", "5"},
		&Opts{Timeout: 50 * time.Millisecond})
	if err == nil && result.ExitCode == 0 {
		t.Error("Expected the command to be killed by the timeout")
	}
}

func TestLocalExecStderr(t *testing.T) {
	e := NewLocalExec()

	result, err := e.Run(context.Background(), []string{"sh", "-c", "echo oops >&2"}, DefaultOpts())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(result.Stderr) != "oops" {
		t.Errorf("Expected stderr 'oops', got %q", result.Stderr)
	}
}

func TestDefaultOpts(t *testing.T) {
	opts := DefaultOpts()
	if opts.Timeout != 2*time.Minute {
		t.Errorf("Expected 2m default timeout, got %s", opts.Timeout)
	}
}
