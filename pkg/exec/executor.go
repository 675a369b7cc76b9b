// Package exec provides the command execution seam used by the worktree
// resolver and commit helpers. All child-process invocation goes through
// the Executor interface so tests can substitute a fake runner.
package exec

import (
	"context"
	"time"
)

// Executor defines the interface for executing commands.
type Executor interface {
	// Run executes a command with the given options and returns the result.
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)

	// Name returns the executor name for logging/debugging.
	Name() string
}

// Opts contains options for command execution.
type Opts struct {
	// Env contains extra environment variables (KEY=VALUE format),
	// appended to the current environment.
	Env []string

	// Timeout is the maximum duration for command execution.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string
}

// Result contains the result of command execution.
type Result struct {
	// Stdout contains the standard output.
	Stdout string

	// Stderr contains the standard error output.
	Stderr string

	// Duration is how long the command took to execute.
	Duration time.Duration

	// ExitCode is the exit code of the command.
	ExitCode int
}

// DefaultOpts returns default execution options.
func DefaultOpts() *Opts {
	return &Opts{
		Timeout: 2 * time.Minute,
	}
}
