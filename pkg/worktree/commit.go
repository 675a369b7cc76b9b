package worktree

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahmedshikashaker/automaker/pkg/exec"
)

// HasChanges reports whether dir has uncommitted changes (staged,
// unstaged, or untracked). Fails soft: false on any command error.
func (r *Resolver) HasChanges(ctx context.Context, dir string) bool {
	res, err := r.executor.Run(ctx, []string{"git", "status", "--porcelain"}, &exec.Opts{WorkDir: dir})
	if err != nil || res.ExitCode != 0 {
		return false
	}
	return strings.TrimSpace(res.Stdout) != ""
}

// CommitAll stages everything in dir and commits with the given message,
// returning the new commit SHA. Used by the controller after a successful
// run when auto-commit is enabled.
func (r *Resolver) CommitAll(ctx context.Context, dir, message string) (string, error) {
	res, err := r.executor.Run(ctx, []string{"git", "add", "-A"}, &exec.Opts{WorkDir: dir})
	if err != nil {
		return "", fmt.Errorf("git add failed: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git add failed: %s", strings.TrimSpace(res.Stderr))
	}

	res, err = r.executor.Run(ctx, []string{"git", "commit", "-m", message}, &exec.Opts{WorkDir: dir})
	if err != nil {
		return "", fmt.Errorf("git commit failed: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git commit failed: %s", strings.TrimSpace(res.Stderr))
	}

	res, err = r.executor.Run(ctx, []string{"git", "rev-parse", "HEAD"}, &exec.Opts{WorkDir: dir})
	if err != nil || res.ExitCode != 0 {
		return "", fmt.Errorf("git rev-parse HEAD failed: exit=%d err=%v", res.ExitCode, err)
	}
	return strings.TrimSpace(res.Stdout), nil
}
