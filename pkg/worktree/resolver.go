// Package worktree resolves the working directory for a feature run: an
// isolated git worktree checked out to the feature branch, or the project
// root when no matching worktree exists. Resolution degrades, never
// fails: a missing worktree only relaxes isolation.
package worktree

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/ahmedshikashaker/automaker/pkg/exec"
	"github.com/ahmedshikashaker/automaker/pkg/logx"
)

// Resolution is the outcome of ResolveWorkDir. An empty WorktreePath
// means the run executes in the project root.
type Resolution struct {
	WorkDir      string
	WorktreePath string
}

// Resolver finds worktrees and answers git questions through the injected
// executor.
type Resolver struct {
	executor exec.Executor
	logger   *logx.Logger
}

// NewResolver creates a resolver on the given executor.
func NewResolver(executor exec.Executor) *Resolver {
	return &Resolver{
		executor: executor,
		logger:   logx.NewLogger("worktree"),
	}
}

// ResolveWorkDir determines the directory a run executes in. With
// worktrees disabled or no branch name, the project root is used. A
// lookup miss or git failure falls back to the project root.
func (r *Resolver) ResolveWorkDir(ctx context.Context, projectPath, branchName string, useWorktrees bool) Resolution {
	if !useWorktrees || branchName == "" {
		return Resolution{WorkDir: projectPath}
	}

	path, found := r.FindWorktreeForBranch(ctx, projectPath, branchName)
	if !found {
		r.logger.Warn("no worktree for branch %q under %s, falling back to project root", branchName, projectPath)
		return Resolution{WorkDir: projectPath}
	}

	r.logger.Debug("resolved branch %q to worktree %s", branchName, path)
	return Resolution{WorkDir: path, WorktreePath: path}
}

// FindWorktreeForBranch enumerates the repository's worktrees and returns
// the absolute path of the one checked out to branch. Relative paths in
// the porcelain listing are resolved against projectPath.
func (r *Resolver) FindWorktreeForBranch(ctx context.Context, projectPath, branch string) (string, bool) {
	res, err := r.executor.Run(ctx, []string{"git", "worktree", "list", "--porcelain"}, &exec.Opts{WorkDir: projectPath})
	if err != nil || res.ExitCode != 0 {
		r.logger.Warn("git worktree list failed in %s: exit=%d err=%v", projectPath, res.ExitCode, err)
		return "", false
	}

	for _, entry := range parseWorktreeList(res.Stdout) {
		// Detached worktrees carry no branch and never match.
		if entry.branch == "" || entry.branch != branch {
			continue
		}
		path := filepath.FromSlash(entry.path)
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectPath, path)
		}
		return filepath.Clean(path), true
	}
	return "", false
}

// worktreeEntry is one record of the porcelain listing.
type worktreeEntry struct {
	path   string
	branch string
}

// parseWorktreeList parses `git worktree list --porcelain` output. A
// record terminates on a blank line or end of input; detached worktrees
// carry no branch line and never match.
func parseWorktreeList(output string) []worktreeEntry {
	var entries []worktreeEntry
	var current worktreeEntry

	flush := func() {
		if current.path != "" {
			entries = append(entries, current)
		}
		current = worktreeEntry{}
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			current.path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			current.branch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	flush()
	return entries
}

// IsValidWorktree reports whether path is inside a git working tree.
// Fails soft: any command error means false.
func (r *Resolver) IsValidWorktree(ctx context.Context, path string) bool {
	res, err := r.executor.Run(ctx, []string{"git", "rev-parse", "--is-inside-work-tree"}, &exec.Opts{WorkDir: path})
	if err != nil || res.ExitCode != 0 {
		return false
	}
	return strings.TrimSpace(res.Stdout) == "true"
}

// GetWorktreeBranch returns the branch checked out at path. Fails soft:
// ("", false) on any command error or detached HEAD.
func (r *Resolver) GetWorktreeBranch(ctx context.Context, path string) (string, bool) {
	res, err := r.executor.Run(ctx, []string{"git", "rev-parse", "--abbrev-ref", "HEAD"}, &exec.Opts{WorkDir: path})
	if err != nil || res.ExitCode != 0 {
		return "", false
	}
	branch := strings.TrimSpace(res.Stdout)
	if branch == "" || branch == "HEAD" {
		return "", false
	}
	return branch, true
}
