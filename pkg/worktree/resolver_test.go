package worktree

import (
	"context"
	"errors"
	"testing"

	"github.com/ahmedshikashaker/automaker/pkg/testkit"
)

const porcelainListing = `worktree /repo
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /repo/.worktrees/feature-auth
HEAD 2222222222222222222222222222222222222222
branch refs/heads/feature/auth

worktree /repo/.worktrees/detached
HEAD 3333333333333333333333333333333333333333
detached
`

func TestFindWorktreeForBranch(t *testing.T) {
	scripted := testkit.NewScriptedExec(t).Respond("git worktree list --porcelain", porcelainListing, 0)
	resolver := NewResolver(scripted)

	path, found := resolver.FindWorktreeForBranch(context.Background(), "/repo", "feature/auth")
	if !found {
		t.Fatal("Expected to find the feature/auth worktree")
	}
	if path != "/repo/.worktrees/feature-auth" {
		t.Errorf("Expected worktree path, got %q", path)
	}
}

func TestFindWorktreeForBranchMiss(t *testing.T) {
	scripted := testkit.NewScriptedExec(t).Respond("git worktree list --porcelain", porcelainListing, 0)
	resolver := NewResolver(scripted)

	if _, found := resolver.FindWorktreeForBranch(context.Background(), "/repo", "feature/missing"); found {
		t.Error("Expected no match for an unknown branch")
	}
}

func TestDetachedWorktreeNeverMatches(t *testing.T) {
	scripted := testkit.NewScriptedExec(t).Respond("git worktree list --porcelain", porcelainListing, 0)
	resolver := NewResolver(scripted)

	// A detached worktree has no branch; the empty string must not
	// accidentally match it.
	if _, found := resolver.FindWorktreeForBranch(context.Background(), "/repo", ""); found {
		t.Error("Empty branch must not match a detached worktree")
	}
}

func TestRelativeWorktreePathResolved(t *testing.T) {
	listing := "worktree .worktrees/feature-x\nbranch refs/heads/feature/x\n"
	scripted := testkit.NewScriptedExec(t).Respond("git worktree list --porcelain", listing, 0)
	resolver := NewResolver(scripted)

	path, found := resolver.FindWorktreeForBranch(context.Background(), "/repo", "feature/x")
	if !found {
		t.Fatal("Expected to find the worktree")
	}
	if path != "/repo/.worktrees/feature-x" {
		t.Errorf("Expected relative path joined to project root, got %q", path)
	}
}

func TestResolveWorkDirFallsBackToProjectRoot(t *testing.T) {
	tests := []struct {
		name         string
		branch       string
		useWorktrees bool
		gitFails     bool
	}{
		{"worktrees disabled", "feature/auth", false, false},
		{"no branch", "", true, false},
		{"git failure", "feature/auth", true, true},
		{"lookup miss", "feature/unknown", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scripted := testkit.NewScriptedExec(t)
			if tt.gitFails {
				scripted.Respond("git worktree list --porcelain", "fatal: not a git repository", 128)
			} else {
				scripted.Respond("git worktree list --porcelain", porcelainListing, 0)
			}
			resolver := NewResolver(scripted)

			res := resolver.ResolveWorkDir(context.Background(), "/repo", tt.branch, tt.useWorktrees)
			if res.WorkDir != "/repo" {
				t.Errorf("Expected fallback to project root, got %q", res.WorkDir)
			}
			if res.WorktreePath != "" {
				t.Errorf("Fallback resolution must not claim a worktree, got %q", res.WorktreePath)
			}
		})
	}
}

func TestResolveWorkDirUsesWorktree(t *testing.T) {
	scripted := testkit.NewScriptedExec(t).Respond("git worktree list --porcelain", porcelainListing, 0)
	resolver := NewResolver(scripted)

	res := resolver.ResolveWorkDir(context.Background(), "/repo", "feature/auth", true)
	if res.WorkDir != "/repo/.worktrees/feature-auth" {
		t.Errorf("Expected worktree as work dir, got %q", res.WorkDir)
	}
	if res.WorktreePath != res.WorkDir {
		t.Errorf("Expected WorktreePath to match WorkDir, got %q", res.WorktreePath)
	}
}

func TestFindWorktreeExecError(t *testing.T) {
	scripted := testkit.NewScriptedExec(t).Fail("git worktree list", errors.New("git not installed"))
	resolver := NewResolver(scripted)

	if _, found := resolver.FindWorktreeForBranch(context.Background(), "/repo", "main"); found {
		t.Error("Executor error must resolve to not found")
	}
}

func TestIsValidWorktree(t *testing.T) {
	scripted := testkit.NewScriptedExec(t).Respond("git rev-parse --is-inside-work-tree", "true\n", 0)
	resolver := NewResolver(scripted)

	if !resolver.IsValidWorktree(context.Background(), "/repo") {
		t.Error("Expected a valid worktree")
	}

	failing := testkit.NewScriptedExec(t).Respond("git rev-parse --is-inside-work-tree", "fatal: not a git repository", 128)
	if NewResolver(failing).IsValidWorktree(context.Background(), "/elsewhere") {
		t.Error("Git failure must mean invalid")
	}
}

func TestGetWorktreeBranch(t *testing.T) {
	scripted := testkit.NewScriptedExec(t).Respond("git rev-parse --abbrev-ref HEAD", "feature/auth\n", 0)
	resolver := NewResolver(scripted)

	branch, ok := resolver.GetWorktreeBranch(context.Background(), "/repo")
	if !ok || branch != "feature/auth" {
		t.Errorf("Expected feature/auth, got %q (ok=%v)", branch, ok)
	}

	detached := testkit.NewScriptedExec(t).Respond("git rev-parse --abbrev-ref HEAD", "HEAD\n", 0)
	if _, ok := NewResolver(detached).GetWorktreeBranch(context.Background(), "/repo"); ok {
		t.Error("Detached HEAD must report no branch")
	}
}

func TestParseWorktreeListFinalRecordWithoutBlankLine(t *testing.T) {
	listing := "worktree /repo\nbranch refs/heads/main"
	entries := parseWorktreeList(listing)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].path != "/repo" || entries[0].branch != "main" {
		t.Errorf("Unexpected entry: %+v", entries[0])
	}
}
