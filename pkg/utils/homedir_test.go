package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureAutomakerDir(t *testing.T) {
	project := t.TempDir()

	dir, err := EnsureAutomakerDir(project)
	if err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if dir != filepath.Join(project, AutomakerDir) {
		t.Errorf("Unexpected dir path %q", dir)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Expected dir to exist: %v", err)
	}
	if !info.IsDir() {
		t.Error("Expected a directory")
	}

	// Idempotent on an existing directory.
	if _, err := EnsureAutomakerDir(project); err != nil {
		t.Errorf("Expected second call to succeed, got %v", err)
	}
}

func TestProjectPaths(t *testing.T) {
	project := "/tmp/myproject"

	if got := ConfigPath(project); got != "/tmp/myproject/.automaker/config.yaml" {
		t.Errorf("Unexpected config path %q", got)
	}
	if got := DatabasePath(project); got != "/tmp/myproject/.automaker/automaker.db" {
		t.Errorf("Unexpected database path %q", got)
	}
	if got := SecretsPath(project); got != "/tmp/myproject/.automaker/secrets.json.enc" {
		t.Errorf("Unexpected secrets path %q", got)
	}
}

func TestLoadUserInstructionsMissing(t *testing.T) {
	content, err := LoadUserInstructions(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error for missing file, got %v", err)
	}
	if content != "" {
		t.Errorf("Expected empty content, got %q", content)
	}
}

func TestLoadUserInstructions(t *testing.T) {
	project := t.TempDir()
	dir, err := EnsureAutomakerDir(project)
	if err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	path := filepath.Join(dir, InstructionsFile)
	if err := os.WriteFile(path, []byte("  Always write table-driven tests.\n"), 0o644); err != nil {
		t.Fatalf("Failed to write instructions: %v", err)
	}

	content, err := LoadUserInstructions(project)
	if err != nil {
		t.Fatalf("Failed to load instructions: %v", err)
	}
	if content != "Always write table-driven tests." {
		t.Errorf("Expected trimmed content, got %q", content)
	}
}

func TestLoadUserInstructionsTruncatesOversized(t *testing.T) {
	project := t.TempDir()
	dir, err := EnsureAutomakerDir(project)
	if err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	huge := strings.Repeat("x", instructionsCharLimit+500)
	path := filepath.Join(dir, InstructionsFile)
	if err := os.WriteFile(path, []byte(huge), 0o644); err != nil {
		t.Fatalf("Failed to write instructions: %v", err)
	}

	content, err := LoadUserInstructions(project)
	if err != nil {
		t.Fatalf("Failed to load instructions: %v", err)
	}
	if !strings.HasSuffix(content, "[instructions truncated]") {
		t.Error("Expected truncation marker")
	}
	if len(content) > instructionsCharLimit+100 {
		t.Errorf("Expected content near the limit, got %d chars", len(content))
	}
}
