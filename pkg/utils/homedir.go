// Project-local .automaker directory conventions.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// AutomakerDir is the per-project directory holding automaker state.
	AutomakerDir = ".automaker"

	// ConfigFile is the YAML configuration filename inside AutomakerDir.
	ConfigFile = "config.yaml"

	// DatabaseFile is the SQLite database filename inside AutomakerDir.
	DatabaseFile = "automaker.db"

	// SecretsFile is the encrypted credentials filename inside AutomakerDir.
	SecretsFile = "secrets.json.enc"

	// InstructionsFile holds optional user instructions appended to every
	// system prompt.
	InstructionsFile = "INSTRUCTIONS.md"

	// instructionsCharLimit bounds instruction files (~2000 tokens).
	instructionsCharLimit = 8000
)

// EnsureAutomakerDir creates <projectDir>/.automaker if missing and
// returns its path.
func EnsureAutomakerDir(projectDir string) (string, error) {
	dir := filepath.Join(projectDir, AutomakerDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// ConfigPath returns the path of the project config file.
func ConfigPath(projectDir string) string {
	return filepath.Join(projectDir, AutomakerDir, ConfigFile)
}

// DatabasePath returns the path of the project database file.
func DatabasePath(projectDir string) string {
	return filepath.Join(projectDir, AutomakerDir, DatabaseFile)
}

// SecretsPath returns the path of the encrypted secrets file.
func SecretsPath(projectDir string) string {
	return filepath.Join(projectDir, AutomakerDir, SecretsFile)
}

// LoadUserInstructions reads the optional INSTRUCTIONS.md for a project.
// Missing file returns empty content; oversized files are truncated with
// a marker so a runaway instructions file cannot blow the prompt budget.
func LoadUserInstructions(projectDir string) (string, error) {
	path := filepath.Join(projectDir, AutomakerDir, InstructionsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	content := strings.TrimSpace(string(data))
	if len(content) > instructionsCharLimit {
		content = content[:instructionsCharLimit] + "\n\n[instructions truncated]"
	}
	return content, nil
}
