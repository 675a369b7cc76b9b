package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ahmedshikashaker/automaker/pkg/utils"
)

// Load reads the config file at path, applies defaults, resolves
// relative paths against the project root, and validates. An empty path
// searches for .automaker/config.yaml from the current directory upward.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := Search()
		if err != nil {
			return nil, err
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Project.Path == "" {
		// The config lives at <project>/.automaker/config.yaml.
		cfg.Project.Path = filepath.Dir(filepath.Dir(path))
	}
	abs, err := filepath.Abs(cfg.Project.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	cfg.Project.Path = abs

	cfg.applyDefaults()
	resolvePaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultForProject builds a validated config for projectDir without a
// config file, used by `automaker init` and tests.
func DefaultForProject(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	cfg := &Config{}
	cfg.Project.Path = abs
	cfg.applyDefaults()
	resolvePaths(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths fills derived paths and absolutizes relative ones.
func resolvePaths(cfg *Config) {
	root := cfg.Project.Path
	if cfg.Database.Path == "" {
		cfg.Database.Path = utils.DatabasePath(root)
	} else if !filepath.IsAbs(cfg.Database.Path) {
		cfg.Database.Path = filepath.Join(root, cfg.Database.Path)
	}
	if cfg.EventLog.Dir == "" {
		cfg.EventLog.Dir = filepath.Join(root, utils.AutomakerDir, "events")
	} else if !filepath.IsAbs(cfg.EventLog.Dir) {
		cfg.EventLog.Dir = filepath.Join(root, cfg.EventLog.Dir)
	}
}

// Search walks from the current directory upward looking for
// .automaker/config.yaml.
func Search() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for {
		candidate := utils.ConfigPath(dir)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s/%s found from %s upward (run `automaker init`)",
				utils.AutomakerDir, utils.ConfigFile, dir)
		}
		dir = parent
	}
}

// Write serializes cfg to the project's config path, creating
// .automaker/ if needed.
func Write(cfg *Config) (string, error) {
	if _, err := utils.EnsureAutomakerDir(cfg.Project.Path); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to serialize config: %w", err)
	}

	path := utils.ConfigPath(cfg.Project.Path)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return path, nil
}
