// Package config loads and validates the automaker YAML configuration
// and the encrypted secrets file. Config is constructed at startup and
// injected; nothing here is a mutable global.
package config

import (
	"fmt"
	"time"
)

// Config is the full automaker configuration.
type Config struct {
	Project    ProjectConfig    `yaml:"project"`
	Runner     RunnerConfig     `yaml:"runner"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Git        GitConfig        `yaml:"git"`
	Database   DatabaseConfig   `yaml:"database"`
	HTTP       HTTPConfig       `yaml:"http"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Providers  ProvidersConfig  `yaml:"providers"`
	EventLog   EventLogConfig   `yaml:"event_log"`
}

// ProjectConfig identifies the target codebase.
type ProjectConfig struct {
	// Path is the project root; defaults to the directory the config
	// file was found in.
	Path string `yaml:"path"`
}

// RunnerConfig controls run scheduling and execution.
type RunnerConfig struct {
	// MaxConcurrency bounds concurrently active runs per project.
	MaxConcurrency int `yaml:"max_concurrency"`

	// DefaultModel is used when a run request names no model.
	DefaultModel string `yaml:"default_model"`

	// MaxTurns bounds agentic tool-use loops per provider call.
	MaxTurns int `yaml:"max_turns"`

	// UseWorktrees enables per-branch worktree isolation.
	UseWorktrees bool `yaml:"use_worktrees"`
}

// ApprovalConfig controls the plan approval gate. The gate carries no
// timeout; runs wait until an operator resolves or cancels.
type ApprovalConfig struct {
	// AutoApprove skips the human gate for plan-mode runs.
	AutoApprove bool `yaml:"auto_approve"`
}

// GitConfig controls commit helpers.
type GitConfig struct {
	// AutoCommit commits all changes after a successful run.
	AutoCommit bool `yaml:"auto_commit"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	// Path to the database file; defaults to .automaker/automaker.db
	// under the project path.
	Path string `yaml:"path"`
}

// HTTPConfig controls the approval/status API server.
type HTTPConfig struct {
	// ListenAddr is the bind address, e.g. "127.0.0.1:8844".
	ListenAddr string `yaml:"listen_addr"`

	// ShutdownTimeoutSeconds bounds graceful drain on shutdown.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// MetricsConfig controls Prometheus exposure and querying.
type MetricsConfig struct {
	// Enabled turns the /metrics endpoint and recorder on.
	Enabled bool `yaml:"enabled"`

	// PrometheusURL is the base URL of a Prometheus server scraping
	// automaker, used by the status endpoint's summaries. Optional.
	PrometheusURL string `yaml:"prometheus_url"`
}

// ProvidersConfig carries per-provider settings. API keys come from the
// secrets file or environment, never from this file.
type ProvidersConfig struct {
	// ClaudeBinary is the Claude Code CLI executable name or path.
	ClaudeBinary string `yaml:"claude_binary"`

	// OllamaHost is the Ollama server base URL.
	OllamaHost string `yaml:"ollama_host"`
}

// EventLogConfig locates the JSONL event log.
type EventLogConfig struct {
	// Dir defaults to .automaker/events under the project path.
	Dir string `yaml:"dir"`
}

// Default values applied before validation.
const (
	DefaultMaxConcurrency  = 3
	DefaultModel           = "claude-code"
	DefaultMaxTurns        = 30
	DefaultListenAddr      = "127.0.0.1:8844"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultClaudeBinary    = "claude"
	DefaultOllamaHost      = "http://localhost:11434"
)

// applyDefaults fills unset fields.
func (c *Config) applyDefaults() {
	if c.Runner.MaxConcurrency == 0 {
		c.Runner.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Runner.DefaultModel == "" {
		c.Runner.DefaultModel = DefaultModel
	}
	if c.Runner.MaxTurns == 0 {
		c.Runner.MaxTurns = DefaultMaxTurns
	}
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = DefaultListenAddr
	}
	if c.HTTP.ShutdownTimeoutSeconds == 0 {
		c.HTTP.ShutdownTimeoutSeconds = int(DefaultShutdownTimeout.Seconds())
	}
	if c.Providers.ClaudeBinary == "" {
		c.Providers.ClaudeBinary = DefaultClaudeBinary
	}
	if c.Providers.OllamaHost == "" {
		c.Providers.OllamaHost = DefaultOllamaHost
	}
}

// Validate checks the configuration, naming the offending field.
func (c *Config) Validate() error {
	if c.Project.Path == "" {
		return fmt.Errorf("project.path is required")
	}
	if c.Runner.MaxConcurrency < 1 {
		return fmt.Errorf("runner.max_concurrency must be at least 1, got %d", c.Runner.MaxConcurrency)
	}
	if c.Runner.MaxTurns < 1 {
		return fmt.Errorf("runner.max_turns must be at least 1, got %d", c.Runner.MaxTurns)
	}
	if c.HTTP.ShutdownTimeoutSeconds < 1 {
		return fmt.Errorf("http.shutdown_timeout_seconds must be at least 1, got %d", c.HTTP.ShutdownTimeoutSeconds)
	}
	return nil
}

// ShutdownTimeout returns the HTTP drain timeout as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.HTTP.ShutdownTimeoutSeconds) * time.Second
}
