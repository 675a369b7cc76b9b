package provider

import "context"

// HistoryEntry is one prior turn carried into a provider call.
type HistoryEntry struct {
	Role    string `json:"role"` // user | assistant
	Content string `json:"content"`
}

// QueryOptions carries everything a provider needs for one execution.
type QueryOptions struct {
	// Prompt is the user prompt. Required.
	Prompt string

	// Model selects the concrete model within the provider.
	Model string

	// Cwd is the working directory for providers that touch the
	// filesystem (the Claude CLI provider).
	Cwd string

	// SystemPrompt is prepended as the system message when non-empty.
	SystemPrompt string

	// MaxTurns bounds agentic tool-use loops; 0 means provider default.
	MaxTurns int

	// AllowedTools restricts the tool set for CLI providers; nil means
	// the provider default.
	AllowedTools []string

	// SessionID resumes a prior provider session when supported.
	SessionID string

	// ThinkingLevel requests extended thinking when supported
	// ("", "low", "medium", "high").
	ThinkingLevel string

	// History carries prior conversation turns for SDK providers.
	History []HistoryEntry
}

// Provider is the external agent-execution backend. ExecuteQuery returns
// a lazy, finite, non-restartable message stream; the channel closes when
// the sequence ends. Cancellation propagates through ctx: the provider
// must stop producing and close the channel when ctx is done.
type Provider interface {
	// Name returns the provider name for logging and metrics.
	Name() string

	// ExecuteQuery starts one execution and streams its messages.
	ExecuteQuery(ctx context.Context, opts QueryOptions) (<-chan Message, error)
}
