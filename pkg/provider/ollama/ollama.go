// Package ollama implements an agent-execution provider backed by a
// local Ollama server.
package ollama

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/ahmedshikashaker/automaker/pkg/logx"
	"github.com/ahmedshikashaker/automaker/pkg/provider"
	"github.com/ahmedshikashaker/automaker/pkg/provider/llmerrors"
)

// Provider calls a local Ollama server's chat API. Unlike the hosted
// providers it streams natively, one assistant message per chunk.
type Provider struct {
	client *api.Client
	logger *logx.Logger
}

// New creates an Ollama provider. hostURL is the server address, for
// example "http://localhost:11434"; invalid URLs fall back to that
// default.
func New(hostURL string, logger *logx.Logger) *Provider {
	if logger == nil {
		logger = logx.NewLogger("ollama")
	}
	parsed, err := url.Parse(hostURL)
	if err != nil || parsed.Host == "" {
		parsed, _ = url.Parse("http://localhost:11434")
	}
	return &Provider{
		client: api.NewClient(parsed, http.DefaultClient),
		logger: logger,
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "ollama" }

// ExecuteQuery streams one chat completion. Model names arrive as
// "ollama:llama3.2"; the prefix selects this provider and is stripped
// before the request.
func (p *Provider) ExecuteQuery(ctx context.Context, opts provider.QueryOptions) (<-chan provider.Message, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "ollama: empty prompt")
	}

	out := make(chan provider.Message, 16)
	go func() {
		defer close(out)
		p.run(ctx, opts, out)
	}()
	return out, nil
}

func (p *Provider) run(ctx context.Context, opts provider.QueryOptions, out chan<- provider.Message) {
	stream := true
	req := &api.ChatRequest{
		Model:    strings.TrimPrefix(opts.Model, "ollama:"),
		Messages: buildMessages(opts),
		Stream:   &stream,
	}

	var text strings.Builder
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		text.WriteString(resp.Message.Content)
		select {
		case out <- provider.AssistantText(resp.Message.Content):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		emit(ctx, out, provider.ErrorMessage(llmerrors.Classify(err).Error()))
		return
	}
	if text.Len() == 0 {
		emit(ctx, out, provider.ErrorMessage("ollama: empty response"))
		return
	}
	emit(ctx, out, provider.ResultMessage(provider.ResultSuccess, text.String()))
}

func buildMessages(opts provider.QueryOptions) []api.Message {
	var messages []api.Message
	if opts.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: opts.SystemPrompt})
	}
	for _, h := range opts.History {
		role := h.Role
		if role != "assistant" && role != "system" {
			role = "user"
		}
		messages = append(messages, api.Message{Role: role, Content: h.Content})
	}
	return append(messages, api.Message{Role: "user", Content: opts.Prompt})
}

func emit(ctx context.Context, out chan<- provider.Message, msg provider.Message) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
