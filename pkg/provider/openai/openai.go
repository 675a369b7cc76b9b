// Package openai implements an agent-execution provider backed by the
// official OpenAI Responses API.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/ahmedshikashaker/automaker/pkg/logx"
	"github.com/ahmedshikashaker/automaker/pkg/provider"
	"github.com/ahmedshikashaker/automaker/pkg/provider/llmerrors"
)

const defaultMaxOutputTokens = 16384

// Provider calls the OpenAI Responses API and adapts the output into the
// provider message stream.
type Provider struct {
	client openai.Client
	logger *logx.Logger
}

// New creates an OpenAI provider with the given API key.
func New(apiKey string, logger *logx.Logger) *Provider {
	if logger == nil {
		logger = logx.NewLogger("openai")
	}
	return &Provider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		logger: logger,
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "openai" }

// ExecuteQuery makes one Responses request and streams the converted
// output. The channel always ends with a terminal message.
func (p *Provider) ExecuteQuery(ctx context.Context, opts provider.QueryOptions) (<-chan provider.Message, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "openai: empty prompt")
	}

	out := make(chan provider.Message, 8)
	go func() {
		defer close(out)
		p.run(ctx, opts, out)
	}()
	return out, nil
}

func (p *Provider) run(ctx context.Context, opts provider.QueryOptions, out chan<- provider.Message) {
	params := responses.ResponseNewParams{
		Model:           opts.Model,
		MaxOutputTokens: openai.Int(defaultMaxOutputTokens),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(buildInput(opts))},
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		emit(ctx, out, provider.ErrorMessage(llmerrors.Classify(err).Error()))
		return
	}
	if resp == nil {
		emit(ctx, out, provider.ErrorMessage("openai: empty response"))
		return
	}

	text := resp.OutputText()
	if text == "" {
		emit(ctx, out, provider.ErrorMessage("openai: response carried no text output"))
		return
	}
	if !emit(ctx, out, provider.AssistantText(text)) {
		return
	}
	emit(ctx, out, provider.ResultMessage(provider.ResultSuccess, text))
}

// buildInput flattens system prompt, history, and the current prompt
// into the single-string input the Responses API takes.
func buildInput(opts provider.QueryOptions) string {
	var b strings.Builder
	if opts.SystemPrompt != "" {
		fmt.Fprintf(&b, "System: %s\n\n", opts.SystemPrompt)
	}
	for _, h := range opts.History {
		switch h.Role {
		case "assistant":
			fmt.Fprintf(&b, "Assistant: %s\n\n", h.Content)
		default:
			fmt.Fprintf(&b, "User: %s\n\n", h.Content)
		}
	}
	b.WriteString(opts.Prompt)
	return b.String()
}

func emit(ctx context.Context, out chan<- provider.Message, msg provider.Message) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
