// Package anthropic implements an agent-execution provider backed by the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahmedshikashaker/automaker/pkg/logx"
	"github.com/ahmedshikashaker/automaker/pkg/provider"
	"github.com/ahmedshikashaker/automaker/pkg/provider/llmerrors"
)

const defaultMaxTokens = 8192

// Provider calls the Anthropic Messages API and adapts the response into
// the provider message stream.
type Provider struct {
	client anthropic.Client
	logger *logx.Logger
}

// New creates an Anthropic provider with the given API key.
func New(apiKey string, logger *logx.Logger) *Provider {
	if logger == nil {
		logger = logx.NewLogger("anthropic")
	}
	return &Provider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		logger: logger,
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "anthropic" }

// ExecuteQuery makes one Messages request and streams the converted
// response. The channel always ends with a terminal message.
func (p *Provider) ExecuteQuery(ctx context.Context, opts provider.QueryOptions) (<-chan provider.Message, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "anthropic: empty prompt")
	}

	out := make(chan provider.Message, 8)
	go func() {
		defer close(out)
		p.run(ctx, opts, out)
	}()
	return out, nil
}

func (p *Provider) run(ctx context.Context, opts provider.QueryOptions, out chan<- provider.Message) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  buildMessages(opts),
		MaxTokens: defaultMaxTokens,
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt, Type: "text"}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		emit(ctx, out, provider.ErrorMessage(llmerrors.Classify(err).Error()))
		return
	}
	if resp == nil || len(resp.Content) == 0 {
		emit(ctx, out, provider.ErrorMessage("anthropic: empty response"))
		return
	}

	msg := provider.Message{Type: provider.MessageAssistant}
	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			tb := block.AsText()
			text.WriteString(tb.Text)
			msg.Content = append(msg.Content, provider.ContentBlock{Type: provider.BlockText, Text: tb.Text})
		case "tool_use":
			tub := block.AsToolUse()
			var input map[string]any
			if err := json.Unmarshal(tub.Input, &input); err != nil {
				p.logger.Warn("unparsable tool input for %s: %v", tub.Name, err)
			}
			msg.Content = append(msg.Content, provider.ContentBlock{
				Type:  provider.BlockToolUse,
				ID:    tub.ID,
				Name:  tub.Name,
				Input: input,
			})
		case "thinking":
			thb := block.AsThinking()
			msg.Content = append(msg.Content, provider.ContentBlock{Type: provider.BlockThinking, Text: thb.Thinking})
		}
	}
	if !emit(ctx, out, msg) {
		return
	}

	emit(ctx, out, provider.ResultMessage(provider.ResultSuccess, text.String()))
}

// buildMessages assembles history plus the current prompt as the final
// user turn. Anthropic requires strict user/assistant alternation, so
// consecutive same-role history entries are merged.
func buildMessages(opts provider.QueryOptions) []anthropic.MessageParam {
	type turn struct {
		role string
		text string
	}
	var turns []turn
	for _, h := range opts.History {
		role := h.Role
		if role != "assistant" {
			role = "user"
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].text += "\n\n" + h.Content
			continue
		}
		turns = append(turns, turn{role: role, text: h.Content})
	}
	if n := len(turns); n > 0 && turns[n-1].role == "user" {
		turns[n-1].text += "\n\n" + opts.Prompt
	} else {
		turns = append(turns, turn{role: "user", text: opts.Prompt})
	}

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if t.role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.text)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.text)))
		}
	}
	return messages
}

func emit(ctx context.Context, out chan<- provider.Message, msg provider.Message) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
