// Package google implements an agent-execution provider backed by the
// Google Gemini API.
package google

import (
	"context"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/ahmedshikashaker/automaker/pkg/logx"
	"github.com/ahmedshikashaker/automaker/pkg/provider"
	"github.com/ahmedshikashaker/automaker/pkg/provider/llmerrors"
)

// Provider calls the Gemini API and adapts the response into the
// provider message stream. The genai client needs a context to build,
// so it is created lazily on first use.
type Provider struct {
	mu     sync.Mutex
	client *genai.Client
	apiKey string
	logger *logx.Logger
}

// New creates a Gemini provider with the given API key.
func New(apiKey string, logger *logx.Logger) *Provider {
	if logger == nil {
		logger = logx.NewLogger("google")
	}
	return &Provider{apiKey: apiKey, logger: logger}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "google" }

func (p *Provider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeServiceUnavailable, err, "google: create client")
	}
	p.client = client
	return client, nil
}

// ExecuteQuery makes one GenerateContent request and streams the
// converted response. The channel always ends with a terminal message.
func (p *Provider) ExecuteQuery(ctx context.Context, opts provider.QueryOptions) (<-chan provider.Message, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "google: empty prompt")
	}

	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan provider.Message, 8)
	go func() {
		defer close(out)
		p.run(ctx, client, opts, out)
	}()
	return out, nil
}

func (p *Provider) run(ctx context.Context, client *genai.Client, opts provider.QueryOptions, out chan<- provider.Message) {
	config := &genai.GenerateContentConfig{}
	if opts.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: opts.SystemPrompt}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, opts.Model, buildContents(opts), config)
	if err != nil {
		emit(ctx, out, provider.ErrorMessage(llmerrors.Classify(err).Error()))
		return
	}
	if result == nil {
		emit(ctx, out, provider.ErrorMessage("google: empty response"))
		return
	}

	text := result.Text()
	if text == "" {
		emit(ctx, out, provider.ErrorMessage("google: response carried no text"))
		return
	}
	if !emit(ctx, out, provider.AssistantText(text)) {
		return
	}
	emit(ctx, out, provider.ResultMessage(provider.ResultSuccess, text))
}

func buildContents(opts provider.QueryOptions) []*genai.Content {
	var contents []*genai.Content
	for _, h := range opts.History {
		role := "user"
		if h.Role == "assistant" {
			// Gemini uses "model" instead of "assistant".
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: h.Content}},
		})
	}
	return append(contents, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: opts.Prompt}},
	})
}

func emit(ctx context.Context, out chan<- provider.Message, msg provider.Message) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
