// Token counting for prompt budget accounting, backed by tiktoken.
package utils

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting for prompt budget checks. Claude
// and Gemini tokenization is approximated with the GPT-4 encoding, which
// is close enough for budgeting.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter for the given model name. Every
// supported model maps to the GPT-4 encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	var tikModel tokenizer.Model
	switch {
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o3"):
		tikModel = tokenizer.GPT4
	case strings.HasPrefix(model, "claude"), strings.HasPrefix(model, "gemini"):
		tikModel = tokenizer.GPT4
	default:
		tikModel = tokenizer.GPT4
	}

	codec, err := tokenizer.ForModel(tikModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}

	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text, estimating
// at 4 chars per token when the codec is unavailable.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}

	return count
}

// WithinLimit reports whether text fits in the given token limit.
func (tc *TokenCounter) WithinLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}

// TruncateToLimit truncates text to roughly fit the token limit. The cut
// is by characters, not token boundaries.
func (tc *TokenCounter) TruncateToLimit(text string, limit int) string {
	current := tc.CountTokens(text)
	if current <= limit {
		return text
	}

	ratio := float64(limit) / float64(current)
	charLimit := int(float64(len(text)) * ratio * 0.9) // safety margin

	if charLimit >= len(text) {
		return text
	}

	return text[:charLimit] + "..."
}
