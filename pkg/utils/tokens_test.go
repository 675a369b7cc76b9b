package utils

import (
	"strings"
	"testing"
)

func TestNewTokenCounter(t *testing.T) {
	for _, model := range []string{"gpt-4o", "claude-sonnet-4", "gemini-2.5-pro", "some-unknown-model"} {
		tc, err := NewTokenCounter(model)
		if err != nil {
			t.Fatalf("Expected counter for %s, got error %v", model, err)
		}
		if tc == nil {
			t.Fatalf("Expected non-nil counter for %s", model)
		}
	}
}

func TestCountTokens(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("Failed to create counter: %v", err)
	}

	if got := tc.CountTokens(""); got != 0 {
		t.Errorf("Expected 0 tokens for empty text, got %d", got)
	}

	count := tc.CountTokens("Hello, world! This is a token counting test.")
	if count <= 0 || count > 20 {
		t.Errorf("Expected a small positive token count, got %d", count)
	}
}

func TestCountTokensNilCounterEstimates(t *testing.T) {
	var tc *TokenCounter
	text := strings.Repeat("a", 40)
	if got := tc.CountTokens(text); got != 10 {
		t.Errorf("Expected estimate of 10 tokens, got %d", got)
	}
}

func TestWithinLimit(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("Failed to create counter: %v", err)
	}

	if !tc.WithinLimit("short", 100) {
		t.Error("Expected short text to fit limit 100")
	}
	if tc.WithinLimit(strings.Repeat("word ", 500), 10) {
		t.Error("Expected long text to exceed limit 10")
	}
}

func TestTruncateToLimit(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("Failed to create counter: %v", err)
	}

	short := "fits as is"
	if got := tc.TruncateToLimit(short, 100); got != short {
		t.Errorf("Expected text under limit unchanged, got %q", got)
	}

	long := strings.Repeat("word ", 1000)
	truncated := tc.TruncateToLimit(long, 50)
	if len(truncated) >= len(long) {
		t.Errorf("Expected truncation, got %d chars from %d", len(truncated), len(long))
	}
	if !strings.HasSuffix(truncated, "...") {
		t.Error("Expected truncation marker suffix")
	}
	if !tc.WithinLimit(truncated, 60) {
		t.Errorf("Expected truncated text near the limit, got %d tokens", tc.CountTokens(truncated))
	}
}
