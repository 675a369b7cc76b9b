package utils

import "testing"

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean", "feat-123", "feat-123"},
		{"spaces", "auth flow", "auth-flow"},
		{"colons", "ns:feature", "ns-feature"},
		{"slashes", "a/b\\c", "a-b-c"},
		{"mixed", "fix: login / signup", "fix--login---signup"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeIdentifier(tt.input); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestBranchNameForFeature(t *testing.T) {
	if got := BranchNameForFeature("Auth Flow"); got != "feature/auth-flow" {
		t.Errorf("Expected feature/auth-flow, got %q", got)
	}
	if got := BranchNameForFeature("feat-123"); got != "feature/feat-123" {
		t.Errorf("Expected feature/feat-123, got %q", got)
	}
}
