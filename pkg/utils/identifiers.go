package utils

import "strings"

// SanitizeIdentifier makes an identifier safe for git ref names and
// filesystem paths. Feature IDs arrive from the UI and may contain
// whitespace, colons, or path separators.
func SanitizeIdentifier(id string) string {
	sanitized := strings.ReplaceAll(id, ":", "-")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	sanitized = strings.ReplaceAll(sanitized, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")
	return sanitized
}

// BranchNameForFeature derives the conventional feature branch name from a
// feature ID, e.g. "auth flow" becomes "feature/auth-flow".
func BranchNameForFeature(featureID string) string {
	return "feature/" + strings.ToLower(SanitizeIdentifier(featureID))
}
