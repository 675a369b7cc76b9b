package llmerrors

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Classify maps an arbitrary provider/SDK error to a structured Error.
// Already-classified errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}

	if errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ErrorTypeCanceled, err, "request canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request timeout")
	}

	errStr := err.Error()
	statusCode := ExtractStatusCode(errStr)

	switch statusCode {
	case 401:
		return NewErrorWithStatus(ErrorTypeAuth, statusCode, "authentication failed - check API key")
	case 403:
		return NewErrorWithStatus(ErrorTypeAuth, statusCode, "permission denied - check API access")
	case 429:
		e := NewErrorWithStatus(ErrorTypeRateLimit, statusCode, "rate limit exceeded")
		e.Err = err
		e.RetryAfter = extractRetryAfter(errStr)
		return e
	case 400:
		return NewErrorWithStatus(ErrorTypeBadPrompt, statusCode, "bad request - check prompt format and parameters")
	case 500, 502, 503, 504:
		return NewErrorWithStatus(ErrorTypeTransient, statusCode, "server error")
	}

	lower := strings.ToLower(errStr)

	// Network and connection errors.
	if strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection") ||
		strings.Contains(lower, "network") ||
		strings.Contains(lower, "temporary") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(lower, "reset") {
		return NewErrorWithCause(ErrorTypeTransient, err, "network or connection error")
	}

	// Rate limiting text patterns.
	if strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "overloaded") {
		e := NewErrorWithCause(ErrorTypeRateLimit, err, "rate limiting detected")
		e.RetryAfter = extractRetryAfter(errStr)
		return e
	}

	// Authentication text patterns.
	if strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "api key") ||
		strings.Contains(lower, "authentication") {
		return NewErrorWithCause(ErrorTypeAuth, err, "authentication error")
	}

	// Prompt/request issues.
	if strings.Contains(lower, "invalid request") ||
		strings.Contains(lower, "malformed") ||
		strings.Contains(lower, "too large") ||
		strings.Contains(lower, "context length") {
		return NewErrorWithCause(ErrorTypeBadPrompt, err, "prompt or request error")
	}

	return NewErrorWithCause(ErrorTypeUnknown, err, errStr)
}

var statusCodeRe = regexp.MustCompile(`(?i)(?:status(?: code)?[:\s]+|HTTP )(\d{3})`)

// ExtractStatusCode pulls an HTTP status code out of an SDK error string.
// SDKs typically embed the code in the message rather than exposing it.
// Returns 0 when no code is found.
func ExtractStatusCode(errStr string) int {
	m := statusCodeRe.FindStringSubmatch(errStr)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil || code < 100 || code > 599 {
		return 0
	}
	return code
}

var retryAfterRe = regexp.MustCompile(`(?i)retry[- ]after[:\s]+(\d+)`)

// extractRetryAfter pulls a retry-after hint (seconds) out of an error
// string, when the server provided one.
func extractRetryAfter(errStr string) time.Duration {
	m := retryAfterRe.FindStringSubmatch(errStr)
	if m == nil {
		return 0
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
