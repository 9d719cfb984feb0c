package speech

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrRateLimited means the synthesis provider throttled the request; retrying later may succeed.
	ErrRateLimited = errors.New("speech provider rate limited")
	// ErrUnrecognized means the audio contained no intelligible speech.
	ErrUnrecognized = errors.New("speech not recognized")
	// ErrServiceUnavailable means the recognition provider could not be reached.
	ErrServiceUnavailable = errors.New("speech service unavailable")
)

var rateLimitHints = []string{
	"too many requests",
	"rate limit",
	"ratelimit",
	"quota",
	"concurrency limit",
	"qps",
}

// isRateLimitStatus reports whether an HTTP status signals throttling.
func isRateLimitStatus(status int) bool {
	return status == http.StatusTooManyRequests
}

// looksRateLimited inspects a provider error message for throttling hints.
func looksRateLimited(message string) bool {
	normalized := strings.ToLower(message)
	for _, hint := range rateLimitHints {
		if strings.Contains(normalized, hint) {
			return true
		}
	}
	return false
}
