package serper

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is a configuration failure raised before any network call.
var ErrMissingAPIKey = errors.New("serper api key is not set (see SERPER_API_KEY)")

// AuthError means the api key was rejected. It is fatal: retrying or
// continuing with sibling queries cannot succeed.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("serper authentication failed (status %d): %s", e.StatusCode, e.Message)
}

// RateLimitError is returned on 429 responses and is retryable with backoff.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("serper rate limit exceeded: %s", e.Message)
}

// APIError covers the remaining failure modes of a search call.
type APIError struct {
	StatusCode int
	Message    string
	// transport errors and 5xx are worth retrying, other 4xx are not
	Transient bool
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("serper request failed: %s", e.Message)
	}
	return fmt.Sprintf("serper api error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether a dispatch failure may succeed on a later
// attempt. Authentication and configuration failures never do.
func Retryable(err error) bool {
	var rateLimit *RateLimitError
	if errors.As(err, &rateLimit) {
		return true
	}
	var api *APIError
	if errors.As(err, &api) {
		return api.Transient
	}
	return false
}

// Fatal reports whether the failure should abort an entire run rather
// than just the query that hit it.
func Fatal(err error) bool {
	var auth *AuthError
	return errors.As(err, &auth) || errors.Is(err, ErrMissingAPIKey)
}
