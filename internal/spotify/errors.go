package spotify

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/desertthunder/lykd/internal/shared"
)

// APIError is the typed failure for every Spotify call. It carries the HTTP
// status, the response body and the Retry-After hint when the provider sent
// one.
//
// errors.Is maps well-known failures onto the shared sentinels so callers can
// classify without string matching:
//
//	429                           -> shared.ErrRateLimited
//	401 "access token expired"    -> shared.ErrTokenExpired
//	400 "Refresh token revoked"   -> shared.ErrTokenRevoked
type APIError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case shared.ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case shared.ErrTokenExpired:
		return e.Status == http.StatusUnauthorized && strings.Contains(strings.ToLower(e.Message), "access token expired")
	case shared.ErrTokenRevoked:
		return e.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Message), "refresh token revoked")
	case shared.ErrAPIRequest:
		return true
	}
	return false
}

// Retryable reports whether the failure is transient (rate limit or server
// error) rather than a client error.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// apiErrorFromResponse builds an APIError from a non-2xx response.
func apiErrorFromResponse(status int, body []byte, retryAfter string) *APIError {
	apiErr := &APIError{Status: status, Message: string(body)}
	if retryAfter != "" {
		if secs, err := parseRetryAfter(retryAfter); err == nil {
			apiErr.RetryAfter = secs
		}
	}
	return apiErr
}

func parseRetryAfter(value string) (time.Duration, error) {
	var secs int
	if _, err := fmt.Sscanf(value, "%d", &secs); err != nil {
		return 0, err
	}
	if secs < 0 {
		secs = 0
	}
	return time.Duration(secs) * time.Second, nil
}
