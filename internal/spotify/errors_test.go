package spotify

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/desertthunder/lykd/internal/shared"
)

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		err     *APIError
		target  error
		matches bool
	}{
		{
			"429 maps to rate limited",
			&APIError{Status: http.StatusTooManyRequests},
			shared.ErrRateLimited,
			true,
		},
		{
			"401 expired maps to token expired",
			&APIError{Status: http.StatusUnauthorized, Message: "The access token expired"},
			shared.ErrTokenExpired,
			true,
		},
		{
			"401 without the expiry message does not",
			&APIError{Status: http.StatusUnauthorized, Message: "Invalid access token"},
			shared.ErrTokenExpired,
			false,
		},
		{
			"400 revoked maps to token revoked",
			&APIError{Status: http.StatusBadRequest, Message: "Refresh token revoked"},
			shared.ErrTokenRevoked,
			true,
		},
		{
			"400 with another message does not",
			&APIError{Status: http.StatusBadRequest, Message: "Invalid grant"},
			shared.ErrTokenRevoked,
			false,
		},
		{
			"every API failure matches the request sentinel",
			&APIError{Status: http.StatusNotFound},
			shared.ErrAPIRequest,
			true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := errors.Is(tc.err, tc.target); got != tc.matches {
				t.Errorf("errors.Is(%v, %v) = %v, expected %v", tc.err, tc.target, got, tc.matches)
			}
		})
	}
}

func TestAPIErrorRetryable(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}

	for _, tc := range tests {
		err := &APIError{Status: tc.status}
		if got := err.Retryable(); got != tc.retryable {
			t.Errorf("status %d: Retryable() = %v, expected %v", tc.status, got, tc.retryable)
		}
	}
}

func TestAPIErrorFromResponse(t *testing.T) {
	t.Run("parses the retry hint", func(t *testing.T) {
		err := apiErrorFromResponse(http.StatusTooManyRequests, []byte("slow down"), "3")
		if err.RetryAfter != 3*time.Second {
			t.Errorf("expected 3s, got %v", err.RetryAfter)
		}
		if err.Message != "slow down" {
			t.Errorf("unexpected message %q", err.Message)
		}
	})

	t.Run("ignores an unparseable hint", func(t *testing.T) {
		err := apiErrorFromResponse(http.StatusTooManyRequests, nil, "soon")
		if err.RetryAfter != 0 {
			t.Errorf("expected 0, got %v", err.RetryAfter)
		}
	})

	t.Run("clamps a negative hint", func(t *testing.T) {
		err := apiErrorFromResponse(http.StatusTooManyRequests, nil, "-5")
		if err.RetryAfter != 0 {
			t.Errorf("expected 0, got %v", err.RetryAfter)
		}
	})
}
