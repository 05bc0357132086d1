package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/desertthunder/lykd/internal/shared"
)

func TestPolicyDo(t *testing.T) {
	ctx := context.Background()

	t.Run("returns on first success", func(t *testing.T) {
		calls := 0
		err := Policy{Attempts: 3}.Do(ctx, func(context.Context) error {
			calls++
			return nil
		}, nil)
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("retries recoverable failures up to the attempt budget", func(t *testing.T) {
		calls := 0
		serverErr := &APIError{Status: http.StatusInternalServerError, Message: "boom"}
		err := Policy{Attempts: 3}.Do(ctx, func(context.Context) error {
			calls++
			return serverErr
		}, nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected API error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("client errors stop the loop", func(t *testing.T) {
		calls := 0
		notFound := &APIError{Status: http.StatusNotFound, Message: "no such playlist"}
		err := Policy{Attempts: 3}.Do(ctx, func(context.Context) error {
			calls++
			return notFound
		}, nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected API error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("recover hook can repair the call", func(t *testing.T) {
		calls := 0
		repaired := false
		err := Policy{Attempts: 2}.Do(ctx, func(context.Context) error {
			calls++
			if !repaired {
				return &APIError{Status: http.StatusUnauthorized, Message: "The access token expired"}
			}
			return nil
		}, func(_ context.Context, err error) error {
			if errors.Is(err, shared.ErrTokenExpired) {
				repaired = true
				return nil
			}
			return err
		})
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if calls != 2 {
			t.Errorf("expected 2 calls, got %d", calls)
		}
	})

	t.Run("recover hook error surfaces unchanged", func(t *testing.T) {
		terminal := fmt.Errorf("give up")
		err := Policy{Attempts: 5}.Do(ctx, func(context.Context) error {
			return &APIError{Status: http.StatusInternalServerError, Message: "boom"}
		}, func(context.Context, error) error {
			return terminal
		})
		if !errors.Is(err, terminal) {
			t.Errorf("expected terminal error, got %v", err)
		}
	})

	t.Run("zero attempts still calls once", func(t *testing.T) {
		calls := 0
		err := Policy{}.Do(ctx, func(context.Context) error {
			calls++
			return nil
		}, nil)
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("honors context cancellation between attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		policy := Policy{
			Attempts: 3,
			Wait: func(int, error) time.Duration {
				cancel()
				return time.Minute
			},
		}
		err := policy.Do(ctx, func(context.Context) error {
			return &APIError{Status: http.StatusInternalServerError, Message: "boom"}
		}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestWaitRetryAfterOrJitter(t *testing.T) {
	t.Run("prefers the provider hint", func(t *testing.T) {
		wait := WaitRetryAfterOrJitter(time.Second)
		err := &APIError{Status: http.StatusTooManyRequests, RetryAfter: 7 * time.Second}
		if got := wait(1, err); got != 7*time.Second {
			t.Errorf("expected 7s, got %v", got)
		}
	})

	t.Run("falls back to bounded jitter", func(t *testing.T) {
		wait := WaitRetryAfterOrJitter(100 * time.Millisecond)
		err := &APIError{Status: http.StatusInternalServerError}
		for range 10 {
			got := wait(1, err)
			if got < 0 || got >= 100*time.Millisecond {
				t.Fatalf("jitter %v outside [0, 100ms)", got)
			}
		}
	})

	t.Run("zero bound waits nothing", func(t *testing.T) {
		wait := WaitRetryAfterOrJitter(0)
		if got := wait(1, fmt.Errorf("network down")); got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
	})
}

func TestDefaultRecover(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		err      error
		terminal bool
	}{
		{"network failure is recoverable", fmt.Errorf("connection reset"), false},
		{"rate limit is recoverable", &APIError{Status: http.StatusTooManyRequests}, false},
		{"server error is recoverable", &APIError{Status: http.StatusBadGateway}, false},
		{"not found is terminal", &APIError{Status: http.StatusNotFound}, true},
		{"unauthorized is terminal", &APIError{Status: http.StatusUnauthorized}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DefaultRecover(ctx, tc.err)
			if tc.terminal && got == nil {
				t.Error("expected terminal error, got nil")
			}
			if !tc.terminal && got != nil {
				t.Errorf("expected recoverable, got %v", got)
			}
		})
	}
}
