package actions

import (
	"context"
	"net/http"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// retryableStatus reports whether an HTTP status is worth another attempt.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// ComputeBackoff calculates the delay before the next retry attempt.
// Supports none, constant, linear, and exponential backoff with optional max_delay cap.
func ComputeBackoff(policy *schema.RetryPolicy, attempt int) time.Duration {
	if policy == nil || policy.Delay == "" {
		return 0
	}
	base, err := time.ParseDuration(policy.Delay)
	if err != nil {
		return 0
	}

	var delay time.Duration
	switch policy.Backoff {
	case "exponential":
		delay = base << uint(attempt)
	case "linear":
		delay = base * time.Duration(attempt+1)
	default: // none | constant
		delay = base
	}

	if policy.MaxDelay != "" {
		if maxDelay, perr := time.ParseDuration(policy.MaxDelay); perr == nil && delay > maxDelay {
			delay = maxDelay
		}
	}
	return delay
}

// WaitForBackoff sleeps for delay or returns early with the context error.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
