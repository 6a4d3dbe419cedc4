package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	rateLimitBackoff   = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second, 20 * time.Second}
	serverErrorBackoff = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}
)

func isRateLimitError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 429
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests")
}

func isServerError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "500") ||
		strings.Contains(s, "internal server error") ||
		strings.Contains(s, "server_error") ||
		strings.Contains(s, "overloaded")
}

// Retryable reports whether err is a transient provider failure.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return isRateLimitError(err) || isServerError(err)
}

func backoff(err error, attempt int) time.Duration {
	table := serverErrorBackoff
	if isRateLimitError(err) {
		table = rateLimitBackoff
	}
	if attempt >= len(table) {
		return table[len(table)-1]
	}
	return table[attempt]
}

// Retry calls fn up to attempts times, waiting between transient failures.
// Non-transient errors are returned immediately.
func Retry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	return retry(ctx, attempts, fn, backoff)
}

func retry(ctx context.Context, attempts int, fn func(context.Context) error, wait func(error, int) time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !Retryable(err) || attempt == attempts-1 {
			return err
		}
		timer := time.NewTimer(wait(err, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
