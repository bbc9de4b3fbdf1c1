package embedder

import (
	"context"
	"time"

	"github.com/colloquyhq/retrieval/internal/domain"
)

// retryRateLimited runs operation, retrying with exponential backoff only
// when the failure is a RateLimitError. Other error classes return
// immediately; the last rate-limit error is re-raised after the attempt
// ceiling.
func retryRateLimited(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !domain.IsRateLimit(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		delay := baseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
