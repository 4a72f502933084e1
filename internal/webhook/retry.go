package webhook

import (
	"math"
	"time"
)

// RetryDelay returns the backoff before the next delivery attempt:
// 5^attempt seconds (5s, 25s, 125s, ~10min, ...). The curve is computed
// here, not by the broker, so it stays explicit and testable.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(math.Pow(5, float64(attempt))) * time.Second
}

// Retryable classifies a delivery outcome. Status 0 means a network-level
// failure (timeout, connection refused). Redirects are not followed and
// count as terminal failures, as do all 4xx client errors.
func Retryable(statusCode int) bool {
	return statusCode == 0 || statusCode >= 500
}

// ShouldRetry is true iff the outcome is retryable and attempts remain.
func ShouldRetry(statusCode, attempt, maxAttempts int) bool {
	return Retryable(statusCode) && attempt < maxAttempts
}
