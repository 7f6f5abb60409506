package answer

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// MaxRetries is the number of attempts made for a retryable failure.
const MaxRetries = 3

// maxRetryAfter caps a server-requested wait.
const maxRetryAfter = 60 * time.Second

// RetryableError is a 429 or 5xx reply. RetryAfter is the wait the server
// asked for, zero if it did not say.
type RetryableError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns 2^attempt seconds (capped at 30s) plus up to 50% jitter.
func Backoff(attempt int) time.Duration {
	base := min(time.Duration(1<<uint(attempt))*time.Second, 30*time.Second)
	return base + time.Duration(rand.Int64N(int64(base)/2))
}

// retryDelay prefers the server's Retry-After over the computed backoff
// when it asks for longer.
func retryDelay(err error, attempt int, backoff func(int) time.Duration) time.Duration {
	d := backoff(attempt)
	var retryErr *RetryableError
	if errors.As(err, &retryErr) && retryErr.RetryAfter > d {
		d = min(retryErr.RetryAfter, maxRetryAfter)
	}
	return d
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
