package notify

import (
	"fmt"
	"time"
)

// RateLimitedError reports that a channel refused the message and advertised
// when to try again. The dispatcher retries after RetryAfter; every other
// delivery failure is final for that attempt.
type RateLimitedError struct {
	Sender     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Sender, e.RetryAfter)
}
