package utils

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

const (
	retryBase = 200 * time.Millisecond
	retryCap  = 5 * time.Second
)

// RetryDelay returns the backoff before retry number attempt (0-based):
// 200ms doubled per attempt, capped at 5s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 8 {
		return retryCap
	}
	d := retryBase << attempt
	if d > retryCap {
		d = retryCap
	}
	return d
}

// RetryAfter returns the delay requested by a Retry-After header given in
// seconds, capped at 5s, or RetryDelay(attempt) when the header is absent or
// unparseable.
func RetryAfter(h http.Header, attempt int) time.Duration {
	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			if secs > int(retryCap/time.Second) {
				return retryCap
			}
			return time.Duration(secs) * time.Second
		}
	}
	return RetryDelay(attempt)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
