package utils

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 200 * time.Millisecond},
		{0, 200 * time.Millisecond},
		{1, 400 * time.Millisecond},
		{3, 1600 * time.Millisecond},
		{5, 5 * time.Second},
		{60, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	if got := RetryAfter(h, 1); got != 400*time.Millisecond {
		t.Errorf("no header: got %s", got)
	}
	h.Set("Retry-After", "2")
	if got := RetryAfter(h, 1); got != 2*time.Second {
		t.Errorf("seconds header: got %s", got)
	}
	for _, ra := range []string{"5", "86400", "999999999"} {
		h.Set("Retry-After", ra)
		if got := RetryAfter(h, 1); got != 5*time.Second {
			t.Errorf("Retry-After %s: got %s, want the 5s cap", ra, got)
		}
	}
	h.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	if got := RetryAfter(h, 0); got != 200*time.Millisecond {
		t.Errorf("date header falls back: got %s", got)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Error("expected context error")
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
