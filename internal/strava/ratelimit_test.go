package strava

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestRateLimiterUpdateFromHeaders(t *testing.T) {
	r := NewRateLimiter(0)

	h := http.Header{}
	h.Set("X-RateLimit-Limit", "200, 2000")
	h.Set("X-RateLimit-Usage", "150,1999")
	r.UpdateFromHeaders(h)

	short, daily := r.Status()
	if short != 50 || daily != 1 {
		t.Errorf("Status() = %d, %d; want 50, 1", short, daily)
	}

	// Malformed headers leave state alone
	h.Set("X-RateLimit-Usage", "garbage")
	r.UpdateFromHeaders(h)
	if short, daily = r.Status(); short != 50 || daily != 1 {
		t.Errorf("Status() after bad header = %d, %d", short, daily)
	}
}

func TestRateLimiterBlocksWhenWindowExhausted(t *testing.T) {
	r := NewRateLimiter(0)

	h := http.Header{}
	h.Set("X-RateLimit-Usage", "100,100")
	r.UpdateFromHeaders(h)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); err == nil {
		t.Fatal("expected Wait to give up when the short window is exhausted")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 14, 0, 0, time.UTC)
	r := NewRateLimiter(0)
	r.now = func() time.Time { return now }
	r.shortResetsAt = nextShortReset(now)
	r.dailyResetsAt = nextDailyReset(now)
	r.shortUsage = r.shortLimit

	if wait := r.reserveWindow(); wait != time.Minute {
		t.Errorf("reserveWindow() = %v, want 1m", wait)
	}

	now = now.Add(time.Minute)
	if wait := r.reserveWindow(); wait != 0 {
		t.Errorf("reserveWindow() after reset = %v, want 0", wait)
	}
	if short, _ := r.Status(); short != r.shortLimit-1 {
		t.Errorf("short remaining = %d, want %d", short, r.shortLimit-1)
	}
}

func TestRateLimiterPacing(t *testing.T) {
	r := NewRateLimiter(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := r.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("3 paced requests took %v, want at least ~60ms", elapsed)
	}
}
