package strava

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Strava rate limits are per application, shared by every user:
// - 100 requests per 15 minutes
// - 1000 requests per day

// DefaultMinInterval spaces consecutive requests (~6.6 req/s max)
const DefaultMinInterval = 150 * time.Millisecond

// RateLimiter tracks Strava's application-wide rate limit windows
type RateLimiter struct {
	mu sync.Mutex

	// 15-minute window
	shortLimit    int
	shortUsage    int
	shortResetsAt time.Time

	// Daily window
	dailyLimit    int
	dailyUsage    int
	dailyResetsAt time.Time

	pacer *rate.Limiter
	now   func() time.Time
}

// NewRateLimiter creates a limiter with Strava's default limits.
// A non-positive minInterval disables request pacing.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	r := &RateLimiter{
		shortLimit: 100,
		dailyLimit: 1000,
		pacer:      rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
	now := r.now()
	r.shortResetsAt = nextShortReset(now)
	r.dailyResetsAt = nextDailyReset(now)
	return r
}

// Strava's short window resets on the quarter hour, the daily one at midnight UTC
func nextShortReset(now time.Time) time.Time {
	return now.Truncate(15 * time.Minute).Add(15 * time.Minute)
}

func nextDailyReset(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}

// Wait blocks until a request can be made without exceeding rate limits
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := r.reserveWindow()
		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return r.pacer.Wait(ctx)
}

// reserveWindow counts a request against both windows, or returns how long
// to wait when one of them is exhausted
func (r *RateLimiter) reserveWindow() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !now.Before(r.shortResetsAt) {
		r.shortUsage = 0
		r.shortResetsAt = nextShortReset(now)
	}
	if !now.Before(r.dailyResetsAt) {
		r.dailyUsage = 0
		r.dailyResetsAt = nextDailyReset(now)
	}

	if r.dailyUsage >= r.dailyLimit {
		return r.dailyResetsAt.Sub(now)
	}
	if r.shortUsage >= r.shortLimit {
		return r.shortResetsAt.Sub(now)
	}

	r.shortUsage++
	r.dailyUsage++
	return 0
}

// UpdateFromHeaders updates rate limit state from Strava response headers
func (r *RateLimiter) UpdateFromHeaders(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strava returns: X-RateLimit-Limit: "100,1000" and X-RateLimit-Usage: "34,512"
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Usage")); ok {
		r.shortUsage = short
		r.dailyUsage = daily
	}
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Limit")); ok {
		r.shortLimit = short
		r.dailyLimit = daily
	}
}

func parsePair(v string) (int, int, bool) {
	parts := strings.Split(v, ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}

// Status returns the remaining requests in each window
func (r *RateLimiter) Status() (shortRemaining, dailyRemaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shortLimit - r.shortUsage, r.dailyLimit - r.dailyUsage
}
