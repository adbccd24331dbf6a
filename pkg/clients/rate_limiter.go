// Package clients provides the HTTP transport used to talk to the HiBob API:
// a sliding window rate limiter, a retrying round tripper and a JSON client.
package clients

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/hibob-extractor/pkg/metrics"
)

// RateLimiter defines the interface for rate limiting implementations.
type RateLimiter interface {
	// Allow checks if a request is allowed now and consumes capacity if so
	Allow() bool

	// Wait blocks until a request is allowed
	Wait(ctx context.Context) error

	// GetStats returns rate limiter statistics
	GetStats() RateLimiterStats
}

// RateLimiterStats provides statistics about rate limiter behaviour.
type RateLimiterStats struct {
	Limit             int           `json:"limit"`
	Window            time.Duration `json:"window"`
	AllowedRequests   int64         `json:"allowed_requests"`
	ThrottledRequests int64         `json:"throttled_requests"`
	InWindow          int           `json:"in_window"`
	TotalWaitTime     time.Duration `json:"total_wait_time"`
}

// SlidingWindowRateLimiter admits at most limit calls in any window-long
// interval. Callers over the limit sleep until the oldest admitted call
// leaves the window; they are never rejected.
type SlidingWindowRateLimiter struct {
	limit  int
	window time.Duration
	clock  Clock

	// admission times inside the current window, oldest first
	calls []time.Time

	allowedRequests   int64
	throttledRequests int64
	totalWaitTime     time.Duration

	mu sync.Mutex
}

// NewSlidingWindowRateLimiter creates a limiter for limit calls per window.
// A nil clock means the real clock.
func NewSlidingWindowRateLimiter(limit int, window time.Duration, clock Clock) *SlidingWindowRateLimiter {
	if clock == nil {
		clock = RealClock()
	}
	if limit < 1 {
		limit = 1
	}
	return &SlidingWindowRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		calls:  make([]time.Time, 0, limit),
	}
}

// Allow admits a call if the window has capacity.
func (sw *SlidingWindowRateLimiter) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.clock.Now()
	sw.evict(now)
	if len(sw.calls) < sw.limit {
		sw.admit(now)
		return true
	}
	return false
}

// Wait blocks until the call can be admitted or ctx is done.
func (sw *SlidingWindowRateLimiter) Wait(ctx context.Context) error {
	start := sw.clock.Now()
	throttled := false

	for {
		sw.mu.Lock()
		now := sw.clock.Now()
		sw.evict(now)

		if len(sw.calls) < sw.limit {
			sw.admit(now)
			if throttled {
				waited := now.Sub(start)
				sw.throttledRequests++
				sw.totalWaitTime += waited
				metrics.RateLimitWait.Observe(waited.Seconds())
			}
			sw.mu.Unlock()
			return nil
		}

		wait := sw.calls[0].Add(sw.window).Sub(now)
		sw.mu.Unlock()

		throttled = true
		if err := sw.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// GetStats returns rate limiter statistics
func (sw *SlidingWindowRateLimiter) GetStats() RateLimiterStats {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.evict(sw.clock.Now())
	return RateLimiterStats{
		Limit:             sw.limit,
		Window:            sw.window,
		AllowedRequests:   sw.allowedRequests,
		ThrottledRequests: sw.throttledRequests,
		InWindow:          len(sw.calls),
		TotalWaitTime:     sw.totalWaitTime,
	}
}

func (sw *SlidingWindowRateLimiter) admit(now time.Time) {
	sw.calls = append(sw.calls, now)
	sw.allowedRequests++
}

// evict drops admissions that are a full window old.
func (sw *SlidingWindowRateLimiter) evict(now time.Time) {
	i := 0
	for i < len(sw.calls) && !sw.calls[i].Add(sw.window).After(now) {
		i++
	}
	if i > 0 {
		sw.calls = append(sw.calls[:0], sw.calls[i:]...)
	}
}
