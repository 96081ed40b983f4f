package crawler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleOptions tune the adaptive delay between requests.
type ThrottleOptions struct {
	StartDelay        time.Duration
	MinDelay          time.Duration
	MaxDelay          time.Duration
	TargetConcurrency float64 // requests the server should be handling in parallel on average
}

// DefaultThrottleOptions mirror a polite crawler: start slow, never wait more than a minute.
func DefaultThrottleOptions() ThrottleOptions {
	return ThrottleOptions{
		StartDelay:        time.Second,
		MinDelay:          0,
		MaxDelay:          60 * time.Second,
		TargetConcurrency: 1,
	}
}

// Throttle spaces requests with a token bucket whose interval follows the
// observed response latency.
type Throttle struct {
	mu      sync.Mutex
	opts    ThrottleOptions
	delay   time.Duration
	limiter *rate.Limiter
}

func NewThrottle(opts ThrottleOptions) *Throttle {
	if opts.TargetConcurrency <= 0 {
		opts.TargetConcurrency = 1
	}
	delay := clampDuration(opts.StartDelay, opts.MinDelay, opts.MaxDelay)
	return &Throttle{
		opts:    opts,
		delay:   delay,
		limiter: rate.NewLimiter(limitFor(delay), 1),
	}
}

// Wait blocks until the next request may be sent.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// Observe moves the delay halfway towards latency/target concurrency. Error
// responses may slow the crawl down but never speed it up.
func (t *Throttle) Observe(latency time.Duration, status int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	target := time.Duration(float64(latency) / t.opts.TargetConcurrency)
	next := max((t.delay+target)/2, target)
	next = clampDuration(next, t.opts.MinDelay, t.opts.MaxDelay)
	if status != http.StatusOK && next <= t.delay {
		return
	}
	t.delay = next
	t.limiter.SetLimit(limitFor(next))
}

// Delay reports the current interval between requests.
func (t *Throttle) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if hi > 0 && d > hi {
		return hi
	}
	return d
}
