package fetcher

import (
	"context"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to the initial rate).
// On a rate-limit or block response it halves the rate (down to initial/4).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to the initial rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("fetcher: reducing host rate",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HostThrottle enforces a minimum interval between requests to the same host
// across all clients in a run. The host table is guarded by a mutex.
type HostThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	hosts    map[string]*AdaptiveLimiter
}

// NewHostThrottle creates a throttle. A non-positive interval disables it.
func NewHostThrottle(interval time.Duration) *HostThrottle {
	return &HostThrottle{
		interval: interval,
		hosts:    make(map[string]*AdaptiveLimiter),
	}
}

func (t *HostThrottle) limiterFor(rawURL string) *AdaptiveLimiter {
	if t == nil || t.interval <= 0 {
		return nil
	}
	host := hostOf(rawURL)
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.hosts[host]
	if !ok {
		lim = NewAdaptiveLimiter(rate.Every(t.interval), 1)
		t.hosts[host] = lim
	}
	return lim
}

// Wait blocks until a request to rawURL's host may be sent.
func (t *HostThrottle) Wait(ctx context.Context, rawURL string) error {
	if lim := t.limiterFor(rawURL); lim != nil {
		return lim.Wait(ctx)
	}
	return ctx.Err()
}

// OnSuccess relaxes the host's rate after a clean response.
func (t *HostThrottle) OnSuccess(rawURL string) {
	if lim := t.limiterFor(rawURL); lim != nil {
		lim.OnSuccess()
	}
}

// OnRateLimit slows the host down after a 429 or block.
func (t *HostThrottle) OnRateLimit(rawURL string) {
	if lim := t.limiterFor(rawURL); lim != nil {
		lim.OnRateLimit()
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
