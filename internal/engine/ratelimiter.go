package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter holds one token bucket per SMTP config id so each outbound
// resource gets its own rateLimitMax-per-rateLimitDuration budget. Entries
// unused for ttl are swept by a background loop; the map stays bounded by
// the number of recently active configs.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	ttl        time.Duration
	sweepEvery time.Duration
	logger     *slog.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
}

type bucket struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		buckets:    make(map[string]*bucket),
		ttl:        10 * time.Minute,
		sweepEvery: time.Minute,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Wait blocks until the resource's bucket grants a permit or ctx is done.
// A non-positive max means the resource is unlimited.
func (rl *RateLimiter) Wait(ctx context.Context, key string, max int, window time.Duration) error {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Second
	}
	return rl.bucket(key, max, window).Wait(ctx)
}

func (rl *RateLimiter) bucket(key string, max int, window time.Duration) *rate.Limiter {
	limit := rate.Every(window / time.Duration(max))

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(limit, max)}
		rl.buckets[key] = b
	} else if b.lim.Limit() != limit || b.lim.Burst() != max {
		// Config changed; apply the new budget to the existing bucket.
		b.lim.SetLimit(limit)
		b.lim.SetBurst(max)
	}
	b.lastUsed = time.Now()
	return b.lim
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.sweep(time.Now())
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.Sub(b.lastUsed) > rl.ttl {
			delete(rl.buckets, key)
		}
	}
}

// Stop terminates the sweep loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}
