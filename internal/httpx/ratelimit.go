// Package httpx holds the transport-level machinery every venue adapter
// shares: rate limiting, retry with jittered backoff, and the cancel
// broadcaster used to race a cancel-all across redundant clients.
// Generalized from a CLOB venue's three fixed buckets into a per-category
// limiter table keyed by whatever category names the caller registers.
package httpx

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is a continuously-refilling token bucket: tokens accrue at
// rate per second up to capacity, and Wait blocks until at least one token
// is available or ctx is done. Generalized to an arbitrary named category
// rather than three hardcoded venue-specific buckets.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	lastTime time.Time
}

// NewTokenBucket builds a bucket starting full.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastTime).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastTime = now
}

// Wait blocks until a token is available, consuming it, or returns ctx.Err()
// if ctx is canceled first.
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := time.Now()
		b.refill(now)
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		deficit := 1 - b.tokens
		wait := time.Duration(deficit/b.rate*1000) * time.Millisecond
		b.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// DualBucket composes a burst-shaped golang.org/x/time/rate.Limiter with a
// longer-horizon TokenBucket to enforce both a per-second burst cap and a
// rolling per-minute cap, the shape most REST venues document (e.g. "50
// req/s, 3000 req/min").
type DualBucket struct {
	burst  *rate.Limiter
	window *TokenBucket
}

// NewDualBucket builds a DualBucket: burstPerSec/burstCapacity feed the
// x/time/rate limiter, windowCapacity/windowPerSec feed the rolling
// TokenBucket (windowPerSec = windowCapacity / 60 for a one-minute window).
func NewDualBucket(burstPerSec float64, burstCapacity int, windowCapacity, windowPerSec float64) *DualBucket {
	return &DualBucket{
		burst:  rate.NewLimiter(rate.Limit(burstPerSec), burstCapacity),
		window: NewTokenBucket(windowCapacity, windowPerSec),
	}
}

// Wait blocks until both the burst and window buckets admit one request.
func (d *DualBucket) Wait(ctx context.Context) error {
	if err := d.burst.Wait(ctx); err != nil {
		return err
	}
	return d.window.Wait(ctx)
}

// Limiter groups named rate-limit categories for a single venue client,
// generalized from a fixed {Order, Cancel, Book} struct into an open
// category set: each category is a name the caller registers with its own
// bucket (cmd/exec-core registers "order", "cancel" and "query").
type Limiter struct {
	mu         sync.RWMutex
	categories map[string]*DualBucket
}

func NewLimiter() *Limiter {
	return &Limiter{categories: make(map[string]*DualBucket)}
}

// Register installs a bucket for category, replacing any prior one.
func (l *Limiter) Register(category string, bucket *DualBucket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.categories[category] = bucket
}

// Wait blocks on category's bucket. Categories with no registered bucket
// never throttle — callers should register every category a venue client
// actually uses at construction time.
func (l *Limiter) Wait(ctx context.Context, category string) error {
	l.mu.RLock()
	b, ok := l.categories[category]
	l.mu.RUnlock()
	if !ok {
		return nil
	}
	return b.Wait(ctx)
}
