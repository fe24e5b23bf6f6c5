// Package ratelimit implements a fixed-window, per-endpoint rate limiter.
//
// Unlike a token-bucket limiter, a fixed window resets its whole quota at
// the boundary of each window rather than trickling tokens back in. Every
// logical endpoint (e.g. "hardcover") gets its own independent
// window, created lazily on first use and swept away by a background
// ticker once it has sat idle for a while.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rohit-purandare/shelfbridge/internal/clock"
	"github.com/rohit-purandare/shelfbridge/internal/logger"
)

// Config describes the quota for one logical endpoint.
type Config struct {
	// RequestsPerMinute is the fixed quota per window.
	RequestsPerMinute int
	// Window is the fixed-window length; defaults to one minute.
	Window time.Duration
}

type bucket struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	used        int
	lastTouch   time.Time
}

func (b *bucket) wait(ctx context.Context, clk clock.Clock) error {
	for {
		b.mu.Lock()
		now := clk.Now()
		b.lastTouch = now

		if now.Sub(b.windowStart) >= b.window {
			b.windowStart = now
			b.used = 0
		}

		if b.used < b.limit {
			b.used++
			b.mu.Unlock()
			return nil
		}

		wait := b.window - now.Sub(b.windowStart)
		b.mu.Unlock()

		if wait <= 0 {
			continue
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

func (b *bucket) idleSince(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastTouch)
}

// Limiter tracks one fixed-window bucket per logical endpoint key.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	configs  map[string]Config
	fallback Config

	clock       clock.Clock
	log         *logger.Logger
	sweepEvery  time.Duration
	idleExpiry  time.Duration
	stopSweep   chan struct{}
	sweepClosed sync.Once
}

// Option configures a Limiter at construction time.
type Option func(*Limiter)

// WithClock overrides the clock used for window bookkeeping. Defaults to
// the real wall clock.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithSweepInterval overrides how often the idle-bucket sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) { l.sweepEvery = d }
}

// WithIdleExpiry overrides how long a bucket may sit untouched before the
// sweep purges it.
func WithIdleExpiry(d time.Duration) Option {
	return func(l *Limiter) { l.idleExpiry = d }
}

// New creates a Limiter. Per-endpoint quotas are registered with
// Configure; endpoints that are never configured fall back to
// fallbackRPM requests per minute.
func New(fallbackRPM int, log *logger.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:    make(map[string]*bucket),
		configs:    make(map[string]Config),
		fallback:   Config{RequestsPerMinute: fallbackRPM, Window: time.Minute},
		clock:      clock.Real{},
		log:        log,
		sweepEvery: time.Minute,
		idleExpiry: 10 * time.Minute,
		stopSweep:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.sweepLoop()
	return l
}

// Configure sets the fixed-window quota for a logical endpoint key.
func (l *Limiter) Configure(key string, cfg Config) {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[key] = cfg
	if b, ok := l.buckets[key]; ok {
		b.mu.Lock()
		b.limit = cfg.RequestsPerMinute
		b.window = cfg.Window
		b.mu.Unlock()
	}
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}

	cfg, ok := l.configs[key]
	if !ok {
		cfg = l.fallback
	}
	now := l.clock.Now()
	b := &bucket{
		limit:       cfg.RequestsPerMinute,
		window:      cfg.Window,
		windowStart: now,
		lastTouch:   now,
	}
	l.buckets[key] = b
	return b
}

// Wait blocks until a slot is available for key, or ctx is canceled.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.bucketFor(key).wait(ctx, l.clock)
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopSweep:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.idleSince(now) >= l.idleExpiry {
			delete(l.buckets, key)
			if l.log != nil {
				l.log.Debug("rate limiter bucket purged", map[string]interface{}{"key": key})
			}
		}
	}
}

// Close stops the background sweep. Safe to call more than once.
func (l *Limiter) Close() {
	l.sweepClosed.Do(func() { close(l.stopSweep) })
}
