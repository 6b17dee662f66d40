// Package ratelimit implements the per-channel sliding window that throttles
// outbound notifications. The window lives in a cache entry so several
// processes sharing a backend share the budget.
//
// Admission is check-then-act against the shared entry: concurrent callers may
// both be admitted. The limiter is best-effort throttling, not a quota.
package ratelimit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/afikmenashe/logpipe/internal/cache"
)

const (
	// DefaultSpan is the length of the trailing window.
	DefaultSpan = 60 * time.Second
	// DefaultTTL bounds how long an idle window entry survives.
	DefaultTTL = 65 * time.Second
)

// Window admits at most Max deliveries per trailing Span.
type Window struct {
	cache cache.Cache
	key   string
	max   int
	span  time.Duration
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Window.
type Option func(*Window)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

// WithSpan changes the window length. The stored TTL stays at least 5s longer.
func WithSpan(span time.Duration) Option {
	return func(w *Window) {
		w.span = span
		if w.ttl < span+5*time.Second {
			w.ttl = span + 5*time.Second
		}
	}
}

// New creates a window stored under key.
func New(c cache.Cache, key string, maxPerSpan int, opts ...Option) *Window {
	w := &Window{
		cache: c,
		key:   key,
		max:   maxPerSpan,
		span:  DefaultSpan,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Key returns the cache key holding the window.
func (w *Window) Key() string {
	return w.key
}

// Max returns the admission budget per span.
func (w *Window) Max() int {
	return w.max
}

// Admit reports whether one more delivery fits in the window and, if so,
// records it.
func (w *Window) Admit(ctx context.Context) bool {
	now := w.now()
	stamps := w.recent(ctx, now)

	if len(stamps) >= w.max {
		return false
	}

	stamps = append(stamps, now.UnixMilli())
	data, err := json.Marshal(stamps)
	if err == nil {
		w.cache.Set(ctx, w.key, data, w.ttl)
	}
	return true
}

// recent loads the stored timestamps and keeps those inside the span.
func (w *Window) recent(ctx context.Context, now time.Time) []int64 {
	var stored []int64
	if data := w.cache.Get(ctx, w.key, nil); len(data) > 0 {
		if err := json.Unmarshal(data, &stored); err != nil {
			stored = nil
		}
	}

	cutoff := now.Add(-w.span).UnixMilli()
	kept := stored[:0]
	for _, ts := range stored {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}
