// Package ratelimit provides a sliding-window request counter keyed by provider.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLimitExceeded is matched by every LimitError.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// LimitError reports a rejected request and when capacity frees up.
type LimitError struct {
	Key        string
	Limit      int
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit of %d exceeded for %s", e.Limit, e.Key)
}

func (e *LimitError) Unwrap() error {
	return ErrLimitExceeded
}

// window holds the request timestamps of one key in ascending order.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
	lastAccess time.Time
	// removed is set under mu once the window has left the map; holders must reload.
	removed bool
}

// prune drops timestamps at or before now-period.
func (w *window) prune(now time.Time, period time.Duration) {
	cutoff := now.Add(-period)
	idx := 0
	for idx < len(w.timestamps) && !w.timestamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[idx:]...)
	}
}

// countAt returns the number of timestamps inside the window without mutating it.
func (w *window) countAt(now time.Time, period time.Duration) int {
	cutoff := now.Add(-period)
	count := 0
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

// Limiter is a sliding-window rate limiter safe for concurrent use. Calls for the same key
// share one window guarded by its own mutex.
type Limiter struct {
	windows sync.Map // map[string]*window
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter clock.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) getWindow(key string) *window {
	if val, ok := l.windows.Load(key); ok {
		return val.(*window)
	}
	val, _ := l.windows.LoadOrStore(key, &window{})
	return val.(*window)
}

// lockWindow returns the live window of key with its mutex held.
func (l *Limiter) lockWindow(key string) *window {
	for {
		w := l.getWindow(key)
		w.mu.Lock()
		if !w.removed {
			return w
		}
		w.mu.Unlock()
	}
}

// remove drops w from the map unless another window already replaced it. Callers hold w.mu.
func (l *Limiter) remove(key any, w *window) {
	w.removed = true
	l.windows.CompareAndDelete(key, w)
}

// Record counts one request for key. It returns a *LimitError, without recording the request,
// when limit requests were already seen within period.
func (l *Limiter) Record(key string, limit int, period time.Duration) error {
	w := l.lockWindow(key)
	defer w.mu.Unlock()

	now := l.now()

	w.lastAccess = now
	w.prune(now, period)

	if len(w.timestamps) >= limit {
		return &LimitError{
			Key:        key,
			Limit:      limit,
			RetryAfter: w.timestamps[0].Add(period).Sub(now),
		}
	}

	w.timestamps = append(w.timestamps, now)
	return nil
}

// Allowed reports whether a request for key would currently be accepted. It does not record.
func (l *Limiter) Allowed(key string, limit int, period time.Duration) bool {
	return l.Remaining(key, limit, period) > 0
}

// Remaining returns how many more requests key may make in the current window.
func (l *Limiter) Remaining(key string, limit int, period time.Duration) int {
	val, ok := l.windows.Load(key)
	if !ok {
		return max(0, limit)
	}
	w := val.(*window)

	w.mu.Lock()
	count := w.countAt(l.now(), period)
	w.mu.Unlock()

	return max(0, limit-count)
}

// Reset forgets all requests recorded for key.
func (l *Limiter) Reset(key string) {
	val, ok := l.windows.Load(key)
	if !ok {
		return
	}
	w := val.(*window)
	w.mu.Lock()
	l.remove(key, w)
	w.mu.Unlock()
}

// Clear forgets all recorded requests.
func (l *Limiter) Clear() {
	l.windows.Range(func(key, value any) bool {
		w := value.(*window)
		w.mu.Lock()
		l.remove(key, w)
		w.mu.Unlock()
		return true
	})
}

// Cleanup removes windows not touched within idle. Staleness is decided under the window lock,
// so a request recorded concurrently keeps its window.
func (l *Limiter) Cleanup(idle time.Duration) {
	threshold := l.now().Add(-idle)
	l.windows.Range(func(key, value any) bool {
		w := value.(*window)
		w.mu.Lock()
		if !w.removed && w.lastAccess.Before(threshold) {
			l.remove(key, w)
		}
		w.mu.Unlock()
		return true
	})
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (l *Limiter) StartCleanup(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup(idle)
		}
	}
}
