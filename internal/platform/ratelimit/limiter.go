package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Limiter throttles chat commands per user with a token bucket. Tokens refill
// at ratePerMinute and accumulate up to burst, so short spikes are tolerated
// while the sustained rate stays bounded.
type Limiter struct {
	ratePerMinute float64
	burst         float64
	clock         func() time.Time

	mu      sync.Mutex
	buckets map[string]bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// New returns a Limiter, or nil when the configuration disables limiting.
func New(ratePerMinute, burst int, clock func() time.Time) *Limiter {
	if ratePerMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &Limiter{
		ratePerMinute: float64(ratePerMinute),
		burst:         float64(burst),
		clock:         clock,
		buckets:       make(map[string]bucket),
	}
}

// Allow reports whether the keyed caller may proceed. A nil limiter allows
// everything.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.buckets[key]
	if !ok {
		l.pruneIdleLocked(now)
		l.buckets[key] = bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(entry.last).Minutes()
	if elapsed > 0 {
		entry.tokens += elapsed * l.ratePerMinute
		if entry.tokens > l.burst {
			entry.tokens = l.burst
		}
		entry.last = now
	}

	if entry.tokens < 1 {
		l.buckets[key] = entry
		return false
	}
	entry.tokens--
	l.buckets[key] = entry
	return true
}

// pruneIdleLocked drops buckets that have been full for a while so the map
// does not grow without bound.
func (l *Limiter) pruneIdleLocked(now time.Time) {
	if len(l.buckets) < 1024 {
		return
	}
	refillWindow := time.Duration(l.burst/l.ratePerMinute*float64(time.Minute)) + time.Minute
	for key, entry := range l.buckets {
		if now.Sub(entry.last) > refillWindow {
			delete(l.buckets, key)
		}
	}
}
