package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by caller-chosen strings.
// The clock is injectable so the window is deterministic in tests.
type Limiter struct {
	mu       sync.Mutex
	limit    int
	interval time.Duration
	now      func() time.Time
	buckets  map[string][]time.Time
}

func New(limit int, interval time.Duration) *Limiter {
	return NewWithClock(limit, interval, time.Now)
}

func NewWithClock(limit int, interval time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		limit:    limit,
		interval: interval,
		now:      now,
		buckets:  make(map[string][]time.Time),
	}
}

// Allow records one event for key and reports whether it fits inside the
// window. A rejected event is not recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.interval)

	bucket := l.buckets[key]
	kept := bucket[:0]
	for _, ts := range bucket {
		if !ts.Before(windowStart) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.buckets[key] = kept
		return false
	}

	l.buckets[key] = append(kept, now)
	return true
}
