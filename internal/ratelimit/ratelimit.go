package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter admits at most max requests per identity in each fixed window.
type Limiter struct {
	window     time.Duration
	max        int
	maxBuckets int
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func New(window time.Duration, limit, maxBuckets int) *Limiter {
	return &Limiter{
		window:     window,
		max:        limit,
		maxBuckets: maxBuckets,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}
}

// Allow counts one request for identity and reports whether it is admitted.
func (l *Limiter) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[identity]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(l.window)}
		l.buckets[identity] = b
	}
	b.count++

	if l.maxBuckets > 0 && len(l.buckets) > l.maxBuckets {
		l.sweepLocked(now)
	}

	return b.count <= l.max
}

func (l *Limiter) sweepLocked(now time.Time) {
	for id, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, id)
		}
	}
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
