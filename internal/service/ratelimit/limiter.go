// Package ratelimit keeps one token bucket per key, used to throttle the
// scoring endpoint per client.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

type Limiter struct {
	mu    sync.Mutex
	m     map[string]*entry
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time
}

// New allows rps sustained requests per key with the given burst. Keys
// unused for idle are forgotten on the next Sweep. rps <= 0 disables
// limiting.
func New(rps float64, burst int, idle time.Duration) *Limiter {
	lim := rate.Limit(rps)
	if rps <= 0 {
		lim = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{m: make(map[string]*entry), limit: lim, burst: burst, idle: idle, now: time.Now}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = e
	}
	e.seen = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// Sweep drops keys idle for longer than the configured idle period and
// returns how many were removed.
func (l *Limiter) Sweep() int {
	if l.idle <= 0 {
		return 0
	}
	cutoff := l.now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.m {
		if e.seen.Before(cutoff) {
			delete(l.m, k)
			n++
		}
	}
	return n
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
