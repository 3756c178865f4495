package pubrender

import (
	"strconv"
	"sync"
	"time"
)

// RenderLimiter rate-limits renders per IP address.
type RenderLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
	stop   chan struct{}
	once   sync.Once
}

// NewRenderLimiter creates a RenderLimiter that allows max renders per window.
// A max of zero or less disables limiting.
func NewRenderLimiter(max int, window time.Duration) *RenderLimiter {
	if window <= 0 {
		window = time.Minute
	}
	l := &RenderLimiter{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
		stop:   make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *RenderLimiter) cleanup() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		cutoff := time.Now().Add(-l.window)
		l.mu.Lock()
		for ip, hits := range l.hits {
			if kept := prune(hits, cutoff); len(kept) == 0 {
				delete(l.hits, ip)
			} else {
				l.hits[ip] = kept
			}
		}
		l.mu.Unlock()
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// Allow records a render for ip and reports whether it is within the limit.
// Rejected renders are not recorded.
func (l *RenderLimiter) Allow(ip string) bool {
	if l.max <= 0 {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := prune(l.hits[ip], now.Add(-l.window))
	if len(kept) >= l.max {
		l.hits[ip] = kept
		return false
	}
	l.hits[ip] = append(kept, now)
	return true
}

// RetryAfter is the Retry-After header value in seconds.
func (l *RenderLimiter) RetryAfter() string {
	return strconv.Itoa(int(l.window.Seconds()))
}

// Stop ends the cleanup goroutine.
func (l *RenderLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}
