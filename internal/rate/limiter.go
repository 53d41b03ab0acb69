// Package rate provides fixed-window rate limiting for the demo API,
// mainly to keep the challenge endpoint from being used as a free
// encryption oracle.
package rate

import (
	"sync"
	"time"
)

// Limiter answers whether an action under a key is allowed right now.
// The returned duration is the time until the window resets.
type Limiter interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration)
}

// MemoryLimiter is an in-process Limiter. Counters live in memory, so
// limits are per instance and reset on restart.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count    int
	resetAt  time.Time
	duration time.Duration
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window)}
}

func (m *MemoryLimiter) Allow(key string, limit int, d time.Duration) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.prune(now)

	w, ok := m.windows[key]
	if !ok || now.After(w.resetAt) || w.duration != d {
		w = &window{resetAt: now.Add(d), duration: d}
		m.windows[key] = w
	}

	if w.count >= limit {
		return false, time.Until(w.resetAt)
	}

	w.count++
	return true, time.Until(w.resetAt)
}

// prune drops expired windows so one-off keys do not accumulate.
func (m *MemoryLimiter) prune(now time.Time) {
	if len(m.windows) < 4096 {
		return
	}
	for key, w := range m.windows {
		if now.After(w.resetAt) {
			delete(m.windows, key)
		}
	}
}
