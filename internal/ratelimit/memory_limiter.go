package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps sliding windows in process. It serves when Redis is
// disabled and as the fallback of AdaptiveLimiter.
type MemoryLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// Hit never fails.
func (m *MemoryLimiter) Hit(_ context.Context, key string, rule Rule) (*Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	recent := dropBefore(m.hits[key], now.Add(-rule.Window))
	allowed := len(recent) < rule.Limit
	if allowed {
		recent = append(recent, now)
	}
	m.hits[key] = recent

	decision := &Decision{
		Allowed:   allowed,
		Remaining: max(rule.Limit-len(recent), 0),
		RetryAt:   now.Add(rule.Window),
	}
	if len(recent) > 0 {
		decision.RetryAt = recent[0].Add(rule.Window)
	}

	return decision, nil
}

// Cleanup forgets keys whose latest hit is older than maxAge and returns how many were dropped.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for key, hits := range m.hits {
		if len(hits) == 0 || hits[len(hits)-1].Before(cutoff) {
			delete(m.hits, key)
			dropped++
		}
	}
	return dropped
}

// dropBefore removes the leading hits older than start, reusing the slice.
func dropBefore(hits []time.Time, start time.Time) []time.Time {
	i := 0
	for i < len(hits) && hits[i].Before(start) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
