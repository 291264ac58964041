// Package ratelimit throttles how often a Telegram user may hit the bot.
package ratelimit

import (
	"context"
	"time"
)

// Rule allows Limit hits per sliding Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one hit against a rule.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAt is when the oldest hit in the window ages out.
	RetryAt time.Time
}

// RetryAfter returns how long the caller should wait, at least one second.
func (d *Decision) RetryAfter(now time.Time) time.Duration {
	if d == nil || d.RetryAt.IsZero() {
		return time.Second
	}
	if wait := d.RetryAt.Sub(now); wait > time.Second {
		return wait
	}
	return time.Second
}

// Limiter records a hit for key and reports whether it fits the rule.
// A rejected hit is not recorded. Errors mean the backend could not decide.
type Limiter interface {
	Hit(ctx context.Context, key string, rule Rule) (*Decision, error)
}
