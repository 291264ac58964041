package ratelimit

import (
	"context"
	"log/slog"

	"github.com/Proton-105/gifpick-bot/pkg/metrics"
)

// AdaptiveLimiter asks Redis first. While Redis is failing each replica
// enforces half of the rule on its own, since replicas no longer share counts.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	log      *slog.Logger
}

var _ Limiter = (*AdaptiveLimiter)(nil)

// NewAdaptiveLimiter combines a shared primary with a local fallback.
func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveLimiter{primary: primary, fallback: fallback, log: log}
}

// Hit implements Limiter.
func (a *AdaptiveLimiter) Hit(ctx context.Context, key string, rule Rule) (*Decision, error) {
	decision, err := a.primary.Hit(ctx, key, rule)
	if err == nil {
		metrics.RecordRateLimit("redis", decision.Allowed)
		return decision, nil
	}

	metrics.RecordRateLimitBackendError("redis")
	a.log.WarnContext(ctx, "redis rate limiter unavailable, using local window",
		slog.String("limit_key", key),
		slog.Any("error", err),
	)

	decision, err = a.fallback.Hit(ctx, key, halve(rule))
	if err != nil {
		return nil, err
	}
	metrics.RecordRateLimit("memory", decision.Allowed)
	return decision, nil
}

func halve(rule Rule) Rule {
	rule.Limit = max(rule.Limit/2, 1)
	return rule
}
