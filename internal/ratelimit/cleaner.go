package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner periodically forgets idle keys of a MemoryLimiter.
// Redis keys carry their own expiry.
type Cleaner struct {
	limiter  *MemoryLimiter
	interval time.Duration
	maxAge   time.Duration
	log      *slog.Logger
}

// NewCleaner sweeps limiter every interval, dropping keys idle for maxAge.
func NewCleaner(limiter *MemoryLimiter, interval, maxAge time.Duration, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{limiter: limiter, interval: interval, maxAge: maxAge, log: log}
}

// Run blocks until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.limiter == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := c.limiter.Cleanup(c.maxAge); dropped > 0 {
				c.log.Debug("rate limit keys pruned", slog.Int("count", dropped))
			}
		}
	}
}
