package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/gifpick-bot/internal/bot/handlers"
	apperrors "github.com/Proton-105/gifpick-bot/internal/errors"
	"github.com/Proton-105/gifpick-bot/internal/ratelimit"
)

// RateLimitMiddleware enforces per-user rate limits for incoming Telegram updates.
// New searches are additionally held to the stricter search rule since each one
// costs an upstream call.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	log     *slog.Logger
	now     func() time.Time
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		log:     log,
		now:     time.Now,
	}
}

// Handle wraps next. Rejections surface as a rate limit AppError so the error
// middleware replies with the retry hint.
func (m *RateLimitMiddleware) Handle(next handlers.Handler) handlers.Handler {
	return func(c telebot.Context) error {
		if m.limiter == nil || m.rules == nil {
			return next(c)
		}

		sender := c.Sender()
		if sender == nil || m.rules.Exempt(sender.ID) {
			return next(c)
		}

		if err := m.hit(c, fmt.Sprintf("user:%d", sender.ID), m.rules.PerUser); err != nil {
			return err
		}

		if c.Callback() == nil {
			if err := m.hit(c, fmt.Sprintf("search:%d", sender.ID), m.rules.Search); err != nil {
				return err
			}
		}

		return next(c)
	}
}

func (m *RateLimitMiddleware) hit(c telebot.Context, key string, rule ratelimit.Rule) error {
	ctx := handlers.Context(c)

	decision, err := m.limiter.Hit(ctx, key, rule)
	if err != nil {
		// limiter outage must not lock users out
		m.log.WarnContext(ctx, "rate limiter error", slog.String("limit_key", key), slog.Any("error", err))
		return nil
	}
	if decision.Allowed {
		return nil
	}

	seconds := int(math.Ceil(decision.RetryAfter(m.now()).Seconds()))
	m.log.WarnContext(ctx, "rate limit exceeded", slog.String("limit_key", key), slog.Int("retry_after", seconds))
	return apperrors.NewRateLimitError(seconds)
}
