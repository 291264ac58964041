package middleware

import (
	"context"
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/gifpick-bot/internal/bot/handlers"
	"github.com/Proton-105/gifpick-bot/internal/idempotency"
)

// Idempotency ensures handlers execute at most once per Telegram update.
// Redelivered updates (webhook retries, double taps on a button) are acknowledged and dropped.
func Idempotency(manager idempotency.Manager, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := idempotencyKey(c)
			if key == "" {
				return next(c)
			}

			ctx := handlers.Context(c)
			var (
				ran        bool
				handlerErr error
			)
			result, err := manager.Execute(ctx, key, func(execCtx context.Context) error {
				ran = true
				handlerErr = next(c)
				return handlerErr
			})
			switch {
			case errors.Is(err, idempotency.ErrRequestInProgress):
				log.DebugContext(ctx, "duplicate update dropped", slog.String("idempotency_key", key))
				return respondIfCallback(c)
			case ran:
				return handlerErr
			case err != nil:
				// redis unavailable: serve the update without deduplication
				log.WarnContext(ctx, "idempotency check failed", slog.String("idempotency_key", key), slog.Any("error", err))
				return next(c)
			}

			if result != nil && result.FromCache {
				log.DebugContext(ctx, "update already handled", slog.String("idempotency_key", key))
				return respondIfCallback(c)
			}

			return nil
		}
	}
}

func respondIfCallback(c telebot.Context) error {
	if c.Callback() == nil {
		return nil
	}
	return c.Respond()
}

// idempotencyKey derives a stable key from the update identity.
func idempotencyKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if cb := c.Callback(); cb != nil && cb.ID != "" {
		return idempotency.CallbackKey(cb.ID)
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		return idempotency.MessageKey(chatID, msg.ID)
	}

	return ""
}
