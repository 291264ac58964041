package middleware

import (
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/gifpick-bot/internal/bot/handlers"
	"github.com/Proton-105/gifpick-bot/internal/bot/keyboard"
	"github.com/Proton-105/gifpick-bot/pkg/metrics"
)

// Metrics measures execution time and status for bot handlers, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordCommand(actionName(c), status, time.Since(start))

		return err
	}
}

// actionName keeps label cardinality bounded: button presses report their
// action, messages report "search", never the user text or request token.
func actionName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if cb := c.Callback(); cb != nil {
		action, _, err := keyboard.DecodeCallback(cb.Data)
		switch {
		case err != nil:
			return "unknown"
		case action == keyboard.ActionSend, action == keyboard.ActionNext, action == keyboard.ActionCancel:
			return action
		default:
			return "unknown"
		}
	}

	if c.Message() != nil {
		return "search"
	}

	return "unknown"
}
