package bot

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/gifpick-bot/internal/bot/handlers"
	"github.com/Proton-105/gifpick-bot/internal/bot/keyboard"
	errors "github.com/Proton-105/gifpick-bot/internal/errors"
	"github.com/Proton-105/gifpick-bot/internal/messages"
	"github.com/Proton-105/gifpick-bot/pkg/logger"
)

// userMessage picks the catalog reply for err. Errors whose text is built by the
// handler (validation) keep msg as is.
func userMessage(texts *messages.Catalog, err error, msg string) string {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) || appErr == nil {
		return texts.T("errors.generic")
	}

	switch appErr.Code {
	case errors.CodeValidation:
		return msg
	case errors.CodeRateLimit:
		return texts.Tf("errors."+appErr.Code, appErr.RetryAfter)
	}

	if key := "errors." + appErr.Code; texts.Has(key) {
		return texts.T(key)
	}
	return texts.T("errors.generic")
}

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *errors.Handler, texts *messages.Catalog) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}
	if texts == nil {
		texts = messages.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					if errHandler != nil {
						appErr := errors.NewDatabaseError(fmt.Errorf("panic recovered: %v", r))
						errHandler.Handle(handlers.Context(c), appErr)
					}
					userMsg := texts.T("errors.generic")

					if c != nil {
						if notifyErr := notify(c, userMsg); notifyErr != nil {
							log.Error("failed to notify user about panic", slog.Any("error", notifyErr))
						}
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware centralizes error reporting and user messaging for handler failures.
// Button presses get an alert popup; commands get a chat reply.
func ErrorHandlingMiddleware(errHandler *errors.Handler, texts *messages.Catalog) handlers.Middleware {
	if texts == nil {
		texts = messages.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			msg := ""
			if errHandler != nil {
				msg, _ = errHandler.Handle(handlers.Context(c), err)
			}

			if c != nil {
				_ = notify(c, userMessage(texts, err, msg))
			}

			return nil
		}
	}
}

func notify(c telebot.Context, msg string) error {
	if c.Callback() != nil {
		return c.Respond(&telebot.CallbackResponse{Text: msg, ShowAlert: true})
	}
	return c.Send(msg)
}

// LoggingMiddleware attaches a correlation id to the update and logs its handling.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()
			ctx := logger.WithCorrelationID(handlers.Context(c), updateID(c))
			handlers.WithContext(c, ctx)

			attrs := updateAttrs(c)
			log.DebugContext(ctx, "handling update", attrs...)
			err := next(c)

			attrs = append(attrs,
				slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
				slog.Duration("duration", time.Since(start)),
			)
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			log.InfoContext(ctx, "handled update", attrs...)

			return err
		}
	}
}

func updateID(c telebot.Context) string {
	if c == nil {
		return ""
	}
	if u := c.Update(); u.ID != 0 {
		return "upd-" + strconv.Itoa(u.ID)
	}
	return ""
}

func updateAttrs(c telebot.Context) []any {
	var attrs []any
	if c == nil {
		return attrs
	}

	if sender := c.Sender(); sender != nil {
		attrs = append(attrs, slog.Int64("user_id", sender.ID))
	}

	if cb := c.Callback(); cb != nil {
		action, token, _ := keyboard.DecodeCallback(cb.Data)
		attrs = append(attrs, slog.String("action", action), slog.String("block_uid", token))
		return attrs
	}

	attrs = append(attrs, slog.String("action", commandWord(c.Text())))
	return attrs
}
