package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/gifpick-bot/pkg/logger"
	"github.com/Proton-105/gifpick-bot/pkg/metrics"
)

// Handler is the single place where handler failures are logged, counted and reported.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{log: log, sentryEnabled: sentryEnabled}
}

// Handle logs err with full detail and returns the message that may be shown to the user.
// Errors that are not AppErrors are treated as high severity with the generic message.
// Low severity errors are expected outcomes and are logged at info level.
func (h *Handler) Handle(ctx context.Context, err error) (userMessage string, retryable bool) {
	if err == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	appErr := classify(err)

	attrs := []slog.Attr{
		slog.String("code", appErr.Code),
		slog.String("severity", string(appErr.Severity)),
		slog.Bool("retryable", appErr.Retryable),
		slog.String("error", err.Error()),
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("correlation_id", id))
	}

	level, msg := slog.LevelError, "application error"
	if appErr.Severity == SeverityLow {
		level, msg = slog.LevelInfo, "application outcome"
	}
	h.log.LogAttrs(ctx, level, msg, attrs...)
	metrics.RecordError(appErr.Code, string(appErr.Severity))

	if h.sentryEnabled && (appErr.Severity == SeverityHigh || appErr.Severity == SeverityCritical) {
		report(ctx, appErr, err)
	}

	userMessage = appErr.UserMessage
	if userMessage == "" {
		userMessage = genericUserMessage
	}
	return userMessage, appErr.Retryable
}

// classify returns the AppError in err's chain, or a high severity stand-in.
func classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr
	}

	return &AppError{Code: "unknown", Message: err.Error(), Severity: SeverityHigh}
}

func report(ctx context.Context, appErr *AppError, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("code", appErr.Code)
		scope.SetTag("severity", string(appErr.Severity))
		if id := logger.CorrelationIDFromContext(ctx); id != "" {
			scope.SetTag("correlation_id", id)
		}
		hub.CaptureException(err)
	})
}
