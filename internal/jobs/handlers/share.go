// Package handlers processes queued background tasks.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/gifpick-bot/internal/jobs"
)

// ShareRegistrar calls the upstream share-registration endpoint.
type ShareRegistrar interface {
	RegisterShare(ctx context.Context, imageID, query string) error
}

type RegisterShareHandler struct {
	registrar ShareRegistrar
	log       *slog.Logger
}

func NewRegisterShareHandler(registrar ShareRegistrar, log *slog.Logger) *RegisterShareHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RegisterShareHandler{registrar: registrar, log: log}
}

// ProcessTask registers the share. An upstream failure is logged and the task
// still completes: share registration is analytics only.
func (h *RegisterShareHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.RegisterSharePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "register share: failed to decode payload", slog.String("task_type", t.Type()), slog.String("error", err.Error()))
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	if err := h.registrar.RegisterShare(ctx, payload.ImageID, payload.Query); err != nil {
		h.log.WarnContext(ctx, "share registration failed",
			slog.String("image_id", payload.ImageID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	h.log.DebugContext(ctx, "share registered", slog.String("image_id", payload.ImageID))
	return nil
}
