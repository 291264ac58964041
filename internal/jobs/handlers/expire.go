package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/gifpick-bot/internal/jobs"
)

// StaleCanceller cancels requests whose selector was never answered.
type StaleCanceller interface {
	CancelStale(ctx context.Context, olderThan time.Time) (int64, error)
}

type ExpireRequestsHandler struct {
	store StaleCanceller
	log   *slog.Logger
	now   func() time.Time
}

func NewExpireRequestsHandler(store StaleCanceller, log *slog.Logger) *ExpireRequestsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ExpireRequestsHandler{store: store, log: log, now: time.Now}
}

func (h *ExpireRequestsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.ExpireRequestsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if payload.OlderThan <= 0 {
		return fmt.Errorf("expire requests: non-positive age %s: %w", payload.OlderThan, asynq.SkipRetry)
	}

	cutoff := h.now().Add(-payload.OlderThan)
	n, err := h.store.CancelStale(ctx, cutoff)
	if err != nil {
		return err
	}

	if n > 0 {
		h.log.InfoContext(ctx, "expired abandoned requests",
			slog.Int64("cancelled", n),
			slog.Time("cutoff", cutoff),
		)
	}

	return nil
}
