package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"
)

// Cancel concludes the request without posting and removes the selector.
func (h *GifHandlers) Cancel(c telebot.Context) error {
	ctx := Context(c)

	req, ok, err := h.ownedRequest(ctx, c)
	if err != nil || !ok {
		return err
	}

	if err := h.engine.MarkCancelled(ctx, req.Token); err != nil {
		return err
	}

	if err := c.Delete(); err != nil {
		h.log.WarnContext(ctx, "failed to delete selector",
			slog.String("block_uid", req.Token),
			slog.String("error", err.Error()),
		)
	}

	return c.Respond()
}
