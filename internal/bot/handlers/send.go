package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"
)

// Send posts the shown image to the conversation and concludes the request.
func (h *GifHandlers) Send(c telebot.Context) error {
	ctx := Context(c)

	req, ok, err := h.ownedRequest(ctx, c)
	if err != nil || !ok {
		return err
	}

	sel, err := h.engine.SelectForSend(ctx, req.Token)
	if err != nil {
		return err
	}

	view, err := h.presenter.Posted(req, sel.Image, displayName(c.Sender()))
	if err != nil {
		return err
	}

	if err := c.Delete(); err != nil {
		h.log.WarnContext(ctx, "failed to delete selector",
			slog.String("block_uid", req.Token),
			slog.String("error", err.Error()),
		)
	}

	if err := c.Send(view.Animation()); err != nil {
		// the queue is already consumed, so the request cannot be continued
		h.closeRequest(ctx, req.Token, "failed to close request after failed post")
		return err
	}

	if err := h.engine.MarkPosted(ctx, req.Token); err != nil {
		return err
	}

	h.engine.RegisterShare(ctx, req, sel.Image)

	return c.Respond()
}
