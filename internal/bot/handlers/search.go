package handlers

import (
	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/gifpick-bot/internal/errors"
)

// Search handles "/gif <text>": it creates the request, selects the first result and shows the selector.
func (h *GifHandlers) Search(c telebot.Context) error {
	if c == nil || c.Sender() == nil {
		h.log.Warn("search handler invoked without sender")
		return nil
	}

	ctx := Context(c)
	query := commandPayload(c.Text())
	if query == "" {
		return apperrors.NewValidationError(h.texts.Tf("bot.usage", h.command))
	}

	req, err := h.engine.Create(ctx, userID(c.Sender()), chatID(c), query)
	if err != nil {
		return err
	}

	sel, err := h.engine.Advance(ctx, req.Token)
	if err != nil {
		// nothing was shown, so the request cannot be continued
		h.closeRequest(ctx, req.Token, "failed to close request after empty search")
		return err
	}

	view, err := h.presenter.Selecting(req, sel.Image)
	if err != nil {
		return err
	}

	return c.Send(view.Animation(), view.Markup())
}
