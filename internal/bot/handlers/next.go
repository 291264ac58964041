package handlers

import (
	telebot "gopkg.in/telebot.v3"
)

// Next consumes the shown image and replaces the selector with the following one.
func (h *GifHandlers) Next(c telebot.Context) error {
	ctx := Context(c)

	req, ok, err := h.ownedRequest(ctx, c)
	if err != nil || !ok {
		return err
	}

	sel, err := h.engine.Advance(ctx, req.Token)
	if err != nil {
		return err
	}

	view, err := h.presenter.Selecting(req, sel.Image)
	if err != nil {
		return err
	}

	if err := c.Edit(view.Animation(), view.Markup()); err != nil {
		return err
	}

	return c.Respond()
}
