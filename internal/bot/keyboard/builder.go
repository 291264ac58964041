package keyboard

import (
	telebot "gopkg.in/telebot.v3"
)

// Selector actions carried in callback data as "<action>:<token>".
const (
	ActionSend   = "gif_send"
	ActionNext   = "gif_next"
	ActionCancel = "gif_cancel"
)

// Selector builds the Send / Next / Cancel row for the request identified by token.
func Selector(token string) (*telebot.ReplyMarkup, error) {
	return NewInlineKeyboard().
		AddRow(
			InlineButton{Text: "Send", Unique: ActionSend, Data: token},
			InlineButton{Text: "Next", Unique: ActionNext, Data: token},
			InlineButton{Text: "Cancel", Unique: ActionCancel, Data: token},
		).
		Build()
}
