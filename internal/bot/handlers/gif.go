package handlers

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/gifpick-bot/internal/bot/keyboard"
	"github.com/Proton-105/gifpick-bot/internal/domain"
	"github.com/Proton-105/gifpick-bot/internal/engine"
	apperrors "github.com/Proton-105/gifpick-bot/internal/errors"
	"github.com/Proton-105/gifpick-bot/internal/messages"
	"github.com/Proton-105/gifpick-bot/internal/presenter"
	"github.com/Proton-105/gifpick-bot/internal/tenor"
)

// Engine is the part of engine.Engine the handlers drive.
type Engine interface {
	Create(ctx context.Context, userID, conversationID, search string) (*domain.Request, error)
	Advance(ctx context.Context, token string) (*engine.Selection, error)
	SelectForSend(ctx context.Context, token string) (*engine.Selection, error)
	FetchRequestMeta(ctx context.Context, token string) (*domain.Request, error)
	RegisterShare(ctx context.Context, req *domain.Request, img *tenor.Image)
	MarkPosted(ctx context.Context, token string) error
	MarkCancelled(ctx context.Context, token string) error
}

// GifHandlers serves the search command and the selector buttons.
type GifHandlers struct {
	engine    Engine
	presenter *presenter.Presenter
	command   string
	texts     *messages.Catalog
	log       *slog.Logger
}

// NewGifHandlers wires handlers for command (e.g. "/gif").
func NewGifHandlers(eng Engine, p *presenter.Presenter, command string, log *slog.Logger) *GifHandlers {
	if log == nil {
		log = slog.Default()
	}

	return &GifHandlers{
		engine:    eng,
		presenter: p,
		command:   command,
		texts:     messages.Default(),
		log:       log,
	}
}

// ownedRequest loads the request behind the pressed button and checks that the
// presser is the requester. ok is false when the presser was turned away.
func (h *GifHandlers) ownedRequest(ctx context.Context, c telebot.Context) (req *domain.Request, ok bool, err error) {
	token, err := h.callbackToken(c)
	if err != nil {
		return nil, false, err
	}

	req, err = h.engine.FetchRequestMeta(ctx, token)
	if err != nil {
		return nil, false, err
	}

	if c.Sender() == nil || req.UserID != userID(c.Sender()) {
		h.log.WarnContext(ctx, "button pressed by another user",
			slog.String("block_uid", token),
			slog.String("owner_id", req.UserID),
		)
		return req, false, c.Respond(&telebot.CallbackResponse{Text: h.texts.T("bot.not_owner"), ShowAlert: true})
	}

	return req, true, nil
}

// closeRequest cancels a request that can no longer be continued. Failures are only logged.
func (h *GifHandlers) closeRequest(ctx context.Context, token, failureMsg string) {
	if err := h.engine.MarkCancelled(ctx, token); err != nil {
		h.log.WarnContext(ctx, failureMsg,
			slog.String("block_uid", token),
			slog.String("error", err.Error()),
		)
	}
}

func (h *GifHandlers) callbackToken(c telebot.Context) (string, error) {
	cb := c.Callback()
	if cb == nil {
		return "", apperrors.NewValidationError(h.texts.T("bot.button_only"))
	}

	_, token, err := keyboard.DecodeCallback(cb.Data)
	if err != nil || token == "" {
		return "", apperrors.NewStateError("callback without request token", err)
	}

	return token, nil
}

func userID(u *telebot.User) string {
	return strconv.FormatInt(u.ID, 10)
}

func chatID(c telebot.Context) string {
	if chat := c.Chat(); chat != nil {
		return strconv.FormatInt(chat.ID, 10)
	}
	if c.Sender() != nil {
		return userID(c.Sender())
	}
	return ""
}

// displayName is the attribution used on posted images.
func displayName(u *telebot.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return "@" + u.Username
	}

	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// commandPayload returns the text after the command word, e.g. "funny cats" for "/gif@bot funny cats".
func commandPayload(text string) string {
	text = strings.TrimSpace(text)
	idx := strings.IndexAny(text, " \t\n")
	if idx == -1 {
		return ""
	}

	return strings.TrimSpace(text[idx+1:])
}
