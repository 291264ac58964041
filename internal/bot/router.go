package bot

import (
	"log/slog"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/gifpick-bot/internal/bot/handlers"
	"github.com/Proton-105/gifpick-bot/internal/bot/keyboard"
)

// Router maps a slash command or a selector button to its handler and runs it
// inside the middleware chain. Anything else is dropped.
type Router struct {
	log *slog.Logger

	mu       sync.RWMutex
	commands map[string]handlers.Handler
	actions  map[string]handlers.CallbackHandler
	chain    []handlers.Middleware
}

func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		log:      log,
		commands: map[string]handlers.Handler{},
		actions:  map[string]handlers.CallbackHandler{},
	}
}

// RegisterCommand binds cmd, matched case-insensitively and without a @bot suffix.
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	r.commands[strings.ToLower(cmd)] = h
	r.mu.Unlock()
}

// RegisterCallback binds a button action such as keyboard.ActionNext.
func (r *Router) RegisterCallback(action string, h handlers.CallbackHandler) {
	r.mu.Lock()
	r.actions[action] = h
	r.mu.Unlock()
}

// Use appends mw; earlier middlewares wrap later ones.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	r.chain = append(r.chain, mw)
	r.mu.Unlock()
}

func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	if cb := c.Callback(); cb != nil {
		h := r.action(cb.Data)
		if h == nil {
			// stop the client spinner on stale or foreign buttons
			return c.Respond()
		}
		return r.wrap(h)(c)
	}

	cmd := commandWord(c.Text())
	if cmd == "" {
		return nil
	}

	r.mu.RLock()
	h := r.commands[cmd]
	r.mu.RUnlock()
	if h == nil {
		r.log.Debug("unknown command", slog.String("command", cmd))
		return nil
	}

	return r.wrap(h)(c)
}

func (r *Router) action(data string) handlers.Handler {
	action, _, err := keyboard.DecodeCallback(data)
	if err != nil {
		r.log.Info("malformed callback data", slog.Any("error", err))
		return nil
	}

	r.mu.RLock()
	h := r.actions[action]
	r.mu.RUnlock()
	if h == nil {
		r.log.Info("unhandled callback action", slog.String("action", action))
		return nil
	}

	return handlers.Handler(h)
}

func (r *Router) wrap(h handlers.Handler) handlers.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.chain) - 1; i >= 0; i-- {
		h = r.chain[i](h)
	}
	return h
}
