// Package bot connects the Telegram transport to the GIF handlers.
package bot

import (
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/gifpick-bot/internal/bot/handlers"
	"github.com/Proton-105/gifpick-bot/internal/bot/keyboard"
	errors "github.com/Proton-105/gifpick-bot/internal/errors"
	"github.com/Proton-105/gifpick-bot/internal/idempotency"
	"github.com/Proton-105/gifpick-bot/internal/messages"
	"github.com/Proton-105/gifpick-bot/internal/middleware"
	"github.com/Proton-105/gifpick-bot/pkg/config"
)

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot            *telebot.Bot
	log                *slog.Logger
	cfg                config.BotConfig
	gif                *handlers.GifHandlers
	rateLimitMw        *middleware.RateLimitMiddleware
	router             *Router
	errHandler         *errors.Handler
	idempotencyManager idempotency.Manager
	texts              *messages.Catalog
}

// New builds a telegram bot instance configured according to the application settings.
// rateLimitMw and idempotencyManager are optional.
func New(
	cfg config.Config,
	log *slog.Logger,
	gif *handlers.GifHandlers,
	idempotencyManager idempotency.Manager,
	rateLimitMw *middleware.RateLimitMiddleware,
) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	tb, err := telebot.NewBot(settings(cfg.Bot, log))
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	b := &Bot{
		telebot:            tb,
		log:                log,
		cfg:                cfg.Bot,
		gif:                gif,
		rateLimitMw:        rateLimitMw,
		router:             NewRouter(log),
		errHandler:         errors.NewHandler(log, cfg.Sentry.Enabled),
		idempotencyManager: idempotencyManager,
		texts:              messages.Default(),
	}

	b.setupRouter()
	b.registerTelebotHandlers()

	return b, nil
}

func settings(cfg config.BotConfig, log *slog.Logger) telebot.Settings {
	s := telebot.Settings{
		Token: cfg.Token,
		OnError: func(err error, c telebot.Context) {
			log.Error("telebot error", slog.Any("error", err))
		},
	}

	if cfg.Mode == "webhook" {
		s.Poller = &telebot.Webhook{
			Listen:   cfg.WebhookListen,
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.WebhookURL},
		}
	} else {
		s.Poller = &telebot.LongPoller{
			Timeout:        cfg.Timeout,
			AllowedUpdates: []string{"message", "callback_query"},
		}
	}

	return s
}

// Start publishes the command menu and runs the telegram bot event loop. It blocks until Stop.
func (b *Bot) Start() {
	if b.telebot == nil {
		return
	}

	if err := b.telebot.SetCommands(menuCommands(b.texts, b.cfg.Command)); err != nil {
		b.log.Warn("failed to publish bot commands", slog.Any("error", err))
	}

	b.log.Info("telegram bot started", slog.String("mode", b.cfg.Mode), slog.String("command", b.cfg.Command))
	b.telebot.Start()
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

func (b *Bot) setupRouter() {
	b.router.Use(RecoveryMiddleware(b.log, b.errHandler, b.texts))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(ErrorHandlingMiddleware(b.errHandler, b.texts))
	b.router.Use(middleware.Metrics)
	b.router.Use(middleware.Idempotency(b.idempotencyManager, b.log))
	if b.rateLimitMw != nil {
		b.router.Use(b.rateLimitMw.Handle)
	}

	help := func(c telebot.Context) error {
		return c.Send(b.texts.Tf("bot.help", b.cfg.Command))
	}
	b.router.RegisterCommand(CommandStart, help)
	b.router.RegisterCommand(CommandHelp, help)

	if b.gif == nil {
		return
	}

	b.router.RegisterCommand(b.cfg.Command, b.gif.Search)
	b.router.RegisterCallback(keyboard.ActionSend, b.gif.Send)
	b.router.RegisterCallback(keyboard.ActionNext, b.gif.Next)
	b.router.RegisterCallback(keyboard.ActionCancel, b.gif.Cancel)
}

func (b *Bot) registerTelebotHandlers() {
	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnCallback, b.router.Route)
}
