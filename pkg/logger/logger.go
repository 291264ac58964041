// Package logger builds the application's structured slog logger.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/gifpick-bot/pkg/config"
)

// New creates a logger configured from cfg.
func New(cfg config.Config) *slog.Logger {
	log, _ := NewLeveled(cfg)
	return log
}

// NewLeveled creates a logger and returns the level variable so the level can be changed at runtime.
func NewLeveled(cfg config.Config) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Logger.Level))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level.Level() <= slog.LevelDebug,
	}

	var out io.Writer = os.Stdout
	if cfg.Logger.File.Enabled {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Logger.File.Path,
			MaxSize:    cfg.Logger.File.MaxSizeMB,
			MaxBackups: cfg.Logger.File.MaxBackups,
			MaxAge:     cfg.Logger.File.MaxAgeDays,
			Compress:   cfg.Logger.File.Compress,
		})
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Logger.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	if cfg.Sentry.Enabled {
		sentryHandler := slogsentry.Option{Level: slog.LevelError}.NewSentryHandler()
		handler = &fanoutHandler{handlers: []slog.Handler{handler, sentryHandler}}
	}

	handler = NewMaskingHandler(handler)

	env := cfg.AppEnv
	if env == "" {
		env = "development"
	}

	return slog.New(handler).With(slog.String("env", env)), level
}

// ParseLevel maps a config level name onto slog levels, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitSentry initializes the global Sentry client and returns a flush function for shutdown.
func InitSentry(cfg config.SentryConfig, env string) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	if cfg.DSN == "" {
		return nil, errors.New("sentry dsn is empty")
	}

	environment := cfg.Environment
	if environment == "" {
		environment = env
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		TracesSampleRate: cfg.TracesSampleRate,
	}); err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}

	return func() { sentry.Flush(2 * time.Second) }, nil
}

// fanoutHandler forwards each record to every handler that accepts its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, next := range h.handlers {
		if next.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, next := range h.handlers {
		if !next.Enabled(ctx, record.Level) {
			continue
		}
		if err := next.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, 0, len(h.handlers))
	for _, next := range h.handlers {
		handlers = append(handlers, next.WithAttrs(attrs))
	}
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, 0, len(h.handlers))
	for _, next := range h.handlers {
		handlers = append(handlers, next.WithGroup(name))
	}
	return &fanoutHandler{handlers: handlers}
}
