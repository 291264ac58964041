package logger

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "***"

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"secret":        {},
	"api_key":       {},
	"authorization": {},
	"key":           {},
	"dsn":           {},
}

// botTokenPattern matches Telegram bot tokens, which telebot includes in
// request URLs and therefore in some transport errors.
var botTokenPattern = regexp.MustCompile(`\d{6,}:[A-Za-z0-9_-]{30,}`)

// MaskingHandler redacts credentials from records before they reach next.
type MaskingHandler struct {
	next slog.Handler
}

func NewMaskingHandler(next slog.Handler) *MaskingHandler {
	return &MaskingHandler{next: next}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &MaskingHandler{next: h.next.WithAttrs(maskAll(attrs))}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name)}
}

func (h *MaskingHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := make([]slog.Attr, 0, record.NumAttrs())
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	out := slog.NewRecord(record.Time, record.Level, scrub(record.Message), record.PC)
	out.AddAttrs(maskAll(attrs)...)
	return h.next.Handle(ctx, out)
}

func maskAll(attrs []slog.Attr) []slog.Attr {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = mask(a)
	}
	return masked
}

func mask(a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(maskAll(v.Group())...)}
	case slog.KindString:
		return slog.String(a.Key, scrub(v.String()))
	case slog.KindAny:
		// errors stay typed for slog-sentry unless they leak a token
		if err, ok := v.Any().(error); ok {
			if msg := err.Error(); scrub(msg) != msg {
				return slog.String(a.Key, scrub(msg))
			}
		}
	}
	return a
}

func scrub(s string) string {
	if !strings.Contains(s, ":") {
		return s
	}
	return botTokenPattern.ReplaceAllString(s, redacted)
}
