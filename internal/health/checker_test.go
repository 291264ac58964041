package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"gopkg.in/telebot.v3"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(testLogger())
	c.AddCheck("a", checkFunc(func(context.Context) error { return nil }))
	c.AddCheck("b", checkFunc(func(context.Context) error { return nil }))
	c.AddCheck("", checkFunc(func(context.Context) error { return nil }))
	c.AddCheck("nil", nil)

	report := c.Check(context.Background())

	assert.True(t, report.Healthy)
	assert.Equal(t, map[string]string{"a": "OK", "b": "OK"}, report.Components)
	assert.Equal(t, []string{"a", "b"}, c.Names())
}

func TestChecker_FailureAndTimeout(t *testing.T) {
	c := NewChecker(testLogger())
	c.timeout = 20 * time.Millisecond
	c.AddCheck("ok", checkFunc(func(context.Context) error { return nil }))
	c.AddCheck("down", checkFunc(func(context.Context) error { return errors.New("connection refused") }))
	c.AddCheck("slow", checkFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	report := c.Check(context.Background())

	assert.False(t, report.Healthy)
	assert.Equal(t, "OK", report.Components["ok"])
	assert.Equal(t, "connection refused", report.Components["down"])
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Components["slow"])
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	assert.NoError(t, NewRedisChecker(client).HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, NewRedisChecker(client).HealthCheck(context.Background()))
	assert.ErrorIs(t, NewRedisChecker(nil).HealthCheck(context.Background()), redis.ErrClosed)
}

func TestTelegramChecker(t *testing.T) {
	assert.Error(t, NewTelegramChecker(nil).HealthCheck(context.Background()))
	assert.Error(t, NewTelegramChecker(&telebot.Bot{}).HealthCheck(context.Background()))
	assert.NoError(t, NewTelegramChecker(&telebot.Bot{Me: &telebot.User{ID: 1}}).HealthCheck(context.Background()))
}

func TestDBChecker_Nil(t *testing.T) {
	assert.Error(t, NewDBChecker(nil).HealthCheck(context.Background()))
}
