package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/gifpick-bot/internal/health"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShutdown_ReverseOrderAndErrors(t *testing.T) {
	s := NewShutdown(testLogger())

	var order []string
	s.Register("db", func(context.Context) error {
		order = append(order, "db")
		return nil
	})
	s.Register("worker", func(context.Context) error {
		order = append(order, "worker")
		return errors.New("stuck")
	})
	s.Register("bot", Stopper(func() { order = append(order, "bot") }))
	s.Register("nil", nil)

	err := s.Execute(context.Background())

	assert.Equal(t, []string{"bot", "worker", "db"}, order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker: stuck")
}

func TestShutdown_ExecuteOnce(t *testing.T) {
	s := NewShutdown(testLogger())

	calls := 0
	s.Register("redis", Stopper(func() { calls++ }))

	require.NoError(t, s.Execute(context.Background()))
	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestCloser(t *testing.T) {
	boom := errors.New("boom")
	assert.ErrorIs(t, Closer(func() error { return boom })(context.Background()), boom)
}

func TestOpsHandler(t *testing.T) {
	checker := health.NewChecker(testLogger())
	healthy := true
	checker.AddCheck("database", checkFunc(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("connection refused")
	}))
	probes := NewProbes(checker, testLogger())
	handler := NewOpsHandler(probes, testLogger())

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)

	rec := get("/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "OK", report.Components["database"])

	healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)

	healthy = true
	probes.Drain()
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)
	assert.Equal(t, http.StatusOK, get("/healthz").Code)

	metrics := get("/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "go_goroutines")

	assert.Equal(t, http.StatusNotFound, get("/nope").Code)
}
