package lifecycle

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/gifpick-bot/internal/middleware"
	"github.com/Proton-105/gifpick-bot/pkg/logger"
)

// NewOpsHandler routes the operational endpoints: Prometheus metrics and the probes.
func NewOpsHandler(probes HealthChecker, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /healthz", LivenessHandler(probes))
	mux.Handle("GET /readyz", ReadinessHandler(probes))

	return logger.Middleware(middleware.New(log)(mux))
}
