package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/Proton-105/gifpick-bot/internal/health"
)

// ErrShuttingDown is reported by Readiness once shutdown has begun.
var ErrShuttingDown = errors.New("shutting down")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) (health.Report, error)
}

// Probes answers liveness from process state and readiness from the dependency checks.
type Probes struct {
	checker  *health.Checker
	log      *slog.Logger
	draining atomic.Bool
}

var _ HealthChecker = (*Probes)(nil)

// NewProbes creates probes backed by checker.
func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{checker: checker, log: log}
}

// Liveness succeeds while the process is running.
func (p *Probes) Liveness(context.Context) error {
	return nil
}

// Readiness fails when any dependency is down or shutdown has started.
func (p *Probes) Readiness(ctx context.Context) (health.Report, error) {
	if p.draining.Load() {
		return health.Report{Healthy: false, Components: map[string]string{}}, ErrShuttingDown
	}
	if p.checker == nil {
		return health.Report{Healthy: true, Components: map[string]string{}}, nil
	}

	report := p.checker.Check(ctx)
	if !report.Healthy {
		return report, errors.New("dependency check failed")
	}
	return report, nil
}

// Drain marks the process as going away so load balancers stop routing to it.
func (p *Probes) Drain() {
	p.draining.Store(true)
	p.log.Info("readiness probe now failing: draining")
}

// LivenessHandler serves /healthz.
func LivenessHandler(probes HealthChecker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := probes.Liveness(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	})
}

// ReadinessHandler serves /readyz with the per-component report.
func ReadinessHandler(probes HealthChecker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report, err := probes.Readiness(r.Context())
		status := http.StatusOK
		if err != nil {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
