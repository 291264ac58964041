// Package metrics exposes Prometheus instrumentation for the bot.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Proton-105/gifpick-bot/internal/domain"
	"github.com/Proton-105/gifpick-bot/internal/state"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands and callbacks labeled by action and status",
		},
		[]string{"action", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot command and callback handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_transitions_total",
			Help: "Total number of committed status transitions",
		},
		[]string{"kind", "from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of upstream API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
	upstreamDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream API latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	candidatesFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "candidates_fetched_total",
			Help: "Total number of candidates appended to request queues",
		},
	)
	candidatesDiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candidates_discarded_total",
			Help: "Total number of candidates dropped, by reason",
		},
		[]string{"reason"},
	)
	rateLimitChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Rate limit decisions by backend and result",
		},
		[]string{"backend", "result"},
	)
	rateLimitBackendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_backend_errors_total",
			Help: "Rate limit backend failures that triggered the in-memory fallback",
		},
		[]string{"backend"},
	)
	requestsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "requests_by_status",
			Help: "Number of stored requests per status",
		},
		[]string{"status"},
	)
)

var trackedStatuses = []domain.RequestStatus{
	domain.RequestSelecting,
	domain.RequestPosted,
	domain.RequestCancelled,
}

func init() {
	state.RegisterTransitionRecorder(RecordStateTransition)
}

// RecordRateLimit counts a limiter decision.
func RecordRateLimit(backend string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "blocked"
	}
	rateLimitChecksTotal.WithLabelValues(backend, result).Inc()
}

// RecordRateLimitBackendError counts a failed limiter backend call.
func RecordRateLimitBackendError(backend string) {
	rateLimitBackendErrorsTotal.WithLabelValues(backend).Inc()
}

// RecordCommand increments command counters and records duration.
func RecordCommand(action, status string, duration time.Duration) {
	if action == "" {
		action = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(action, status).Inc()
	commandDurationSeconds.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordStateTransition tracks committed request and candidate transitions.
func RecordStateTransition(kind state.Kind, from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	stateTransitionsTotal.WithLabelValues(string(kind), from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	if code == "" {
		code = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(code, severity).Inc()
}

// RecordUpstream tracks one upstream call.
func RecordUpstream(endpoint, outcome string, duration time.Duration) {
	upstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	upstreamDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// AddCandidatesFetched counts candidates appended after an upstream page.
func AddCandidatesFetched(n int) {
	if n > 0 {
		candidatesFetchedTotal.Add(float64(n))
	}
}

// AddCandidatesDiscarded counts candidates dropped for the given reason.
func AddCandidatesDiscarded(reason string, n int) {
	if n > 0 {
		candidatesDiscardedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// SetRequestsByStatus updates the gauge for the given status.
func SetRequestsByStatus(status string, count int) {
	if status == "" {
		status = "unknown"
	}

	requestsByStatus.WithLabelValues(status).Set(float64(count))
}

// StatusCounter reports how many requests are stored per status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.RequestStatus]int, error)
}

// RequestCollector periodically gathers request counts and emits gauge metrics.
type RequestCollector struct {
	counter  StatusCounter
	interval time.Duration
}

// NewRequestCollector builds a collector bound to the provided counter.
func NewRequestCollector(counter StatusCounter, interval time.Duration) *RequestCollector {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &RequestCollector{counter: counter, interval: interval}
}

// Run polls the counter every interval, updating gauges until ctx is cancelled.
func (c *RequestCollector) Run(ctx context.Context) {
	if c == nil || c.counter == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		_ = c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

func (c *RequestCollector) collect(ctx context.Context) error {
	counts, err := c.counter.CountByStatus(ctx)
	if err != nil {
		return err
	}

	for _, tracked := range trackedStatuses {
		SetRequestsByStatus(string(tracked), counts[tracked])
	}

	return nil
}
