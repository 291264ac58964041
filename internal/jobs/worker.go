package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Worker processes share registrations and expiry sweeps from the Redis queues.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *slog.Logger
}

// NewWorker builds a worker; handlers are added with RegisterHandler before Start.
func NewWorker(redisOpt asynq.RedisConnOpt, concurrency int, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}

	mux := asynq.NewServeMux()
	mux.Use(observe(log))

	return &Worker{
		server: asynq.NewServer(redisOpt, asynq.Config{
			Queues:       Queues,
			Concurrency:  max(concurrency, 1),
			Logger:       newAsynqLogger(log),
			ErrorHandler: asynq.ErrorHandlerFunc(reportFailure(log)),
		}),
		mux: mux,
		log: log,
	}
}

func (w *Worker) RegisterHandler(taskType string, handler asynq.Handler) {
	w.mux.Handle(taskType, handler)
}

// Start returns once the processors are running.
func (w *Worker) Start() error {
	w.log.Info("jobs worker started", slog.Any("queues", Queues))
	return w.server.Start(w.mux)
}

// Shutdown waits for in-flight tasks up to asynq's shutdown timeout.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	w.log.Info("jobs worker stopped")
}

// observe logs every task with its duration and outcome.
func observe(log *slog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, t)

			level := slog.LevelDebug
			if err != nil {
				level = slog.LevelWarn
			}
			log.LogAttrs(ctx, level, "job processed",
				slog.String("task_type", t.Type()),
				slog.Duration("elapsed", time.Since(start)),
				slog.Bool("ok", err == nil),
			)

			return err
		})
	}
}

func reportFailure(log *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, t *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		log.WarnContext(ctx, "job failed",
			slog.String("task_type", t.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.Any("error", err),
		)
	}
}
