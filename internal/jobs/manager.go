package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	client := asynq.NewClient(redisOpt)

	return &manager{
		client: client,
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.client.EnqueueContext(ctx, task, opts...)
}

func (m *manager) Close() error {
	return m.client.Close()
}

// ShareEnqueuer registers shares by queueing a task instead of calling the
// upstream API on the update path.
type ShareEnqueuer struct {
	manager Manager
	log     *slog.Logger
}

// NewShareEnqueuer wraps manager.
func NewShareEnqueuer(manager Manager, log *slog.Logger) *ShareEnqueuer {
	if log == nil {
		log = slog.Default()
	}

	return &ShareEnqueuer{manager: manager, log: log}
}

// RegisterShare enqueues a share registration for imageID.
func (e *ShareEnqueuer) RegisterShare(ctx context.Context, imageID, query string) error {
	task, err := NewRegisterShareTask(imageID, query)
	if err != nil {
		return err
	}

	info, err := e.manager.Enqueue(ctx, task)
	if err != nil {
		return err
	}

	e.log.DebugContext(ctx, "share registration queued",
		slog.String("task_id", info.ID),
		slog.String("image_id", imageID),
	)

	return nil
}
