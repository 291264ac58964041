package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Scheduler enqueues periodic maintenance tasks.
type Scheduler interface {
	RegisterTasks() error
	Start() error
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	schedule       string
	expireAfter    time.Duration
	log            *slog.Logger
}

// NewScheduler schedules the expiry of selectors left open longer than expireAfter.
// schedule accepts cron syntax or "@every <duration>".
func NewScheduler(redisOpt asynq.RedisConnOpt, schedule string, expireAfter time.Duration, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
			Logger:   newAsynqLogger(log),
			Location: time.UTC,
		}),
		schedule:    schedule,
		expireAfter: expireAfter,
		log:         log,
	}
}

func (s *scheduler) RegisterTasks() error {
	if s.schedule == "" || s.expireAfter <= 0 {
		s.log.InfoContext(context.Background(), "scheduler: request expiry disabled")
		return nil
	}

	task, err := NewExpireRequestsTask(s.expireAfter)
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.schedule, task); err != nil {
		return err
	}

	s.log.InfoContext(context.Background(), "scheduler: registered request expiry",
		slog.String("schedule", s.schedule),
		slog.Duration("expire_after", s.expireAfter),
	)

	return nil
}

func (s *scheduler) Start() error {
	s.log.InfoContext(context.Background(), "scheduler: starting")
	return s.asynqScheduler.Start()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")
	s.asynqScheduler.Shutdown()
}
