package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeRegisterShare  = "tenor:register_share"
	TaskTypeExpireRequests = "requests:expire"
)

const (
	QueueDefault = "default"
	QueueLow     = "low"
)

// Queues is the worker's queue priority map.
var Queues = map[string]int{
	QueueDefault: 3,
	QueueLow:     1,
}

type RegisterSharePayload struct {
	ImageID string `json:"image_id"`
	Query   string `json:"query"`
}

type ExpireRequestsPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewRegisterShareTask builds a fire-and-forget share registration. Failures are
// neither retried nor archived.
func NewRegisterShareTask(imageID, query string) (*asynq.Task, error) {
	payload, err := json.Marshal(RegisterSharePayload{ImageID: imageID, Query: query})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeRegisterShare, payload,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Second),
	), nil
}

func NewExpireRequestsTask(olderThan time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ExpireRequestsPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeExpireRequests, payload, asynq.Queue(QueueDefault)), nil
}
