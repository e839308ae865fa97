package worker

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TaskSessionCleanup   = "session:cleanup"
	TaskContainerCleanup = "containers:cleanup"
	TaskLogCollect       = "containers:logs"
	TaskStatsCollect     = "stats:collect"
)

type SessionCleanupPayload struct {
	TimeoutMinutes int `json:"timeout_minutes"`
}

func NewSessionCleanupTask(timeoutMinutes int) (*asynq.Task, error) {
	payload, err := json.Marshal(SessionCleanupPayload{TimeoutMinutes: timeoutMinutes})
	if err != nil {
		return nil, fmt.Errorf("marshal session cleanup payload: %w", err)
	}
	return asynq.NewTask(TaskSessionCleanup, payload), nil
}

func NewContainerCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskContainerCleanup, nil)
}

func NewLogCollectTask() *asynq.Task {
	return asynq.NewTask(TaskLogCollect, nil)
}

func NewStatsCollectTask() *asynq.Task {
	return asynq.NewTask(TaskStatsCollect, nil)
}
