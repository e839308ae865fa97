package worker

import (
	"context"

	"distributor/internal/session"
	"distributor/internal/stats"

	"github.com/hibiken/asynq"
)

type CleanupWorker interface {
	HandleSessionCleanup(ctx context.Context, task *asynq.Task) error
	HandleContainerCleanup(ctx context.Context, task *asynq.Task) error
	HandleLogCollect(ctx context.Context, task *asynq.Task) error
	HandleStatsCollect(ctx context.Context, task *asynq.Task) error
}

// ContainerManager is the slice of the orchestrator the background jobs
// need.
type ContainerManager interface {
	StopContainer(ctx context.Context, sess *session.Session) error
	StopContainerBySessionID(ctx context.Context, sessionID int64, hostAddr string) error
	RunningSessionIDsByHost(ctx context.Context) (map[string][]int64, map[string]error)
	ContainerLog(ctx context.Context, sess *session.Session) (string, error)
}

// StatsSink receives periodic load samples for retention.
type StatsSink interface {
	Insert(ctx context.Context, snap *stats.Snapshot) error
}
