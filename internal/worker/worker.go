// Package worker runs the distributor's periodic reconciliation jobs:
// expiring idle sessions, reaping containers that lost their session
// row, collecting container logs and sampling load statistics.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"distributor/internal/monitor"
	"distributor/internal/orchestrator"
	"distributor/internal/session"
	"distributor/internal/stats"

	"github.com/hibiken/asynq"
)

var _ CleanupWorker = (*CleanupTaskWorker)(nil)

type WorkerConfig struct {
	// LogDir is where collected container logs are written, one file
	// per session.
	LogDir string
}

type CleanupTaskWorker struct {
	manager   ContainerManager
	repo      session.Repository
	collector *stats.Collector
	sink      StatsSink
	config    WorkerConfig
	logger    *slog.Logger
}

func NewCleanupTaskWorker(
	manager ContainerManager,
	repo session.Repository,
	collector *stats.Collector,
	sink StatsSink,
	config WorkerConfig,
	logger *slog.Logger,
) *CleanupTaskWorker {
	return &CleanupTaskWorker{
		manager:   manager,
		repo:      repo,
		collector: collector,
		sink:      sink,
		config:    config,
		logger:    logger.With("component", "cleanup-worker"),
	}
}

// HandleSessionCleanup removes sessions idle for longer than the payload
// timeout, stopping their containers first. One failing session never
// aborts the sweep.
func (w *CleanupTaskWorker) HandleSessionCleanup(ctx context.Context, task *asynq.Task) error {
	var payload SessionCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error("Failed to unmarshal session cleanup payload", "error", err)
		return fmt.Errorf("json unmarshal error: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(payload.TimeoutMinutes) * time.Minute)
	idle, err := w.repo.ListIdleBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error("Failed to list idle sessions", "error", err)
		monitor.SweepErrorsTotal.Inc()
		return err
	}

	removed := 0
	for _, sess := range idle {
		if sess.HasContainer() {
			if err := w.manager.StopContainer(ctx, sess); err != nil && !orchestrator.IsIdempotent(err) {
				// Keep the row so the next sweep retries the stop.
				w.logger.Warn("Failed to stop container for idle session",
					"session_id", sess.ID, "host", sess.ContainerHost, "error", err)
				monitor.SweepErrorsTotal.Inc()
				continue
			}
		}

		if err := w.repo.Delete(ctx, sess); err != nil {
			w.logger.Warn("Failed to delete idle session", "session_id", sess.ID, "error", err)
			monitor.SweepErrorsTotal.Inc()
			continue
		}

		monitor.SweepSessionsRemoved.Inc()
		removed++
	}

	w.logger.Info("Session cleanup completed",
		"idle", len(idle), "removed", removed, "timeout_minutes", payload.TimeoutMinutes)
	return nil
}

// HandleContainerCleanup stops containers whose session row no longer
// exists. Such orphans appear when a session was deleted while its host
// was unreachable.
func (w *CleanupTaskWorker) HandleContainerCleanup(ctx context.Context, task *asynq.Task) error {
	running, failures := w.manager.RunningSessionIDsByHost(ctx)
	for host, err := range failures {
		w.logger.Warn("Failed to list containers on host", "host", host, "error", err)
		monitor.SweepErrorsTotal.Inc()
	}

	stopped := 0
	for host, ids := range running {
		for _, id := range ids {
			_, err := w.repo.GetByID(ctx, id)
			switch {
			case err == nil:
				// A session row still exists, so the container has an
				// owner even if the binding is not persisted yet (a start
				// may be mid-flight). Only rowless containers are orphans.
				continue
			case errors.Is(err, session.ErrNotFound):
			default:
				w.logger.Warn("Failed to look up session for running container",
					"session_id", id, "host", host, "error", err)
				monitor.SweepErrorsTotal.Inc()
				continue
			}

			if err := w.manager.StopContainerBySessionID(ctx, id, host); err != nil {
				w.logger.Warn("Failed to stop orphaned container",
					"session_id", id, "host", host, "error", err)
				monitor.SweepErrorsTotal.Inc()
				continue
			}

			w.logger.Info("Stopped orphaned container", "session_id", id, "host", host)
			monitor.SweepOrphansStopped.Inc()
			stopped++
		}
	}

	w.logger.Info("Container cleanup completed", "hosts", len(running), "orphans_stopped", stopped)
	return nil
}

// HandleLogCollect pulls each bound container's log and writes it under
// the configured log directory, replacing the previous collection.
func (w *CleanupTaskWorker) HandleLogCollect(ctx context.Context, task *asynq.Task) error {
	bound, err := w.repo.ListBound(ctx)
	if err != nil {
		w.logger.Error("Failed to list bound sessions", "error", err)
		return err
	}

	if len(bound) == 0 {
		return nil
	}

	if err := os.MkdirAll(w.config.LogDir, 0o755); err != nil {
		w.logger.Error("Failed to create log directory", "dir", w.config.LogDir, "error", err)
		return err
	}

	collected := 0
	for _, sess := range bound {
		log, err := w.manager.ContainerLog(ctx, sess)
		if err != nil {
			w.logger.Warn("Failed to fetch container log",
				"session_id", sess.ID, "host", sess.ContainerHost, "error", err)
			continue
		}

		path := filepath.Join(w.config.LogDir, fmt.Sprintf("wrp_session_%d.log", sess.ID))
		if err := os.WriteFile(path, []byte(log), 0o644); err != nil {
			w.logger.Warn("Failed to write container log", "path", path, "error", err)
			continue
		}
		collected++
	}

	w.logger.Info("Log collection completed", "bound", len(bound), "collected", collected)
	return nil
}

// HandleStatsCollect samples current load and stores it for history.
func (w *CleanupTaskWorker) HandleStatsCollect(ctx context.Context, task *asynq.Task) error {
	snap, err := w.collector.Snapshot(ctx)
	if err != nil {
		w.logger.Error("Failed to collect statistics", "error", err)
		return err
	}

	if err := w.sink.Insert(ctx, snap); err != nil {
		w.logger.Error("Failed to store statistics", "error", err)
		return err
	}

	w.logger.Info("Statistics collected",
		"sessions", snap.Sessions,
		"bound", snap.BoundSessions,
		"capacity_remaining", snap.CapacityRemaining())
	return nil
}
