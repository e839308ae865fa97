package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"distributor/internal/api"
	"distributor/internal/balancer"
	"distributor/internal/config"
	"distributor/internal/monitor"
	"distributor/internal/orchestrator"
	"distributor/internal/ports"
	"distributor/internal/session/repo"
	"distributor/internal/sshexec"
	"distributor/internal/stats"
	"distributor/internal/worker"

	"github.com/hibiken/asynq"
)

type Server struct {
	cfg         *config.Config
	deps        *Dependency
	httpServer  *http.Server
	asynqServer *asynq.Server
	asynqMux    *asynq.ServeMux
	scheduler   *asynq.Scheduler
	logger      *slog.Logger
}

func NewServer(cfg *config.Config, deps *Dependency) (*Server, error) {
	logger := deps.Logger

	bal, err := balancer.New(cfg.Distributor.Strategy, cfg.Hosts)
	if err != nil {
		return nil, fmt.Errorf("load balancer: %w", err)
	}

	sessionRepo := repo.NewRepository(deps.PG, deps.Redis)
	sshClient := sshexec.NewClient(cfg.Distributor.SSHDir, cfg.Distributor.SSHTimeout, logger)
	allocator := ports.NewSequenceAllocator(sessionRepo, cfg.Distributor.StartPort)

	orch := orchestrator.New(
		cfg.Hosts, bal, allocator, sessionRepo, sshClient,
		cfg.Distributor.Image, logger)

	collector := stats.NewCollector(sessionRepo, cfg.Hosts, logger)
	statsStore := stats.NewStore(deps.PG)

	cleanupWorker := worker.NewCleanupTaskWorker(orch, sessionRepo, collector, statsStore, worker.WorkerConfig{
		LogDir: cfg.Distributor.LogDir,
	}, logger)

	asynqServer := asynq.NewServer(deps.AsynqRedis, asynq.Config{
		Concurrency: cfg.Cleanup.Concurrency,
		Logger:      newAsynqLogger(logger),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskSessionCleanup, cleanupWorker.HandleSessionCleanup)
	mux.HandleFunc(worker.TaskContainerCleanup, cleanupWorker.HandleContainerCleanup)
	mux.HandleFunc(worker.TaskLogCollect, cleanupWorker.HandleLogCollect)
	mux.HandleFunc(worker.TaskStatsCollect, cleanupWorker.HandleStatsCollect)

	scheduler, err := newScheduler(cfg, deps, logger)
	if err != nil {
		return nil, err
	}

	handler := api.NewSessionHandler(sessionRepo, orch, collector, logger)
	router := api.NewRouter(handler, cfg.Distributor.BearerToken, logger)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		cfg:         cfg,
		deps:        deps,
		httpServer:  httpServer,
		asynqServer: asynqServer,
		asynqMux:    mux,
		scheduler:   scheduler,
		logger:      logger,
	}, nil
}

// newScheduler registers the periodic sweep entries. Jobs can also be
// enqueued ad hoc through the asynq client.
func newScheduler(cfg *config.Config, deps *Dependency, logger *slog.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(deps.AsynqRedis, &asynq.SchedulerOpts{
		Logger: newAsynqLogger(logger),
	})

	sessionCleanup, err := worker.NewSessionCleanupTask(cfg.Cleanup.IdleMinutes)
	if err != nil {
		return nil, err
	}

	entries := []struct {
		interval time.Duration
		task     *asynq.Task
	}{
		{cfg.Cleanup.SessionInterval, sessionCleanup},
		{cfg.Cleanup.ContainerInterval, worker.NewContainerCleanupTask()},
		{cfg.Cleanup.LogInterval, worker.NewLogCollectTask()},
		{cfg.Cleanup.StatsInterval, worker.NewStatsCollectTask()},
	}
	for _, e := range entries {
		spec := fmt.Sprintf("@every %s", e.interval)
		if _, err := scheduler.Register(spec, e.task); err != nil {
			return nil, fmt.Errorf("scheduling %s: %w", e.task.Type(), err)
		}
	}

	return scheduler, nil
}

func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger.Info("Starting Asynq worker", "concurrency", s.cfg.Cleanup.Concurrency)
		if err := s.asynqServer.Start(s.asynqMux); err != nil {
			s.logger.Error("Asynq worker failed", "error", err)
		}
	}()

	go func() {
		if err := s.scheduler.Start(); err != nil {
			s.logger.Error("Asynq scheduler failed", "error", err)
		}
	}()

	go func() {
		if err := monitor.StartMetricsServer(ctx, s.cfg.Metrics, s.logger); err != nil {
			s.logger.Error("Metrics server failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting API server", "addr", s.cfg.Server.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received, draining...")
	case err := <-errCh:
		return err
	}

	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.scheduler.Shutdown()
	s.asynqServer.Shutdown()

	s.logger.Info("Server stopped gracefully")
	return nil
}

type asynqLogger struct {
	l *slog.Logger
}

func newAsynqLogger(l *slog.Logger) *asynqLogger {
	return &asynqLogger{l: l.With("component", "asynq")}
}

func (a *asynqLogger) Debug(args ...any) { a.l.Debug("", "msg", args) }
func (a *asynqLogger) Info(args ...any)  { a.l.Info("", "msg", args) }
func (a *asynqLogger) Warn(args ...any)  { a.l.Warn("", "msg", args) }
func (a *asynqLogger) Error(args ...any) { a.l.Error("", "msg", args) }
func (a *asynqLogger) Fatal(args ...any) { a.l.Error("FATAL", "msg", args) }
