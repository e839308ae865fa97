// Package stats periodically samples the distributor's session and
// capacity state. Snapshots feed the status endpoint, the Prometheus
// gauges and the statistics table.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"distributor/internal/config"
	"distributor/internal/monitor"
	"distributor/internal/session"
)

type Snapshot struct {
	CollectedAt     time.Time      `json:"collected_at"`
	Sessions        int            `json:"sessions"`
	BoundSessions   int            `json:"bound_sessions"`
	UniqueClientIPs int            `json:"unique_client_ips"`
	HostsAvailable  int            `json:"hosts_available"`
	Capacity        int            `json:"capacity"`
	PerHost         map[string]int `json:"per_host"`
}

func (s *Snapshot) CapacityRemaining() int {
	remaining := s.Capacity - s.BoundSessions
	if remaining < 0 {
		return 0
	}
	return remaining
}

type Collector struct {
	repo   session.Repository
	pool   []config.ContainerHost
	logger *slog.Logger
}

func NewCollector(repo session.Repository, pool []config.ContainerHost, logger *slog.Logger) *Collector {
	return &Collector{
		repo:   repo,
		pool:   pool,
		logger: logger.With("component", "stats"),
	}
}

// Snapshot reads the current counts and refreshes the session gauges as
// a side effect, so metrics stay current as long as anything samples.
func (c *Collector) Snapshot(ctx context.Context) (*Snapshot, error) {
	sessions, err := c.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	bound, err := c.repo.CountBound(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting bound sessions: %w", err)
	}

	uniqueIPs, err := c.repo.UniqueClientIPs(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting unique client ips: %w", err)
	}

	perHost, err := c.repo.CountPerHost(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting sessions per host: %w", err)
	}
	for _, h := range c.pool {
		if _, ok := perHost[h.Addr]; !ok {
			perHost[h.Addr] = 0
		}
	}

	snap := &Snapshot{
		CollectedAt:     time.Now(),
		Sessions:        sessions,
		BoundSessions:   bound,
		UniqueClientIPs: uniqueIPs,
		HostsAvailable:  len(c.pool),
		Capacity:        config.TotalMaxContainers(c.pool),
		PerHost:         perHost,
	}

	monitor.SessionsActive.Set(float64(snap.Sessions))
	monitor.ContainersBound.Set(float64(snap.BoundSessions))
	monitor.CapacityRemaining.Set(float64(snap.CapacityRemaining()))
	for host, n := range snap.PerHost {
		monitor.SessionsPerHost.WithLabelValues(host).Set(float64(n))
	}

	return snap, nil
}
