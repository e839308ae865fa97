package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Orchestrator metrics
var (
	ContainerStartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wrp_distributor",
		Subsystem: "orchestrator",
		Name:      "container_starts_total",
		Help:      "Total number of containers started",
	})

	ContainerStartErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wrp_distributor",
		Subsystem: "orchestrator",
		Name:      "container_start_errors_total",
		Help:      "Total number of failed container starts",
	})

	ContainerStopsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wrp_distributor",
		Subsystem: "orchestrator",
		Name:      "container_stops_total",
		Help:      "Total number of containers stopped",
	})

	ContainerStartLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wrp_distributor",
		Subsystem: "orchestrator",
		Name:      "container_start_latency_seconds",
		Help:      "Latency of starting a container, including remote login",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
	})
)

// Session metrics
var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wrp_distributor",
		Subsystem: "session",
		Name:      "active_count",
		Help:      "Number of sessions currently known",
	})

	ContainersBound = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wrp_distributor",
		Subsystem: "session",
		Name:      "containers_bound",
		Help:      "Number of sessions with a container attached",
	})

	CapacityRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wrp_distributor",
		Subsystem: "session",
		Name:      "capacity_remaining",
		Help:      "Containers that can still be started across the pool",
	})

	SessionsPerHost = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wrp_distributor",
		Subsystem: "session",
		Name:      "per_host_count",
		Help:      "Sessions bound to each container host",
	}, []string{"host"})
)

// Sweep metrics
var (
	SweepSessionsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wrp_distributor",
		Subsystem: "cleanup",
		Name:      "sessions_removed_total",
		Help:      "Idle sessions removed by the cleanup job",
	})

	SweepOrphansStopped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wrp_distributor",
		Subsystem: "cleanup",
		Name:      "orphans_stopped_total",
		Help:      "Orphaned containers stopped by the cleanup job",
	})

	SweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wrp_distributor",
		Subsystem: "cleanup",
		Name:      "errors_total",
		Help:      "Items the cleanup jobs failed to process",
	})
)
