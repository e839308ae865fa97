// Package orchestrator binds sessions to containers on remote hosts and
// releases those bindings again. All remote work happens over an
// authenticated command channel; database state is reconciled with the
// real container state by the cleanup jobs in internal/worker.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"distributor/internal/balancer"
	"distributor/internal/config"
	"distributor/internal/monitor"
	"distributor/internal/ports"
	"distributor/internal/session"
	"distributor/internal/sshexec"
)

type Orchestrator struct {
	pool     []config.ContainerHost
	balancer *balancer.Balancer
	ports    ports.Allocator
	repo     session.Repository
	exec     sshexec.Executor
	image    string
	logger   *slog.Logger
}

func New(
	pool []config.ContainerHost,
	bal *balancer.Balancer,
	alloc ports.Allocator,
	repo session.Repository,
	exec sshexec.Executor,
	image string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		pool:     pool,
		balancer: bal,
		ports:    alloc,
		repo:     repo,
		exec:     exec,
		image:    image,
		logger:   logger.With("component", "orchestrator"),
	}
}

func (o *Orchestrator) MaxContainersFor(hostAddr string) int {
	if h := o.hostByAddr(hostAddr); h != nil {
		return h.MaxContainers
	}
	return 0
}

// SessionCountsPerHost returns the current session count for every
// configured host, including zero entries so unused hosts can be told
// apart from unknown ones.
func (o *Orchestrator) SessionCountsPerHost(ctx context.Context) (map[string]int, error) {
	counts, err := o.repo.CountPerHost(ctx)
	if err != nil {
		return nil, err
	}

	for _, h := range o.pool {
		if _, ok := counts[h.Addr]; !ok {
			counts[h.Addr] = 0
		}
	}
	return counts, nil
}

// StartContainer picks a host and port, starts a container over the
// remote channel and persists the binding on the session. A session that
// already has a container gets ErrAlreadyBound, which callers treat as
// success.
func (o *Orchestrator) StartContainer(ctx context.Context, sess *session.Session, wantsTLS bool) error {
	if !sess.Persisted() {
		return ErrNotPersisted
	}
	if sess.HasContainer() {
		return fmt.Errorf("%w: session %d has container %s on %s",
			ErrAlreadyBound, sess.ID, sess.WrpContainerID, sess.ContainerHost)
	}

	started := time.Now()

	counts, err := o.SessionCountsPerHost(ctx)
	if err != nil {
		return fmt.Errorf("%w: counting sessions per host: %v", ErrPersistence, err)
	}

	host, err := o.balancer.Pick(counts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCapacity, err)
	}

	o.logger.Info("determined container host for session",
		"session_id", sess.ID, "host", host.Addr)

	port, err := o.ports.Next(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCapacity, err)
	}

	authToken, err := sess.GenerateAuthToken()
	if err != nil {
		return fmt.Errorf("generating auth token: %w", err)
	}

	internalPort := wrpInternalPort
	if wantsTLS {
		internalPort = wrpInternalPortTLS
	}

	command := fmt.Sprintf(
		launchCommand,
		host.TLSCert,
		host.TLSKey,
		containerName(sess.ID),
		port,
		internalPort,
		o.image,
		authToken,
	)

	o.logger.Debug("container start command generated",
		"session_id", sess.ID, "host", host.Addr, "port", port, "tls", wantsTLS)

	output, err := o.exec.Run(ctx, host.Addr, credentialFor(host), command)
	if err != nil {
		monitor.ContainerStartErrorsTotal.Inc()
		return fmt.Errorf("%w: starting container for session %d on %s: %v",
			ErrConnectivity, sess.ID, host.Addr, err)
	}

	containerID := strings.TrimSpace(output)
	if !isContainerID(containerID) {
		monitor.ContainerStartErrorsTotal.Inc()
		o.logger.Warn("container start produced unexpected output",
			"session_id", sess.ID,
			"host", host.Addr,
			"port", port,
			"output", output,
		)
		return fmt.Errorf("%w: container start on %s returned %q", ErrValidation, host.Addr, output)
	}

	sess.AttachContainer(containerID, host.Addr, port, authToken)
	if err := o.repo.Upsert(ctx, sess); err != nil {
		// Don't leak a running container with no tracking row.
		o.logger.Warn("persisting binding failed, stopping just-started container",
			"session_id", sess.ID, "container_id", containerID, "host", host.Addr, "error", err)

		if _, stopErr := o.exec.Run(ctx, host.Addr, credentialFor(host), "docker stop "+containerID); stopErr != nil {
			o.logger.Error("rollback stop failed, container may be orphaned",
				"session_id", sess.ID, "container_id", containerID, "host", host.Addr, "error", stopErr)
		}

		sess.DetachContainer()
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	monitor.ContainerStartsTotal.Inc()
	monitor.ContainerStartLatency.Observe(time.Since(started).Seconds())
	o.logger.Info("container started",
		"session_id", sess.ID, "container_id", containerID, "host", host.Addr, "port", port)
	return nil
}

// StopContainer stops the session's container and clears the binding.
// Stopping an already-gone container is not an error; the row itself is
// left for the caller to delete.
func (o *Orchestrator) StopContainer(ctx context.Context, sess *session.Session) error {
	if !sess.HasContainer() {
		return fmt.Errorf("%w: session %d", ErrNoContainer, sess.ID)
	}

	host := o.hostByAddr(sess.ContainerHost)
	if host == nil {
		return fmt.Errorf("%w: %s", ErrUnknownHost, sess.ContainerHost)
	}

	output, err := o.exec.Run(ctx, host.Addr, credentialFor(host), "docker stop "+sess.WrpContainerID)
	if err != nil {
		return fmt.Errorf("%w: stopping container for session %d on %s: %v",
			ErrConnectivity, sess.ID, host.Addr, err)
	}

	if !stopConfirmed(output, sess.WrpContainerID) {
		o.logger.Warn("container stop produced unexpected output",
			"session_id", sess.ID,
			"container_id", sess.WrpContainerID,
			"host", sess.ContainerHost,
			"port", sess.Port,
			"output", output,
		)
	}

	sess.DetachContainer()
	if err := o.repo.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("%w: clearing binding for session %d: %v", ErrPersistence, sess.ID, err)
	}

	monitor.ContainerStopsTotal.Inc()
	o.logger.Info("container stopped", "session_id", sess.ID)
	return nil
}

// StopContainerBySessionID stops a container addressed only by the
// session id in its name. Used for orphan reaping, where no session row
// exists.
func (o *Orchestrator) StopContainerBySessionID(ctx context.Context, sessionID int64, hostAddr string) error {
	host := o.hostByAddr(hostAddr)
	if host == nil {
		return fmt.Errorf("%w: %s", ErrUnknownHost, hostAddr)
	}

	name := containerName(sessionID)
	output, err := o.exec.Run(ctx, host.Addr, credentialFor(host), "docker stop "+name)
	if err != nil {
		return fmt.Errorf("%w: stopping %s on %s: %v", ErrConnectivity, name, hostAddr, err)
	}

	if !stopConfirmed(output, name) {
		o.logger.Warn("container stop produced unexpected output",
			"session_id", sessionID, "host", hostAddr, "output", output)
	}

	monitor.ContainerStopsTotal.Inc()
	return nil
}

// SessionIDsOnHost lists the session ids of all wrp containers currently
// running on a host.
func (o *Orchestrator) SessionIDsOnHost(ctx context.Context, hostAddr string) ([]int64, error) {
	host := o.hostByAddr(hostAddr)
	if host == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHost, hostAddr)
	}

	output, err := o.exec.Run(ctx, host.Addr, credentialFor(host), listContainersCommand)
	if err != nil {
		return nil, fmt.Errorf("%w: listing containers on %s: %v", ErrConnectivity, hostAddr, err)
	}

	var ids []int64
	for _, line := range strings.Split(output, "\n") {
		if id, ok := sessionIDFromName(line); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// RunningSessionIDsByHost lists wrp containers on every configured host.
// A host that cannot be reached is reported as an error for that host
// only.
func (o *Orchestrator) RunningSessionIDsByHost(ctx context.Context) (map[string][]int64, map[string]error) {
	running := make(map[string][]int64, len(o.pool))
	failures := make(map[string]error)

	for _, h := range o.pool {
		ids, err := o.SessionIDsOnHost(ctx, h.Addr)
		if err != nil {
			failures[h.Addr] = err
			continue
		}
		running[h.Addr] = ids
	}

	return running, failures
}

// ContainerLog fetches the container's log stream for diagnostics.
func (o *Orchestrator) ContainerLog(ctx context.Context, sess *session.Session) (string, error) {
	if !sess.HasContainer() {
		return "", fmt.Errorf("%w: session %d", ErrNoContainer, sess.ID)
	}

	host := o.hostByAddr(sess.ContainerHost)
	if host == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownHost, sess.ContainerHost)
	}

	output, err := o.exec.Run(ctx, host.Addr, credentialFor(host), "docker logs --timestamps "+sess.WrpContainerID)
	if err != nil {
		return "", fmt.Errorf("%w: fetching log for session %d: %v", ErrConnectivity, sess.ID, err)
	}
	return output, nil
}

func (o *Orchestrator) hostByAddr(addr string) *config.ContainerHost {
	for i := range o.pool {
		if o.pool[i].Addr == addr {
			return &o.pool[i]
		}
	}
	return nil
}

// stopConfirmed accepts the echo of the stopped container's id or name,
// or docker's "No such container" (stopping an already-gone container is
// idempotent).
func stopConfirmed(output, idOrName string) bool {
	trimmed := strings.TrimSpace(output)
	return trimmed == idOrName || strings.Contains(output, "No such container")
}

func credentialFor(h *config.ContainerHost) sshexec.Credential {
	return sshexec.Credential{
		User:       h.User,
		KeyFile:    h.KeyFile,
		Passphrase: h.Passphrase,
	}
}

// IsIdempotent reports whether err is one of the signals callers must
// treat as a successful no-op.
func IsIdempotent(err error) bool {
	return errors.Is(err, ErrAlreadyBound) || errors.Is(err, ErrNoContainer)
}
