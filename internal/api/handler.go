package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"distributor/internal/orchestrator"
	"distributor/internal/session"
	"distributor/internal/stats"

	"github.com/gin-gonic/gin"
)

// Orchestrator is the slice of the container orchestrator the handlers
// need.
type Orchestrator interface {
	StartContainer(ctx context.Context, sess *session.Session, wantsTLS bool) error
	StopContainer(ctx context.Context, sess *session.Session) error
	MaxContainersFor(hostAddr string) int
}

// StatusSource provides the load snapshot behind the status page.
type StatusSource interface {
	Snapshot(ctx context.Context) (*stats.Snapshot, error)
}

type SessionHandler struct {
	repo   session.Repository
	orch   Orchestrator
	status StatusSource
	logger *slog.Logger
}

func NewSessionHandler(repo session.Repository, orch Orchestrator, status StatusSource, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		repo:   repo,
		orch:   orch,
		status: status,
		logger: logger.With("component", "api"),
	}
}

// loadOrCreate resolves the request's session by client identity,
// persisting a fresh one on first contact.
func (h *SessionHandler) loadOrCreate(c *gin.Context) (*session.Session, error) {
	ip, userAgent := clientIdentity(c)

	sess, err := h.repo.GetByClient(c.Request.Context(), ip, userAgent)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	sess = session.New(ip, userAgent)
	if err := h.repo.Upsert(c.Request.Context(), sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	h.logger.Info("Created session for new client", "session_id", sess.ID, "ip", ip)
	return sess, nil
}

// Start handles PUT: bind a container to the request's session. An
// "ssl" form field selects the container's TLS listener.
func (h *SessionHandler) Start(c *gin.Context) {
	sess, err := h.loadOrCreate(c)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, err)
		return
	}

	wantsTLS := isTruthy(c.PostForm("ssl"))

	err = h.orch.StartContainer(c.Request.Context(), sess, wantsTLS)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, StartResponse{
			WrpURL: fmt.Sprintf("%s:%d", sess.ContainerHost, sess.Port),
			Token:  sess.AuthToken,
		})
	case errors.Is(err, orchestrator.ErrAlreadyBound):
		c.Status(http.StatusNoContent)
	default:
		h.logger.Warn("Container start failed", "session_id", sess.ID, "error", err)
		respondError(c, http.StatusServiceUnavailable, err)
	}
}

// Stop handles DELETE: release the session's container and remove the
// session row with it.
func (h *SessionHandler) Stop(c *gin.Context) {
	sess, err := h.loadOrCreate(c)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, err)
		return
	}

	err = h.orch.StopContainer(c.Request.Context(), sess)
	switch {
	case err == nil:
		if err := h.repo.Delete(c.Request.Context(), sess); err != nil {
			respondError(c, http.StatusServiceUnavailable, err)
			return
		}
		c.Status(http.StatusAccepted)
	case errors.Is(err, orchestrator.ErrNoContainer):
		c.Status(http.StatusNoContent)
	default:
		h.logger.Warn("Container stop failed", "session_id", sess.ID, "error", err)
		respondError(c, http.StatusServiceUnavailable, err)
	}
}

// Extend handles HEAD: refresh lastUsed so the idle sweep keeps its
// hands off. A session without a container has nothing worth extending.
func (h *SessionHandler) Extend(c *gin.Context) {
	sess, err := h.loadOrCreate(c)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, err)
		return
	}

	if !sess.HasContainer() {
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.repo.Upsert(c.Request.Context(), sess); err != nil {
		respondError(c, http.StatusServiceUnavailable, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Status handles GET: a small load snapshot with host addresses reduced
// to fingerprints. Like every other verb it resolves the client's
// session first, so a new client's row exists from first contact on.
func (h *SessionHandler) Status(c *gin.Context) {
	if _, err := h.loadOrCreate(c); err != nil {
		respondError(c, http.StatusServiceUnavailable, err)
		return
	}

	snap, err := h.status.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, err)
		return
	}

	inUse := make(map[string]HostStatus)
	for host, count := range snap.PerHost {
		if count == 0 {
			continue
		}
		inUse[hostDigest(host)] = HostStatus{
			Sessions: count,
			Max:      h.orch.MaxContainersFor(host),
		}
	}

	c.JSON(http.StatusOK, StatusResponse{
		Status:            "alive",
		Sessions:          snap.Sessions,
		Containers:        snap.BoundSessions,
		HostsAvailable:    snap.HostsAvailable,
		HostsInUse:        inUse,
		CapacityRemaining: snap.CapacityRemaining(),
	})
}

func respondError(c *gin.Context, code int, err error) {
	c.JSON(code, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

func isTruthy(v string) bool {
	switch v {
	case "", "0", "false", "off":
		return false
	default:
		return true
	}
}
