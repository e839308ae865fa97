package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when no session matches.
var ErrNotFound = errors.New("session not found")

// Session is one client's claim on the distributor, identified by the
// (ClientIP, ClientUserAgent) pair and optionally bound to a running
// container on a remote host.
type Session struct {
	ID              int64     `json:"id"`
	ClientIP        string    `json:"client_ip"`
	ClientUserAgent string    `json:"client_user_agent"`
	WrpContainerID  string    `json:"wrp_container_id,omitempty"`
	ContainerHost   string    `json:"container_host,omitempty"`
	Port            int       `json:"port,omitempty"`
	AuthToken       string    `json:"auth_token,omitempty"`
	Started         time.Time `json:"started"`
	LastUsed        time.Time `json:"last_used"`
}

// New returns an anonymous session for an unseen client. It has no ID
// until first persisted.
func New(clientIP, clientUserAgent string) *Session {
	return &Session{
		ClientIP:        clientIP,
		ClientUserAgent: clientUserAgent,
		Started:         time.Now(),
	}
}

func (s *Session) Persisted() bool {
	return s.ID != 0
}

func (s *Session) HasContainer() bool {
	return s.WrpContainerID != ""
}

// AttachContainer records a container binding. The three container fields
// and the auth token are always set together.
func (s *Session) AttachContainer(containerID, host string, port int, authToken string) {
	s.WrpContainerID = containerID
	s.ContainerHost = host
	s.Port = port
	s.AuthToken = authToken
}

// DetachContainer clears the binding. The fields are never cleared
// partially.
func (s *Session) DetachContainer() {
	s.WrpContainerID = ""
	s.ContainerHost = ""
	s.Port = 0
	s.AuthToken = ""
}
