package repo

import (
	"crypto/sha1"
	"encoding/hex"
	"time"

	"distributor/internal/session"
)

const clientCacheTTL = 5 * time.Minute

// SessionModel is the persisted shape of a session. Container binding
// columns are nullable; go-pg maps their zero values to NULL, which keeps
// the partial unique index on (container_host, port) meaningful.
type SessionModel struct {
	tableName struct{} `pg:"sessions"` //nolint:unused

	ID              int64     `pg:"id,pk"`
	ClientIP        string    `pg:"client_ip,notnull"`
	ClientUserAgent string    `pg:"client_user_agent,notnull"`
	WrpContainerID  string    `pg:"wrp_container_id"`
	ContainerHost   string    `pg:"container_host"`
	Port            int       `pg:"port"`
	AuthToken       string    `pg:"auth_token"`
	Started         time.Time `pg:"started,notnull"`
	LastUsed        time.Time `pg:"last_used"`
}

func modelFromSession(s *session.Session) *SessionModel {
	return &SessionModel{
		ID:              s.ID,
		ClientIP:        s.ClientIP,
		ClientUserAgent: s.ClientUserAgent,
		WrpContainerID:  s.WrpContainerID,
		ContainerHost:   s.ContainerHost,
		Port:            s.Port,
		AuthToken:       s.AuthToken,
		Started:         s.Started,
		LastUsed:        s.LastUsed,
	}
}

func (m *SessionModel) toSession() *session.Session {
	return &session.Session{
		ID:              m.ID,
		ClientIP:        m.ClientIP,
		ClientUserAgent: m.ClientUserAgent,
		WrpContainerID:  m.WrpContainerID,
		ContainerHost:   m.ContainerHost,
		Port:            m.Port,
		AuthToken:       m.AuthToken,
		Started:         m.Started,
		LastUsed:        m.LastUsed,
	}
}

func clientCacheKey(clientIP, clientUserAgent string) string {
	sum := sha1.Sum([]byte(clientIP + "|" + clientUserAgent))
	return "session:client:" + hex.EncodeToString(sum[:8])
}
