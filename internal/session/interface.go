package session

import (
	"context"
	"time"
)

type Repository interface {
	// GetByClient looks a session up by its natural key.
	GetByClient(ctx context.Context, clientIP, clientUserAgent string) (*Session, error)
	GetByID(ctx context.Context, id int64) (*Session, error)
	// Upsert inserts the session on first call (assigning its ID) and
	// updates it afterwards. LastUsed is refreshed either way.
	Upsert(ctx context.Context, s *Session) error
	Delete(ctx context.Context, s *Session) error

	Count(ctx context.Context) (int, error)
	CountBound(ctx context.Context) (int, error)
	CountPerHost(ctx context.Context) (map[string]int, error)
	AssignedPorts(ctx context.Context) ([]int, error)
	UniqueClientIPs(ctx context.Context) (int, error)

	ListIdleBefore(ctx context.Context, cutoff time.Time) ([]*Session, error)
	ListBound(ctx context.Context) ([]*Session, error)
}
