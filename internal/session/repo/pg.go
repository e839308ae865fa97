package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"distributor/internal/session"

	"github.com/go-pg/pg/v10"
	"github.com/redis/go-redis/v9"
)

var _ session.Repository = (*Repository)(nil)

type Repository struct {
	db    *pg.DB
	cache redis.Cmdable
}

func NewRepository(db *pg.DB, cache redis.Cmdable) *Repository {
	return &Repository{
		db:    db,
		cache: cache,
	}
}

func (r *Repository) GetByClient(ctx context.Context, clientIP, clientUserAgent string) (*session.Session, error) {
	if r.cache != nil {
		key := clientCacheKey(clientIP, clientUserAgent)
		if val, err := r.cache.Get(ctx, key).Result(); err == nil {
			var cached session.Session
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return &cached, nil
			}
		}
	}

	m := new(SessionModel)
	err := r.db.ModelContext(ctx, m).
		Where("client_ip = ?", clientIP).
		Where("client_user_agent = ?", clientUserAgent).
		Select()
	if errors.Is(err, pg.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sess := m.toSession()

	if r.cache != nil {
		if b, err := json.Marshal(sess); err == nil {
			_ = r.cache.Set(ctx, clientCacheKey(clientIP, clientUserAgent), b, clientCacheTTL).Err()
		}
	}

	return sess, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*session.Session, error) {
	m := &SessionModel{ID: id}
	err := r.db.ModelContext(ctx, m).WherePK().Select()
	if errors.Is(err, pg.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toSession(), nil
}

func (r *Repository) Upsert(ctx context.Context, s *session.Session) error {
	s.LastUsed = time.Now()
	if s.Started.IsZero() {
		s.Started = s.LastUsed
	}

	m := modelFromSession(s)

	if s.ID == 0 {
		if _, err := r.db.ModelContext(ctx, m).Insert(); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		s.ID = m.ID
	} else {
		if _, err := r.db.ModelContext(ctx, m).WherePK().Update(); err != nil {
			return fmt.Errorf("update session %d: %w", s.ID, err)
		}
	}

	r.invalidate(ctx, s)
	return nil
}

func (r *Repository) Delete(ctx context.Context, s *session.Session) error {
	if s.ID == 0 {
		return session.ErrNotFound
	}

	m := &SessionModel{ID: s.ID}
	if _, err := r.db.ModelContext(ctx, m).WherePK().Delete(); err != nil {
		return fmt.Errorf("delete session %d: %w", s.ID, err)
	}

	r.invalidate(ctx, s)
	s.ID = 0
	return nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	return r.db.ModelContext(ctx, (*SessionModel)(nil)).Count()
}

func (r *Repository) CountBound(ctx context.Context) (int, error) {
	return r.db.ModelContext(ctx, (*SessionModel)(nil)).
		Where("port IS NOT NULL").
		Count()
}

func (r *Repository) CountPerHost(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		ContainerHost string
		Count         int
	}

	err := r.db.ModelContext(ctx, (*SessionModel)(nil)).
		Column("container_host").
		ColumnExpr("count(*) AS count").
		Where("container_host IS NOT NULL").
		Group("container_host").
		Select(&rows)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ContainerHost] = row.Count
	}
	return counts, nil
}

func (r *Repository) AssignedPorts(ctx context.Context) ([]int, error) {
	var ports []int
	err := r.db.ModelContext(ctx, (*SessionModel)(nil)).
		Column("port").
		Where("port IS NOT NULL").
		Order("port ASC").
		Select(&ports)
	if err != nil {
		return nil, err
	}
	return ports, nil
}

func (r *Repository) UniqueClientIPs(ctx context.Context) (int, error) {
	var n int
	err := r.db.ModelContext(ctx, (*SessionModel)(nil)).
		ColumnExpr("count(DISTINCT client_ip)").
		Select(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repository) ListIdleBefore(ctx context.Context, cutoff time.Time) ([]*session.Session, error) {
	var models []SessionModel
	err := r.db.ModelContext(ctx, &models).
		Where("COALESCE(last_used, started) <= ?", cutoff).
		Order("id ASC").
		Select()
	if err != nil {
		return nil, err
	}
	return toSessions(models), nil
}

func (r *Repository) ListBound(ctx context.Context) ([]*session.Session, error) {
	var models []SessionModel
	err := r.db.ModelContext(ctx, &models).
		Where("wrp_container_id IS NOT NULL").
		Where("container_host IS NOT NULL").
		Where("port IS NOT NULL").
		Order("id ASC").
		Select()
	if err != nil {
		return nil, err
	}
	return toSessions(models), nil
}

func (r *Repository) invalidate(ctx context.Context, s *session.Session) {
	if r.cache != nil {
		_ = r.cache.Del(ctx, clientCacheKey(s.ClientIP, s.ClientUserAgent)).Err()
	}
}

func toSessions(models []SessionModel) []*session.Session {
	sessions := make([]*session.Session, 0, len(models))
	for i := range models {
		sessions = append(sessions, models[i].toSession())
	}
	return sessions
}
