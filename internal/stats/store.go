package stats

import (
	"context"
	"time"

	"github.com/go-pg/pg/v10"
)

// StatisticModel is one historical sample of the distributor's load.
type StatisticModel struct {
	tableName struct{} `pg:"statistics"` //nolint:unused

	ID              int64          `pg:"id,pk"`
	CollectedAt     time.Time      `pg:"collected_at"`
	Sessions        int            `pg:"sessions,use_zero"`
	BoundSessions   int            `pg:"bound_sessions,use_zero"`
	UniqueClientIPs int            `pg:"unique_client_ips,use_zero"`
	HostsAvailable  int            `pg:"hosts_available,use_zero"`
	Capacity        int            `pg:"capacity,use_zero"`
	PerHost         map[string]int `pg:"per_host,type:jsonb"`
}

type Store struct {
	db *pg.DB
}

func NewStore(db *pg.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, snap *Snapshot) error {
	model := &StatisticModel{
		CollectedAt:     snap.CollectedAt,
		Sessions:        snap.Sessions,
		BoundSessions:   snap.BoundSessions,
		UniqueClientIPs: snap.UniqueClientIPs,
		HostsAvailable:  snap.HostsAvailable,
		Capacity:        snap.Capacity,
		PerHost:         snap.PerHost,
	}
	_, err := s.db.ModelContext(ctx, model).Insert()
	return err
}

// ListRange returns the stored samples inside [from, to], oldest first.
func (s *Store) ListRange(ctx context.Context, from, to time.Time) ([]StatisticModel, error) {
	var models []StatisticModel
	err := s.db.ModelContext(ctx, &models).
		Where("collected_at >= ?", from).
		Where("collected_at <= ?", to).
		Order("collected_at ASC").
		Select()
	if err != nil {
		return nil, err
	}
	return models, nil
}
