package db

import (
	"context"
	"database/sql"

	"github.com/onnwee/clip-tender/backend/trigger"
)

// BaselineStore persists chat velocity baselines in Postgres. It implements
// trigger.SnapshotStore.
type BaselineStore struct{ DB *sql.DB }

func (s *BaselineStore) SaveBaseline(ctx context.Context, channelID string, snap trigger.BaselineSnapshot) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO baselines(channel_id, mean, stddev, sample_count, saved_at)
		 VALUES($1,$2,$3,$4,$5)
		 ON CONFLICT(channel_id) DO UPDATE SET
		   mean=EXCLUDED.mean, stddev=EXCLUDED.stddev,
		   sample_count=EXCLUDED.sample_count, saved_at=EXCLUDED.saved_at`,
		channelID, snap.Mean, snap.Stddev, snap.Count, snap.SavedAt)
	return err
}

func (s *BaselineStore) LoadBaseline(ctx context.Context, channelID string) (trigger.BaselineSnapshot, bool, error) {
	var snap trigger.BaselineSnapshot
	row := s.DB.QueryRowContext(ctx,
		`SELECT mean, stddev, sample_count, saved_at FROM baselines WHERE channel_id=$1`, channelID)
	err := row.Scan(&snap.Mean, &snap.Stddev, &snap.Count, &snap.SavedAt)
	if err == sql.ErrNoRows {
		return trigger.BaselineSnapshot{}, false, nil
	}
	if err != nil {
		return trigger.BaselineSnapshot{}, false, err
	}
	return snap, true, nil
}
