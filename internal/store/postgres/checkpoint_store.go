package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// CheckpointStore implements domain.CheckpointStore using PostgreSQL.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

var _ domain.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore creates a CheckpointStore backed by the given pool.
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Save upserts the run's checkpoint; each run keeps exactly one current row.
func (s *CheckpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("postgres: encode checkpoint: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO checkpoints (run_id, version, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO UPDATE SET
			version = EXCLUDED.version,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		cp.RunID, cp.Version, payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: save checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Load(ctx context.Context, runID string) (domain.Checkpoint, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM checkpoints WHERE run_id = $1`, runID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Checkpoint{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("postgres: load checkpoint: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("%w: decode checkpoint: %v", domain.ErrStateCorruption, err)
	}
	return cp, nil
}

func (s *CheckpointStore) Delete(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("postgres: delete checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
