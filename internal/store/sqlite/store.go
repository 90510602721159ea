// Package sqlite is the local run-store backend: checkpoints as versioned
// JSON blobs keyed by run id and an append-only closed-trade log.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// Store implements domain.CheckpointStore and domain.TradeStore on a single
// sqlite database file.
type Store struct {
	db *sql.DB
}

var (
	_ domain.CheckpointStore = (*Store)(nil)
	_ domain.TradeStore      = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening db: %w", err)
	}

	// WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema migration: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the run's checkpoint; a run has exactly one current
// checkpoint, overwritten on every bar.
func (s *Store) Save(ctx context.Context, cp domain.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("sqlite: encode checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, version, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		cp.RunID, cp.Version, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, runID string) (domain.Checkpoint, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM checkpoints WHERE run_id = ?`, runID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Checkpoint{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("sqlite: load checkpoint: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("%w: decode checkpoint: %v", domain.ErrStateCorruption, err)
	}
	return cp, nil
}

func (s *Store) Delete(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("sqlite: delete checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Insert appends a closed trade. Replays after a resume hit the same
// (run_id, trade_id) key and are ignored, keeping the log exactly-once.
func (s *Store) Insert(ctx context.Context, t domain.ClosedTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades (run_id, trade_id, symbol, strategy,
			short_strike, long_strike, quantity, entry_credit, exit_price,
			realized_pnl, commission, reason, open_date, close_date,
			duration_days, vix_at_entry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.ID, t.Symbol, string(t.Strategy),
		t.ShortStrike, t.LongStrike, t.Quantity, t.EntryCredit, t.ExitPrice,
		t.RealizedPnL, t.Commission, string(t.Reason), t.OpenDate, t.CloseDate,
		t.DurationDays, t.VIXAtEntry,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert trade: %w", err)
	}
	return nil
}

func (s *Store) ListByRun(ctx context.Context, runID string) ([]domain.ClosedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, trade_id, symbol, strategy, short_strike, long_strike,
			quantity, entry_credit, exit_price, realized_pnl, commission,
			reason, open_date, close_date, duration_days, vix_at_entry
		FROM trades WHERE run_id = ? ORDER BY trade_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades: %w", err)
	}
	defer rows.Close()

	var results []domain.ClosedTrade
	for rows.Next() {
		var t domain.ClosedTrade
		var strategy, reason string
		if err := rows.Scan(&t.RunID, &t.ID, &t.Symbol, &strategy,
			&t.ShortStrike, &t.LongStrike, &t.Quantity, &t.EntryCredit, &t.ExitPrice,
			&t.RealizedPnL, &t.Commission, &reason, &t.OpenDate, &t.CloseDate,
			&t.DurationDays, &t.VIXAtEntry); err != nil {
			return nil, fmt.Errorf("sqlite: scan trade: %w", err)
		}
		t.Strategy = domain.StrategyTag(strategy)
		t.Reason = domain.CloseReason(reason)
		results = append(results, t)
	}
	return results, rows.Err()
}
