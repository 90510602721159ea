// Package checkpoint persists and restores run state so an interrupted
// backtest resumes from the last processed bar instead of restarting.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// Manager wraps a CheckpointStore with the resume policy: version and
// config-fingerprint verification, state validation, and completion
// bookkeeping.
type Manager struct {
	store       domain.CheckpointStore
	fingerprint string
	logger      *slog.Logger
}

// New creates a Manager bound to the given store and config fingerprint.
func New(store domain.CheckpointStore, fingerprint string, logger *slog.Logger) *Manager {
	return &Manager{
		store:       store,
		fingerprint: fingerprint,
		logger:      logger.With(slog.String("component", "checkpoint")),
	}
}

// Save writes a checkpoint for the run. The caller supplies the portfolio
// state and cursor; the manager stamps version, fingerprint, and save time.
func (m *Manager) Save(ctx context.Context, cp domain.Checkpoint) error {
	cp.Version = domain.CheckpointVersion
	cp.ConfigFingerprint = m.fingerprint
	cp.SavedAt = time.Now().UTC()

	if err := m.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("checkpoint: save run %s: %w", cp.RunID, err)
	}
	m.logger.Debug("checkpoint saved",
		slog.String("run_id", cp.RunID),
		slog.Int64("bars_processed", cp.BarsProcessed),
		slog.Time("last_processed", cp.LastProcessed),
	)
	return nil
}

// Load fetches the checkpoint for a run and verifies it is safe to resume
// from. A missing checkpoint returns domain.ErrNotFound; a checkpoint
// written under a different configuration returns domain.ErrConfigMismatch;
// an internally inconsistent checkpoint returns domain.ErrStateCorruption.
func (m *Manager) Load(ctx context.Context, runID string) (domain.Checkpoint, error) {
	cp, err := m.store.Load(ctx, runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Checkpoint{}, err
		}
		return domain.Checkpoint{}, fmt.Errorf("checkpoint: load run %s: %w", runID, err)
	}

	if cp.Version != domain.CheckpointVersion {
		return domain.Checkpoint{}, fmt.Errorf("%w: checkpoint version %d, want %d",
			domain.ErrStateCorruption, cp.Version, domain.CheckpointVersion)
	}
	if cp.ConfigFingerprint != m.fingerprint {
		return domain.Checkpoint{}, fmt.Errorf("%w: checkpoint written under fingerprint %.12s, current %.12s",
			domain.ErrConfigMismatch, cp.ConfigFingerprint, m.fingerprint)
	}
	if err := validate(&cp); err != nil {
		return domain.Checkpoint{}, err
	}

	m.logger.Info("checkpoint loaded",
		slog.String("run_id", cp.RunID),
		slog.Int64("bars_processed", cp.BarsProcessed),
		slog.Time("last_processed", cp.LastProcessed),
	)
	return cp, nil
}

// Delete removes the checkpoint for a run, typically after archival of a
// completed run. Missing checkpoints are not an error.
func (m *Manager) Delete(ctx context.Context, runID string) error {
	if err := m.store.Delete(ctx, runID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("checkpoint: delete run %s: %w", runID, err)
	}
	return nil
}

// validate applies structural invariants a resumable checkpoint must hold.
func validate(cp *domain.Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("%w: checkpoint has empty run id", domain.ErrStateCorruption)
	}
	if cp.BarsProcessed < 0 {
		return fmt.Errorf("%w: negative bars processed %d", domain.ErrStateCorruption, cp.BarsProcessed)
	}
	if cp.LastProcessed.After(cp.EndDate) {
		return fmt.Errorf("%w: cursor %s beyond end date %s", domain.ErrStateCorruption,
			cp.LastProcessed.Format("2006-01-02"), cp.EndDate.Format("2006-01-02"))
	}
	for i := range cp.Portfolio.Open {
		if cp.Portfolio.Open[i].Status != domain.PositionStatusOpen {
			return fmt.Errorf("%w: position %d in open table has status %s",
				domain.ErrStateCorruption, cp.Portfolio.Open[i].ID, cp.Portfolio.Open[i].Status)
		}
	}
	return nil
}
