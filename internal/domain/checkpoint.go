package domain

import "time"

// CheckpointVersion is bumped whenever the checkpoint encoding changes in
// a way older binaries cannot read.
const CheckpointVersion = 1

// Checkpoint is the versioned snapshot of a run: portfolio state plus the
// orchestrator cursor and the configuration fingerprint the run was started
// with. Storage naming is owned by the surrounding tooling; the engine only
// keys checkpoints by run id.
type Checkpoint struct {
	Version           int            `json:"version"`
	RunID             string         `json:"run_id"`
	Symbol            string         `json:"symbol"`
	StartDate         time.Time      `json:"start_date"`
	EndDate           time.Time      `json:"end_date"`
	LastProcessed     time.Time      `json:"last_processed"`
	BarsProcessed     int64          `json:"bars_processed"`
	Gaps              []string       `json:"gaps,omitempty"` // skipped bar dates, YYYY-MM-DD
	Portfolio         PortfolioState `json:"portfolio"`
	ConfigFingerprint string         `json:"config_fingerprint"`
	Completed         bool           `json:"completed"`
	SavedAt           time.Time      `json:"saved_at"`
}
