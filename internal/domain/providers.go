package domain

import (
	"context"
	"io"
	"time"
)

// MarketDataProvider supplies already-fetched historical snapshots. Missing
// data is reported as ErrNotAvailable; the engine records a gap and moves
// on rather than fabricating a fill.
type MarketDataProvider interface {
	GetDailyBar(ctx context.Context, symbol string, date time.Time) (OHLC, error)
	GetOptionQuote(ctx context.Context, symbol string, strike float64, expiry, date time.Time) (QuoteSnapshot, error)
	GetVix(ctx context.Context, date time.Time) (float64, error)
}

// PricingModel is the black-box theoretical Greeks provider.
type PricingModel interface {
	TheoreticalGreeks(underlying, strike float64, dte int, vol, rate float64, right OptionRight) (Greeks, error)
}

// CheckpointStore persists run checkpoints keyed by run id.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, runID string) (Checkpoint, error)
	Delete(ctx context.Context, runID string) error
}

// TradeStore persists the append-only closed-trade log of a run.
type TradeStore interface {
	Insert(ctx context.Context, trade ClosedTrade) error
	ListByRun(ctx context.Context, runID string) ([]ClosedTrade, error)
}

// QuoteCache caches option quote snapshots so repeated runs over the same
// range do not refetch from the upstream provider.
type QuoteCache interface {
	Get(ctx context.Context, key string) (QuoteSnapshot, error)
	Set(ctx context.Context, key string, q QuoteSnapshot) error
}

// BlobWriter uploads run artifacts (trade logs, final checkpoints) to
// object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, body io.Reader, contentType string) error
}
