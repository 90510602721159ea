package backtest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spreadsim/internal/checkpoint"
	"github.com/alanyoungcy/spreadsim/internal/config"
	"github.com/alanyoungcy/spreadsim/internal/domain"
	"github.com/alanyoungcy/spreadsim/internal/ledger"
	"github.com/alanyoungcy/spreadsim/internal/pnl"
	"github.com/alanyoungcy/spreadsim/internal/realism"
	"github.com/alanyoungcy/spreadsim/internal/slippage"
)

var gapDate = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

// fakeProvider serves a flat synthetic market: underlying pinned at 100,
// VIX at 15, and option quotes priced off the strike. One trading day is
// missing entirely.
type fakeProvider struct{}

func (fakeProvider) GetDailyBar(ctx context.Context, symbol string, date time.Time) (domain.OHLC, error) {
	if date.Equal(gapDate) {
		return domain.OHLC{}, domain.ErrNotAvailable
	}
	return domain.OHLC{Date: date, Open: 100, High: 101, Low: 99, Close: 100}, nil
}

func (fakeProvider) GetOptionQuote(ctx context.Context, symbol string, strike float64, expiry, date time.Time) (domain.QuoteSnapshot, error) {
	mid := (strike - 90) * 0.1
	return domain.QuoteSnapshot{
		Bid:          mid - 0.03,
		Ask:          mid + 0.03,
		OpenInterest: 500,
		QuoteAgeSec:  0.5,
		VenueCount:   3,
		NBBOSane:     true,
		ObservedAt:   date,
	}, nil
}

func (fakeProvider) GetVix(ctx context.Context, date time.Time) (float64, error) {
	return 15, nil
}

// fakePricing keeps short-leg deltas inside the default band and marks the
// booked spread near its entry credit so positions ride to the DTE floor.
type fakePricing struct{}

func (fakePricing) TheoreticalGreeks(underlying, strike float64, dte int, vol, rate float64, right domain.OptionRight) (domain.Greeks, error) {
	return domain.Greeks{
		Price: (strike-95)*0.04 + 0.02,
		Delta: -0.20,
		Gamma: 0.02,
		Theta: -0.01,
		Vega:  0.05,
	}, nil
}

// captureStore keeps the latest checkpoint per run and snapshots the one
// written at a chosen bar count, simulating an interruption point.
type captureStore struct {
	checkpoints map[string]domain.Checkpoint
	captureAt   int64
	captured    *domain.Checkpoint
}

func newCaptureStore(captureAt int64) *captureStore {
	return &captureStore{checkpoints: make(map[string]domain.Checkpoint), captureAt: captureAt}
}

func (s *captureStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	s.checkpoints[cp.RunID] = cp
	if s.captured == nil && cp.BarsProcessed == s.captureAt {
		c := cp
		s.captured = &c
	}
	return nil
}

func (s *captureStore) Load(ctx context.Context, runID string) (domain.Checkpoint, error) {
	cp, ok := s.checkpoints[runID]
	if !ok {
		return domain.Checkpoint{}, domain.ErrNotFound
	}
	return cp, nil
}

func (s *captureStore) Delete(ctx context.Context, runID string) error {
	delete(s.checkpoints, runID)
	return nil
}

type memTradeStore struct {
	trades []domain.ClosedTrade
}

func (s *memTradeStore) Insert(ctx context.Context, trade domain.ClosedTrade) error {
	s.trades = append(s.trades, trade)
	return nil
}

func (s *memTradeStore) ListByRun(ctx context.Context, runID string) ([]domain.ClosedTrade, error) {
	var out []domain.ClosedTrade
	for _, t := range s.trades {
		if t.RunID == runID {
			out = append(out, t)
		}
	}
	return out, nil
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Run.Start = "2024-01-02"
	cfg.Run.End = "2024-02-09"
	return &cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRun wires an orchestrator over fakes, resuming from cp when non-nil.
func newRun(t *testing.T, cfg *config.Config, store domain.CheckpointStore, trades domain.TradeStore, resume *domain.Checkpoint) *Orchestrator {
	t.Helper()
	logger := testLogger()
	engine := pnl.New(cfg.PnL, fakePricing{})
	gate := realism.New(cfg.Realism)

	var led *ledger.Ledger
	if resume != nil {
		var err error
		led, err = ledger.Restore(resume.Portfolio, cfg.Exits, engine, logger)
		require.NoError(t, err)
	} else {
		led = ledger.New(cfg.Exits, engine, cfg.Run.StartingCapital, logger)
	}

	orch, err := New(cfg, "run-1", "XSP", Deps{
		Provider:    fakeProvider{},
		Pricing:     fakePricing{},
		Gate:        gate,
		Slippage:    slippage.New(cfg.Slippage),
		Ledger:      led,
		Source:      NewSpreadSource(cfg.Strategy, gate, nil),
		Checkpoints: checkpoint.New(store, cfg.Fingerprint(), logger),
		Trades:      trades,
		Logger:      logger,
	}, resume)
	require.NoError(t, err)
	return orch
}

func TestRunOpensAndRecordsGaps(t *testing.T) {
	cfg := testConfig()
	trades := &memTradeStore{}

	final, err := newRun(t, cfg, newCaptureStore(-1), trades, nil).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, final.Completed)
	assert.Contains(t, final.Gaps, "2024-01-15")
	assert.Equal(t, time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC), final.LastProcessed)

	// 29 weekdays in range, one of them a data gap.
	assert.Equal(t, int64(28), final.BarsProcessed)

	// The book fills to capacity and stays there until the DTE floor
	// starts cycling positions out.
	assert.Equal(t, cfg.Strategy.MaxOpenPositions, len(final.Portfolio.Open))
	require.NotEmpty(t, final.Portfolio.Closed)
	for _, tr := range final.Portfolio.Closed {
		assert.Equal(t, domain.CloseReasonDteThreshold, tr.Reason)
	}

	// Every close was mirrored into the trade log.
	assert.Len(t, trades.trades, len(final.Portfolio.Closed))
}

func TestRunCancellationForcesCheckpoint(t *testing.T) {
	cfg := testConfig()
	store := newCaptureStore(-1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cp, err := newRun(t, cfg, store, &memTradeStore{}, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The forced checkpoint landed in the store despite the dead context.
	saved, ok := store.checkpoints["run-1"]
	require.True(t, ok)
	assert.False(t, saved.Completed)
	assert.Equal(t, cp.BarsProcessed, saved.BarsProcessed)
}

func TestResumeMatchesUninterruptedRun(t *testing.T) {
	cfg := testConfig()

	// Reference: one uninterrupted run.
	full, err := newRun(t, cfg, newCaptureStore(-1), &memTradeStore{}, nil).Run(context.Background())
	require.NoError(t, err)
	require.True(t, full.Completed)

	// Interrupted run: capture the checkpoint written after bar 10, then
	// resume a fresh orchestrator from it.
	store := newCaptureStore(10)
	_, err = newRun(t, cfg, store, &memTradeStore{}, nil).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, store.captured)

	resumed, err := newRun(t, cfg, newCaptureStore(-1), &memTradeStore{}, store.captured).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, full.Portfolio, resumed.Portfolio)
	assert.Equal(t, full.BarsProcessed, resumed.BarsProcessed)
	assert.Equal(t, full.LastProcessed, resumed.LastProcessed)
	assert.Equal(t, full.Gaps, resumed.Gaps)
	assert.True(t, resumed.Completed)
}

func TestSpreadSourceStandsAsideInCrisis(t *testing.T) {
	cfg := testConfig()
	gate := realism.New(cfg.Realism)
	src := NewSpreadSource(cfg.Strategy, gate, nil)

	bar := domain.OHLC{Close: 100}
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	// Calm regime proposes a spread on the strike grid.
	cands, err := src.Candidates(context.Background(), "XSP", date, bar, 15, 0)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, 97.0, cands[0].ShortStrike)
	assert.Equal(t, 96.0, cands[0].LongStrike)
	assert.Equal(t, 5, cands[0].RequestedContracts)

	// Crisis regime proposes nothing.
	cands, err = src.Candidates(context.Background(), "XSP", date, bar, 55, 0)
	require.NoError(t, err)
	assert.Empty(t, cands)

	// A full book proposes nothing.
	cands, err = src.Candidates(context.Background(), "XSP", date, bar, 15, cfg.Strategy.MaxOpenPositions)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestSpreadSourceEarningsReduction(t *testing.T) {
	cfg := testConfig()
	gate := realism.New(cfg.Realism)
	near := func(symbol string, date time.Time) int { return 3 }
	src := NewSpreadSource(cfg.Strategy, gate, near)

	cands, err := src.Candidates(context.Background(), "XSP",
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), domain.OHLC{Close: 100}, 15, 0)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, cfg.Strategy.BaselineContracts-1, cands[0].RequestedContracts)
	assert.Equal(t, 3, cands[0].DaysToEarnings)
}
