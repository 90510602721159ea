package ledger

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spreadsim/internal/config"
	"github.com/alanyoungcy/spreadsim/internal/domain"
	"github.com/alanyoungcy/spreadsim/internal/pnl"
)

// stubPricing values both put legs so that the spread is worth spreadValue
// per share at every mark.
type stubPricing struct {
	shortPrice float64
	longPrice  float64
}

func (s *stubPricing) TheoreticalGreeks(underlying, strike float64, dte int, vol, rate float64, right domain.OptionRight) (domain.Greeks, error) {
	if strike >= 14.0 {
		return domain.Greeks{Price: s.shortPrice, Delta: -0.2}, nil
	}
	return domain.Greeks{Price: s.longPrice, Delta: -0.1}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okVerdict() domain.RealismVerdict {
	return domain.RealismVerdict{OK: true}
}

func testCandidate() Candidate {
	return Candidate{
		Symbol:      "XSP",
		Strategy:    domain.StrategyPutCreditSpread,
		ShortStrike: 14.0,
		LongStrike:  13.0,
		Quantity:    5,
		EntryCredit: 0.30,
		EntrySpot:   15.0,
		Expiration:  time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC),
		VIX:         15,
	}
}

func newTestLedger(t *testing.T, pricing domain.PricingModel) *Ledger {
	t.Helper()
	cfg := config.Defaults()
	engine := pnl.New(cfg.PnL, pricing)
	return New(cfg.Exits, engine, 100_000, testLogger())
}

func TestOpenAssignsMonotonicIDs(t *testing.T) {
	l := newTestLedger(t, &stubPricing{})
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	p1, err := l.Open(testCandidate(), okVerdict(), date)
	require.NoError(t, err)
	p2, err := l.Open(testCandidate(), okVerdict(), date)
	require.NoError(t, err)

	assert.Equal(t, int64(1), p1.ID)
	assert.Equal(t, int64(2), p2.ID)
	assert.Equal(t, 2, l.OpenCount())
	assert.Equal(t, domain.PositionStatusOpen, p1.Status)
}

func TestOpenRejectsInvalidCandidates(t *testing.T) {
	l := newTestLedger(t, &stubPricing{})
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	// Rejected verdict never books.
	_, err := l.Open(testCandidate(), domain.RealismVerdict{OK: false}, date)
	require.Error(t, err)

	// Inverted strikes violate the credit-spread invariant.
	c := testCandidate()
	c.ShortStrike, c.LongStrike = c.LongStrike, c.ShortStrike
	_, err = l.Open(c, okVerdict(), date)
	require.Error(t, err)

	c = testCandidate()
	c.Quantity = 0
	_, err = l.Open(c, okVerdict(), date)
	require.Error(t, err)

	c = testCandidate()
	c.EntryCredit = -0.10
	_, err = l.Open(c, okVerdict(), date)
	require.Error(t, err)

	assert.Equal(t, 0, l.OpenCount())
}

func TestCloseRealizedPnL(t *testing.T) {
	l := newTestLedger(t, &stubPricing{})
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	p, err := l.Open(testCandidate(), okVerdict(), date)
	require.NoError(t, err)

	trade, err := l.Close(p.ID, date.AddDate(0, 0, 14), 0.05, domain.CloseReasonProfitTarget, "run-1")
	require.NoError(t, err)

	// (0.30 - 0.05) x 5 contracts x 100 shares, minus 5 x 0.65 commission.
	commission := 5 * 0.65
	assert.InDelta(t, (0.30-0.05)*5*100-commission, trade.RealizedPnL, 1e-9)
	assert.Equal(t, 14, trade.DurationDays)
	assert.Equal(t, 0, l.OpenCount())
}

func TestClosedPositionNeverReopens(t *testing.T) {
	l := newTestLedger(t, &stubPricing{})
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	p, err := l.Open(testCandidate(), okVerdict(), date)
	require.NoError(t, err)

	_, err = l.Close(p.ID, date, 0.05, domain.CloseReasonProfitTarget, "run-1")
	require.NoError(t, err)

	// A second close must fail: the position left the open table for good.
	_, err = l.Close(p.ID, date, 0.05, domain.CloseReasonStopLoss, "run-1")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrNotFound)

	state := l.State()
	require.Len(t, state.Closed, 1)
	assert.Empty(t, state.Open)
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	for _, terminal := range []domain.PositionStatus{
		domain.PositionStatusClosed,
		domain.PositionStatusRolled,
		domain.PositionStatusAssigned,
		domain.PositionStatusExpired,
	} {
		assert.True(t, domain.CanTransition(domain.PositionStatusOpen, terminal))
		assert.False(t, domain.CanTransition(terminal, domain.PositionStatusOpen))
		assert.False(t, domain.CanTransition(terminal, domain.PositionStatusClosed))
	}
	assert.False(t, domain.CanTransition(domain.PositionStatusOpen, domain.PositionStatusOpen))
}

func markAndEvaluate(t *testing.T, l *Ledger, date time.Time) []ExitDecision {
	t.Helper()
	require.NoError(t, l.MarkToMarket(date, 15.0, 15))
	return l.EvaluateExits(date)
}

func TestExitPrecedenceStopLossFirst(t *testing.T) {
	// Spread marked at 1.20 against a 0.30 credit: unrealized = -0.90 x
	// contracts, past the 2x stop. The same mark also sits past nothing
	// else, but a deep loss with low DTE must still report stop loss.
	pricing := &stubPricing{shortPrice: 1.60, longPrice: 0.40}
	l := newTestLedger(t, pricing)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := l.Open(testCandidate(), okVerdict(), date)
	require.NoError(t, err)

	// Two days before expiration: DTE floor would also match.
	decisions := markAndEvaluate(t, l, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC))
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.CloseReasonStopLoss, decisions[0].Reason)
}

func TestExitProfitTarget(t *testing.T) {
	// Spread marked at 0.10: captured 0.20 of the 0.30 credit (67%).
	pricing := &stubPricing{shortPrice: 0.30, longPrice: 0.20}
	l := newTestLedger(t, pricing)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := l.Open(testCandidate(), okVerdict(), date)
	require.NoError(t, err)

	decisions := markAndEvaluate(t, l, date.AddDate(0, 0, 7))
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.CloseReasonProfitTarget, decisions[0].Reason)
	assert.InDelta(t, 0.10, decisions[0].ExitPrice, 1e-9)
}

func TestExitDteThreshold(t *testing.T) {
	// Spread still worth roughly its credit: neither stop nor target.
	pricing := &stubPricing{shortPrice: 0.50, longPrice: 0.20}
	l := newTestLedger(t, pricing)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := l.Open(testCandidate(), okVerdict(), date)
	require.NoError(t, err)

	// 21 days before expiration hits the default DTE floor.
	decisions := markAndEvaluate(t, l, time.Date(2024, 1, 26, 0, 0, 0, 0, time.UTC))
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.CloseReasonDteThreshold, decisions[0].Reason)
}

func TestExitExpirationWorthless(t *testing.T) {
	pricing := &stubPricing{shortPrice: 0.28, longPrice: 0.01}
	l := newTestLedger(t, pricing)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	p, err := l.Open(testCandidate(), okVerdict(), date)
	require.NoError(t, err)

	// Underlying at 15: both puts are out of the money at expiry.
	require.NoError(t, l.MarkToMarket(time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC), 15.0, 15))
	decisions := l.EvaluateExits(time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC))
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.CloseReasonExpired, decisions[0].Reason)
	assert.Zero(t, decisions[0].ExitPrice)

	trade, err := l.Close(p.ID, time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC),
		decisions[0].ExitPrice, decisions[0].Reason, "run-1")
	require.NoError(t, err)
	// Full credit kept, minus commission.
	assert.InDelta(t, 0.30*500-5*0.65, trade.RealizedPnL, 1e-9)
}

func TestExitExpirationInTheMoney(t *testing.T) {
	pricing := &stubPricing{shortPrice: 0.60, longPrice: 0.15}
	l := newTestLedger(t, pricing)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := l.Open(testCandidate(), okVerdict(), date)
	require.NoError(t, err)

	// Underlying at 13.5: short put 0.50 in the money, long put out.
	expiry := time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.MarkToMarket(expiry, 13.5, 22))
	decisions := l.EvaluateExits(expiry)
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.CloseReasonAssigned, decisions[0].Reason)
	assert.InDelta(t, 0.50, decisions[0].ExitPrice, 1e-9)
}

func TestMarkToMarketCommitsBoundedHistory(t *testing.T) {
	pricing := &stubPricing{shortPrice: 0.50, longPrice: 0.20}
	cfg := config.Defaults()
	cfg.PnL.VaRWindow = 5
	engine := pnl.New(cfg.PnL, pricing)
	l := New(cfg.Exits, engine, 100_000, testLogger())

	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, err := l.Open(testCandidate(), okVerdict(), date)
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		require.NoError(t, l.MarkToMarket(date.AddDate(0, 0, i), 15.0, 15))
	}

	open := l.OpenPositions()
	require.Len(t, open, 1)
	assert.Len(t, open[0].PnLHistory, 5)
}

func TestEndBarAndDailyLoss(t *testing.T) {
	l := newTestLedger(t, &stubPricing{})
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	p, err := l.Open(testCandidate(), okVerdict(), date)
	require.NoError(t, err)

	// Close at a heavy loss: exit 9.30 against a 0.30 credit.
	_, err = l.Close(p.ID, date, 9.30, domain.CloseReasonStopLoss, "run-1")
	require.NoError(t, err)

	assert.Greater(t, l.DailyLossPct(), 0.04)

	realized := l.EndBar(date)
	assert.Negative(t, realized)
	assert.Zero(t, l.DailyLossPct())

	state := l.State()
	require.Len(t, state.DailyPnL, 1)
	assert.Equal(t, realized, state.DailyPnL[0])
}

func TestRestoreRejectsCorruptState(t *testing.T) {
	cfg := config.Defaults()
	engine := pnl.New(cfg.PnL, &stubPricing{})

	state := domain.PortfolioState{
		Capital: 100_000,
		Open: []domain.Position{
			{ID: 1, Status: domain.PositionStatusClosed},
		},
	}
	_, err := Restore(state, cfg.Exits, engine, testLogger())
	require.ErrorIs(t, err, domain.ErrStateCorruption)

	state = domain.PortfolioState{
		Capital: 100_000,
		Open: []domain.Position{
			{ID: 1, Status: domain.PositionStatusOpen},
			{ID: 1, Status: domain.PositionStatusOpen},
		},
	}
	_, err = Restore(state, cfg.Exits, engine, testLogger())
	require.ErrorIs(t, err, domain.ErrStateCorruption)
}
