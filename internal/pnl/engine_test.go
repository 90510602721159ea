package pnl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spreadsim/internal/config"
	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// stubPricing returns per-strike canned Greeks, keyed by strike.
type stubPricing struct {
	greeks map[float64]domain.Greeks
}

func (s *stubPricing) TheoreticalGreeks(underlying, strike float64, dte int, vol, rate float64, right domain.OptionRight) (domain.Greeks, error) {
	return s.greeks[strike], nil
}

func testEngine(pricing domain.PricingModel) *Engine {
	cfg := config.Defaults().PnL
	return New(cfg, pricing)
}

func spreadPosition() domain.Position {
	return domain.Position{
		ID:          1,
		Symbol:      "XSP",
		Strategy:    domain.StrategyPutCreditSpread,
		ShortStrike: 97,
		LongStrike:  96,
		Quantity:    2,
		EntryCredit: 0.30,
		EntrySpot:   100,
		OpenDate:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Expiration:  time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC),
		Status:      domain.PositionStatusOpen,
	}
}

func TestMarkPutCreditSpreadSigns(t *testing.T) {
	// Out-of-the-money put spread: short leg dominates every Greek.
	pricing := &stubPricing{greeks: map[float64]domain.Greeks{
		97: {Delta: -0.25, Gamma: 0.04, Theta: -0.03, Vega: 0.09, Price: 0.55},
		96: {Delta: -0.18, Gamma: 0.03, Theta: -0.02, Vega: 0.07, Price: 0.35},
	}}
	e := testEngine(pricing)

	pos := spreadPosition()
	mark, err := e.CalculatePositionPnL(&pos, 100, 16, pos.OpenDate.AddDate(0, 0, 10))
	require.NoError(t, err)

	// 2 contracts, 200 shares.
	assert.InDelta(t, (-(-0.25)+(-0.18))*200, mark.Delta, 1e-9)
	assert.Positive(t, mark.Delta)
	assert.Positive(t, mark.Theta)
	assert.Negative(t, mark.Vega)

	// OTM: no intrinsic value, all time value.
	assert.Zero(t, mark.IntrinsicValue)
	assert.InDelta(t, 0.20*200, mark.TimeValue, 1e-9)

	// Spread is worth 0.20 against a 0.30 entry credit.
	assert.InDelta(t, (0.30-0.20)*200, mark.UnrealizedPnL, 1e-9)
}

func TestMarkPutCreditSpreadInTheMoney(t *testing.T) {
	pricing := &stubPricing{greeks: map[float64]domain.Greeks{
		97: {Delta: -0.75, Price: 2.30},
		96: {Delta: -0.60, Price: 1.50},
	}}
	e := testEngine(pricing)

	pos := spreadPosition()
	mark, err := e.CalculatePositionPnL(&pos, 95, 28, pos.OpenDate.AddDate(0, 0, 20))
	require.NoError(t, err)

	// Underlying at 95: short put 2.00 ITM, long put 1.00 ITM.
	assert.InDelta(t, 1.00*200, mark.IntrinsicValue, 1e-9)
	assert.InDelta(t, (0.30-0.80)*200, mark.UnrealizedPnL, 1e-9)
	assert.Negative(t, mark.UnrealizedPnL)
}

func TestMarkCoveredCallSigns(t *testing.T) {
	pricing := &stubPricing{greeks: map[float64]domain.Greeks{
		105: {Delta: 0.30, Gamma: 0.02, Theta: -0.04, Vega: 0.11, Price: 1.20},
	}}
	e := testEngine(pricing)

	pos := domain.Position{
		ID:          2,
		Symbol:      "XSP",
		Strategy:    domain.StrategyCoveredCall,
		ShortStrike: 105,
		Quantity:    1,
		EntryCredit: 1.50,
		EntrySpot:   100,
		OpenDate:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Expiration:  time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC),
		Status:      domain.PositionStatusOpen,
	}

	mark, err := e.CalculatePositionPnL(&pos, 102, 16, pos.OpenDate.AddDate(0, 0, 10))
	require.NoError(t, err)

	// Long stock leg keeps net delta positive; short call caps it below 1.
	assert.InDelta(t, (1-0.30)*100, mark.Delta, 1e-9)
	assert.Negative(t, mark.Gamma)
	assert.Negative(t, mark.Vega)
	// Stock gain plus credit decay.
	assert.InDelta(t, ((102.0-100.0)+(1.50-1.20))*100, mark.UnrealizedPnL, 1e-9)
}

func TestMarkVaRUsesPersistedHistory(t *testing.T) {
	pricing := &stubPricing{greeks: map[float64]domain.Greeks{
		97: {Price: 0.30},
		96: {Price: 0.10},
	}}
	e := testEngine(pricing)

	pos := spreadPosition()
	pos.PnLHistory = []float64{-500, -300, -100, 50, 50, 50, 50, 50, 50, 50}

	mark, err := e.CalculatePositionPnL(&pos, 100, 16, pos.OpenDate.AddDate(0, 0, 5))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, mark.VaR99, mark.VaR95)
	assert.Positive(t, mark.VaR99)
	// The engine never commits history itself.
	assert.Len(t, pos.PnLHistory, 10)
}

func TestUnknownStrategyRejected(t *testing.T) {
	e := testEngine(&stubPricing{})
	pos := spreadPosition()
	pos.Strategy = "iron_condor"

	_, err := e.CalculatePositionPnL(&pos, 100, 16, pos.OpenDate)
	require.Error(t, err)
}

func TestSharpe(t *testing.T) {
	e := testEngine(&stubPricing{})

	// Steady positive daily P&L on 100k capital beats the risk-free drag.
	daily := []float64{120, 80, 150, 90, 110, 100, 130, 70}
	sharpe := e.Sharpe(daily, 100_000)
	assert.Positive(t, sharpe)

	// Degenerate inputs yield zero.
	assert.Zero(t, e.Sharpe(nil, 100_000))
	assert.Zero(t, e.Sharpe([]float64{100}, 100_000))
	assert.Zero(t, e.Sharpe(daily, 0))
	assert.Zero(t, e.Sharpe([]float64{50, 50, 50}, 100_000))
}
