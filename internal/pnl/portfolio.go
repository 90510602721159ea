package pnl

import (
	"math"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// PortfolioPnL is the aggregate mark of every open position plus derived
// portfolio-level risk figures.
type PortfolioPnL struct {
	Delta         float64 `json:"delta"`
	Gamma         float64 `json:"gamma"`
	Theta         float64 `json:"theta"`
	Vega          float64 `json:"vega"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	VaR95         float64 `json:"var_95"`
	VaR99         float64 `json:"var_99"`
	Sharpe        float64 `json:"sharpe"`
}

// AggregatePortfolio sums position-level Greeks and unrealized P&L over the
// current marks and derives portfolio VaR and Sharpe from the realized
// daily P&L series.
func (e *Engine) AggregatePortfolio(state *domain.PortfolioState) PortfolioPnL {
	var agg PortfolioPnL
	for i := range state.Open {
		m := state.Open[i].Mark
		agg.Delta += m.Delta
		agg.Gamma += m.Gamma
		agg.Theta += m.Theta
		agg.Vega += m.Vega
		agg.UnrealizedPnL += m.UnrealizedPnL
	}

	daily := state.DailyPnL
	if len(daily) > e.cfg.VaRWindow {
		daily = daily[len(daily)-e.cfg.VaRWindow:]
	}
	agg.VaR95 = VaR(daily, 0.95)
	agg.VaR99 = VaR(daily, 0.99)
	agg.Sharpe = e.Sharpe(daily, state.Capital)
	return agg
}

// tradingDaysPerYear annualizes daily statistics.
const tradingDaysPerYear = 252

// Sharpe computes the annualized Sharpe ratio of a daily dollar P&L series
// against the configured risk-free rate. Fewer than two observations, zero
// capital, or a flat series yield 0.
func (e *Engine) Sharpe(daily []float64, capital float64) float64 {
	if len(daily) < 2 || capital <= 0 {
		return 0
	}

	var mean float64
	for _, v := range daily {
		mean += v / capital
	}
	mean /= float64(len(daily))

	var variance float64
	for _, v := range daily {
		d := v/capital - mean
		variance += d * d
	}
	variance /= float64(len(daily) - 1)
	if variance == 0 {
		return 0
	}

	dailyRf := e.cfg.RiskFreeRate / tradingDaysPerYear
	return (mean - dailyRf) / math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}
