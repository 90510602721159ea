// Package pnl marks positions to market: per-leg intrinsic and time value,
// signed Greek aggregation across legs, unrealized P&L, and tail risk over
// a bounded history. The theoretical pricing model is a black-box
// collaborator; this package only composes its per-leg outputs.
package pnl

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/spreadsim/internal/config"
	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// Engine computes position and portfolio P&L. It is stateless: every input
// that marking depends on lives in the position or the arguments, so a
// restored checkpoint marks exactly as the original run did.
type Engine struct {
	cfg     config.PnLConfig
	pricing domain.PricingModel
}

// New creates an Engine using the given pricing collaborator.
func New(cfg config.PnLConfig, pricing domain.PricingModel) *Engine {
	return &Engine{cfg: cfg, pricing: pricing}
}

// CalculatePositionPnL marks a single position against the given underlying
// price and VIX level. The VaR figures are computed over the position's
// stored observation history plus today's observation; the caller (the
// ledger) is responsible for committing the returned mark.
func (e *Engine) CalculatePositionPnL(pos *domain.Position, underlying, vix float64, date time.Time) (domain.PositionPnL, error) {
	switch pos.Strategy {
	case domain.StrategyPutCreditSpread:
		return e.markPutCreditSpread(pos, underlying, vix, date)
	case domain.StrategyCoveredCall:
		return e.markCoveredCall(pos, underlying, vix, date)
	default:
		return domain.PositionPnL{}, fmt.Errorf("pnl: unknown strategy %q", pos.Strategy)
	}
}

// markPutCreditSpread prices both put legs and nets them. Short leg
// contributions enter negated: an out-of-the-money spread ends up with
// positive delta and theta and negative vega.
func (e *Engine) markPutCreditSpread(pos *domain.Position, underlying, vix float64, date time.Time) (domain.PositionPnL, error) {
	dte := pos.DTE(date)
	vol := vix / 100

	short, err := e.pricing.TheoreticalGreeks(underlying, pos.ShortStrike, dte, vol, e.cfg.RiskFreeRate, domain.RightPut)
	if err != nil {
		return domain.PositionPnL{}, fmt.Errorf("pnl: short put greeks: %w", err)
	}
	long, err := e.pricing.TheoreticalGreeks(underlying, pos.LongStrike, dte, vol, e.cfg.RiskFreeRate, domain.RightPut)
	if err != nil {
		return domain.PositionPnL{}, fmt.Errorf("pnl: long put greeks: %w", err)
	}

	contracts := float64(pos.Quantity) * domain.SharesPerContract

	// Per-share cost to close the spread today.
	spreadValue := short.Price - long.Price
	if spreadValue < 0 {
		spreadValue = 0
	}

	intrinsic := putIntrinsic(pos.ShortStrike, underlying) - putIntrinsic(pos.LongStrike, underlying)
	if intrinsic < 0 {
		intrinsic = 0
	}

	mark := domain.PositionPnL{
		IntrinsicValue: intrinsic * contracts,
		TimeValue:      (spreadValue - intrinsic) * contracts,
		Delta:          (-short.Delta + long.Delta) * contracts,
		Gamma:          (-short.Gamma + long.Gamma) * contracts,
		Theta:          (-short.Theta + long.Theta) * contracts,
		Vega:           (-short.Vega + long.Vega) * contracts,
		UnrealizedPnL:  (pos.EntryCredit - spreadValue) * contracts,
	}
	e.attachVaR(pos, &mark)
	return mark, nil
}

// markCoveredCall prices the short call overlay against the long stock leg.
// The short call contributes negative delta; the stock leg contributes one
// delta per share.
func (e *Engine) markCoveredCall(pos *domain.Position, underlying, vix float64, date time.Time) (domain.PositionPnL, error) {
	dte := pos.DTE(date)
	vol := vix / 100

	call, err := e.pricing.TheoreticalGreeks(underlying, pos.ShortStrike, dte, vol, e.cfg.RiskFreeRate, domain.RightCall)
	if err != nil {
		return domain.PositionPnL{}, fmt.Errorf("pnl: short call greeks: %w", err)
	}

	contracts := float64(pos.Quantity) * domain.SharesPerContract
	intrinsic := callIntrinsic(pos.ShortStrike, underlying)

	mark := domain.PositionPnL{
		IntrinsicValue: intrinsic * contracts,
		TimeValue:      (call.Price - intrinsic) * contracts,
		Delta:          (1 - call.Delta) * contracts,
		Gamma:          -call.Gamma * contracts,
		Theta:          -call.Theta * contracts,
		Vega:           -call.Vega * contracts,
		UnrealizedPnL:  ((underlying - pos.EntrySpot) + (pos.EntryCredit - call.Price)) * contracts,
	}
	e.attachVaR(pos, &mark)
	return mark, nil
}

// attachVaR computes tail risk over the position's held history plus the
// fresh observation. The history itself is committed by the ledger so that
// a rejected or duplicate mark never mutates state here.
func (e *Engine) attachVaR(pos *domain.Position, mark *domain.PositionPnL) {
	obs := make([]float64, 0, len(pos.PnLHistory)+1)
	obs = append(obs, pos.PnLHistory...)
	obs = append(obs, mark.UnrealizedPnL)
	if len(obs) > e.cfg.VaRWindow {
		obs = obs[len(obs)-e.cfg.VaRWindow:]
	}
	mark.VaR95 = VaR(obs, 0.95)
	mark.VaR99 = VaR(obs, 0.99)
}

// VaRWindow returns the configured observation cap, used by the ledger when
// committing history.
func (e *Engine) VaRWindow() int { return e.cfg.VaRWindow }

// Commission returns the total commission for a contract count, charged
// per leg pair at close.
func (e *Engine) Commission(quantity int) float64 {
	return e.cfg.CommissionPerContract * float64(quantity)
}

func putIntrinsic(strike, underlying float64) float64 {
	if v := strike - underlying; v > 0 {
		return v
	}
	return 0
}

func callIntrinsic(strike, underlying float64) float64 {
	if v := underlying - strike; v > 0 {
		return v
	}
	return 0
}
