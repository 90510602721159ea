// Package realism decides whether a candidate options trade could actually
// have been executed under real market-microstructure constraints. It is
// the guard against the classic backtest failure mode of accepting every
// synthetic fill and reporting a 100% win rate.
package realism

import (
	"github.com/alanyoungcy/spreadsim/internal/config"
	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// SizingContext describes the size decision attached to a candidate trade.
type SizingContext struct {
	// RequestedContracts is the size the strategy wants to trade.
	RequestedContracts int
	// BaselineContracts is the account's normal full size.
	BaselineContracts int
	// SizeScale is the scale actually applied relative to baseline.
	SizeScale float64
	// DaysToEarnings is calendar days until the next earnings event,
	// or -1 when unknown / not applicable to the underlying.
	DaysToEarnings int
	// DailyLossPct is today's cumulative realized loss as a positive
	// fraction of capital (0.02 = down 2% on the day).
	DailyLossPct float64
}

// Gate evaluates candidate trades against the configured execution
// thresholds. It is pure: no state, no I/O, fully deterministic.
type Gate struct {
	cfg config.RealismConfig
}

// New creates a Gate with the given threshold configuration.
func New(cfg config.RealismConfig) *Gate {
	return &Gate{cfg: cfg}
}

// Evaluate runs every check against the candidate and returns a verdict
// carrying all violated reason codes. Checks never short-circuit, so a
// single rejection can report several simultaneous problems.
func (g *Gate) Evaluate(quote domain.QuoteSnapshot, delta, vix float64, sizing SizingContext, timeOK bool) domain.RealismVerdict {
	var reasons []domain.ReasonCode

	// NBBO sanity. A crossed or locked book, or an upstream sanity veto,
	// means the quote cannot be traded against.
	if quote.Bid >= quote.Ask || !quote.NBBOSane {
		reasons = append(reasons, domain.ReasonNBBOCrossedOrLocked)
	}

	// Spread width. Degenerate quotes report an effectively infinite
	// spread, so they always fail here too.
	if quote.SpreadPct() > g.cfg.MaxSpreadPct {
		reasons = append(reasons, domain.ReasonSpreadTooWide)
	}

	if quote.OpenInterest < g.cfg.MinOpenInterest {
		reasons = append(reasons, domain.ReasonOpenInterestTooLow)
	}

	if quote.QuoteAgeSec > g.cfg.MaxQuoteAgeSec {
		reasons = append(reasons, domain.ReasonQuoteTooStale)
	}

	if quote.VenueCount < g.cfg.MinVenues {
		reasons = append(reasons, domain.ReasonInsufficientVenues)
	}

	if abs(delta) < g.cfg.DeltaMin || abs(delta) > g.cfg.DeltaMax {
		reasons = append(reasons, domain.ReasonDeltaOutOfBand)
	}

	// Volatility-regime sizing: in an elevated regime the applied size
	// scale must not exceed what the tier table allows.
	if vix >= g.cfg.ElevatedVIX && sizing.SizeScale > g.SizeScaleFor(vix) {
		reasons = append(reasons, domain.ReasonVixScalingNotInverse)
	}

	// Earnings proximity: inside the window, requested size must be
	// strictly below the account baseline.
	if sizing.DaysToEarnings >= 0 && sizing.DaysToEarnings <= g.cfg.EarningsWindowDays &&
		sizing.RequestedContracts >= sizing.BaselineContracts {
		reasons = append(reasons, domain.ReasonEarningsSizeNotReduced)
	}

	if sizing.DailyLossPct >= g.cfg.DailyStopPct {
		reasons = append(reasons, domain.ReasonDailyKillSwitch)
	}

	if !timeOK {
		reasons = append(reasons, domain.ReasonOutsideExecutionWindow)
	}

	return domain.RealismVerdict{OK: len(reasons) == 0, Reasons: reasons}
}

// SizeScaleFor returns the maximum size scale the tier table allows for the
// given VIX level. The last tier is unbounded and catches everything above
// the previous tier's ceiling.
func (g *Gate) SizeScaleFor(vix float64) float64 {
	tiers := g.cfg.VixTiers
	for i, tier := range tiers {
		if i == len(tiers)-1 || vix <= tier.MaxVIX {
			return tier.SizeScale
		}
	}
	return 0
}

// EarningsWindow returns the configured earnings-proximity window in days.
func (g *Gate) EarningsWindow() int { return g.cfg.EarningsWindowDays }

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
