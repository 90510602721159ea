package backtest

import (
	"context"
	"math"
	"time"

	"github.com/alanyoungcy/spreadsim/internal/config"
	"github.com/alanyoungcy/spreadsim/internal/domain"
	"github.com/alanyoungcy/spreadsim/internal/realism"
)

// EarningsCalendar reports calendar days until the symbol's next earnings
// event as of the given date, or -1 when not applicable (index products).
type EarningsCalendar func(symbol string, date time.Time) int

// CandidateRequest is an entry the strategy wants to make this bar, before
// gating and fill pricing.
type CandidateRequest struct {
	Strategy           domain.StrategyTag
	ShortStrike        float64
	LongStrike         float64
	Expiration         time.Time
	RequestedContracts int
	BaselineContracts  int
	SizeScale          float64
	DaysToEarnings     int
	TimeOK             bool
}

// CandidateSource proposes entries for a bar. Implementations must be
// deterministic for a given input so interrupted runs replay identically.
type CandidateSource interface {
	Candidates(ctx context.Context, symbol string, date time.Time, bar domain.OHLC, vix float64, openCount int) ([]CandidateRequest, error)
}

// SpreadSource proposes one out-of-the-money put credit spread per bar while
// the book has capacity. Strike placement and sizing come from the strategy
// table; regime scaling follows the gate's tier policy.
type SpreadSource struct {
	cfg      config.StrategyConfig
	gate     *realism.Gate
	earnings EarningsCalendar
}

var _ CandidateSource = (*SpreadSource)(nil)

// NewSpreadSource creates a SpreadSource. earnings may be nil for
// underlyings without an earnings calendar.
func NewSpreadSource(cfg config.StrategyConfig, gate *realism.Gate, earnings EarningsCalendar) *SpreadSource {
	return &SpreadSource{cfg: cfg, gate: gate, earnings: earnings}
}

func (s *SpreadSource) Candidates(ctx context.Context, symbol string, date time.Time, bar domain.OHLC, vix float64, openCount int) ([]CandidateRequest, error) {
	if openCount >= s.cfg.MaxOpenPositions {
		return nil, nil
	}

	shortStrike := roundToIncrement(bar.Close*(1-s.cfg.ShortStrikeOffsetPct), s.cfg.StrikeIncrement)
	longStrike := shortStrike - s.cfg.SpreadWidth
	if longStrike <= 0 {
		return nil, nil
	}

	scale := s.gate.SizeScaleFor(vix)
	quantity := int(math.Floor(float64(s.cfg.BaselineContracts) * scale))

	daysToEarnings := -1
	if s.earnings != nil {
		daysToEarnings = s.earnings(symbol, date)
	}
	// Inside the earnings window the request must come in below baseline.
	if daysToEarnings >= 0 && daysToEarnings <= s.gate.EarningsWindow() &&
		quantity >= s.cfg.BaselineContracts {
		quantity = s.cfg.BaselineContracts - 1
	}

	// Crisis regime or fully reduced size: stand aside this bar.
	if quantity < 1 {
		return nil, nil
	}

	return []CandidateRequest{{
		Strategy:           domain.StrategyPutCreditSpread,
		ShortStrike:        shortStrike,
		LongStrike:         longStrike,
		Expiration:         date.AddDate(0, 0, s.cfg.TargetDTE),
		RequestedContracts: quantity,
		BaselineContracts:  s.cfg.BaselineContracts,
		SizeScale:          scale,
		DaysToEarnings:     daysToEarnings,
		TimeOK:             true,
	}}, nil
}

// roundToIncrement snaps a price down to the strike grid.
func roundToIncrement(price, increment float64) float64 {
	return math.Floor(price/increment) * increment
}
