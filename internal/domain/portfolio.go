package domain

// PortfolioState is the complete account state of a single run. It is the
// unit of checkpointing: restoring it must reproduce the engine exactly as
// it stood after the last processed bar.
type PortfolioState struct {
	Capital        float64 `json:"capital"`
	PeakCapital    float64 `json:"peak_capital"`
	RealizedPnL    float64 `json:"realized_pnl"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	TradeSeq       int64   `json:"trade_seq"`
	WeeklyPremium  float64 `json:"weekly_premium"`
	MonthlyPremium float64 `json:"monthly_premium"`

	// PremiumWeek/PremiumMonth identify the period the accumulators refer
	// to ("2024-W05", "2024-01"); the ledger resets the accumulator when
	// a bar crosses into a new period.
	PremiumWeek  string `json:"premium_week,omitempty"`
	PremiumMonth string `json:"premium_month,omitempty"`

	// DailyPnL is the realized P&L series, one entry per processed bar,
	// kept for Sharpe and kill-switch computation.
	DailyPnL []float64 `json:"daily_pnl"`

	Open   []Position    `json:"open"`
	Closed []ClosedTrade `json:"closed"`
}

// WinRate returns the fraction of closed trades with positive realized
// P&L, or 0 when nothing has closed.
func (s *PortfolioState) WinRate() float64 {
	if len(s.Closed) == 0 {
		return 0
	}
	wins := 0
	for _, t := range s.Closed {
		if t.RealizedPnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(s.Closed))
}

// Drawdown returns the current drawdown fraction from peak capital.
func (s *PortfolioState) Drawdown() float64 {
	if s.PeakCapital <= 0 {
		return 0
	}
	dd := (s.PeakCapital - s.Capital) / s.PeakCapital
	if dd < 0 {
		return 0
	}
	return dd
}
