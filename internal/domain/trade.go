package domain

import "time"

// ClosedTrade is the immutable record emitted when a position is finalized.
// It is appended to the run store and consumed by external report writers.
type ClosedTrade struct {
	ID           int64       `json:"id"`
	RunID        string      `json:"run_id"`
	Symbol       string      `json:"symbol"`
	Strategy     StrategyTag `json:"strategy"`
	ShortStrike  float64     `json:"short_strike"`
	LongStrike   float64     `json:"long_strike"`
	Quantity     int         `json:"quantity"`
	EntryCredit  float64     `json:"entry_credit"` // per share
	ExitPrice    float64     `json:"exit_price"`   // per share
	RealizedPnL  float64     `json:"realized_pnl"`
	Commission   float64     `json:"commission"`
	Reason       CloseReason `json:"reason"`
	OpenDate     time.Time   `json:"open_date"`
	CloseDate    time.Time   `json:"close_date"`
	DurationDays int         `json:"duration_days"`
	VIXAtEntry   float64     `json:"vix_at_entry"`
}
