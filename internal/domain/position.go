package domain

import "time"

// StrategyTag identifies the options strategy a position implements.
type StrategyTag string

const (
	StrategyPutCreditSpread StrategyTag = "put_credit_spread"
	StrategyCoveredCall     StrategyTag = "covered_call"
)

// PositionStatus is the lifecycle state of a position. Transitions are
// monotonic: Open is the only non-terminal state and no terminal state
// reopens.
type PositionStatus string

const (
	PositionStatusOpen     PositionStatus = "open"
	PositionStatusClosed   PositionStatus = "closed"
	PositionStatusRolled   PositionStatus = "rolled"
	PositionStatusAssigned PositionStatus = "assigned"
	PositionStatusExpired  PositionStatus = "expired"
)

// Terminal reports whether s is a terminal lifecycle state.
func (s PositionStatus) Terminal() bool {
	return s != PositionStatusOpen
}

// CanTransition reports whether a position may move from one status to
// another. Open may move to any terminal state; terminal states are final.
func CanTransition(from, to PositionStatus) bool {
	if from != PositionStatusOpen {
		return false
	}
	switch to {
	case PositionStatusClosed, PositionStatusRolled, PositionStatusAssigned, PositionStatusExpired:
		return true
	default:
		return false
	}
}

// CloseReason records which exit rule finalized a position.
type CloseReason string

const (
	CloseReasonProfitTarget  CloseReason = "profit_target"
	CloseReasonStopLoss      CloseReason = "stop_loss"
	CloseReasonDteThreshold  CloseReason = "dte_threshold"
	CloseReasonExpired       CloseReason = "expired"
	CloseReasonAssigned      CloseReason = "assigned"
	CloseReasonEmergencyStop CloseReason = "emergency_stop"
)

// SharesPerContract is the standard US equity option multiplier.
const SharesPerContract = 100.0

// Position is a booked options position. Entry-time fields (everything up
// to and including VIXAtEntry) are immutable once the position is opened;
// only the ledger mutates the remaining fields.
type Position struct {
	ID          int64          `json:"id"`
	Symbol      string         `json:"symbol"`
	Strategy    StrategyTag    `json:"strategy"`
	ShortStrike float64        `json:"short_strike"`
	LongStrike  float64        `json:"long_strike"`
	Quantity    int            `json:"quantity"`
	EntryCredit float64        `json:"entry_credit"` // per share
	EntrySpot   float64        `json:"entry_spot"`
	OpenDate    time.Time      `json:"open_date"`
	Expiration  time.Time      `json:"expiration"`
	VIXAtEntry  float64        `json:"vix_at_entry"`
	Status      PositionStatus `json:"status"`

	// Daily mark, owned by the P&L engine via the ledger. PnLHistory is
	// the bounded FIFO of daily unrealized P&L observations backing the
	// VaR figures; it is persisted so a resumed run marks identically.
	Mark       PositionPnL `json:"mark"`
	MarkedAt   time.Time   `json:"marked_at,omitzero"`
	PnLHistory []float64   `json:"pnl_history,omitempty"`

	// Set exactly once at close.
	CloseReason CloseReason `json:"close_reason,omitempty"`
	CloseDate   time.Time   `json:"close_date,omitzero"`
	ExitPrice   float64     `json:"exit_price,omitempty"` // per share
	RealizedPnL float64     `json:"realized_pnl,omitempty"`
	Commission  float64     `json:"commission,omitempty"`
}

// PositionPnL is the per-bar mark of a position produced by the P&L engine.
type PositionPnL struct {
	IntrinsicValue float64 `json:"intrinsic_value"`
	TimeValue      float64 `json:"time_value"`
	Delta          float64 `json:"delta"`
	Gamma          float64 `json:"gamma"`
	Theta          float64 `json:"theta"`
	Vega           float64 `json:"vega"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	VaR95          float64 `json:"var_95"`
	VaR99          float64 `json:"var_99"`
}

// DTE returns calendar days to expiration as of the given date, floored at
// zero.
func (p *Position) DTE(asOf time.Time) int {
	days := int(p.Expiration.Truncate(24*time.Hour).Sub(asOf.Truncate(24*time.Hour)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// MaxProfit returns the total dollar profit if the position expires
// worthless: the full credit across all contracts.
func (p *Position) MaxProfit() float64 {
	return p.EntryCredit * float64(p.Quantity) * SharesPerContract
}

// Width returns the strike width of the spread. Zero for single-leg
// strategies.
func (p *Position) Width() float64 {
	if p.Strategy != StrategyPutCreditSpread {
		return 0
	}
	return p.ShortStrike - p.LongStrike
}
