// Package ledger owns all position state for a run. Positions live in an
// indexed table; every mutation (open, mark, close) flows through the
// Ledger, and a finalized position is never touched again.
package ledger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/spreadsim/internal/config"
	"github.com/alanyoungcy/spreadsim/internal/domain"
	"github.com/alanyoungcy/spreadsim/internal/pnl"
)

// Candidate is a gate-approved, slippage-priced trade ready for booking.
type Candidate struct {
	Symbol      string
	Strategy    domain.StrategyTag
	ShortStrike float64
	LongStrike  float64
	Quantity    int
	EntryCredit float64 // per share, post-slippage
	EntrySpot   float64
	Expiration  time.Time
	VIX         float64
}

// Ledger is the sole mutator of position and portfolio state.
type Ledger struct {
	state  domain.PortfolioState
	index  map[int64]int // position id -> index into state.Open
	engine *pnl.Engine
	exits  config.ExitConfig
	logger *slog.Logger

	// realized P&L accrued during the current bar, flushed by EndBar.
	dayRealized float64
}

// New creates an empty Ledger with the given starting capital.
func New(exits config.ExitConfig, engine *pnl.Engine, startingCapital float64, logger *slog.Logger) *Ledger {
	return &Ledger{
		state: domain.PortfolioState{
			Capital:     startingCapital,
			PeakCapital: startingCapital,
		},
		index:  make(map[int64]int),
		engine: engine,
		exits:  exits,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// Restore rebuilds a Ledger from a checkpointed portfolio state.
func Restore(state domain.PortfolioState, exits config.ExitConfig, engine *pnl.Engine, logger *slog.Logger) (*Ledger, error) {
	l := &Ledger{
		state:  state,
		index:  make(map[int64]int, len(state.Open)),
		engine: engine,
		exits:  exits,
		logger: logger.With(slog.String("component", "ledger")),
	}
	for i := range l.state.Open {
		p := &l.state.Open[i]
		if p.Status != domain.PositionStatusOpen {
			return nil, fmt.Errorf("%w: position %d in open table has status %s",
				domain.ErrStateCorruption, p.ID, p.Status)
		}
		if _, dup := l.index[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate position id %d", domain.ErrStateCorruption, p.ID)
		}
		l.index[p.ID] = i
	}
	return l, nil
}

// State returns a deep copy of the portfolio state for checkpointing.
func (l *Ledger) State() domain.PortfolioState {
	s := l.state
	s.Open = make([]domain.Position, len(l.state.Open))
	copy(s.Open, l.state.Open)
	for i := range s.Open {
		s.Open[i].PnLHistory = append([]float64(nil), l.state.Open[i].PnLHistory...)
	}
	s.Closed = append([]domain.ClosedTrade(nil), l.state.Closed...)
	s.DailyPnL = append([]float64(nil), l.state.DailyPnL...)
	return s
}

// Open books a new position for an admitted candidate. The verdict must be
// affirmative; a rejected candidate is a programming error at this layer.
func (l *Ledger) Open(c Candidate, verdict domain.RealismVerdict, date time.Time) (domain.Position, error) {
	if !verdict.OK {
		return domain.Position{}, fmt.Errorf("ledger: open rejected candidate (reasons: %v)", verdict.Reasons)
	}
	if c.Quantity <= 0 {
		return domain.Position{}, fmt.Errorf("ledger: quantity must be positive, got %d", c.Quantity)
	}
	if c.Strategy == domain.StrategyPutCreditSpread && c.ShortStrike <= c.LongStrike {
		return domain.Position{}, fmt.Errorf("ledger: short strike %.2f must exceed long strike %.2f",
			c.ShortStrike, c.LongStrike)
	}
	if c.EntryCredit <= 0 {
		return domain.Position{}, fmt.Errorf("ledger: entry credit must be positive, got %.4f", c.EntryCredit)
	}

	l.state.TradeSeq++
	p := domain.Position{
		ID:          l.state.TradeSeq,
		Symbol:      c.Symbol,
		Strategy:    c.Strategy,
		ShortStrike: c.ShortStrike,
		LongStrike:  c.LongStrike,
		Quantity:    c.Quantity,
		EntryCredit: c.EntryCredit,
		EntrySpot:   c.EntrySpot,
		OpenDate:    date,
		Expiration:  c.Expiration,
		VIXAtEntry:  c.VIX,
		Status:      domain.PositionStatusOpen,
	}

	l.state.Open = append(l.state.Open, p)
	l.index[p.ID] = len(l.state.Open) - 1

	premium := c.EntryCredit * float64(c.Quantity) * domain.SharesPerContract
	l.rollPremiumPeriods(date)
	l.state.WeeklyPremium += premium
	l.state.MonthlyPremium += premium

	l.logger.Debug("position opened",
		slog.Int64("id", p.ID),
		slog.String("strategy", string(p.Strategy)),
		slog.Float64("credit", c.EntryCredit),
		slog.Int("quantity", c.Quantity),
	)
	return p, nil
}

// MarkToMarket re-marks every open position against the day's underlying
// close and VIX. Closed positions are never touched. The per-position
// observation history is committed here, FIFO-bounded to the VaR window.
func (l *Ledger) MarkToMarket(date time.Time, underlying, vix float64) error {
	var unrealized float64
	for i := range l.state.Open {
		p := &l.state.Open[i]
		mark, err := l.engine.CalculatePositionPnL(p, underlying, vix, date)
		if err != nil {
			return fmt.Errorf("ledger: mark position %d: %w", p.ID, err)
		}
		p.Mark = mark
		p.MarkedAt = date
		p.PnLHistory = append(p.PnLHistory, mark.UnrealizedPnL)
		if w := l.engine.VaRWindow(); len(p.PnLHistory) > w {
			p.PnLHistory = p.PnLHistory[len(p.PnLHistory)-w:]
		}
		unrealized += mark.UnrealizedPnL
	}
	l.state.UnrealizedPnL = unrealized
	return nil
}

// Close finalizes an open position exactly once, moving it to the closed
// log with the given per-share exit price and reason. The position becomes
// immutable afterwards.
func (l *Ledger) Close(id int64, date time.Time, exitPrice float64, reason domain.CloseReason, runID string) (domain.ClosedTrade, error) {
	i, ok := l.index[id]
	if !ok {
		return domain.ClosedTrade{}, fmt.Errorf("ledger: close position %d: %w", id, domain.ErrNotFound)
	}
	p := l.state.Open[i]

	status := statusFor(reason)
	if !domain.CanTransition(p.Status, status) {
		return domain.ClosedTrade{}, fmt.Errorf("ledger: position %d: %w", id, domain.ErrPositionClosed)
	}

	contracts := float64(p.Quantity) * domain.SharesPerContract
	commission := l.engine.Commission(p.Quantity)
	realized := (p.EntryCredit-exitPrice)*contracts - commission

	p.Status = status
	p.CloseReason = reason
	p.CloseDate = date
	p.ExitPrice = exitPrice
	p.RealizedPnL = realized
	p.Commission = commission

	trade := domain.ClosedTrade{
		ID:           p.ID,
		RunID:        runID,
		Symbol:       p.Symbol,
		Strategy:     p.Strategy,
		ShortStrike:  p.ShortStrike,
		LongStrike:   p.LongStrike,
		Quantity:     p.Quantity,
		EntryCredit:  p.EntryCredit,
		ExitPrice:    exitPrice,
		RealizedPnL:  realized,
		Commission:   commission,
		Reason:       reason,
		OpenDate:     p.OpenDate,
		CloseDate:    date,
		DurationDays: int(date.Sub(p.OpenDate).Hours() / 24),
		VIXAtEntry:   p.VIXAtEntry,
	}

	// Remove from the open table; swap-delete keeps the arena compact and
	// the index map consistent.
	last := len(l.state.Open) - 1
	l.state.Open[i] = l.state.Open[last]
	l.index[l.state.Open[i].ID] = i
	l.state.Open = l.state.Open[:last]
	delete(l.index, id)

	l.state.Closed = append(l.state.Closed, trade)
	l.state.RealizedPnL += realized
	l.state.Capital += realized
	l.dayRealized += realized

	l.logger.Info("position closed",
		slog.Int64("id", id),
		slog.String("reason", string(reason)),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("realized_pnl", realized),
	)
	return trade, nil
}

// EndBar flushes the bar's realized P&L into the daily series, updates the
// capital high-water mark, and rolls the premium accumulators across
// week/month boundaries. Returns the bar's realized P&L.
func (l *Ledger) EndBar(date time.Time) float64 {
	realized := l.dayRealized
	l.dayRealized = 0
	l.state.DailyPnL = append(l.state.DailyPnL, realized)
	if l.state.Capital > l.state.PeakCapital {
		l.state.PeakCapital = l.state.Capital
	}
	l.rollPremiumPeriods(date)
	return realized
}

// DailyLossPct returns the current bar's realized loss as a positive
// fraction of capital at the start of the bar; gains return 0.
func (l *Ledger) DailyLossPct() float64 {
	if l.dayRealized >= 0 {
		return 0
	}
	base := l.state.Capital - l.dayRealized // capital before today's losses
	if base <= 0 {
		return 1
	}
	return -l.dayRealized / base
}

// OpenPositions returns a snapshot of the open table.
func (l *Ledger) OpenPositions() []domain.Position {
	out := make([]domain.Position, len(l.state.Open))
	copy(out, l.state.Open)
	return out
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int { return len(l.state.Open) }

// rollPremiumPeriods resets the weekly/monthly premium accumulators when
// the date crosses into a new ISO week or calendar month.
func (l *Ledger) rollPremiumPeriods(date time.Time) {
	year, week := date.ISOWeek()
	wk := fmt.Sprintf("%04d-W%02d", year, week)
	if l.state.PremiumWeek != wk {
		l.state.PremiumWeek = wk
		l.state.WeeklyPremium = 0
	}
	mo := date.Format("2006-01")
	if l.state.PremiumMonth != mo {
		l.state.PremiumMonth = mo
		l.state.MonthlyPremium = 0
	}
}

// statusFor maps a close reason to the terminal lifecycle state.
func statusFor(reason domain.CloseReason) domain.PositionStatus {
	switch reason {
	case domain.CloseReasonExpired:
		return domain.PositionStatusExpired
	case domain.CloseReasonAssigned:
		return domain.PositionStatusAssigned
	default:
		return domain.PositionStatusClosed
	}
}
