package ledger

import (
	"sort"
	"time"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// ExitDecision is a pending close produced by exit-rule evaluation.
type ExitDecision struct {
	PositionID int64
	Reason     domain.CloseReason
	ExitPrice  float64 // per share
}

// EvaluateExits applies the exit rules to every open position using the
// marks committed this bar. Precedence per position is fixed (stop loss,
// then profit target, then DTE floor, then natural expiration) and first
// match wins, so each position yields at most one decision per bar.
// Positions are visited in id order to keep evaluation independent of
// table layout.
func (l *Ledger) EvaluateExits(date time.Time) []ExitDecision {
	ids := make([]int64, 0, len(l.state.Open))
	for id := range l.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var decisions []ExitDecision
	for _, id := range ids {
		p := &l.state.Open[l.index[id]]
		if d, ok := l.evaluateExit(p, date); ok {
			decisions = append(decisions, d)
		}
	}
	return decisions
}

func (l *Ledger) evaluateExit(p *domain.Position, date time.Time) (ExitDecision, bool) {
	contracts := float64(p.Quantity) * domain.SharesPerContract
	maxProfit := p.MaxProfit()

	// Per-share cost to buy the position back at today's mark.
	closeValue := p.EntryCredit - p.Mark.UnrealizedPnL/contracts
	if closeValue < 0 {
		closeValue = 0
	}

	// Stop loss: the open loss has reached the configured multiple of the
	// credit received.
	if p.Mark.UnrealizedPnL <= -l.exits.StopLossMultiple*maxProfit {
		return ExitDecision{PositionID: p.ID, Reason: domain.CloseReasonStopLoss, ExitPrice: closeValue}, true
	}

	// Profit target: enough of the maximum profit is captured.
	if p.Mark.UnrealizedPnL >= l.exits.ProfitTargetFraction*maxProfit {
		return ExitDecision{PositionID: p.ID, Reason: domain.CloseReasonProfitTarget, ExitPrice: closeValue}, true
	}

	// DTE floor: close before gamma risk concentrates into expiration.
	if dte := p.DTE(date); dte <= l.exits.DteFloor && date.Before(p.Expiration) {
		return ExitDecision{PositionID: p.ID, Reason: domain.CloseReasonDteThreshold, ExitPrice: closeValue}, true
	}

	// Natural expiration: settle at intrinsic. Worthless expiry keeps the
	// full credit; an in-the-money short leg is treated as assignment.
	if !date.Before(p.Expiration) {
		intrinsic := p.Mark.IntrinsicValue / contracts
		reason := domain.CloseReasonExpired
		if intrinsic > 0 {
			reason = domain.CloseReasonAssigned
		}
		return ExitDecision{PositionID: p.ID, Reason: reason, ExitPrice: intrinsic}, true
	}

	return ExitDecision{}, false
}
