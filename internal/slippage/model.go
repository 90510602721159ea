// Package slippage converts a quoted bid/ask into the fill price a
// sell-to-open order could defensibly have achieved. Fills walk a short
// ladder of progressively conservative prices instead of assuming the mid
// is always attainable.
package slippage

import (
	"github.com/alanyoungcy/spreadsim/internal/config"
	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// Model derives realistic sell-side fill prices from a quote.
type Model struct {
	cfg config.SlippageConfig
}

// New creates a Model with the given configuration.
func New(cfg config.SlippageConfig) *Model {
	return &Model{cfg: cfg}
}

// SellLadder returns the ordered sequence of candidate fill prices for a
// sell order: the mid, then the mid shaved by one tick, then the mid shaved
// by 10% of the spread width. The ladder is non-increasing, every rung is
// clamped to at least the bid, and duplicate rungs are collapsed. An
// unusable quote yields an empty ladder.
func (m *Model) SellLadder(bid, ask float64) []float64 {
	if bid <= 0 || ask <= 0 || bid >= ask {
		return nil
	}

	mid := (bid + ask) / 2
	width := ask - bid

	candidates := []float64{
		mid,
		max(bid, mid-m.cfg.Tick),
		max(bid, mid-0.1*width),
	}

	ladder := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		// Each rung may only hold or worsen the previous price.
		if n := len(ladder); n > 0 {
			if c > ladder[n-1] {
				c = ladder[n-1]
			}
			if c == ladder[n-1] {
				continue
			}
		}
		ladder = append(ladder, c)
	}
	return ladder
}

// ApplySlippage returns the fill price for the attempt-th try at working a
// sell order (1-indexed). Attempts beyond the ladder clamp to the final
// rung; the bid is the ultimate floor, and an invalid quote fills at 0.
func (m *Model) ApplySlippage(bid, ask float64, attempt int) float64 {
	ladder := m.SellLadder(bid, ask)
	if len(ladder) == 0 {
		if bid > 0 {
			return bid
		}
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(ladder) {
		attempt = len(ladder)
	}
	return ladder[attempt-1]
}

// GetRealisticFillPrice returns the best ladder rung at or below the
// requested price. A request below every rung fills at the final rung (a
// marketable order still clears at the bid-clamped ladder floor); the model
// never invents a price better than the ladder offers.
func (m *Model) GetRealisticFillPrice(bid, ask, requested float64) float64 {
	ladder := m.SellLadder(bid, ask)
	if len(ladder) == 0 {
		if bid > 0 {
			return bid
		}
		return 0
	}
	for _, rung := range ladder {
		if rung <= requested {
			return rung
		}
	}
	return ladder[len(ladder)-1]
}

// FillQuote prices a sell against a full snapshot, returning the fill and
// whether the quote was usable at all.
func (m *Model) FillQuote(q domain.QuoteSnapshot, attempt int) (float64, bool) {
	if !q.Valid() {
		return 0, false
	}
	return m.ApplySlippage(q.Bid, q.Ask, attempt), true
}
