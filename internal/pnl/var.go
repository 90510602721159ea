package pnl

import "sort"

// Window is a bounded FIFO of daily P&L observations. Memory stays fixed
// across multi-year runs: once Cap observations are held, the oldest is
// evicted on every push.
type Window struct {
	Cap int       `json:"cap"`
	Obs []float64 `json:"obs"`
}

// NewWindow creates a Window holding at most capacity observations.
func NewWindow(capacity int) *Window {
	return &Window{Cap: capacity}
}

// Push appends an observation, evicting the oldest when full.
func (w *Window) Push(v float64) {
	w.Obs = append(w.Obs, v)
	if len(w.Obs) > w.Cap {
		w.Obs = w.Obs[1:]
	}
}

// Len returns the number of held observations.
func (w *Window) Len() int { return len(w.Obs) }

// VaR returns the historical value-at-risk of the observations at the given
// confidence level, as a non-negative loss magnitude. With identical input
// history, a higher confidence never yields a smaller VaR.
func VaR(obs []float64, confidence float64) float64 {
	if len(obs) == 0 {
		return 0
	}
	sorted := make([]float64, len(obs))
	copy(sorted, obs)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * (1 - confidence))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}

	v := -sorted[idx]
	if v < 0 {
		return 0
	}
	return v
}
