// Package pricing provides a reference Black-Scholes implementation of the
// theoretical Greeks collaborator. The engine treats the pricing model as a
// black box behind domain.PricingModel, so alternate models (binomial,
// vendor-supplied IV surfaces) plug in without touching engine code.
package pricing

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// BlackScholes prices European options under constant volatility. Theta is
// reported per calendar day, vega per volatility point.
type BlackScholes struct {
	// MinDTE floors time-to-expiry to avoid the degenerate t=0 surface;
	// positions at expiry settle on intrinsic, not model price.
	MinDTE float64
}

var _ domain.PricingModel = (*BlackScholes)(nil)

// NewBlackScholes creates a model with a quarter-day expiry floor.
func NewBlackScholes() *BlackScholes {
	return &BlackScholes{MinDTE: 0.25}
}

const daysPerYear = 365.0

// TheoreticalGreeks prices one option leg.
func (m *BlackScholes) TheoreticalGreeks(underlying, strike float64, dte int, vol, rate float64, right domain.OptionRight) (domain.Greeks, error) {
	if underlying <= 0 || strike <= 0 {
		return domain.Greeks{}, fmt.Errorf("pricing: non-positive underlying %.4f or strike %.4f", underlying, strike)
	}
	if vol <= 0 {
		return domain.Greeks{}, fmt.Errorf("pricing: non-positive volatility %.4f", vol)
	}

	days := float64(dte)
	if days < m.MinDTE {
		days = m.MinDTE
	}
	t := days / daysPerYear

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(underlying/strike) + (rate+vol*vol/2)*t) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT

	discount := math.Exp(-rate * t)
	nd1 := normPDF(d1)

	var g domain.Greeks
	switch right {
	case domain.RightCall:
		g.Price = underlying*normCDF(d1) - strike*discount*normCDF(d2)
		g.Delta = normCDF(d1)
		g.Theta = (-underlying*nd1*vol/(2*sqrtT) - rate*strike*discount*normCDF(d2)) / daysPerYear
	case domain.RightPut:
		g.Price = strike*discount*normCDF(-d2) - underlying*normCDF(-d1)
		g.Delta = normCDF(d1) - 1
		g.Theta = (-underlying*nd1*vol/(2*sqrtT) + rate*strike*discount*normCDF(-d2)) / daysPerYear
	default:
		return domain.Greeks{}, fmt.Errorf("pricing: unknown option right %q", right)
	}

	g.Gamma = nd1 / (underlying * vol * sqrtT)
	g.Vega = underlying * nd1 * sqrtT / 100

	return g, nil
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
