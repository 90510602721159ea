package domain

import "time"

// QuoteSnapshot is a point-in-time option quote as supplied by the market
// data collaborator. NBBOSane is an externally derived signal; the engine
// does not attempt its own crossed-quote detection.
type QuoteSnapshot struct {
	Bid          float64   `json:"bid"`
	Ask          float64   `json:"ask"`
	OpenInterest int       `json:"open_interest"`
	QuoteAgeSec  float64   `json:"quote_age_sec"`
	VenueCount   int       `json:"venue_count"`
	NBBOSane     bool      `json:"nbbo_sane"`
	ObservedAt   time.Time `json:"observed_at"`
}

// Valid reports whether the quote has a usable two-sided market.
func (q QuoteSnapshot) Valid() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Bid < q.Ask
}

// Mid returns the quote midpoint, or 0 for a degenerate quote.
func (q QuoteSnapshot) Mid() float64 {
	if !q.Valid() {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// SpreadPct returns (ask-bid)/mid. Degenerate quotes are treated as
// infinitely wide and return a value above any sane threshold.
func (q QuoteSnapshot) SpreadPct() float64 {
	if !q.Valid() {
		return 1e9
	}
	return (q.Ask - q.Bid) / q.Mid()
}

// OHLC is a single daily bar of the underlying.
type OHLC struct {
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	Date   time.Time `json:"date"`
}

// OptionRight distinguishes calls from puts.
type OptionRight string

const (
	RightCall OptionRight = "C"
	RightPut  OptionRight = "P"
)

// Greeks is the sensitivity set returned by the theoretical pricing
// collaborator for a single option leg, plus its model price.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Price float64 `json:"price"`
}
