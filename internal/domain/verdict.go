package domain

// ReasonCode identifies a single realism-gate violation. A verdict carries
// every code that applies, not just the first.
type ReasonCode string

const (
	ReasonNBBOCrossedOrLocked    ReasonCode = "NBBO_CROSSED_OR_LOCKED"
	ReasonSpreadTooWide          ReasonCode = "SPREAD_TOO_WIDE"
	ReasonOpenInterestTooLow     ReasonCode = "OPEN_INTEREST_TOO_LOW"
	ReasonQuoteTooStale          ReasonCode = "QUOTE_TOO_STALE"
	ReasonInsufficientVenues     ReasonCode = "INSUFFICIENT_VENUES"
	ReasonDeltaOutOfBand         ReasonCode = "DELTA_OUT_OF_BAND"
	ReasonVixScalingNotInverse   ReasonCode = "VIX_SCALING_NOT_INVERSE"
	ReasonEarningsSizeNotReduced ReasonCode = "EARNINGS_SIZE_NOT_REDUCED"
	ReasonDailyKillSwitch        ReasonCode = "DAILY_KILL_SWITCH_BREACHED"
	ReasonOutsideExecutionWindow ReasonCode = "OUTSIDE_EXECUTION_WINDOW"
)

// RealismVerdict is the outcome of evaluating a candidate trade against the
// execution-realism checks. Reasons preserves check-evaluation order.
type RealismVerdict struct {
	OK      bool         `json:"ok"`
	Reasons []ReasonCode `json:"reasons,omitempty"`
}

// Has reports whether the verdict includes the given reason code.
func (v RealismVerdict) Has(code ReasonCode) bool {
	for _, r := range v.Reasons {
		if r == code {
			return true
		}
	}
	return false
}
