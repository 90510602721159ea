// Package backtest drives the bar-by-bar simulation loop: candidate entry,
// realism gating, fill pricing, marking, exit evaluation, and checkpointing.
// The loop is single-threaded and synchronous; determinism is a hard
// requirement so interrupted runs resume bit-identically.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/spreadsim/internal/checkpoint"
	"github.com/alanyoungcy/spreadsim/internal/config"
	"github.com/alanyoungcy/spreadsim/internal/domain"
	"github.com/alanyoungcy/spreadsim/internal/ledger"
	"github.com/alanyoungcy/spreadsim/internal/realism"
	"github.com/alanyoungcy/spreadsim/internal/slippage"
)

// Deps bundles the collaborators an Orchestrator composes.
type Deps struct {
	Provider    domain.MarketDataProvider
	Pricing     domain.PricingModel
	Gate        *realism.Gate
	Slippage    *slippage.Model
	Ledger      *ledger.Ledger
	Source      CandidateSource
	Checkpoints *checkpoint.Manager
	Trades      domain.TradeStore
	Logger      *slog.Logger
}

// Orchestrator runs one symbol over one date range. It owns the loop cursor
// and the gap log; all position state lives in the ledger.
type Orchestrator struct {
	cfg    *config.Config
	runID  string
	symbol string
	deps   Deps
	logger *slog.Logger

	start, end    time.Time
	cursor        time.Time // first unprocessed bar
	barsProcessed int64
	gaps          []string
}

// New creates an Orchestrator starting from the beginning of the configured
// range. resume, when non-nil, is a verified checkpoint whose portfolio has
// already been restored into deps.Ledger; the loop continues from the bar
// after the checkpoint's cursor.
func New(cfg *config.Config, runID, symbol string, deps Deps, resume *domain.Checkpoint) (*Orchestrator, error) {
	start, end, err := cfg.DateRange()
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	o := &Orchestrator{
		cfg:    cfg,
		runID:  runID,
		symbol: symbol,
		deps:   deps,
		logger: deps.Logger.With(
			slog.String("component", "backtest"),
			slog.String("run_id", runID),
			slog.String("symbol", symbol),
		),
		start:  start,
		end:    end,
		cursor: start,
	}
	if resume != nil {
		o.cursor = resume.LastProcessed.AddDate(0, 0, 1)
		o.barsProcessed = resume.BarsProcessed
		o.gaps = append(o.gaps, resume.Gaps...)
	}
	return o, nil
}

// Run processes every trading bar from the cursor through the end date and
// returns the final checkpoint. On cancellation it forces a checkpoint
// write for the bars already processed and returns the context error; no
// completed bar's results are ever lost.
func (o *Orchestrator) Run(ctx context.Context) (domain.Checkpoint, error) {
	o.logger.Info("run starting",
		slog.Time("from", o.cursor),
		slog.Time("to", o.end),
		slog.Int64("bars_processed", o.barsProcessed),
	)

	last := o.cursor.AddDate(0, 0, -1)
	for date := o.cursor; !date.After(o.end); date = date.AddDate(0, 0, 1) {
		// Cancellation is honored only at bar boundaries so a bar's
		// effects are always checkpointed atomically.
		if err := ctx.Err(); err != nil {
			cp := o.record(last, false)
			if serr := o.deps.Checkpoints.Save(context.WithoutCancel(ctx), cp); serr != nil {
				return cp, errors.Join(err, serr)
			}
			o.logger.Warn("run cancelled, checkpoint forced", slog.Time("last_processed", last))
			return cp, err
		}

		if isWeekend(date) {
			continue
		}

		processed, err := o.processBar(ctx, date)
		if err != nil {
			return o.record(last, false), err
		}
		if processed {
			o.barsProcessed++
		} else {
			o.gaps = append(o.gaps, date.Format("2006-01-02"))
			o.logger.Debug("data gap, bar skipped", slog.Time("date", date))
		}

		last = date
		cp := o.record(last, false)
		if err := o.deps.Checkpoints.Save(ctx, cp); err != nil {
			return cp, err
		}
	}

	cp := o.record(last, true)
	if err := o.deps.Checkpoints.Save(ctx, cp); err != nil {
		return cp, err
	}
	o.logger.Info("run complete",
		slog.Int64("bars_processed", o.barsProcessed),
		slog.Int("gaps", len(o.gaps)),
		slog.Float64("capital", cp.Portfolio.Capital),
		slog.Float64("win_rate", cp.Portfolio.WinRate()),
	)
	return cp, nil
}

// processBar runs the full lifecycle for one trading day. It returns false
// (and no error) when the day's market data is unavailable; the caller
// records a gap and moves on.
func (o *Orchestrator) processBar(ctx context.Context, date time.Time) (bool, error) {
	bar, err := o.deps.Provider.GetDailyBar(ctx, o.symbol, date)
	if errors.Is(err, domain.ErrNotAvailable) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("backtest: daily bar %s: %w", date.Format("2006-01-02"), err)
	}

	vix, err := o.deps.Provider.GetVix(ctx, date)
	if errors.Is(err, domain.ErrNotAvailable) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("backtest: vix %s: %w", date.Format("2006-01-02"), err)
	}

	candidates, err := o.deps.Source.Candidates(ctx, o.symbol, date, bar, vix, o.deps.Ledger.OpenCount())
	if err != nil {
		return false, fmt.Errorf("backtest: candidates %s: %w", date.Format("2006-01-02"), err)
	}
	for _, c := range candidates {
		if err := o.tryOpen(ctx, date, bar, vix, c); err != nil {
			return false, err
		}
	}

	if err := o.deps.Ledger.MarkToMarket(date, bar.Close, vix); err != nil {
		return false, err
	}

	for _, d := range o.deps.Ledger.EvaluateExits(date) {
		trade, err := o.deps.Ledger.Close(d.PositionID, date, d.ExitPrice, d.Reason, o.runID)
		if err != nil {
			return false, err
		}
		if err := o.deps.Trades.Insert(ctx, trade); err != nil {
			return false, fmt.Errorf("backtest: record trade %d: %w", trade.ID, err)
		}
	}

	// Daily kill-switch: once the day's realized loss breaches the stop,
	// flatten whatever is left. New entries are already blocked by the gate.
	if o.deps.Ledger.DailyLossPct() >= o.cfg.Realism.DailyStopPct && o.deps.Ledger.OpenCount() > 0 {
		if err := o.flatten(ctx, date); err != nil {
			return false, err
		}
	}

	o.deps.Ledger.EndBar(date)
	return true, nil
}

// tryOpen gates, prices, and books a single candidate. Gate rejections and
// missing chain data are normal negative-path outcomes, not errors.
func (o *Orchestrator) tryOpen(ctx context.Context, date time.Time, bar domain.OHLC, vix float64, c CandidateRequest) error {
	shortQuote, err := o.deps.Provider.GetOptionQuote(ctx, o.symbol, c.ShortStrike, c.Expiration, date)
	if errors.Is(err, domain.ErrNotAvailable) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("backtest: short leg quote: %w", err)
	}

	dte := int(c.Expiration.Sub(date).Hours() / 24)
	greeks, err := o.deps.Pricing.TheoreticalGreeks(bar.Close, c.ShortStrike, dte, vix/100, o.cfg.PnL.RiskFreeRate, shortRight(c.Strategy))
	if err != nil {
		return fmt.Errorf("backtest: short leg greeks: %w", err)
	}

	sizing := realism.SizingContext{
		RequestedContracts: c.RequestedContracts,
		BaselineContracts:  c.BaselineContracts,
		SizeScale:          c.SizeScale,
		DaysToEarnings:     c.DaysToEarnings,
		DailyLossPct:       o.deps.Ledger.DailyLossPct(),
	}
	verdict := o.deps.Gate.Evaluate(shortQuote, greeks.Delta, vix, sizing, c.TimeOK)
	if !verdict.OK {
		o.logger.Info("candidate rejected",
			slog.Time("date", date),
			slog.Float64("short_strike", c.ShortStrike),
			slog.Any("reasons", verdict.Reasons),
		)
		return nil
	}

	netBid, netAsk := shortQuote.Bid, shortQuote.Ask
	if c.Strategy == domain.StrategyPutCreditSpread {
		longQuote, err := o.deps.Provider.GetOptionQuote(ctx, o.symbol, c.LongStrike, c.Expiration, date)
		if errors.Is(err, domain.ErrNotAvailable) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("backtest: long leg quote: %w", err)
		}
		// Net credit market for the spread: sell short leg, buy long leg.
		netBid = shortQuote.Bid - longQuote.Ask
		netAsk = shortQuote.Ask - longQuote.Bid
	}

	// Assume the order works the whole ladder and fills at the most
	// conservative rung.
	fill := o.deps.Slippage.ApplySlippage(netBid, netAsk, o.cfg.Slippage.MaxAttempts)
	if fill <= 0 {
		o.logger.Info("no executable credit at quoted markets",
			slog.Time("date", date),
			slog.Float64("net_bid", netBid),
			slog.Float64("net_ask", netAsk),
		)
		return nil
	}

	_, err = o.deps.Ledger.Open(ledger.Candidate{
		Symbol:      o.symbol,
		Strategy:    c.Strategy,
		ShortStrike: c.ShortStrike,
		LongStrike:  c.LongStrike,
		Quantity:    c.RequestedContracts,
		EntryCredit: fill,
		EntrySpot:   bar.Close,
		Expiration:  c.Expiration,
		VIX:         vix,
	}, verdict, date)
	return err
}

// flatten force-closes every open position at its current mark value.
func (o *Orchestrator) flatten(ctx context.Context, date time.Time) error {
	open := o.deps.Ledger.OpenPositions()
	o.logger.Warn("daily stop breached, flattening book",
		slog.Time("date", date),
		slog.Int("open_positions", len(open)),
		slog.Float64("daily_loss_pct", o.deps.Ledger.DailyLossPct()),
	)
	for _, p := range open {
		contracts := float64(p.Quantity) * domain.SharesPerContract
		closeValue := p.EntryCredit - p.Mark.UnrealizedPnL/contracts
		if closeValue < 0 {
			closeValue = 0
		}
		trade, err := o.deps.Ledger.Close(p.ID, date, closeValue, domain.CloseReasonEmergencyStop, o.runID)
		if err != nil {
			return err
		}
		if err := o.deps.Trades.Insert(ctx, trade); err != nil {
			return fmt.Errorf("backtest: record trade %d: %w", trade.ID, err)
		}
	}
	return nil
}

// record assembles the checkpoint for the current loop state.
func (o *Orchestrator) record(last time.Time, completed bool) domain.Checkpoint {
	return domain.Checkpoint{
		RunID:         o.runID,
		Symbol:        o.symbol,
		StartDate:     o.start,
		EndDate:       o.end,
		LastProcessed: last,
		BarsProcessed: o.barsProcessed,
		Gaps:          append([]string(nil), o.gaps...),
		Portfolio:     o.deps.Ledger.State(),
		Completed:     completed,
	}
}

// shortRight is the option right of the strategy's short leg.
func shortRight(s domain.StrategyTag) domain.OptionRight {
	if s == domain.StrategyCoveredCall {
		return domain.RightCall
	}
	return domain.RightPut
}

func isWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
