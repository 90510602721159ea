// Package app owns the application lifecycle: it wires the concrete
// stores, caches, and collaborators, then runs one independent backtest
// engine per symbol.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/spreadsim/internal/backtest"
	"github.com/alanyoungcy/spreadsim/internal/checkpoint"
	"github.com/alanyoungcy/spreadsim/internal/config"
	"github.com/alanyoungcy/spreadsim/internal/domain"
	"github.com/alanyoungcy/spreadsim/internal/ledger"
	"github.com/alanyoungcy/spreadsim/internal/pnl"
	"github.com/alanyoungcy/spreadsim/internal/realism"
	"github.com/alanyoungcy/spreadsim/internal/slippage"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and runs one engine instance per configured
// symbol. Symbols share no mutable state: each gets its own run id, ledger,
// and checkpoint row, so they execute concurrently without locking.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	baseRunID := a.cfg.Run.RunID
	if baseRunID == "" {
		baseRunID = uuid.NewString()
		a.logger.Info("generated run id; set run.run_id to make the run resumable",
			slog.String("run_id", baseRunID))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, symbol := range a.cfg.Run.Symbols {
		runID := baseRunID
		if len(a.cfg.Run.Symbols) > 1 {
			runID = baseRunID + "-" + symbol
		}
		g.Go(func() error {
			return a.runSymbol(ctx, deps, runID, symbol)
		})
	}
	return g.Wait()
}

// runSymbol builds and runs a full engine for one symbol, resuming from a
// checkpoint when a compatible one exists.
func (a *App) runSymbol(ctx context.Context, deps *Dependencies, runID, symbol string) error {
	logger := a.logger.With(slog.String("run_id", runID), slog.String("symbol", symbol))

	engine := pnl.New(a.cfg.PnL, deps.Pricing)
	gate := realism.New(a.cfg.Realism)
	manager := checkpoint.New(deps.Checkpoints, a.cfg.Fingerprint(), logger)

	var (
		led    *ledger.Ledger
		resume *domain.Checkpoint
	)
	cp, err := manager.Load(ctx, runID)
	switch {
	case err == nil:
		if cp.Completed {
			logger.Info("run already completed, nothing to do")
			return nil
		}
		led, err = ledger.Restore(cp.Portfolio, a.cfg.Exits, engine, logger)
		if err != nil {
			return err
		}
		resume = &cp
		logger.Info("resuming from checkpoint",
			slog.Time("last_processed", cp.LastProcessed),
			slog.Int64("bars_processed", cp.BarsProcessed),
		)
	case errors.Is(err, domain.ErrNotFound):
		led = ledger.New(a.cfg.Exits, engine, a.cfg.Run.StartingCapital, logger)
	default:
		return err
	}

	orch, err := backtest.New(a.cfg, runID, symbol, backtest.Deps{
		Provider:    deps.Provider,
		Pricing:     deps.Pricing,
		Gate:        gate,
		Slippage:    slippage.New(a.cfg.Slippage),
		Ledger:      led,
		Source:      backtest.NewSpreadSource(a.cfg.Strategy, gate, nil),
		Checkpoints: manager,
		Trades:      deps.Trades,
		Logger:      logger,
	}, resume)
	if err != nil {
		return err
	}

	final, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	if deps.Archiver != nil && final.Completed {
		count, err := deps.Archiver.ArchiveRun(ctx, final)
		if err != nil {
			return err
		}
		logger.Info("run artifacts archived", slog.Int64("trades", count))
	}
	return nil
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
