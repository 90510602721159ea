package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `run_id, trade_id, symbol, strategy, short_strike,
	long_strike, quantity, entry_credit, exit_price, realized_pnl,
	commission, reason, open_date, close_date, duration_days, vix_at_entry`

// Insert appends a closed trade. A resumed run replays closes for bars it
// already recorded; the (run_id, trade_id) conflict keeps the log
// exactly-once.
func (s *TradeStore) Insert(ctx context.Context, t domain.ClosedTrade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (
			run_id, trade_id, symbol, strategy,
			short_strike, long_strike, quantity, entry_credit,
			exit_price, realized_pnl, commission, reason,
			open_date, close_date, duration_days, vix_at_entry
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16
		) ON CONFLICT (run_id, trade_id) DO NOTHING`,
		t.RunID, t.ID, t.Symbol, string(t.Strategy),
		t.ShortStrike, t.LongStrike, t.Quantity, t.EntryCredit,
		t.ExitPrice, t.RealizedPnL, t.Commission, string(t.Reason),
		t.OpenDate, t.CloseDate, t.DurationDays, t.VIXAtEntry,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade: %w", err)
	}
	return nil
}

// ListByRun returns the run's closed trades in booking order.
func (s *TradeStore) ListByRun(ctx context.Context, runID string) ([]domain.ClosedTrade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE run_id = $1 ORDER BY trade_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	return scanTradeRows(rows)
}

func scanTradeRows(rows pgx.Rows) ([]domain.ClosedTrade, error) {
	var trades []domain.ClosedTrade
	for rows.Next() {
		var t domain.ClosedTrade
		var strategy, reason string
		if err := rows.Scan(
			&t.RunID, &t.ID, &t.Symbol, &strategy,
			&t.ShortStrike, &t.LongStrike, &t.Quantity, &t.EntryCredit,
			&t.ExitPrice, &t.RealizedPnL, &t.Commission, &reason,
			&t.OpenDate, &t.CloseDate, &t.DurationDays, &t.VIXAtEntry,
		); err != nil {
			return nil, err
		}
		t.Strategy = domain.StrategyTag(strategy)
		t.Reason = domain.CloseReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
