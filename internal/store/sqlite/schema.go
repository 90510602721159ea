package sqlite

const schemaDDL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	run_id     TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id        TEXT NOT NULL,
	trade_id      INTEGER NOT NULL,
	symbol        TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	short_strike  REAL NOT NULL,
	long_strike   REAL NOT NULL DEFAULT 0,
	quantity      INTEGER NOT NULL,
	entry_credit  REAL NOT NULL,
	exit_price    REAL NOT NULL,
	realized_pnl  REAL NOT NULL,
	commission    REAL NOT NULL DEFAULT 0,
	reason        TEXT NOT NULL,
	open_date     DATETIME NOT NULL,
	close_date    DATETIME NOT NULL,
	duration_days INTEGER NOT NULL DEFAULT 0,
	vix_at_entry  REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, trade_id)
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
CREATE INDEX IF NOT EXISTS idx_trades_close ON trades(close_date);
`
