// Package config defines the configuration for the spreadsim backtest
// engine and provides validation and fingerprinting helpers.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SPREADSIM_* environment
// variables.
type Config struct {
	Run      RunConfig      `toml:"run" json:"run"`
	Strategy StrategyConfig `toml:"strategy" json:"strategy"`
	Realism  RealismConfig  `toml:"realism" json:"realism"`
	Slippage SlippageConfig `toml:"slippage" json:"slippage"`
	Exits    ExitConfig     `toml:"exits" json:"exits"`
	PnL      PnLConfig      `toml:"pnl" json:"pnl"`
	Data     DataConfig     `toml:"data" json:"-"`
	Store    StoreConfig    `toml:"store" json:"-"`
	Redis    RedisConfig    `toml:"redis" json:"-"`
	S3       S3Config       `toml:"s3" json:"-"`
	LogLevel string         `toml:"log_level" json:"-"`
}

// RunConfig identifies the simulated range and account.
type RunConfig struct {
	RunID           string   `toml:"run_id" json:"run_id"`
	Symbols         []string `toml:"symbols" json:"symbols"`
	Start           string   `toml:"start" json:"start"` // YYYY-MM-DD
	End             string   `toml:"end" json:"end"`     // YYYY-MM-DD
	StartingCapital float64  `toml:"starting_capital" json:"starting_capital"`
	Seed            int64    `toml:"seed" json:"seed"`
}

// StrategyConfig parameterizes entry-candidate construction: where the
// short strike sits relative to spot, how wide the spread is, and how much
// size a fresh position requests before regime scaling.
type StrategyConfig struct {
	ShortStrikeOffsetPct float64 `toml:"short_strike_offset_pct" json:"short_strike_offset_pct"`
	SpreadWidth          float64 `toml:"spread_width" json:"spread_width"`
	TargetDTE            int     `toml:"target_dte" json:"target_dte"`
	BaselineContracts    int     `toml:"baseline_contracts" json:"baseline_contracts"`
	MaxOpenPositions     int     `toml:"max_open_positions" json:"max_open_positions"`
	StrikeIncrement      float64 `toml:"strike_increment" json:"strike_increment"`
}

// VixTier is one row of the ordered volatility-regime sizing table: for a
// VIX reading at or below MaxVIX, position size may be scaled by at most
// SizeScale of baseline. Tiers must be sorted by ascending MaxVIX; the last
// tier's MaxVIX is treated as unbounded.
type VixTier struct {
	MaxVIX    float64 `toml:"max_vix" json:"max_vix"`
	SizeScale float64 `toml:"size_scale" json:"size_scale"`
}

// RealismConfig holds every threshold the realism gate evaluates.
type RealismConfig struct {
	MaxSpreadPct       float64   `toml:"max_spread_pct" json:"max_spread_pct"`
	MinOpenInterest    int       `toml:"min_open_interest" json:"min_open_interest"`
	MaxQuoteAgeSec     float64   `toml:"max_quote_age_sec" json:"max_quote_age_sec"`
	MinVenues          int       `toml:"min_venues" json:"min_venues"`
	DeltaMin           float64   `toml:"delta_min" json:"delta_min"`
	DeltaMax           float64   `toml:"delta_max" json:"delta_max"`
	VixTiers           []VixTier `toml:"vix_tiers" json:"vix_tiers"`
	ElevatedVIX        float64   `toml:"elevated_vix" json:"elevated_vix"`
	EarningsWindowDays int       `toml:"earnings_window_days" json:"earnings_window_days"`
	DailyStopPct       float64   `toml:"daily_stop_pct" json:"daily_stop_pct"`
}

// SlippageConfig parameterizes the sell-side fill ladder.
type SlippageConfig struct {
	Tick        float64 `toml:"tick" json:"tick"`
	MaxAttempts int     `toml:"max_attempts" json:"max_attempts"`
}

// ExitConfig holds the exit-rule thresholds, applied in fixed precedence:
// stop loss, profit target, DTE floor, natural expiration.
type ExitConfig struct {
	StopLossMultiple     float64 `toml:"stop_loss_multiple" json:"stop_loss_multiple"`
	ProfitTargetFraction float64 `toml:"profit_target_fraction" json:"profit_target_fraction"`
	DteFloor             int     `toml:"dte_floor" json:"dte_floor"`
}

// PnLConfig parameterizes marking and risk measurement.
type PnLConfig struct {
	VaRWindow             int     `toml:"var_window" json:"var_window"`
	RiskFreeRate          float64 `toml:"risk_free_rate" json:"risk_free_rate"`
	CommissionPerContract float64 `toml:"commission_per_contract" json:"commission_per_contract"`
}

// DataConfig locates the already-fetched historical snapshot files. Moving
// the dataset does not affect engine behavior, so it is excluded from the
// fingerprint.
type DataConfig struct {
	Dir        string `toml:"dir"`
	MaxRetries int    `toml:"max_retries"`
}

// StoreConfig selects and parameterizes the run store backend.
type StoreConfig struct {
	Backend      string `toml:"backend"` // "sqlite" or "postgres"
	SQLitePath   string `toml:"sqlite_path"`
	DSN          string `toml:"dsn"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds quote-cache connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TTLMinutes int    `toml:"ttl_minutes"`
}

// S3Config holds object storage parameters for run artifact archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Defaults returns a Config populated with the documented default values.
func Defaults() Config {
	return Config{
		Run: RunConfig{
			Symbols:         []string{"XSP"},
			StartingCapital: 100_000,
			Seed:            1,
		},
		Strategy: StrategyConfig{
			ShortStrikeOffsetPct: 0.03,
			SpreadWidth:          1.0,
			TargetDTE:            45,
			BaselineContracts:    5,
			MaxOpenPositions:     3,
			StrikeIncrement:      0.5,
		},
		Realism: RealismConfig{
			MaxSpreadPct:    0.12,
			MinOpenInterest: 250,
			MaxQuoteAgeSec:  2.0,
			MinVenues:       2,
			DeltaMin:        0.10,
			DeltaMax:        0.30,
			VixTiers: []VixTier{
				{MaxVIX: 20, SizeScale: 1.0},
				{MaxVIX: 30, SizeScale: 0.5},
				{MaxVIX: 40, SizeScale: 0.25},
				{MaxVIX: 0, SizeScale: 0}, // crisis: no new risk
			},
			ElevatedVIX:        25,
			EarningsWindowDays: 5,
			DailyStopPct:       0.03,
		},
		Slippage: SlippageConfig{
			Tick:        0.05,
			MaxAttempts: 3,
		},
		Exits: ExitConfig{
			StopLossMultiple:     2.0,
			ProfitTargetFraction: 0.5,
			DteFloor:             21,
		},
		PnL: PnLConfig{
			VaRWindow:             252,
			RiskFreeRate:          0.04,
			CommissionPerContract: 0.65,
		},
		Data: DataConfig{
			Dir:        "data",
			MaxRetries: 3,
		},
		Store: StoreConfig{
			Backend:      "sqlite",
			SQLitePath:   "spreadsim.db",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			TTLMinutes: 0,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "spreadsim-runs",
			ForcePathStyle: true,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

const dateLayout = "2006-01-02"

// DateRange parses and returns the configured start and end dates.
func (c *Config) DateRange() (start, end time.Time, err error) {
	start, err = time.Parse(dateLayout, c.Run.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("run.start: %w", err)
	}
	end, err = time.Parse(dateLayout, c.Run.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("run.end: %w", err)
	}
	return start.UTC(), end.UTC(), nil
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Run
	if len(c.Run.Symbols) == 0 {
		errs = append(errs, "run: symbols must not be empty")
	}
	if c.Run.StartingCapital <= 0 {
		errs = append(errs, "run: starting_capital must be > 0")
	}
	if _, _, err := c.DateRange(); err != nil {
		errs = append(errs, "run: "+err.Error())
	} else if start, end, _ := c.DateRange(); !start.Before(end) {
		errs = append(errs, "run: start must be before end")
	}

	// Strategy
	if c.Strategy.ShortStrikeOffsetPct <= 0 || c.Strategy.ShortStrikeOffsetPct >= 1 {
		errs = append(errs, "strategy: short_strike_offset_pct must be in (0, 1)")
	}
	if c.Strategy.SpreadWidth <= 0 {
		errs = append(errs, "strategy: spread_width must be > 0")
	}
	if c.Strategy.TargetDTE < 1 {
		errs = append(errs, "strategy: target_dte must be >= 1")
	}
	if c.Strategy.BaselineContracts < 1 {
		errs = append(errs, "strategy: baseline_contracts must be >= 1")
	}
	if c.Strategy.MaxOpenPositions < 1 {
		errs = append(errs, "strategy: max_open_positions must be >= 1")
	}
	if c.Strategy.StrikeIncrement <= 0 {
		errs = append(errs, "strategy: strike_increment must be > 0")
	}

	// Realism
	if c.Realism.MaxSpreadPct <= 0 || c.Realism.MaxSpreadPct >= 1 {
		errs = append(errs, "realism: max_spread_pct must be in (0, 1)")
	}
	if c.Realism.MinOpenInterest < 0 {
		errs = append(errs, "realism: min_open_interest must be >= 0")
	}
	if c.Realism.MaxQuoteAgeSec <= 0 {
		errs = append(errs, "realism: max_quote_age_sec must be > 0")
	}
	if c.Realism.MinVenues < 1 {
		errs = append(errs, "realism: min_venues must be >= 1")
	}
	if c.Realism.DeltaMin < 0 || c.Realism.DeltaMax <= c.Realism.DeltaMin {
		errs = append(errs, "realism: delta band must satisfy 0 <= delta_min < delta_max")
	}
	if len(c.Realism.VixTiers) == 0 {
		errs = append(errs, "realism: vix_tiers must not be empty")
	} else {
		for i := 1; i < len(c.Realism.VixTiers)-1; i++ {
			if c.Realism.VixTiers[i].MaxVIX <= c.Realism.VixTiers[i-1].MaxVIX {
				errs = append(errs, "realism: vix_tiers must be sorted by ascending max_vix")
				break
			}
		}
	}
	if c.Realism.DailyStopPct <= 0 || c.Realism.DailyStopPct >= 1 {
		errs = append(errs, "realism: daily_stop_pct must be in (0, 1)")
	}

	// Slippage
	if c.Slippage.Tick <= 0 {
		errs = append(errs, "slippage: tick must be > 0")
	}
	if c.Slippage.MaxAttempts < 1 {
		errs = append(errs, "slippage: max_attempts must be >= 1")
	}

	// Exits
	if c.Exits.StopLossMultiple <= 0 {
		errs = append(errs, "exits: stop_loss_multiple must be > 0")
	}
	if c.Exits.ProfitTargetFraction <= 0 || c.Exits.ProfitTargetFraction > 1 {
		errs = append(errs, "exits: profit_target_fraction must be in (0, 1]")
	}
	if c.Exits.DteFloor < 0 {
		errs = append(errs, "exits: dte_floor must be >= 0")
	}

	// PnL
	if c.PnL.VaRWindow < 2 {
		errs = append(errs, "pnl: var_window must be >= 2")
	}
	if c.PnL.CommissionPerContract < 0 {
		errs = append(errs, "pnl: commission_per_contract must be >= 0")
	}

	// Data
	if c.Data.Dir == "" {
		errs = append(errs, "data: dir must not be empty")
	}

	// Store
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store: sqlite_path must not be empty for sqlite backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, "store: dsn must not be empty for postgres backend")
		}
		if c.Store.PoolMaxConns < 1 {
			errs = append(errs, "store: pool_max_conns must be >= 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: sqlite, postgres)", c.Store.Backend))
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Fingerprint returns a stable hex digest over every configuration section
// that affects engine behavior. Infra sections (store, redis, s3, logging)
// are deliberately excluded so that moving a run between backends does not
// invalidate its checkpoints. Resume is rejected when fingerprints differ.
func (c *Config) Fingerprint() string {
	// json tags on the engine sections define the canonical encoding;
	// struct field order keeps it deterministic.
	b, err := json.Marshal(c)
	if err != nil {
		// Config is plain data; marshal cannot fail on it.
		panic(fmt.Sprintf("config: fingerprint marshal: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
