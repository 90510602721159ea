package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SPREADSIM_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SPREADSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets and per-run parameters at launch time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Run ──
	setStr(&cfg.Run.RunID, "SPREADSIM_RUN_ID")
	setStringSlice(&cfg.Run.Symbols, "SPREADSIM_RUN_SYMBOLS")
	setStr(&cfg.Run.Start, "SPREADSIM_RUN_START")
	setStr(&cfg.Run.End, "SPREADSIM_RUN_END")
	setFloat64(&cfg.Run.StartingCapital, "SPREADSIM_RUN_STARTING_CAPITAL")
	setInt64(&cfg.Run.Seed, "SPREADSIM_RUN_SEED")

	// ── Strategy ──
	setFloat64(&cfg.Strategy.ShortStrikeOffsetPct, "SPREADSIM_STRATEGY_SHORT_STRIKE_OFFSET_PCT")
	setFloat64(&cfg.Strategy.SpreadWidth, "SPREADSIM_STRATEGY_SPREAD_WIDTH")
	setInt(&cfg.Strategy.TargetDTE, "SPREADSIM_STRATEGY_TARGET_DTE")
	setInt(&cfg.Strategy.BaselineContracts, "SPREADSIM_STRATEGY_BASELINE_CONTRACTS")
	setInt(&cfg.Strategy.MaxOpenPositions, "SPREADSIM_STRATEGY_MAX_OPEN_POSITIONS")

	// ── Realism ──
	setFloat64(&cfg.Realism.MaxSpreadPct, "SPREADSIM_REALISM_MAX_SPREAD_PCT")
	setInt(&cfg.Realism.MinOpenInterest, "SPREADSIM_REALISM_MIN_OPEN_INTEREST")
	setFloat64(&cfg.Realism.MaxQuoteAgeSec, "SPREADSIM_REALISM_MAX_QUOTE_AGE_SEC")
	setInt(&cfg.Realism.MinVenues, "SPREADSIM_REALISM_MIN_VENUES")
	setFloat64(&cfg.Realism.DeltaMin, "SPREADSIM_REALISM_DELTA_MIN")
	setFloat64(&cfg.Realism.DeltaMax, "SPREADSIM_REALISM_DELTA_MAX")
	setFloat64(&cfg.Realism.ElevatedVIX, "SPREADSIM_REALISM_ELEVATED_VIX")
	setInt(&cfg.Realism.EarningsWindowDays, "SPREADSIM_REALISM_EARNINGS_WINDOW_DAYS")
	setFloat64(&cfg.Realism.DailyStopPct, "SPREADSIM_REALISM_DAILY_STOP_PCT")

	// ── Slippage ──
	setFloat64(&cfg.Slippage.Tick, "SPREADSIM_SLIPPAGE_TICK")
	setInt(&cfg.Slippage.MaxAttempts, "SPREADSIM_SLIPPAGE_MAX_ATTEMPTS")

	// ── Exits ──
	setFloat64(&cfg.Exits.StopLossMultiple, "SPREADSIM_EXITS_STOP_LOSS_MULTIPLE")
	setFloat64(&cfg.Exits.ProfitTargetFraction, "SPREADSIM_EXITS_PROFIT_TARGET_FRACTION")
	setInt(&cfg.Exits.DteFloor, "SPREADSIM_EXITS_DTE_FLOOR")

	// ── PnL ──
	setInt(&cfg.PnL.VaRWindow, "SPREADSIM_PNL_VAR_WINDOW")
	setFloat64(&cfg.PnL.RiskFreeRate, "SPREADSIM_PNL_RISK_FREE_RATE")
	setFloat64(&cfg.PnL.CommissionPerContract, "SPREADSIM_PNL_COMMISSION_PER_CONTRACT")

	// ── Data ──
	setStr(&cfg.Data.Dir, "SPREADSIM_DATA_DIR")
	setInt(&cfg.Data.MaxRetries, "SPREADSIM_DATA_MAX_RETRIES")

	// ── Store ──
	setStr(&cfg.Store.Backend, "SPREADSIM_STORE_BACKEND")
	setStr(&cfg.Store.SQLitePath, "SPREADSIM_STORE_SQLITE_PATH")
	setStr(&cfg.Store.DSN, "SPREADSIM_STORE_DSN")
	setInt(&cfg.Store.PoolMaxConns, "SPREADSIM_STORE_POOL_MAX_CONNS")
	setInt(&cfg.Store.PoolMinConns, "SPREADSIM_STORE_POOL_MIN_CONNS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SPREADSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SPREADSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SPREADSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SPREADSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SPREADSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SPREADSIM_REDIS_MAX_RETRIES")
	setInt(&cfg.Redis.TTLMinutes, "SPREADSIM_REDIS_TTL_MINUTES")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SPREADSIM_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SPREADSIM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SPREADSIM_S3_REGION")
	setStr(&cfg.S3.Bucket, "SPREADSIM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SPREADSIM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SPREADSIM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SPREADSIM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SPREADSIM_S3_FORCE_PATH_STYLE")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "SPREADSIM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
