package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// CachedProvider consults a QuoteCache before the upstream provider for
// option quotes. Cache failures are logged and treated as misses; the cache
// is an accelerator, never a source of truth. Daily bars and VIX pass
// through, they are cheap relative to option chain lookups.
type CachedProvider struct {
	upstream domain.MarketDataProvider
	cache    domain.QuoteCache
	logger   *slog.Logger
}

var _ domain.MarketDataProvider = (*CachedProvider)(nil)

// NewCachedProvider wraps upstream with the given quote cache.
func NewCachedProvider(upstream domain.MarketDataProvider, cache domain.QuoteCache, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		cache:    cache,
		logger:   logger.With(slog.String("component", "marketdata_cache")),
	}
}

func (p *CachedProvider) GetDailyBar(ctx context.Context, symbol string, date time.Time) (domain.OHLC, error) {
	return p.upstream.GetDailyBar(ctx, symbol, date)
}

func (p *CachedProvider) GetVix(ctx context.Context, date time.Time) (float64, error) {
	return p.upstream.GetVix(ctx, date)
}

func (p *CachedProvider) GetOptionQuote(ctx context.Context, symbol string, strike float64, expiry, date time.Time) (domain.QuoteSnapshot, error) {
	key := quoteKey(symbol, strike, expiry, date)

	q, err := p.cache.Get(ctx, key)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("quote cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	q, err = p.upstream.GetOptionQuote(ctx, symbol, strike, expiry, date)
	if err != nil {
		return domain.QuoteSnapshot{}, err
	}
	if err := p.cache.Set(ctx, key, q); err != nil {
		p.logger.Warn("quote cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return q, nil
}

// quoteKey builds the cache key for an option quote lookup.
func quoteKey(symbol string, strike float64, expiry, date time.Time) string {
	return fmt.Sprintf("%s:%.2f:%s:%s",
		symbol, strike, expiry.Format("2006-01-02"), date.Format("2006-01-02"))
}
