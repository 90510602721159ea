// Package marketdata provides decorators around a MarketDataProvider:
// bounded retry for transient upstream failures and a read-through quote
// cache for repeated runs over the same range.
package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// RetryingProvider wraps an upstream provider with exponential backoff.
// Missing data (domain.ErrNotAvailable) is a permanent condition and is
// returned immediately; only transient errors are retried.
type RetryingProvider struct {
	upstream domain.MarketDataProvider
	maxTries uint
	initial  time.Duration
	logger   *slog.Logger
}

var _ domain.MarketDataProvider = (*RetryingProvider)(nil)

// NewRetryingProvider wraps upstream with at most maxTries attempts per call.
func NewRetryingProvider(upstream domain.MarketDataProvider, maxTries uint, logger *slog.Logger) *RetryingProvider {
	return &RetryingProvider{
		upstream: upstream,
		maxTries: maxTries,
		initial:  200 * time.Millisecond,
		logger:   logger.With(slog.String("component", "marketdata_retry")),
	}
}

func (p *RetryingProvider) GetDailyBar(ctx context.Context, symbol string, date time.Time) (domain.OHLC, error) {
	return retry(ctx, p, "daily_bar", func() (domain.OHLC, error) {
		return p.upstream.GetDailyBar(ctx, symbol, date)
	})
}

func (p *RetryingProvider) GetOptionQuote(ctx context.Context, symbol string, strike float64, expiry, date time.Time) (domain.QuoteSnapshot, error) {
	return retry(ctx, p, "option_quote", func() (domain.QuoteSnapshot, error) {
		return p.upstream.GetOptionQuote(ctx, symbol, strike, expiry, date)
	})
}

func (p *RetryingProvider) GetVix(ctx context.Context, date time.Time) (float64, error) {
	return retry(ctx, p, "vix", func() (float64, error) {
		return p.upstream.GetVix(ctx, date)
	})
}

func retry[T any](ctx context.Context, p *RetryingProvider, op string, fetch func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.initial

	operation := func() (T, error) {
		v, err := fetch()
		if errors.Is(err, domain.ErrNotAvailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		p.logger.Warn("upstream fetch failed, retrying",
			slog.String("op", op),
			slog.Duration("backoff", wait),
			slog.Any("error", err),
		)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(p.maxTries),
		backoff.WithNotify(notify))
}
