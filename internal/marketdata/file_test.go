package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func writeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "vix.csv",
		"date,value\n"+
			"2024-01-02,14.5\n"+
			"2024-01-03,15.2\n")
	writeFile(t, dir, "XSP_bars.csv",
		"date,open,high,low,close\n"+
			"2024-01-02,475.1,477.8,474.2,476.5\n"+
			"2024-01-03,476.0,476.9,473.5,474.1\n")
	writeFile(t, dir, "XSP_quotes.csv",
		"date,strike,expiry,bid,ask,open_interest,quote_age_sec,venue_count,nbbo_sane\n"+
			"2024-01-02,462.00,2024-02-16,1.15,1.25,800,0.4,3,true\n")
	return dir
}

func TestFileProviderLookups(t *testing.T) {
	p, err := NewFileProvider(writeDataset(t), []string{"XSP"})
	require.NoError(t, err)
	ctx := context.Background()

	bar, err := p.GetDailyBar(ctx, "XSP", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 476.5, bar.Close)

	vix, err := p.GetVix(ctx, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 15.2, vix)

	q, err := p.GetOptionQuote(ctx, "XSP", 462.0,
		time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1.15, q.Bid)
	assert.Equal(t, 800, q.OpenInterest)
	assert.True(t, q.NBBOSane)
}

func TestFileProviderMissesAreGaps(t *testing.T) {
	p, err := NewFileProvider(writeDataset(t), []string{"XSP"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.GetDailyBar(ctx, "XSP", time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, domain.ErrNotAvailable)

	_, err = p.GetDailyBar(ctx, "SPY", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, domain.ErrNotAvailable)

	_, err = p.GetVix(ctx, time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, domain.ErrNotAvailable)

	_, err = p.GetOptionQuote(ctx, "XSP", 999,
		time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, domain.ErrNotAvailable)
}

func TestFileProviderMissingQuotesTolerated(t *testing.T) {
	dir := writeDataset(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "XSP_quotes.csv")))

	p, err := NewFileProvider(dir, []string{"XSP"})
	require.NoError(t, err)

	_, err = p.GetOptionQuote(context.Background(), "XSP", 462.0,
		time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, domain.ErrNotAvailable)
}

func TestFileProviderMissingBarsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "vix.csv", "date,value\n2024-01-02,14.5\n")

	_, err := NewFileProvider(dir, []string{"XSP"})
	require.Error(t, err)
}

func TestFileProviderMalformedRow(t *testing.T) {
	dir := writeDataset(t)
	writeFile(t, dir, "XSP_bars.csv",
		"date,open,high,low,close\n"+
			"2024-01-02,475.1,477.8,474.2,not-a-number\n")

	_, err := NewFileProvider(dir, []string{"XSP"})
	require.Error(t, err)
}
