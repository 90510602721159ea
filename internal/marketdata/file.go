package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// FileProvider serves already-fetched historical snapshots from CSV files in
// a data directory, loaded eagerly at construction:
//
//	<SYMBOL>_bars.csv    date,open,high,low,close
//	<SYMBOL>_quotes.csv  date,strike,expiry,bid,ask,open_interest,quote_age_sec,venue_count,nbbo_sane
//	vix.csv              date,value
//
// Lookups that miss return domain.ErrNotAvailable; the engine records a gap.
type FileProvider struct {
	bars   map[string]domain.OHLC          // symbol|date
	quotes map[string]domain.QuoteSnapshot // keyed by quoteKey
	vix    map[string]float64              // date
}

var _ domain.MarketDataProvider = (*FileProvider)(nil)

// NewFileProvider loads the dataset for the given symbols from dir. A
// missing quotes file is tolerated (the run simply books no entries for that
// symbol); missing bars or VIX files are an error.
func NewFileProvider(dir string, symbols []string) (*FileProvider, error) {
	p := &FileProvider{
		bars:   make(map[string]domain.OHLC),
		quotes: make(map[string]domain.QuoteSnapshot),
		vix:    make(map[string]float64),
	}

	if err := p.loadVix(filepath.Join(dir, "vix.csv")); err != nil {
		return nil, err
	}
	for _, sym := range symbols {
		if err := p.loadBars(filepath.Join(dir, sym+"_bars.csv"), sym); err != nil {
			return nil, err
		}
		quotesPath := filepath.Join(dir, sym+"_quotes.csv")
		if _, err := os.Stat(quotesPath); err == nil {
			if err := p.loadQuotes(quotesPath, sym); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *FileProvider) GetDailyBar(ctx context.Context, symbol string, date time.Time) (domain.OHLC, error) {
	bar, ok := p.bars[symbol+"|"+dateKey(date)]
	if !ok {
		return domain.OHLC{}, domain.ErrNotAvailable
	}
	return bar, nil
}

func (p *FileProvider) GetOptionQuote(ctx context.Context, symbol string, strike float64, expiry, date time.Time) (domain.QuoteSnapshot, error) {
	q, ok := p.quotes[quoteKey(symbol, strike, expiry, date)]
	if !ok {
		return domain.QuoteSnapshot{}, domain.ErrNotAvailable
	}
	return q, nil
}

func (p *FileProvider) GetVix(ctx context.Context, date time.Time) (float64, error) {
	v, ok := p.vix[dateKey(date)]
	if !ok {
		return 0, domain.ErrNotAvailable
	}
	return v, nil
}

func (p *FileProvider) loadBars(path, symbol string) error {
	return readCSV(path, 5, func(rec []string) error {
		var bar domain.OHLC
		var err error
		if bar.Open, err = strconv.ParseFloat(rec[1], 64); err != nil {
			return err
		}
		if bar.High, err = strconv.ParseFloat(rec[2], 64); err != nil {
			return err
		}
		if bar.Low, err = strconv.ParseFloat(rec[3], 64); err != nil {
			return err
		}
		if bar.Close, err = strconv.ParseFloat(rec[4], 64); err != nil {
			return err
		}
		p.bars[symbol+"|"+rec[0]] = bar
		return nil
	})
}

func (p *FileProvider) loadQuotes(path, symbol string) error {
	return readCSV(path, 9, func(rec []string) error {
		strike, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return err
		}
		expiry, err := time.Parse("2006-01-02", rec[2])
		if err != nil {
			return err
		}
		date, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			return err
		}

		var q domain.QuoteSnapshot
		if q.Bid, err = strconv.ParseFloat(rec[3], 64); err != nil {
			return err
		}
		if q.Ask, err = strconv.ParseFloat(rec[4], 64); err != nil {
			return err
		}
		if q.OpenInterest, err = strconv.Atoi(rec[5]); err != nil {
			return err
		}
		if q.QuoteAgeSec, err = strconv.ParseFloat(rec[6], 64); err != nil {
			return err
		}
		if q.VenueCount, err = strconv.Atoi(rec[7]); err != nil {
			return err
		}
		if q.NBBOSane, err = strconv.ParseBool(rec[8]); err != nil {
			return err
		}
		q.ObservedAt = date

		p.quotes[quoteKey(symbol, strike, expiry.UTC(), date.UTC())] = q
		return nil
	})
}

func (p *FileProvider) loadVix(path string) error {
	return readCSV(path, 2, func(rec []string) error {
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return err
		}
		p.vix[rec[0]] = v
		return nil
	})
}

// readCSV streams records from a headered CSV file into fn.
func readCSV(path string, fields int, fn func(rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("marketdata: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = fields

	// Skip the header row.
	if _, err := r.Read(); err != nil && err != io.EOF {
		return fmt.Errorf("marketdata: read %s header: %w", path, err)
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("marketdata: read %s: %w", path, err)
		}
		if err := fn(rec); err != nil {
			return fmt.Errorf("marketdata: parse %s: %w", path, err)
		}
	}
}

func dateKey(date time.Time) string {
	return date.Format("2006-01-02")
}
