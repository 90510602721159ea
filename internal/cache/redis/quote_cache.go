package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each snapshot
// is stored at key "quote:{key}" with one field per quote attribute, so a
// partial read never yields a half-valid snapshot: any missing field is a
// miss.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.QuoteCache = (*QuoteCache)(nil)

// NewQuoteCache creates a QuoteCache backed by the given Client. ttl of zero
// means entries never expire (historical quotes are immutable).
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteCacheKey(key string) string {
	return "quote:" + key
}

// Set stores a quote snapshot.
func (qc *QuoteCache) Set(ctx context.Context, key string, q domain.QuoteSnapshot) error {
	k := quoteCacheKey(key)
	fields := map[string]interface{}{
		"bid":       strconv.FormatFloat(q.Bid, 'f', -1, 64),
		"ask":       strconv.FormatFloat(q.Ask, 'f', -1, 64),
		"oi":        strconv.Itoa(q.OpenInterest),
		"age":       strconv.FormatFloat(q.QuoteAgeSec, 'f', -1, 64),
		"venues":    strconv.Itoa(q.VenueCount),
		"nbbo_sane": strconv.FormatBool(q.NBBOSane),
		"ts":        strconv.FormatInt(q.ObservedAt.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, k, fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	if qc.ttl > 0 {
		if err := qc.rdb.Expire(ctx, k, qc.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire quote %s: %w", key, err)
		}
	}
	return nil
}

// Get retrieves a cached quote snapshot. It returns domain.ErrNotFound when
// the key does not exist or the entry is incomplete.
func (qc *QuoteCache) Get(ctx context.Context, key string) (domain.QuoteSnapshot, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteCacheKey(key)).Result()
	if err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.QuoteSnapshot{}, domain.ErrNotFound
	}

	var q domain.QuoteSnapshot
	if q.Bid, err = parseField(vals, "bid"); err != nil {
		return domain.QuoteSnapshot{}, err
	}
	if q.Ask, err = parseField(vals, "ask"); err != nil {
		return domain.QuoteSnapshot{}, err
	}
	if q.QuoteAgeSec, err = parseField(vals, "age"); err != nil {
		return domain.QuoteSnapshot{}, err
	}

	oi, ok := vals["oi"]
	if !ok {
		return domain.QuoteSnapshot{}, domain.ErrNotFound
	}
	if q.OpenInterest, err = strconv.Atoi(oi); err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("redis: parse oi: %w", err)
	}

	venues, ok := vals["venues"]
	if !ok {
		return domain.QuoteSnapshot{}, domain.ErrNotFound
	}
	if q.VenueCount, err = strconv.Atoi(venues); err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("redis: parse venues: %w", err)
	}

	sane, ok := vals["nbbo_sane"]
	if !ok {
		return domain.QuoteSnapshot{}, domain.ErrNotFound
	}
	if q.NBBOSane, err = strconv.ParseBool(sane); err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("redis: parse nbbo_sane: %w", err)
	}

	ts, ok := vals["ts"]
	if !ok {
		return domain.QuoteSnapshot{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("redis: parse ts: %w", err)
	}
	q.ObservedAt = time.Unix(0, tsNano)

	return q, nil
}

func parseField(vals map[string]string, field string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse %s: %w", field, err)
	}
	return v, nil
}
