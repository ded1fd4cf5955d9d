package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	"SignalGate/pkg/cache"
	"SignalGate/pkg/util"
)

const (
	readingsNS   = "readings"
	evaluationNS = "evaluation"
	tickersSet   = "readings:tickers"
)

// CacheStore buffers the latest readings and the last evaluation per ticker
// in whichever cache backend is configured.
type CacheStore struct {
	cache         cache.Service
	readingsTTL   time.Duration
	evaluationTTL time.Duration
}

func NewCacheStore(c cache.Service, readingsTTL, evaluationTTL time.Duration) *CacheStore {
	return &CacheStore{cache: c, readingsTTL: readingsTTL, evaluationTTL: evaluationTTL}
}

func normTicker(t string) string { return util.NormalizeTicker(t) }

// Put buffers r as the latest readings for its ticker. Readings older than the
// buffered ones are dropped: consumer workers may hand over a partition's
// messages out of order. A zero AsOf is treated as unknown and always written.
func (s *CacheStore) Put(ctx context.Context, r models.TickerReadings) error {
	r.Ticker = normTicker(r.Ticker)
	if r.Ticker == "" {
		return fmt.Errorf("put readings: empty ticker")
	}
	if !r.AsOf.IsZero() {
		cur, err := s.Latest(ctx, r.Ticker)
		switch {
		case errors.Is(err, domrepo.ErrNotFound):
		case err != nil:
			return err
		case r.AsOf.Before(cur.AsOf):
			return nil
		}
	}
	if err := s.cache.Set(ctx, cache.Key(readingsNS, r.Ticker), r, s.readingsTTL); err != nil {
		return fmt.Errorf("put readings %s: %w", r.Ticker, err)
	}
	if err := s.cache.AddMembers(ctx, tickersSet, r.Ticker); err != nil {
		return fmt.Errorf("index ticker %s: %w", r.Ticker, err)
	}
	return nil
}

func (s *CacheStore) Latest(ctx context.Context, ticker string) (models.TickerReadings, error) {
	var r models.TickerReadings
	err := s.cache.Get(ctx, cache.Key(readingsNS, normTicker(ticker)), &r)
	if errors.Is(err, cache.ErrCacheMiss) {
		return r, domrepo.ErrNotFound
	}
	if err != nil {
		return r, fmt.Errorf("latest readings %s: %w", ticker, err)
	}
	return r, nil
}

// LatestMany returns readings for the tickers that have any; missing tickers are absent from the map.
func (s *CacheStore) LatestMany(ctx context.Context, tickers []string) (map[string]models.TickerReadings, error) {
	keys := make([]string, 0, len(tickers))
	byKey := make(map[string]string, len(tickers))
	for _, t := range tickers {
		t = normTicker(t)
		k := cache.Key(readingsNS, t)
		keys = append(keys, k)
		byKey[k] = t
	}
	raw, err := cache.MGetTyped[models.TickerReadings](ctx, s.cache, keys...)
	if err != nil {
		return nil, fmt.Errorf("latest readings: %w", err)
	}
	out := make(map[string]models.TickerReadings, len(raw))
	for k, r := range raw {
		out[byKey[k]] = r
	}
	return out, nil
}

// Tickers lists every ticker that ever had readings buffered, sorted.
func (s *CacheStore) Tickers(ctx context.Context) ([]string, error) {
	ts, err := s.cache.Members(ctx, tickersSet)
	if err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}
	sort.Strings(ts)
	return ts, nil
}

func (s *CacheStore) PutEvaluation(ctx context.Context, e models.TickerEvaluation) error {
	if err := s.cache.Set(ctx, cache.Key(evaluationNS, normTicker(e.Ticker)), e, s.evaluationTTL); err != nil {
		return fmt.Errorf("cache evaluation %s: %w", e.Ticker, err)
	}
	return nil
}

func (s *CacheStore) LastEvaluation(ctx context.Context, ticker string) (models.TickerEvaluation, error) {
	var e models.TickerEvaluation
	err := s.cache.Get(ctx, cache.Key(evaluationNS, normTicker(ticker)), &e)
	if errors.Is(err, cache.ErrCacheMiss) {
		return e, domrepo.ErrNotFound
	}
	if err != nil {
		return e, fmt.Errorf("last evaluation %s: %w", ticker, err)
	}
	return e, nil
}

var (
	_ domrepo.ReadingSource   = (*CacheStore)(nil)
	_ domrepo.EvaluationCache = (*CacheStore)(nil)
)
