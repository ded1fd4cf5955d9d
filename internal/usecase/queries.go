package usecase

import (
	"context"
	"errors"
	"fmt"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	"SignalGate/pkg/util"
)

// Queries serves the read side: cached evaluations, snapshot history and ledger state.
type Queries struct {
	cache     domrepo.EvaluationCache
	snapshots domrepo.SnapshotStore
	ledger    domrepo.AlertLedger
}

func NewQueries(cache domrepo.EvaluationCache, snapshots domrepo.SnapshotStore, ledger domrepo.AlertLedger) *Queries {
	return &Queries{cache: cache, snapshots: snapshots, ledger: ledger}
}

// LatestEvaluation prefers the cache and falls back to the newest snapshot.
func (q *Queries) LatestEvaluation(ctx context.Context, ticker string) (models.TickerEvaluation, error) {
	ticker = util.NormalizeTicker(ticker)
	e, err := q.cache.LastEvaluation(ctx, ticker)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, domrepo.ErrNotFound) {
		return e, err
	}
	recent, err := q.snapshots.RecentEvaluations(ctx, ticker, 1)
	if err != nil {
		return models.TickerEvaluation{}, err
	}
	if len(recent) == 0 {
		return models.TickerEvaluation{}, domrepo.ErrNotFound
	}
	return recent[0], nil
}

func (q *Queries) History(ctx context.Context, ticker string, limit int) ([]models.TickerEvaluation, error) {
	return q.snapshots.RecentEvaluations(ctx, util.NormalizeTicker(ticker), limit)
}

// LedgerEntry reports when an alert type was last sent for a ticker.
func (q *Queries) LedgerEntry(ctx context.Context, ticker, alertType string) (models.DedupLedgerEntry, error) {
	t, ok := models.ParseAlertType(alertType)
	if !ok {
		return models.DedupLedgerEntry{}, fmt.Errorf("unknown alert type %q", alertType)
	}
	return q.ledger.Get(ctx, models.LedgerKey{Ticker: util.NormalizeTicker(ticker), AlertType: t})
}

// LedgerBackend names the configured ledger for health output.
func (q *Queries) LedgerBackend() string { return q.ledger.Backend() }
