package repository

import (
	"context"
	"errors"
	"time"

	"SignalGate/internal/domain/models"
)

var (
	// ErrLedgerContention is a transient conflict on the dedup ledger; the claim may be retried.
	ErrLedgerContention = errors.New("ledger: contention")
	// ErrLedgerUnavailable means the ledger backend cannot be reached. Callers fail closed.
	ErrLedgerUnavailable = errors.New("ledger: unavailable")
	// ErrNotFound is returned by lookups with no stored value.
	ErrNotFound = errors.New("not found")
)

// AlertLedger is the shared, durable record of when each (ticker, alert type) was last sent.
// Claim is the only write path: it records now and returns true if and only if no send
// happened within window, as one atomic step across every process sharing the backend.
type AlertLedger interface {
	Claim(ctx context.Context, key models.LedgerKey, now time.Time, window time.Duration) (claimed bool, lastSent time.Time, err error)
	Get(ctx context.Context, key models.LedgerKey) (models.DedupLedgerEntry, error)
	Backend() string
	Close() error
}

// ReadingSource hands the cycle the latest readings buffered per ticker.
type ReadingSource interface {
	Put(ctx context.Context, r models.TickerReadings) error
	Latest(ctx context.Context, ticker string) (models.TickerReadings, error)
	LatestMany(ctx context.Context, tickers []string) (map[string]models.TickerReadings, error)
	Tickers(ctx context.Context) ([]string, error)
}

// EvaluationCache keeps the last evaluation per ticker for the read API.
type EvaluationCache interface {
	PutEvaluation(ctx context.Context, e models.TickerEvaluation) error
	LastEvaluation(ctx context.Context, ticker string) (models.TickerEvaluation, error)
}

// SnapshotStore is the append-only analytical history of evaluations and alerts.
type SnapshotStore interface {
	Init(ctx context.Context) error
	SaveEvaluation(ctx context.Context, e models.TickerEvaluation) error
	RecentEvaluations(ctx context.Context, ticker string, limit int) ([]models.TickerEvaluation, error)
	Health(ctx context.Context) error
	Close() error
}

// ResultPublisher fans results and alerts out to downstream consumers.
type ResultPublisher interface {
	PublishEvaluation(ctx context.Context, e models.TickerEvaluation) error
	PublishAlert(ctx context.Context, a models.AlertRecord) error
	Close() error
}

type Metrics interface {
	RecordCycle(trigger string, failures int, d time.Duration)
	RecordTickerEvaluation(outcome string, d time.Duration)
	RecordVerdict(verdict string)
	RecordQuality(ticker, tier string, score float64)
	RecordGateDecision(alertType, state string)
	RecordLedgerRetry(backend string)
	RecordMessageSent(backend, topic string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordCycle(string, int, time.Duration) {}
func (NopMetrics) RecordTickerEvaluation(string, time.Duration) {}
func (NopMetrics) RecordVerdict(string) {}
func (NopMetrics) RecordQuality(string, string, float64) {}
func (NopMetrics) RecordGateDecision(string, string) {}
func (NopMetrics) RecordLedgerRetry(string) {}
func (NopMetrics) RecordMessageSent(string, string) {}
func (NopMetrics) RecordError(string) {}
func (NopMetrics) RecordLatency(string, float64) {}
