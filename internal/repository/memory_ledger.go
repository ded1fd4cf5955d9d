package repository

import (
	"context"
	"sync"
	"time"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/domain/repository"
)

// MemoryLedger is a process-local AlertLedger for single-instance runs and tests.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[models.LedgerKey]time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[models.LedgerKey]time.Time)}
}

func (l *MemoryLedger) Claim(ctx context.Context, key models.LedgerKey, now time.Time, window time.Duration) (bool, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return false, time.Time{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.entries[key]
	if ok && now.Sub(last) < window {
		return false, last, nil
	}
	l.entries[key] = now
	return true, last, nil
}

func (l *MemoryLedger) Get(ctx context.Context, key models.LedgerKey) (models.DedupLedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	last, ok := l.entries[key]
	if !ok {
		return models.DedupLedgerEntry{}, repository.ErrNotFound
	}
	return models.DedupLedgerEntry{Ticker: key.Ticker, AlertType: key.AlertType, LastSent: last}, nil
}

func (l *MemoryLedger) Backend() string { return "memory" }

func (l *MemoryLedger) Close() error { return nil }

var _ repository.AlertLedger = (*MemoryLedger)(nil)
