package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/domain/repository"
	"SignalGate/pkg/postgres"

	"github.com/lib/pq"
)

// PostgresLedger keeps one row per (ticker, alert_type). The claim is a single
// conditional upsert, so the row lock taken by ON CONFLICT serialises writers.
type PostgresLedger struct {
	db          *sql.DB
	table       string
	lockTimeout time.Duration
}

func NewPostgresLedger(client *postgres.Client, table string, lockTimeout time.Duration) *PostgresLedger {
	return &PostgresLedger{db: client.DB(), table: pq.QuoteIdentifier(table), lockTimeout: lockTimeout}
}

// Schema is the DDL for the ledger table.
func (l *PostgresLedger) Schema() []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ticker     TEXT        NOT NULL,
		alert_type TEXT        NOT NULL,
		last_sent  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (ticker, alert_type)
	)`, l.table)}
}

func (l *PostgresLedger) Claim(ctx context.Context, key models.LedgerKey, now time.Time, window time.Duration) (claimed bool, last time.Time, err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, time.Time{}, classifyPostgresError("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if l.lockTimeout > 0 {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", l.lockTimeout.Milliseconds())); err != nil {
			return false, time.Time{}, classifyPostgresError("lock timeout", err)
		}
	}

	var prev sql.NullTime
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT last_sent FROM %s WHERE ticker = $1 AND alert_type = $2", l.table),
		key.Ticker, string(key.AlertType),
	).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, time.Time{}, classifyPostgresError("read", err)
	}

	q := fmt.Sprintf(`INSERT INTO %[1]s (ticker, alert_type, last_sent) VALUES ($1, $2, $3)
		ON CONFLICT (ticker, alert_type) DO UPDATE SET last_sent = EXCLUDED.last_sent
		WHERE %[1]s.last_sent <= $4
		RETURNING last_sent`, l.table)
	var written time.Time
	err = tx.QueryRowContext(ctx, q, key.Ticker, string(key.AlertType), now.UTC(), now.Add(-window).UTC()).Scan(&written)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// a newer send exists; re-read it under the row lock we now hold
		var cur time.Time
		if err = tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT last_sent FROM %s WHERE ticker = $1 AND alert_type = $2", l.table),
			key.Ticker, string(key.AlertType),
		).Scan(&cur); err != nil {
			return false, time.Time{}, classifyPostgresError("read", err)
		}
		if err = tx.Commit(); err != nil {
			return false, time.Time{}, classifyPostgresError("commit", err)
		}
		return false, cur.UTC(), nil
	case err != nil:
		return false, time.Time{}, classifyPostgresError("upsert", err)
	}

	if err = tx.Commit(); err != nil {
		return false, time.Time{}, classifyPostgresError("commit", err)
	}
	if prev.Valid {
		last = prev.Time.UTC()
	}
	return true, last, nil
}

func (l *PostgresLedger) Get(ctx context.Context, key models.LedgerKey) (models.DedupLedgerEntry, error) {
	var last time.Time
	err := l.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT last_sent FROM %s WHERE ticker = $1 AND alert_type = $2", l.table),
		key.Ticker, string(key.AlertType),
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DedupLedgerEntry{}, repository.ErrNotFound
	}
	if err != nil {
		return models.DedupLedgerEntry{}, classifyPostgresError("get", err)
	}
	return models.DedupLedgerEntry{Ticker: key.Ticker, AlertType: key.AlertType, LastSent: last.UTC()}, nil
}

func (l *PostgresLedger) Backend() string { return "postgres" }

// Close is a no-op; the pool belongs to the postgres client.
func (l *PostgresLedger) Close() error { return nil }

func classifyPostgresError(op string, err error) error {
	if postgres.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, repository.ErrLedgerContention, err)
	}
	return fmt.Errorf("%s: %w: %w", op, repository.ErrLedgerUnavailable, err)
}

var _ repository.AlertLedger = (*PostgresLedger)(nil)
