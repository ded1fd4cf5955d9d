package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	pkgch "SignalGate/pkg/clickhouse"
	applogger "SignalGate/pkg/logger"
)

const (
	snapshotsTable = "signal_snapshots"
	alertsTable    = "alert_records"
)

// CHSnapshotStore appends evaluations and emitted alerts to ClickHouse. The
// full evaluation is kept as JSON next to the columns used for analytics.
type CHSnapshotStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

func NewCHSnapshotStore(ch *pkgch.Client, l *applogger.Logger) *CHSnapshotStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSnapshotStore{client: ch, db: ch.DB(), l: l}
}

// SnapshotSchema is the DDL applied by Init.
func SnapshotSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + snapshotsTable + ` (
			cycle_id       String,
			cycle_at       DateTime64(3, 'UTC'),
			ticker         LowCardinality(String),
			as_of          DateTime64(3, 'UTC'),
			verdict        LowCardinality(String),
			net_score      Int32,
			confidence     Float64,
			momentum       Float64,
			momentum_class LowCardinality(String),
			trend          LowCardinality(String),
			rr_kind        LowCardinality(String),
			rr_value       Float64,
			rr_rating      LowCardinality(String),
			quality        Float64,
			tier           LowCardinality(String),
			alert_count    UInt16,
			payload        String
		) ENGINE = MergeTree
		ORDER BY (ticker, cycle_at)`,
		`CREATE TABLE IF NOT EXISTS ` + alertsTable + ` (
			id           UUID,
			ticker       LowCardinality(String),
			alert_type   LowCardinality(String),
			direction    LowCardinality(String),
			severity     LowCardinality(String),
			ping         UInt8,
			confidence   Float64,
			reason       String,
			generated_at DateTime64(3, 'UTC'),
			metrics      String
		) ENGINE = MergeTree
		ORDER BY (ticker, alert_type, generated_at)`,
	}
}

func (s *CHSnapshotStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, SnapshotSchema())
}

func (s *CHSnapshotStore) SaveEvaluation(ctx context.Context, e models.TickerEvaluation) error {
	start := time.Now()
	row, err := snapshotRow(e)
	if err != nil {
		return err
	}
	q := `INSERT INTO ` + snapshotsTable + ` (cycle_id, cycle_at, ticker, as_of, verdict, net_score, confidence,
		momentum, momentum_class, trend, rr_kind, rr_value, rr_rating, quality, tier, alert_count, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if err := pkgch.InsertBatch(ctx, s.db, q, [][]any{row}); err != nil {
		s.l.Error("clickhouse save_evaluation error",
			applogger.String("ticker", e.Ticker),
			applogger.String("cycle_id", e.CycleID),
			applogger.Error(err),
		)
		return fmt.Errorf("save evaluation: %w", err)
	}

	if len(e.Alerts) > 0 {
		rows := make([][]any, 0, len(e.Alerts))
		for _, a := range e.Alerts {
			r, err := alertRow(a)
			if err != nil {
				return err
			}
			rows = append(rows, r)
		}
		q := `INSERT INTO ` + alertsTable + ` (id, ticker, alert_type, direction, severity, ping, confidence, reason, generated_at, metrics)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if err := pkgch.InsertBatch(ctx, s.db, q, rows); err != nil {
			s.l.Error("clickhouse save_alerts error",
				applogger.String("ticker", e.Ticker),
				applogger.Int("alerts", len(rows)),
				applogger.Error(err),
			)
			return fmt.Errorf("save alerts: %w", err)
		}
	}

	s.l.Debug("clickhouse save_evaluation ok",
		applogger.String("ticker", e.Ticker),
		applogger.Int("alerts", len(e.Alerts)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHSnapshotStore) RecentEvaluations(ctx context.Context, ticker string, limit int) ([]models.TickerEvaluation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM `+snapshotsTable+` WHERE ticker = ? ORDER BY cycle_at DESC LIMIT ?`,
		ticker, limit,
	)
	if err != nil {
		s.l.Error("clickhouse recent_evaluations query error", applogger.String("ticker", ticker), applogger.Error(err))
		return nil, fmt.Errorf("recent evaluations: %w", err)
	}
	defer rows.Close()

	out := make([]models.TickerEvaluation, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		var e models.TickerEvaluation
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			s.l.Warn("skipping undecodable snapshot", applogger.String("ticker", ticker), applogger.Error(err))
			continue
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHSnapshotStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op; the pool is owned by the clickhouse client.
func (s *CHSnapshotStore) Close() error { return nil }

func snapshotRow(e models.TickerEvaluation) ([]any, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode evaluation: %w", err)
	}
	return []any{
		e.CycleID,
		e.CycleAt.UTC(),
		e.Ticker,
		e.AsOf.UTC(),
		string(e.Signal.Verdict),
		int32(e.Signal.NetScore),
		e.Signal.Confidence,
		e.Momentum.Value,
		string(e.Momentum.Classification),
		string(e.Momentum.Trend),
		string(e.RiskReward.Ratio.Kind),
		e.RiskReward.Ratio.Value,
		string(e.RiskReward.Rating),
		e.Quality.Score,
		string(e.Quality.Tier),
		uint16(len(e.Alerts)),
		string(payload),
	}, nil
}

func alertRow(a models.AlertRecord) ([]any, error) {
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encode alert metrics: %w", err)
	}
	var ping uint8
	if a.Ping {
		ping = 1
	}
	return []any{
		a.ID.String(),
		a.Ticker,
		string(a.Type),
		string(a.Direction),
		string(a.Severity),
		ping,
		a.Confidence,
		a.Reason,
		a.GeneratedAt.UTC(),
		string(metrics),
	}, nil
}

var _ domrepo.SnapshotStore = (*CHSnapshotStore)(nil)
