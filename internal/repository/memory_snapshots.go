package repository

import (
	"context"
	"sync"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
)

// MemorySnapshotStore keeps the newest evaluations per ticker in process.
// Used when ClickHouse is disabled.
type MemorySnapshotStore struct {
	mu       sync.RWMutex
	perTick  int
	byTicker map[string][]models.TickerEvaluation
}

func NewMemorySnapshotStore(perTicker int) *MemorySnapshotStore {
	if perTicker <= 0 {
		perTicker = 100
	}
	return &MemorySnapshotStore{perTick: perTicker, byTicker: make(map[string][]models.TickerEvaluation)}
}

func (s *MemorySnapshotStore) Init(context.Context) error { return nil }

func (s *MemorySnapshotStore) SaveEvaluation(_ context.Context, e models.TickerEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normTicker(e.Ticker)
	list := append(s.byTicker[key], e)
	if len(list) > s.perTick {
		list = list[len(list)-s.perTick:]
	}
	s.byTicker[key] = list
	return nil
}

// RecentEvaluations returns newest first.
func (s *MemorySnapshotStore) RecentEvaluations(_ context.Context, ticker string, limit int) ([]models.TickerEvaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byTicker[normTicker(ticker)]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]models.TickerEvaluation, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (s *MemorySnapshotStore) Health(context.Context) error { return nil }
func (s *MemorySnapshotStore) Close() error                 { return nil }

// LogPublisher stands in for Kafka when it is disabled; it only counts.
type LogPublisher struct {
	metrics domrepo.Metrics
}

func NewLogPublisher(metrics domrepo.Metrics) *LogPublisher {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &LogPublisher{metrics: metrics}
}

func (p *LogPublisher) PublishEvaluation(context.Context, models.TickerEvaluation) error {
	p.metrics.RecordMessageSent("none", "evaluations")
	return nil
}

func (p *LogPublisher) PublishAlert(context.Context, models.AlertRecord) error {
	p.metrics.RecordMessageSent("none", "alerts")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

var (
	_ domrepo.SnapshotStore   = (*MemorySnapshotStore)(nil)
	_ domrepo.ResultPublisher = (*LogPublisher)(nil)
)
