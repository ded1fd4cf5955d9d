package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	"SignalGate/internal/repository"
	"SignalGate/internal/services/alerting"
	"SignalGate/internal/services/fusion"
	"SignalGate/internal/services/scoring"
	"SignalGate/pkg/cache"
	"SignalGate/pkg/config"
	pkgkafka "SignalGate/pkg/kafka"
	"SignalGate/pkg/retry"
)

type recordingPublisher struct {
	mu          sync.Mutex
	alerts      []models.AlertRecord
	evaluations []models.TickerEvaluation
	err         error
}

// recordingPublisher drops writes on a finished context, as kafka-go does.
func (p *recordingPublisher) PublishEvaluation(ctx context.Context, e models.TickerEvaluation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evaluations = append(p.evaluations, e)
	return p.err
}

func (p *recordingPublisher) PublishAlert(ctx context.Context, a models.AlertRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingFeed struct {
	mu     sync.Mutex
	alerts []models.AlertRecord
}

func (f *recordingFeed) Broadcast(a models.AlertRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

// tickerLedger fails every claim for one ticker with a fixed error.
type tickerLedger struct {
	*repository.MemoryLedger
	ticker string
	err    error
}

func (l *tickerLedger) Claim(ctx context.Context, key models.LedgerKey, now time.Time, window time.Duration) (bool, time.Time, error) {
	if key.Ticker == l.ticker {
		return false, time.Time{}, l.err
	}
	return l.MemoryLedger.Claim(ctx, key, now, window)
}

// cancellingLedger cancels the cycle right after the first successful claim.
type cancellingLedger struct {
	*repository.MemoryLedger
	once   sync.Once
	cancel context.CancelFunc
}

func (l *cancellingLedger) Claim(ctx context.Context, key models.LedgerKey, now time.Time, window time.Duration) (bool, time.Time, error) {
	ok, last, err := l.MemoryLedger.Claim(ctx, key, now, window)
	if ok && err == nil {
		l.once.Do(l.cancel)
	}
	return ok, last, err
}

type failingSnapshots struct{ *repository.MemorySnapshotStore }

func (failingSnapshots) SaveEvaluation(context.Context, models.TickerEvaluation) error {
	return errors.New("clickhouse: connection reset")
}

type fixture struct {
	runner    *CycleRunner
	publisher *recordingPublisher
	feed      *recordingFeed
	snapshots domrepo.SnapshotStore
	store     *repository.CacheStore
}

func newFixture(t *testing.T, ledger domrepo.AlertLedger, snapshots domrepo.SnapshotStore) *fixture {
	t.Helper()
	cfg := config.Default()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	store := repository.NewCacheStore(mc, time.Hour, time.Hour)
	if snapshots == nil {
		snapshots = repository.NewMemorySnapshotStore(10)
	}
	pub := &recordingPublisher{}
	feed := &recordingFeed{}
	policy := retry.New(
		retry.WithMaxAttempts(3),
		retry.WithIntervals(time.Millisecond, time.Millisecond),
		retry.WithClassifier(alerting.IsContention),
	)

	ev := NewEvaluator(EvaluatorDeps{
		Fusion:     fusion.NewEngine(cfg.Fusion),
		Momentum:   scoring.NewMomentumScorer(cfg.Momentum),
		RiskReward: scoring.NewRiskRewardCalculator(),
		Quality:    scoring.NewQualityScorer(cfg.Quality),
		Detector:   alerting.NewDetector(cfg.Alerts),
		Gate:       alerting.NewGate(cfg.Alerts, ledger, policy, nil, nil),
		Snapshots:  snapshots,
		Cache:      store,
		Publisher:  pub,
		Feed:       feed,
	})
	cycle := cfg.Cycle
	cycle.Workers = 4
	return &fixture{
		runner:    NewCycleRunner(ev, store, cycle, nil, nil),
		publisher: pub,
		feed:      feed,
		snapshots: snapshots,
		store:     store,
	}
}

// gapDown opens 8% below the previous close and trades 10% below it:
// PRICE_MOVE_DOWN and GAP_DOWN, neither held to momentum or risk/reward.
func gapDown(ticker string) models.TickerReadings {
	return models.TickerReadings{
		Ticker: ticker,
		Price:  90,
		Market: models.MarketData{Open: 92, PrevClose: 100},
	}
}

func (f *fixture) runAt(t *testing.T, at time.Time, req CycleRequest) models.CycleReport {
	t.Helper()
	f.runner.now = func() time.Time { return at }
	rep, err := f.runner.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return rep
}

func TestCycleEmitsThenSuppressesWithinWindow(t *testing.T) {
	f := newFixture(t, repository.NewMemoryLedger(), nil)
	t0 := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	req := CycleRequest{Readings: []models.TickerReadings{gapDown("aaa")}, Tickers: []string{"BBB"}}

	rep := f.runAt(t, t0, req)
	if len(rep.Results) != 1 || rep.Results[0].Ticker != "AAA" {
		t.Fatalf("results = %+v", rep.Results)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Ticker != "BBB" || rep.Failures[0].Stage != models.StageInput {
		t.Fatalf("failures = %+v", rep.Failures)
	}
	if got := rep.AlertCount(); got != 2 {
		t.Fatalf("alerts at t0 = %d, want 2", got)
	}
	if len(f.publisher.alerts) != 2 || len(f.feed.alerts) != 2 || len(f.publisher.evaluations) != 1 {
		t.Fatalf("published %d alerts, fed %d, %d evaluations", len(f.publisher.alerts), len(f.feed.alerts), len(f.publisher.evaluations))
	}

	rep = f.runAt(t, t0.Add(6*time.Hour), req)
	if got := rep.AlertCount(); got != 0 {
		t.Fatalf("alerts at +6h = %d, want 0", got)
	}
	for _, d := range rep.Results[0].Decisions {
		if d.State != models.GateSuppressed || d.LastSent == nil || !d.LastSent.Equal(t0) {
			t.Fatalf("decision at +6h = %+v", d)
		}
	}

	rep = f.runAt(t, t0.Add(25*time.Hour), req)
	if got := rep.AlertCount(); got != 2 {
		t.Fatalf("alerts at +25h = %d, want 2", got)
	}
}

func TestCycleUsesBufferedReadings(t *testing.T) {
	f := newFixture(t, repository.NewMemoryLedger(), nil)
	ctx := context.Background()
	if err := f.store.Put(ctx, gapDown("CCC")); err != nil {
		t.Fatalf("put: %v", err)
	}

	// no tickers requested and none configured: every buffered ticker runs
	rep := f.runAt(t, time.Now().UTC(), CycleRequest{Trigger: models.TriggerSchedule})
	if len(rep.Results) != 1 || rep.Results[0].Ticker != "CCC" || rep.Trigger != models.TriggerSchedule {
		t.Fatalf("report = %+v", rep)
	}
	last, ok := f.runner.LastReport()
	if !ok || last.ID != rep.ID {
		t.Fatalf("last report = %+v, %v", last, ok)
	}
}

func TestCycleLedgerExhaustionFailsOnlyThatTicker(t *testing.T) {
	ledger := &tickerLedger{MemoryLedger: repository.NewMemoryLedger(), ticker: "BAD", err: domrepo.ErrLedgerContention}
	f := newFixture(t, ledger, nil)

	rep := f.runAt(t, time.Now().UTC(), CycleRequest{Readings: []models.TickerReadings{gapDown("GOOD"), gapDown("BAD")}})
	if len(rep.Results) != 1 || rep.Results[0].Ticker != "GOOD" {
		t.Fatalf("results = %+v", rep.Results)
	}
	if len(rep.Failures) != 1 {
		t.Fatalf("failures = %+v", rep.Failures)
	}
	fail := rep.Failures[0]
	if fail.Ticker != "BAD" || fail.Stage != models.StageAlerting || fail.Evaluation == nil {
		t.Fatalf("failure = %+v", fail)
	}
	if fail.Evaluation.Quality.Tier == "" || len(fail.Evaluation.Alerts) != 0 {
		t.Fatalf("failure should carry scores and no alerts: %+v", fail.Evaluation)
	}
	for _, d := range fail.Evaluation.Decisions {
		if d.State != models.GateSuppressed || d.Err == "" {
			t.Fatalf("decision = %+v", d)
		}
	}
}

func TestCycleLedgerUnavailableSuppressesWithoutFailing(t *testing.T) {
	ledger := &tickerLedger{MemoryLedger: repository.NewMemoryLedger(), ticker: "AAA", err: domrepo.ErrLedgerUnavailable}
	f := newFixture(t, ledger, nil)

	rep := f.runAt(t, time.Now().UTC(), CycleRequest{Readings: []models.TickerReadings{gapDown("AAA")}})
	if len(rep.Failures) != 0 || len(rep.Results) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.AlertCount() != 0 || len(f.feed.alerts) != 0 {
		t.Fatalf("no alert may leave while the ledger is down")
	}
}

func TestCycleSnapshotFailureStillPublishesClaimedAlerts(t *testing.T) {
	f := newFixture(t, repository.NewMemoryLedger(), failingSnapshots{repository.NewMemorySnapshotStore(1)})

	rep := f.runAt(t, time.Now().UTC(), CycleRequest{Readings: []models.TickerReadings{gapDown("AAA")}})
	if len(rep.Results) != 0 || len(rep.Failures) != 1 || rep.Failures[0].Stage != models.StageSnapshot {
		t.Fatalf("report = %+v", rep)
	}
	if len(f.publisher.alerts) != 2 {
		t.Fatalf("published alerts = %d, want 2", len(f.publisher.alerts))
	}
}

func TestCycleCancelledMidTickerStillDeliversClaimedAlerts(t *testing.T) {
	ledger := &cancellingLedger{MemoryLedger: repository.NewMemoryLedger()}
	f := newFixture(t, ledger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ledger.cancel = cancel

	t0 := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	f.runner.now = func() time.Time { return t0 }
	rep, err := f.runner.Run(ctx, CycleRequest{Readings: []models.TickerReadings{gapDown("AAA")}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !rep.Cancelled {
		t.Fatal("report should record the cancellation")
	}
	if len(rep.Failures) != 0 || len(rep.Results) != 1 {
		t.Fatalf("results = %+v, failures = %+v", rep.Results, rep.Failures)
	}
	for _, d := range rep.Results[0].Decisions {
		if d.State != models.GateSent {
			t.Fatalf("decision %s = %s (%s), want SENT", d.AlertType, d.State, d.Err)
		}
	}
	if len(f.publisher.alerts) != 2 || len(f.publisher.evaluations) != 1 {
		t.Fatalf("published %d alerts and %d evaluations, want 2 and 1", len(f.publisher.alerts), len(f.publisher.evaluations))
	}
	if rows, err := f.snapshots.RecentEvaluations(context.Background(), "AAA", 1); err != nil || len(rows) != 1 {
		t.Fatalf("snapshot rows = %d, err = %v", len(rows), err)
	}
}

func TestCycleSurvivesOverflowingInput(t *testing.T) {
	f := newFixture(t, repository.NewMemoryLedger(), nil)
	r := gapDown("HUGE")
	r.Price = 0.5
	r.Targets = []float64{1e308}

	rep := f.runAt(t, time.Now().UTC(), CycleRequest{Readings: []models.TickerReadings{r}})
	if len(rep.Results) != 1 {
		t.Fatalf("results = %+v, failures = %+v", rep.Results, rep.Failures)
	}
	if got := rep.Results[0].RiskReward.Ratio.Kind; got != models.RatioUnavailable {
		t.Fatalf("ratio kind = %s, want UNAVAILABLE", got)
	}
}

func TestEvaluatorRecoversScoringPanic(t *testing.T) {
	// no fusion engine wired: scoring dereferences nil
	ev := NewEvaluator(EvaluatorDeps{})
	_, fail := ev.Evaluate(context.Background(), CycleMeta{ID: "c1", At: time.Now()}, models.TickerReadings{Ticker: "AAA", Price: 10})
	if fail == nil || fail.Stage != models.StageScoring || fail.Ticker != "AAA" {
		t.Fatalf("failure = %+v, want scoring failure for AAA", fail)
	}
}

func TestCycleRejectsOverlap(t *testing.T) {
	f := newFixture(t, repository.NewMemoryLedger(), nil)
	f.runner.running.Store(true)
	if _, err := f.runner.Run(context.Background(), CycleRequest{}); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("err = %v, want ErrCycleRunning", err)
	}
}

func TestCycleCancelledBeforeStart(t *testing.T) {
	f := newFixture(t, repository.NewMemoryLedger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := f.runner.Run(ctx, CycleRequest{Readings: []models.TickerReadings{gapDown("AAA"), gapDown("BBB")}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !rep.Cancelled || len(rep.Results) != 0 || len(rep.Skipped) != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if len(f.publisher.alerts) != 0 {
		t.Fatalf("cancelled cycle published alerts")
	}
}

func TestCycleCapsTickerCount(t *testing.T) {
	f := newFixture(t, repository.NewMemoryLedger(), nil)
	f.runner.cfg.MaxTickers = 1

	rep := f.runAt(t, time.Now().UTC(), CycleRequest{Readings: []models.TickerReadings{gapDown("AAA"), gapDown("BBB")}})
	if len(rep.Results) != 1 || len(rep.Skipped) != 1 || rep.Skipped[0] != "BBB" {
		t.Fatalf("report = %+v", rep)
	}
}

func TestKafkaReadingsHandler(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	store := repository.NewCacheStore(mc, time.Hour, time.Hour)
	h := NewKafkaReadingsHandler("signalgate.readings", store, nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		payload   string
		permanent bool
	}{
		{name: "valid", payload: `{"ticker":"$nvda","price":120.5,"indicators":{"rsi":44}}`},
		{name: "not json", payload: `{"ticker":`, permanent: true},
		{name: "missing ticker", payload: `{"price":1}`, permanent: true},
		{name: "negative price", payload: `{"ticker":"X","price":-1}`, permanent: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(ctx, []byte(tt.payload))
			var perm *pkgkafka.PermanentError
			if got := errors.As(err, &perm); got != tt.permanent {
				t.Fatalf("permanent = %v, want %v (err=%v)", got, tt.permanent, err)
			}
			if !tt.permanent && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	r, err := store.Latest(ctx, "NVDA")
	if err != nil || r.Price != 120.5 || r.AsOf.IsZero() {
		t.Fatalf("stored = %+v, %v", r, err)
	}
}

func TestQueriesLatestFallsBackToSnapshots(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	store := repository.NewCacheStore(mc, time.Hour, time.Hour)
	snaps := repository.NewMemorySnapshotStore(5)
	ledger := repository.NewMemoryLedger()
	q := NewQueries(store, snaps, ledger)
	ctx := context.Background()

	if _, err := q.LatestEvaluation(ctx, "AAA"); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	_ = snaps.SaveEvaluation(ctx, models.TickerEvaluation{CycleID: "old", Ticker: "AAA"})
	got, err := q.LatestEvaluation(ctx, "aaa")
	if err != nil || got.CycleID != "old" {
		t.Fatalf("fallback = %+v, %v", got, err)
	}
	_ = store.PutEvaluation(ctx, models.TickerEvaluation{CycleID: "new", Ticker: "AAA"})
	got, _ = q.LatestEvaluation(ctx, "AAA")
	if got.CycleID != "new" {
		t.Fatalf("cache should win, got %q", got.CycleID)
	}

	if _, err := q.LedgerEntry(ctx, "AAA", "NOT_A_TYPE"); err == nil {
		t.Fatalf("unknown alert type should error")
	}
	_, _, _ = ledger.Claim(ctx, models.LedgerKey{Ticker: "AAA", AlertType: models.AlertGapUp}, time.Now(), time.Hour)
	if e, err := q.LedgerEntry(ctx, "aaa", "GAP_UP"); err != nil || e.LastSent.IsZero() {
		t.Fatalf("ledger entry = %+v, %v", e, err)
	}
}
