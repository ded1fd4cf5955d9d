package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	"SignalGate/internal/services/alerting"
	"SignalGate/internal/services/collaborators"
	"SignalGate/internal/services/fusion"
	"SignalGate/internal/services/scoring"
	applogger "SignalGate/pkg/logger"
)

// AlertFeed receives every emitted alert for live subscribers.
type AlertFeed interface {
	Broadcast(a models.AlertRecord)
}

// CycleMeta stamps every evaluation of one cycle.
type CycleMeta struct {
	ID string
	At time.Time
}

// Evaluator runs the per-ticker pipeline: fuse, score, detect, gate, persist, publish.
// Scoring is pure; only the gate and the sinks touch shared state.
type Evaluator struct {
	fusion    *fusion.Engine
	momentum  *scoring.MomentumScorer
	rr        *scoring.RiskRewardCalculator
	quality   *scoring.QualityScorer
	detector  *alerting.Detector
	gate      *alerting.Gate
	subscores *collaborators.Resolver

	snapshots domrepo.SnapshotStore
	cache     domrepo.EvaluationCache
	publisher domrepo.ResultPublisher
	feed      AlertFeed

	sinkTimeout time.Duration

	l       *applogger.Logger
	metrics domrepo.Metrics
}

// defaultSinkTimeout bounds persistence and publishing once alerts are claimed.
const defaultSinkTimeout = 10 * time.Second

// EvaluatorDeps wires the pipeline. SinkTimeout bounds the snapshot write and
// publishing after the gate.
type EvaluatorDeps struct {
	Fusion      *fusion.Engine
	Momentum    *scoring.MomentumScorer
	RiskReward  *scoring.RiskRewardCalculator
	Quality     *scoring.QualityScorer
	Detector    *alerting.Detector
	Gate        *alerting.Gate
	SubScores   *collaborators.Resolver
	Snapshots   domrepo.SnapshotStore
	Cache       domrepo.EvaluationCache
	Publisher   domrepo.ResultPublisher
	Feed        AlertFeed
	SinkTimeout time.Duration
	Logger      *applogger.Logger
	Metrics     domrepo.Metrics
}

func NewEvaluator(d EvaluatorDeps) *Evaluator {
	if d.Logger == nil {
		d.Logger = applogger.Nop()
	}
	if d.Metrics == nil {
		d.Metrics = domrepo.NopMetrics{}
	}
	if d.SinkTimeout <= 0 {
		d.SinkTimeout = defaultSinkTimeout
	}
	if d.SubScores == nil {
		d.SubScores = collaborators.NewResolver(nil, d.Logger, d.Metrics)
	}
	return &Evaluator{
		fusion:      d.Fusion,
		momentum:    d.Momentum,
		rr:          d.RiskReward,
		quality:     d.Quality,
		detector:    d.Detector,
		gate:        d.Gate,
		subscores:   d.SubScores,
		snapshots:   d.Snapshots,
		cache:       d.Cache,
		publisher:   d.Publisher,
		feed:        d.Feed,
		sinkTimeout: d.SinkTimeout,
		l:           d.Logger.Component("evaluator"),
		metrics:     d.Metrics,
	}
}

// Score computes every score for r without touching the ledger or any sink.
func (e *Evaluator) Score(ctx context.Context, meta CycleMeta, r models.TickerReadings) (models.TickerEvaluation, []models.AlertCondition) {
	signal := e.fusion.Fuse(r)
	momentum := e.momentum.Score(r.Ticker, r.History)
	rr := e.rr.Assess(r)
	conds := e.detector.Detect(r)

	subs := e.subscores.Resolve(ctx, r)
	if s, ok := r.SubScore(models.SubScoreAlerts); ok {
		subs[models.SubScoreAlerts] = s
	} else {
		subs[models.SubScoreAlerts] = alerting.AlertsSubScore(conds)
	}

	q := e.quality.Score(scoring.QualityInputs{
		Ticker:     r.Ticker,
		Signal:     signal,
		Momentum:   momentum,
		RiskReward: rr,
		SubScores:  subs,
	})

	e.metrics.RecordVerdict(string(signal.Verdict))
	e.metrics.RecordQuality(r.Ticker, string(q.Tier), q.Score)

	return models.TickerEvaluation{
		CycleID:    meta.ID,
		CycleAt:    meta.At,
		Ticker:     r.Ticker,
		AsOf:       r.AsOf,
		Signal:     signal,
		Momentum:   momentum,
		RiskReward: rr,
		Quality:    q,
	}, conds
}

// Evaluate runs the full pipeline for one ticker. A nil failure means the
// evaluation completed; otherwise the failure carries whatever was computed.
func (e *Evaluator) Evaluate(ctx context.Context, meta CycleMeta, r models.TickerReadings) (models.TickerEvaluation, *models.TickerFailure) {
	start := time.Now()
	outcome := "ok"
	defer func() { e.metrics.RecordTickerEvaluation(outcome, time.Since(start)) }()

	if r.Ticker == "" {
		outcome = models.StageInput
		return models.TickerEvaluation{}, &models.TickerFailure{Stage: models.StageInput, Error: "missing ticker"}
	}
	if err := ctx.Err(); err != nil {
		outcome = "cancelled"
		return models.TickerEvaluation{}, &models.TickerFailure{Ticker: r.Ticker, Stage: models.StageInput, Error: err.Error()}
	}

	eval, conds, err := e.safeScore(ctx, meta, r)
	if err != nil {
		outcome = models.StageScoring
		return models.TickerEvaluation{}, e.failure(models.TickerEvaluation{Ticker: r.Ticker, CycleID: meta.ID}, models.StageScoring, err)
	}

	var sentiment *models.SubScore
	if c, ok := eval.Quality.Component(scoring.ComponentSentiment); ok && c.Available {
		sentiment = &models.SubScore{Value: c.Value, Note: c.Note}
	}

	gateRes, gateErr := e.gate.Evaluate(ctx, alerting.GateInput{
		Ticker:     r.Ticker,
		Conditions: conds,
		Momentum:   eval.Momentum,
		RiskReward: eval.RiskReward,
		Sentiment:  sentiment,
		Now:        meta.At,
	})
	eval.Alerts = gateRes.Alerts
	eval.Decisions = gateRes.Decisions

	var fail *models.TickerFailure
	if gateErr != nil {
		fail = e.failure(eval, models.StageAlerting, gateErr)
	}

	// claimed alerts are persisted and published even when another claim failed
	// or the caller went away; the ledger already records them as sent
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sinkTimeout)
	defer cancel()
	if err := e.persist(sctx, eval); err != nil && fail == nil {
		fail = e.failure(eval, models.StageSnapshot, err)
	}
	if err := e.publish(sctx, eval); err != nil && fail == nil {
		fail = e.failure(eval, models.StagePublish, err)
	}

	if fail != nil {
		outcome = fail.Stage
		return eval, fail
	}
	if len(eval.Alerts) > 0 {
		e.l.Info("alerts emitted",
			applogger.String("ticker", eval.Ticker),
			applogger.Int("alerts", len(eval.Alerts)),
			applogger.String("tier", string(eval.Quality.Tier)),
		)
	}
	return eval, nil
}

// safeScore turns a panic in the pure scoring stage into an error so one bad
// input cannot take the batch down.
func (e *Evaluator) safeScore(ctx context.Context, meta CycleMeta, r models.TickerReadings) (eval models.TickerEvaluation, conds []models.AlertCondition, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scoring panicked: %v", p)
		}
	}()
	eval, conds = e.Score(ctx, meta, r)
	return eval, conds, nil
}

func (e *Evaluator) failure(eval models.TickerEvaluation, stage string, err error) *models.TickerFailure {
	e.metrics.RecordError("ticker_" + stage)
	e.l.Error("ticker evaluation failed",
		applogger.String("ticker", eval.Ticker),
		applogger.String("stage", stage),
		applogger.String("cycle_id", eval.CycleID),
		applogger.Error(err),
	)
	ev := eval
	return &models.TickerFailure{Ticker: eval.Ticker, Stage: stage, Error: err.Error(), Evaluation: &ev}
}

func (e *Evaluator) persist(ctx context.Context, eval models.TickerEvaluation) error {
	if e.snapshots != nil {
		start := time.Now()
		err := e.snapshots.SaveEvaluation(ctx, eval)
		e.metrics.RecordLatency("snapshot_save", time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	if e.cache != nil {
		if err := e.cache.PutEvaluation(ctx, eval); err != nil {
			// read-side cache only; the snapshot is the record
			e.metrics.RecordError("evaluation_cache")
			e.l.Warn("cache evaluation", applogger.String("ticker", eval.Ticker), applogger.Error(err))
		}
	}
	return nil
}

func (e *Evaluator) publish(ctx context.Context, eval models.TickerEvaluation) error {
	for _, a := range eval.Alerts {
		if e.feed != nil {
			e.feed.Broadcast(a)
		}
	}
	if e.publisher == nil {
		return nil
	}
	var errs []error
	for _, a := range eval.Alerts {
		if err := e.publisher.PublishAlert(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("publish alert %s: %w", a.Type, err))
		}
	}
	if err := e.publisher.PublishEvaluation(ctx, eval); err != nil {
		errs = append(errs, fmt.Errorf("publish evaluation: %w", err))
	}
	return errors.Join(errs...)
}
