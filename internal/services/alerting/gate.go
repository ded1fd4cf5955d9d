package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/domain/repository"
	"SignalGate/pkg/config"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/retry"

	"github.com/google/uuid"
)

// GateInput is one ticker's fully computed upstream state.
type GateInput struct {
	Ticker     string
	Conditions []models.AlertCondition
	Momentum   models.MomentumScore
	RiskReward models.RiskRewardAssessment
	Sentiment  *models.SubScore
	Now        time.Time
}

// GateResult lists the alerts that were claimed and a decision per condition.
type GateResult struct {
	Alerts    []models.AlertRecord
	Decisions []models.GateDecision
}

// Gate applies per-type quality rules, then claims the dedup ledger for each
// eligible condition. Ledger failures never emit: they end SUPPRESSED.
type Gate struct {
	cfg     config.AlertsConfig
	ledger  repository.AlertLedger
	policy  *retry.Policy
	locks   *KeyedMutex
	logger  *applogger.Logger
	metrics repository.Metrics
}

func NewGate(cfg config.AlertsConfig, ledger repository.AlertLedger, policy *retry.Policy, logger *applogger.Logger, metrics repository.Metrics) *Gate {
	if logger == nil {
		logger = applogger.Nop()
	}
	if metrics == nil {
		metrics = repository.NopMetrics{}
	}
	if policy == nil {
		policy = retry.New(retry.WithClassifier(IsContention))
	}
	return &Gate{
		cfg:     cfg,
		ledger:  ledger,
		policy:  policy,
		locks:   NewKeyedMutex(),
		logger:  logger.Component("alert_gate"),
		metrics: metrics,
	}
}

// IsContention is the retry classifier for ledger claims.
func IsContention(err error) bool { return errors.Is(err, repository.ErrLedgerContention) }

// Evaluate walks every condition through the gate. The returned error is non-nil
// only when a claim exhausted its retries or ctx ended; the result is still
// complete for every condition processed.
func (g *Gate) Evaluate(ctx context.Context, in GateInput) (GateResult, error) {
	var res GateResult
	var errs []error
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	for _, c := range in.Conditions {
		d := models.GateDecision{AlertType: c.Type, State: models.GateCandidate}
		if reason, ok := g.qualify(c, in); !ok {
			d.State = models.GateRejected
			d.Reason = reason
			res.Decisions = append(res.Decisions, d)
			g.metrics.RecordGateDecision(string(c.Type), string(d.State))
			continue
		}
		d.State = models.GateEligible

		key := models.LedgerKey{Ticker: in.Ticker, AlertType: c.Type}
		claimed, last, err := g.claim(ctx, key, now)
		if !last.IsZero() {
			l := last
			d.LastSent = &l
		}
		switch {
		case err != nil:
			d.State = models.GateSuppressed
			d.Reason = "ledger error, failing closed"
			d.Err = err.Error()
			g.logger.Warn("dedup check failed, alert suppressed",
				applogger.String("ticker", in.Ticker),
				applogger.String("alert_type", string(c.Type)),
				applogger.Error(err),
			)
			g.metrics.RecordError("ledger_claim")
			if errors.Is(err, retry.ErrRetriesExhausted) || ctx.Err() != nil {
				errs = append(errs, fmt.Errorf("claim %s: %w", key, err))
			}
		case !claimed:
			d.State = models.GateSuppressed
			d.Reason = fmt.Sprintf("sent %s ago, window %s", now.Sub(last).Round(time.Second), g.cfg.DedupWindow)
		default:
			d.State = models.GateSent
			res.Alerts = append(res.Alerts, models.AlertRecord{
				ID:          uuid.New(),
				Ticker:      in.Ticker,
				Type:        c.Type,
				Direction:   c.Direction,
				Severity:    c.Severity,
				Ping:        c.Ping,
				Confidence:  c.Confidence,
				Reason:      c.Reason,
				GeneratedAt: now,
				Metrics:     c.Metrics,
			})
		}
		res.Decisions = append(res.Decisions, d)
		g.metrics.RecordGateDecision(string(c.Type), string(d.State))
	}
	return res, errors.Join(errs...)
}

func (g *Gate) qualify(c models.AlertCondition, in GateInput) (string, bool) {
	rule := g.cfg.Rule(string(c.Type))
	if !rule.Enabled {
		return "alert type disabled", false
	}
	if rule.RequireMomentum && in.Momentum.Value < g.cfg.MinMomentum {
		return fmt.Sprintf("momentum %.1f below %.1f", in.Momentum.Value, g.cfg.MinMomentum), false
	}
	if rule.RequireRiskReward && !in.RiskReward.MeetsMinimum(g.cfg.MinRiskReward, g.cfg.UnboundedRatioPasses) {
		return fmt.Sprintf("risk/reward %s below %.2f", describeRatio(in.RiskReward.Ratio), g.cfg.MinRiskReward), false
	}
	if v := g.cfg.SentimentVeto; v.Enabled && in.Sentiment != nil {
		s := in.Sentiment.Value
		switch {
		case c.Direction == models.DirectionBullish && s <= -v.Threshold:
			return fmt.Sprintf("bearish sentiment %.0f contradicts bullish alert", s), false
		case c.Direction == models.DirectionBearish && s >= v.Threshold:
			return fmt.Sprintf("bullish sentiment %.0f contradicts bearish alert", s), false
		}
	}
	return "", true
}

// claim holds the in-process key lock across the ledger round trip so two
// evaluations of the same ticker in this process never race each other.
func (g *Gate) claim(ctx context.Context, key models.LedgerKey, now time.Time) (bool, time.Time, error) {
	unlock, err := g.locks.Lock(ctx, key.String())
	if err != nil {
		return false, time.Time{}, err
	}
	defer unlock()

	var claimed bool
	var last time.Time
	err = g.policy.Do(ctx, func(ctx context.Context) error {
		var cerr error
		claimed, last, cerr = g.ledger.Claim(ctx, key, now, g.cfg.DedupWindow)
		return cerr
	})
	if err != nil {
		return false, last, err
	}
	return claimed, last, nil
}

func describeRatio(r models.RiskRewardRatio) string {
	switch r.Kind {
	case models.RatioFinite:
		return fmt.Sprintf("%.2f", r.Value)
	default:
		return string(r.Kind)
	}
}
