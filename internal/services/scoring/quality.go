package scoring

import (
	"math"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/config"
	"SignalGate/pkg/util"
)

// Component names as reported in QualityScore.Components.
const (
	ComponentMomentum    = "momentum"
	ComponentTechnical   = "technical"
	ComponentRiskReward  = "risk_reward"
	ComponentBacktest    = models.SubScoreBacktest
	ComponentRiskProfile = models.SubScoreRiskProfile
	ComponentAlerts      = models.SubScoreAlerts
	ComponentSentiment   = models.SubScoreSentiment
)

// QualityInputs is everything the composite blends. SubScores holds the
// collaborator scores (backtest, risk_profile, alerts, sentiment), already on -100..100.
type QualityInputs struct {
	Ticker     string
	Signal     models.CompositeSignal
	Momentum   models.MomentumScore
	RiskReward models.RiskRewardAssessment
	SubScores  map[string]models.SubScore
}

type QualityScorer struct {
	cfg config.QualityConfig
}

func NewQualityScorer(cfg config.QualityConfig) *QualityScorer {
	return &QualityScorer{cfg: cfg}
}

// Score is a weighted mean over every configured component; a missing
// collaborator contributes zero but keeps its weight.
func (s *QualityScorer) Score(in QualityInputs) models.QualityScore {
	w := s.cfg.Weights
	comps := []models.ScoreComponent{
		{Name: ComponentMomentum, Value: (in.Momentum.Value - 50) * 2, Weight: w.Momentum, Available: true},
		{Name: ComponentTechnical, Value: in.Signal.SignedConfidence(), Weight: w.Technical, Available: true},
		riskRewardComponent(in.RiskReward, w.RiskReward),
		external(in.SubScores, ComponentBacktest, w.Backtest),
		external(in.SubScores, ComponentRiskProfile, w.RiskProfile),
		external(in.SubScores, ComponentAlerts, w.Alerts),
		external(in.SubScores, ComponentSentiment, w.Sentiment),
	}

	var sum, wsum float64
	for i := range comps {
		comps[i].Value = util.Clamp(comps[i].Value, -100, 100)
		comps[i].Weighted = comps[i].Value * comps[i].Weight
		sum += comps[i].Weighted
		wsum += comps[i].Weight
	}
	score := 0.0
	if wsum > 0 {
		score = sum / wsum
	}

	return models.QualityScore{
		Ticker:     in.Ticker,
		Score:      score,
		Tier:       TierFor(score, s.cfg.Tiers),
		Components: comps,
	}
}

func riskRewardComponent(a models.RiskRewardAssessment, weight float64) models.ScoreComponent {
	c := models.ScoreComponent{Name: ComponentRiskReward, Weight: weight, Available: true}
	switch a.Ratio.Kind {
	case models.RatioFinite:
		c.Value = (a.Ratio.Value - 1) * 50
	case models.RatioUnbounded:
		if a.UpsidePct > 0 {
			c.Value = 100
		}
		c.Note = "unbounded"
	default:
		c.Available = false
		c.Note = "unavailable"
	}
	return c
}

func external(scores map[string]models.SubScore, name string, weight float64) models.ScoreComponent {
	c := models.ScoreComponent{Name: name, Weight: weight}
	s, ok := scores[name]
	if !ok || !util.IsFinite(s.Value) {
		c.Note = "missing"
		return c
	}
	c.Value = s.Value
	c.Note = s.Note
	c.Available = true
	return c
}

// TierFor maps every real score to exactly one tier. Scores in the band between
// Avoid and Sell go to the nearer boundary; the midpoint goes to AVOID.
func TierFor(score float64, b config.TierBoundaries) models.Tier {
	switch {
	case math.IsNaN(score):
		return models.TierHold
	case score >= b.StrongBuy:
		return models.TierStrongBuy
	case score >= b.Buy:
		return models.TierBuy
	case score >= b.Hold:
		return models.TierHold
	case score >= b.Sell:
		return models.TierSell
	case score > (b.Sell+b.Avoid)/2:
		return models.TierSell
	default:
		return models.TierAvoid
	}
}
