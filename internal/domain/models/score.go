package models

type MomentumClass string

const (
	MomentumStrongBullish MomentumClass = "STRONG_BULLISH"
	MomentumBullish       MomentumClass = "BULLISH"
	MomentumNeutral       MomentumClass = "NEUTRAL"
	MomentumBearish       MomentumClass = "BEARISH"
	MomentumStrongBearish MomentumClass = "STRONG_BEARISH"
)

type TrendLabel string

const (
	TrendAccelerating TrendLabel = "ACCELERATING"
	TrendDecelerating TrendLabel = "DECELERATING"
	TrendStable       TrendLabel = "STABLE"
	TrendUnknown      TrendLabel = "UNKNOWN"
)

// MomentumComponents are the 0..100 parts blended into MomentumScore.Value.
type MomentumComponents struct {
	Return      float64 `json:"return"`
	Persistence float64 `json:"persistence"`
	Volume      float64 `json:"volume"`
}

// MomentumScore has one shape on every path: all fields are always set.
type MomentumScore struct {
	Ticker         string             `json:"ticker"`
	Value          float64            `json:"value"`
	Classification MomentumClass      `json:"classification"`
	Trend          TrendLabel         `json:"trend"`
	Label          string             `json:"label"`
	Components     MomentumComponents `json:"components"`
}

// NeutralMomentum is the score used when there is nothing to measure.
func NeutralMomentum(ticker string) MomentumScore {
	return MomentumScore{
		Ticker:         ticker,
		Value:          50,
		Classification: MomentumNeutral,
		Trend:          TrendUnknown,
		Label:          "[~]",
		Components:     MomentumComponents{Return: 50, Persistence: 50, Volume: 50},
	}
}

type RatioKind string

const (
	RatioFinite      RatioKind = "FINITE"
	RatioUnbounded   RatioKind = "UNBOUNDED"
	RatioUnavailable RatioKind = "UNAVAILABLE"
)

// RiskRewardRatio is a tagged value: Value is only meaningful for RatioFinite.
type RiskRewardRatio struct {
	Kind  RatioKind `json:"kind"`
	Value float64   `json:"value"`
}

func FiniteRatio(v float64) RiskRewardRatio { return RiskRewardRatio{Kind: RatioFinite, Value: v} }
func UnboundedRatio() RiskRewardRatio       { return RiskRewardRatio{Kind: RatioUnbounded} }
func UnavailableRatio() RiskRewardRatio     { return RiskRewardRatio{Kind: RatioUnavailable} }

type RiskRewardRating string

const (
	RatingExcellent RiskRewardRating = "EXCELLENT"
	RatingGood      RiskRewardRating = "GOOD"
	RatingFair      RiskRewardRating = "FAIR"
	RatingPoor      RiskRewardRating = "POOR"
	RatingUnknown   RiskRewardRating = "UNKNOWN"
)

type RiskRewardAssessment struct {
	Ticker      string           `json:"ticker"`
	UpsidePct   float64          `json:"upside_pct"`
	DownsidePct float64          `json:"downside_pct"`
	Ratio       RiskRewardRatio  `json:"ratio"`
	Rating      RiskRewardRating `json:"rating"`
}

// MeetsMinimum applies the minimum-ratio gate. Unavailable never passes.
// Unbounded passes only with positive upside and when unboundedPasses is set;
// it is never compared numerically.
func (a RiskRewardAssessment) MeetsMinimum(min float64, unboundedPasses bool) bool {
	switch a.Ratio.Kind {
	case RatioFinite:
		return a.Ratio.Value >= min
	case RatioUnbounded:
		return unboundedPasses && a.UpsidePct > 0
	default:
		return false
	}
}

type Tier string

const (
	TierStrongBuy Tier = "STRONG_BUY"
	TierBuy       Tier = "BUY"
	TierHold      Tier = "HOLD"
	TierSell      Tier = "SELL"
	TierAvoid     Tier = "AVOID"
)

// ScoreComponent records one weighted input of the quality score.
type ScoreComponent struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Weight    float64 `json:"weight"`
	Weighted  float64 `json:"weighted"`
	Available bool    `json:"available"`
	Note      string  `json:"note,omitempty"`
}

type QualityScore struct {
	Ticker     string           `json:"ticker"`
	Score      float64          `json:"score"`
	Tier       Tier             `json:"tier"`
	Components []ScoreComponent `json:"components"`
}

// Component finds a component by name.
func (q QualityScore) Component(name string) (ScoreComponent, bool) {
	for _, c := range q.Components {
		if c.Name == name {
			return c, true
		}
	}
	return ScoreComponent{}, false
}
