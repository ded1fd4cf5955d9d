package scoring

import (
	"math"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/util"

	"github.com/shopspring/decimal"
)

type RiskRewardCalculator struct{}

func NewRiskRewardCalculator() *RiskRewardCalculator { return &RiskRewardCalculator{} }

// Assess derives upside from price targets and downside from the worst historical
// adverse excursion. Zero downside yields the unbounded sentinel, never a division.
func (c *RiskRewardCalculator) Assess(r models.TickerReadings) models.RiskRewardAssessment {
	out := unavailable(r.Ticker)

	price := r.Price
	if !util.IsFinite(price) || price <= 0 {
		return out
	}
	target, ok := targetPrice(r)
	if !ok {
		return out
	}

	upside := (target - price) / price * 100
	downside := downsidePct(r)
	// extreme but finite inputs can overflow; such figures are unusable
	if !util.IsFinite(upside) || !util.IsFinite(downside) {
		return out
	}
	out.UpsidePct = round2(upside)
	out.DownsidePct = round2(downside)

	if out.DownsidePct <= 0 {
		out.Ratio = models.UnboundedRatio()
		out.Rating = models.RatingPoor
		if out.UpsidePct > 0 {
			out.Rating = models.RatingExcellent
		}
		return out
	}

	ratio := decimal.NewFromFloat(upside).Div(decimal.NewFromFloat(downside)).Round(2)
	v, _ := ratio.Float64()
	if !util.IsFinite(v) {
		return unavailable(r.Ticker)
	}
	out.Ratio = models.FiniteRatio(v)
	out.Rating = rate(v)
	return out
}

func unavailable(ticker string) models.RiskRewardAssessment {
	return models.RiskRewardAssessment{Ticker: ticker, Ratio: models.UnavailableRatio(), Rating: models.RatingUnknown}
}

func targetPrice(r models.TickerReadings) (float64, bool) {
	var pos []float64
	for _, t := range r.Targets {
		if util.IsFinite(t) && t > 0 {
			pos = append(pos, t)
		}
	}
	if len(pos) > 0 {
		return util.Mean(pos), true
	}
	if h := r.Market.High52W; util.IsFinite(h) && h > 0 {
		return h, true
	}
	return 0, false
}

func downsidePct(r models.TickerReadings) float64 {
	if m := r.MaxAdverseExcursionPct; m != nil && util.IsFinite(*m) {
		return math.Abs(*m)
	}
	return MaxDrawdownPct(r.History.Closes)
}

// MaxDrawdownPct is the largest peak-to-trough fall of closes, as a positive percentage.
func MaxDrawdownPct(closes []float64) float64 {
	var peak, worst float64
	for _, c := range closes {
		if !util.IsFinite(c) || c <= 0 {
			continue
		}
		if c > peak {
			peak = c
			continue
		}
		if dd := (peak - c) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

func rate(ratio float64) models.RiskRewardRating {
	switch {
	case ratio > 3:
		return models.RatingExcellent
	case ratio > 2:
		return models.RatingGood
	case ratio > 1:
		return models.RatingFair
	default:
		return models.RatingPoor
	}
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
