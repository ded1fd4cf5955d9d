// Package alerting detects alert conditions and gates them through quality checks
// and the shared dedup ledger.
package alerting

import (
	"fmt"
	"math"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/services/scoring"
	"SignalGate/pkg/config"
	"SignalGate/pkg/util"
)

const maxConfidence = 0.9

// Detector finds raw conditions in one ticker's readings. It does no gating.
type Detector struct {
	cfg config.AlertsConfig
}

func NewDetector(cfg config.AlertsConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Detect returns conditions in alert-type order. Missing inputs simply skip a check.
func (d *Detector) Detect(r models.TickerReadings) []models.AlertCondition {
	price := r.Price
	if !util.IsFinite(price) || price <= 0 {
		return nil
	}
	var out []models.AlertCondition
	m := r.Market

	if hi := m.High52W; hi > 0 {
		dist := (hi - price) / hi * 100
		if dist <= d.cfg.Near52WHighPct {
			out = append(out, models.AlertCondition{
				Type:       models.AlertBreakoutNearHigh,
				Direction:  models.DirectionBullish,
				Severity:   models.SeverityMedium,
				Confidence: proximityConfidence(math.Max(dist, 0), d.cfg.Near52WHighPct),
				Reason:     fmt.Sprintf("price %.2f within %.1f%% of 52w high %.2f", price, math.Max(dist, 0), hi),
				Metrics:    map[string]float64{"price": price, "high_52w": hi, "distance_pct": dist},
			})
		}
	}

	if lo := m.Low52W; lo > 0 {
		dist := (price - lo) / lo * 100
		if dist <= d.cfg.Near52WLowPct {
			out = append(out, models.AlertCondition{
				Type:       models.AlertBounceNearLow,
				Direction:  models.DirectionBullish,
				Severity:   models.SeverityMedium,
				Confidence: proximityConfidence(math.Max(dist, 0), d.cfg.Near52WLowPct),
				Reason:     fmt.Sprintf("price %.2f within %.1f%% of 52w low %.2f", price, math.Max(dist, 0), lo),
				Metrics:    map[string]float64{"price": price, "low_52w": lo, "distance_pct": dist},
			})
		}
	}

	if sma, ok := r.Indicator(models.IndSMA200); ok && sma > 0 {
		dist := (price - sma) / sma * 100
		if math.Abs(dist) <= d.cfg.SMA200TestPct {
			dir := models.DirectionBullish
			if dist < 0 {
				dir = models.DirectionBearish
			}
			out = append(out, models.AlertCondition{
				Type:       models.AlertSMA200Test,
				Direction:  dir,
				Severity:   models.SeverityLow,
				Confidence: proximityConfidence(math.Abs(dist), d.cfg.SMA200TestPct),
				Reason:     fmt.Sprintf("price %.2f testing SMA200 %.2f (%+.2f%%)", price, sma, dist),
				Metrics:    map[string]float64{"price": price, "sma_200": sma, "distance_pct": dist},
			})
		}
	}

	if rv, ok := volumeRatio(r); ok && rv >= d.cfg.VolumeRatio {
		c := models.AlertCondition{
			Type:       models.AlertVolumeSpike,
			Direction:  sessionDirection(price, m.PrevClose),
			Severity:   models.SeverityMedium,
			Confidence: math.Min(0.5+(rv-d.cfg.VolumeRatio)*0.1, maxConfidence),
			Reason:     fmt.Sprintf("volume %.1fx average", rv),
			Metrics:    map[string]float64{"volume_ratio": rv, "volume": m.Volume, "avg_volume": m.AvgVolume},
		}
		if rv >= d.cfg.ExtremeVolumeRatio {
			c.Severity = models.SeverityHigh
			c.Ping = true
		}
		out = append(out, c)
	}

	if pc := m.PrevClose; pc > 0 {
		move := (price - pc) / pc * 100
		if math.Abs(move) >= d.cfg.PriceMovePct {
			c := moveCondition(models.AlertPriceMoveUp, models.AlertPriceMoveDown, move, d.cfg.PriceMovePct)
			c.Reason = fmt.Sprintf("price moved %+.2f%% from previous close %.2f", move, pc)
			c.Metrics = map[string]float64{"price": price, "prev_close": pc, "change_pct": move}
			out = append(out, c)
		}
		if open := m.Open; open > 0 {
			gap := (open - pc) / pc * 100
			if math.Abs(gap) >= d.cfg.GapPct {
				c := moveCondition(models.AlertGapUp, models.AlertGapDown, gap, d.cfg.GapPct)
				c.Reason = fmt.Sprintf("opened %+.2f%% from previous close %.2f", gap, pc)
				c.Metrics = map[string]float64{"open": open, "prev_close": pc, "gap_pct": gap}
				out = append(out, c)
			}
		}
	}

	if dd := drawdownPct(r); dd > d.cfg.DrawdownWarnPct {
		out = append(out, models.AlertCondition{
			Type:       models.AlertHighDrawdownRisk,
			Direction:  models.DirectionBearish,
			Severity:   models.SeverityHigh,
			Confidence: math.Min(0.5+(dd-d.cfg.DrawdownWarnPct)/100, maxConfidence),
			Reason:     fmt.Sprintf("historical drawdown -%.1f%% beyond -%.0f%%", dd, d.cfg.DrawdownWarnPct),
			Metrics:    map[string]float64{"drawdown_pct": -dd},
		})
	}
	return out
}

// AlertsSubScore condenses detected conditions into the -100..100 alerts sub-score.
func AlertsSubScore(conds []models.AlertCondition) models.SubScore {
	if len(conds) == 0 {
		return models.SubScore{Value: 0, Note: "no active conditions"}
	}
	var sum float64
	for _, c := range conds {
		sum += float64(c.Direction.Sign()) * c.Confidence * 50
	}
	return models.SubScore{
		Value: util.Clamp(sum, -100, 100),
		Note:  fmt.Sprintf("%d active conditions", len(conds)),
	}
}

// proximityConfidence grows from 0.5 at the threshold edge to 0.9 at zero distance.
func proximityConfidence(dist, threshold float64) float64 {
	return math.Min(0.5+(1-dist/threshold)*0.4, maxConfidence)
}

func moveCondition(up, down models.AlertType, pct, threshold float64) models.AlertCondition {
	c := models.AlertCondition{
		Type:       up,
		Direction:  models.DirectionBullish,
		Severity:   models.SeverityMedium,
		Confidence: math.Min(0.5+math.Abs(pct)/10, maxConfidence),
	}
	if pct < 0 {
		c.Type = down
		c.Direction = models.DirectionBearish
	}
	if math.Abs(pct) >= 2*threshold {
		c.Severity = models.SeverityHigh
		c.Ping = true
	}
	return c
}

func volumeRatio(r models.TickerReadings) (float64, bool) {
	m := r.Market
	if m.Volume > 0 && m.AvgVolume > 0 {
		return m.Volume / m.AvgVolume, true
	}
	vols := r.History.Volumes
	if len(vols) < 2 {
		return 0, false
	}
	start := len(vols) - 21
	if start < 0 {
		start = 0
	}
	avg := util.Mean(vols[start : len(vols)-1])
	last := vols[len(vols)-1]
	if avg <= 0 || !util.IsFinite(last) {
		return 0, false
	}
	return last / avg, true
}

func sessionDirection(price, prevClose float64) models.Direction {
	switch {
	case prevClose <= 0 || price == prevClose:
		return models.DirectionNeutral
	case price > prevClose:
		return models.DirectionBullish
	default:
		return models.DirectionBearish
	}
}

func drawdownPct(r models.TickerReadings) float64 {
	if m := r.MaxAdverseExcursionPct; m != nil && util.IsFinite(*m) {
		return math.Abs(*m)
	}
	return scoring.MaxDrawdownPct(r.History.Closes)
}
