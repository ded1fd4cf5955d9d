// Package scoring holds the momentum, risk/reward and composite quality scorers.
// All scorers are pure: same inputs, same result, no I/O.
package scoring

import (
	"math"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/config"
	"SignalGate/pkg/util"
)

type horizon struct {
	bars   int
	weight float64
}

// roughly 1m, 3m, 6m, 1y, 2y, 3y of daily bars
var horizons = []horizon{
	{21, 0.30}, {63, 0.25}, {126, 0.20}, {252, 0.15}, {504, 0.05}, {756, 0.05},
}

type MomentumScorer struct {
	cfg config.MomentumConfig
}

func NewMomentumScorer(cfg config.MomentumConfig) *MomentumScorer {
	return &MomentumScorer{cfg: cfg}
}

// Score always returns a fully populated MomentumScore.
func (s *MomentumScorer) Score(ticker string, h models.PriceHistory) models.MomentumScore {
	closes := validCloses(h.Closes)
	if len(closes) < 2 {
		return models.NeutralMomentum(ticker)
	}

	ret, horizonScores := s.returnScore(closes)
	persist := s.persistenceScore(closes)
	vol, volOK := s.volumeScore(closes, h.Volumes)

	wr, wp, wv := s.cfg.ReturnWeight, s.cfg.PersistenceWeight, s.cfg.VolumeWeight
	if !volOK {
		wv = 0
		vol = 50
	}
	value := 50.0
	if total := wr + wp + wv; total > 0 {
		value = (ret*wr + persist*wp + vol*wv) / total
	}
	value = util.Clamp(value, 0, 100)

	class, label := classify(value)
	return models.MomentumScore{
		Ticker:         ticker,
		Value:          value,
		Classification: class,
		Trend:          s.trend(horizonScores),
		Label:          label,
		Components:     models.MomentumComponents{Return: ret, Persistence: persist, Volume: vol},
	}
}

func validCloses(in []float64) []float64 {
	out := make([]float64, 0, len(in))
	for _, c := range in {
		if util.IsFinite(c) && c > 0 {
			out = append(out, c)
		}
	}
	return out
}

// returnScore blends per-horizon return scores; it also returns the per-horizon
// scores shortest first, for the trend label.
func (s *MomentumScorer) returnScore(closes []float64) (float64, []float64) {
	last := closes[len(closes)-1]
	var sum, wsum float64
	var scores []float64
	for _, hz := range horizons {
		if len(closes) <= hz.bars {
			break
		}
		base := closes[len(closes)-1-hz.bars]
		sc := util.Clamp(50+(last/base-1)*100, 0, 100)
		scores = append(scores, sc)
		sum += sc * hz.weight
		wsum += hz.weight
	}
	if wsum == 0 {
		return util.Clamp(50+(last/closes[0]-1)*100, 0, 100), nil
	}
	return sum / wsum, scores
}

// persistenceScore looks at the trailing run of same-direction closes.
func (s *MomentumScorer) persistenceScore(closes []float64) float64 {
	dir, streak := 0, 0
	for i := len(closes) - 1; i > 0 && streak < s.cfg.MaxStreak; i-- {
		d := sign(closes[i] - closes[i-1])
		if d == 0 || (dir != 0 && d != dir) {
			break
		}
		dir = d
		streak++
	}
	return 50 + 50*float64(dir*streak)/float64(s.cfg.MaxStreak)
}

func (s *MomentumScorer) volumeScore(closes, volumes []float64) (float64, bool) {
	n := len(volumes)
	if n < 2 {
		return 0, false
	}
	last := volumes[n-1]
	start := n - 1 - s.cfg.VolumeLookback
	if start < 0 {
		start = 0
	}
	prior := make([]float64, 0, n-1-start)
	for _, v := range volumes[start : n-1] {
		if util.IsFinite(v) && v > 0 {
			prior = append(prior, v)
		}
	}
	avg := util.Mean(prior)
	if avg <= 0 || !util.IsFinite(last) || last < 0 {
		return 0, false
	}
	rv := last / avg
	strength := util.Clamp((rv-1)/(s.cfg.VolumeCap-1), 0, 1)
	dir := sign(closes[len(closes)-1] - closes[len(closes)-2])
	return 50 + 50*strength*float64(dir), true
}

func (s *MomentumScorer) trend(scores []float64) models.TrendLabel {
	if len(scores) < 2 {
		return models.TrendUnknown
	}
	// distances from neutral, projected on the long horizon's direction
	short, long := scores[0]-50, scores[1]-50
	if long == 0 {
		if short == 0 {
			return models.TrendStable
		}
		return models.TrendAccelerating
	}
	along := short * float64(sign(long))
	switch {
	case along > math.Abs(long)*s.cfg.AccelerationRatio:
		return models.TrendAccelerating
	case along < math.Abs(long)*s.cfg.DecelerationRatio:
		return models.TrendDecelerating
	default:
		return models.TrendStable
	}
}

func classify(v float64) (models.MomentumClass, string) {
	switch {
	case v >= 75:
		return models.MomentumStrongBullish, "[++]"
	case v >= 60:
		return models.MomentumBullish, "[+]"
	case v >= 40:
		return models.MomentumNeutral, "[~]"
	case v >= 25:
		return models.MomentumBearish, "[-]"
	default:
		return models.MomentumStrongBearish, "[--]"
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
