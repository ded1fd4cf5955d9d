package scoring

import (
	"math"
	"math/rand"
	"testing"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/config"
)

func newMomentum() *MomentumScorer {
	return NewMomentumScorer(config.Default().Momentum)
}

// ramp builds n closes growing by step percent per bar.
func ramp(n int, start, stepPct float64) []float64 {
	out := make([]float64, n)
	v := start
	for i := range out {
		out[i] = v
		v *= 1 + stepPct/100
	}
	return out
}

func assertComplete(t *testing.T, m models.MomentumScore) {
	t.Helper()
	if m.Value < 0 || m.Value > 100 || math.IsNaN(m.Value) {
		t.Fatalf("value %f out of range", m.Value)
	}
	if m.Classification == "" || m.Trend == "" || m.Label == "" {
		t.Fatalf("incomplete score: %+v", m)
	}
}

func TestMomentumDegenerateHistory(t *testing.T) {
	tests := []struct {
		name    string
		history models.PriceHistory
	}{
		{name: "empty", history: models.PriceHistory{}},
		{name: "single close", history: models.PriceHistory{Closes: []float64{10}}},
		{name: "only invalid closes", history: models.PriceHistory{Closes: []float64{0, -1, math.NaN(), math.Inf(1)}}},
		{name: "volumes without closes", history: models.PriceHistory{Volumes: []float64{1, 2, 3}}},
	}

	s := newMomentum()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := s.Score("ABC", tt.history)
			assertComplete(t, m)
			if m != models.NeutralMomentum("ABC") {
				t.Fatalf("got %+v, want neutral default", m)
			}
		})
	}
}

func TestMomentumFlatPrice(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 50
	}
	m := newMomentum().Score("FLAT", models.PriceHistory{Closes: closes})
	assertComplete(t, m)
	if m.Value != 50 || m.Classification != models.MomentumNeutral {
		t.Fatalf("flat history scored %+v", m)
	}
	if m.Trend != models.TrendUnknown {
		t.Fatalf("trend = %s, want UNKNOWN with one horizon", m.Trend)
	}
}

func TestMomentumDirection(t *testing.T) {
	s := newMomentum()
	up := s.Score("UP", models.PriceHistory{Closes: ramp(80, 100, 1)})
	down := s.Score("DOWN", models.PriceHistory{Closes: ramp(80, 100, -1)})

	assertComplete(t, up)
	assertComplete(t, down)
	if up.Classification != models.MomentumStrongBullish {
		t.Fatalf("steady rally classified %s (%.1f)", up.Classification, up.Value)
	}
	if down.Value >= 40 {
		t.Fatalf("steady decline scored %.1f, want bearish", down.Value)
	}
	if up.Components.Persistence != 100 || down.Components.Persistence != 0 {
		t.Fatalf("persistence up=%f down=%f", up.Components.Persistence, down.Components.Persistence)
	}
}

func TestMomentumVolumeComponent(t *testing.T) {
	closes := ramp(30, 100, 0.5)
	quiet := make([]float64, 30)
	loud := make([]float64, 30)
	for i := range quiet {
		quiet[i] = 1000
		loud[i] = 1000
	}
	loud[29] = 3000

	s := newMomentum()
	q := s.Score("Q", models.PriceHistory{Closes: closes, Volumes: quiet})
	l := s.Score("L", models.PriceHistory{Closes: closes, Volumes: loud})
	none := s.Score("N", models.PriceHistory{Closes: closes})

	if q.Components.Volume != 50 {
		t.Fatalf("average volume component = %f, want 50", q.Components.Volume)
	}
	if l.Components.Volume != 100 {
		t.Fatalf("3x volume on an up bar = %f, want 100", l.Components.Volume)
	}
	if l.Value <= q.Value {
		t.Fatalf("volume spike did not raise score: %f <= %f", l.Value, q.Value)
	}
	assertComplete(t, none)
}

func TestMomentumTrendLabel(t *testing.T) {
	// 64+ bars so the 21 and 63 bar horizons both apply
	steady := ramp(100, 100, 0.2)
	accel := append(ramp(80, 100, -0.3), ramp(21, 79, 1)...)

	s := newMomentum()
	if got := s.Score("S", models.PriceHistory{Closes: steady}).Trend; got != models.TrendDecelerating && got != models.TrendStable {
		t.Fatalf("steady ramp trend = %s", got)
	}
	if got := s.Score("A", models.PriceHistory{Closes: accel}).Trend; got != models.TrendAccelerating {
		t.Fatalf("late surge trend = %s, want ACCELERATING", got)
	}
}

func TestMomentumAlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	s := newMomentum()
	for i := 0; i < 300; i++ {
		n := rng.Intn(900)
		h := models.PriceHistory{Closes: make([]float64, n), Volumes: make([]float64, rng.Intn(n+1))}
		for j := range h.Closes {
			h.Closes[j] = rng.Float64()*200 - 20
		}
		for j := range h.Volumes {
			h.Volumes[j] = rng.Float64() * 1e6
		}
		assertComplete(t, s.Score("R", h))
	}
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		v    float64
		want models.MomentumClass
	}{
		{100, models.MomentumStrongBullish},
		{75, models.MomentumStrongBullish},
		{74.99, models.MomentumBullish},
		{60, models.MomentumBullish},
		{40, models.MomentumNeutral},
		{39.9, models.MomentumBearish},
		{25, models.MomentumBearish},
		{0, models.MomentumStrongBearish},
	}
	for _, tt := range tests {
		if got, _ := classify(tt.v); got != tt.want {
			t.Errorf("classify(%v) = %s, want %s", tt.v, got, tt.want)
		}
	}
}
