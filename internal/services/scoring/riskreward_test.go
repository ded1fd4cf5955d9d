package scoring

import (
	"testing"

	"SignalGate/internal/domain/models"
)

func ptr(v float64) *float64 { return &v }

func TestRiskRewardAssess(t *testing.T) {
	tests := []struct {
		name       string
		in         models.TickerReadings
		wantKind   models.RatioKind
		wantRatio  float64
		wantRating models.RiskRewardRating
		wantUp     float64
		wantDown   float64
	}{
		{
			name:       "zero adverse excursion is unbounded",
			in:         models.TickerReadings{Price: 100, Targets: []float64{120}, MaxAdverseExcursionPct: ptr(0)},
			wantKind:   models.RatioUnbounded,
			wantRating: models.RatingExcellent,
			wantUp:     20,
		},
		{
			name:       "finite ratio from explicit excursion",
			in:         models.TickerReadings{Price: 100, Targets: []float64{110, 130}, MaxAdverseExcursionPct: ptr(-8)},
			wantKind:   models.RatioFinite,
			wantRatio:  2.5,
			wantRating: models.RatingGood,
			wantUp:     20,
			wantDown:   8,
		},
		{
			name: "downside from close history",
			in: models.TickerReadings{
				Price:   50,
				Market:  models.MarketData{High52W: 80},
				History: models.PriceHistory{Closes: []float64{40, 60, 45, 55, 50}},
			},
			wantKind:   models.RatioFinite,
			wantRatio:  2.4,
			wantRating: models.RatingGood,
			wantUp:     60,
			wantDown:   25,
		},
		{
			name:       "target below price",
			in:         models.TickerReadings{Price: 100, Targets: []float64{90}, MaxAdverseExcursionPct: ptr(5)},
			wantKind:   models.RatioFinite,
			wantRatio:  -2,
			wantRating: models.RatingPoor,
			wantUp:     -10,
			wantDown:   5,
		},
		{
			name:       "unbounded without upside rates poor",
			in:         models.TickerReadings{Price: 100, Targets: []float64{95}},
			wantKind:   models.RatioUnbounded,
			wantRating: models.RatingPoor,
			wantUp:     -5,
		},
		{
			name:       "no target is unavailable",
			in:         models.TickerReadings{Price: 100, Targets: []float64{-3, 0}},
			wantKind:   models.RatioUnavailable,
			wantRating: models.RatingUnknown,
		},
		{
			name:       "no price is unavailable",
			in:         models.TickerReadings{Targets: []float64{120}},
			wantKind:   models.RatioUnavailable,
			wantRating: models.RatingUnknown,
		},
	}

	c := NewRiskRewardCalculator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := c.Assess(tt.in)
			if a.Ratio.Kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s", a.Ratio.Kind, tt.wantKind)
			}
			if tt.wantKind == models.RatioFinite && a.Ratio.Value != tt.wantRatio {
				t.Fatalf("ratio = %v, want %v", a.Ratio.Value, tt.wantRatio)
			}
			if a.Rating != tt.wantRating {
				t.Fatalf("rating = %s, want %s", a.Rating, tt.wantRating)
			}
			if a.UpsidePct != tt.wantUp || a.DownsidePct != tt.wantDown {
				t.Fatalf("up/down = %v/%v, want %v/%v", a.UpsidePct, a.DownsidePct, tt.wantUp, tt.wantDown)
			}
		})
	}
}

func TestUnboundedRatioGate(t *testing.T) {
	a := NewRiskRewardCalculator().Assess(models.TickerReadings{
		Ticker: "ABC", Price: 100, Targets: []float64{120}, MaxAdverseExcursionPct: ptr(0),
	})

	if !a.MeetsMinimum(2.0, true) {
		t.Fatal("unbounded ratio with upside should pass when the policy allows it")
	}
	if a.MeetsMinimum(2.0, false) {
		t.Fatal("unbounded ratio must fail when the policy disallows it")
	}

	unavailable := models.RiskRewardAssessment{Ratio: models.UnavailableRatio(), UpsidePct: 50}
	if unavailable.MeetsMinimum(0, true) {
		t.Fatal("unavailable ratio must never pass")
	}
}

func TestRiskRewardOverflowIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		in   models.TickerReadings
	}{
		{name: "upside overflows", in: models.TickerReadings{Price: 0.5, Targets: []float64{1e308}}},
		{name: "target mean overflows", in: models.TickerReadings{Price: 100, Targets: []float64{1e308, 1e308}}},
		{name: "subnormal price", in: models.TickerReadings{Price: 5e-324, Targets: []float64{1}}},
		{name: "ratio overflows", in: models.TickerReadings{Price: 1, Targets: []float64{1e305}, MaxAdverseExcursionPct: ptr(0.01)}},
	}
	calc := NewRiskRewardCalculator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := calc.Assess(tt.in)
			if a.Ratio.Kind != models.RatioUnavailable || a.Rating != models.RatingUnknown {
				t.Fatalf("got %+v, want unavailable", a)
			}
			if a.UpsidePct != 0 || a.DownsidePct != 0 {
				t.Fatalf("figures leaked: up %v down %v", a.UpsidePct, a.DownsidePct)
			}
		})
	}
}

func TestMaxDrawdownPct(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{name: "empty", closes: nil, want: 0},
		{name: "monotonic rise", closes: []float64{1, 2, 3}, want: 0},
		{name: "single dip", closes: []float64{100, 80, 120}, want: 20},
		{name: "deeper later dip", closes: []float64{100, 90, 200, 100}, want: 50},
		{name: "skips bad points", closes: []float64{100, 0, -5, 75}, want: 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxDrawdownPct(tt.closes); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
