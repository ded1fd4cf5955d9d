package fusion

import (
	"math"
	"math/rand"
	"testing"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/config"
)

func newTestEngine() *Engine {
	return NewEngine(config.Default().Fusion)
}

func bullishReadings() models.TickerReadings {
	return models.TickerReadings{
		Ticker: "ABC",
		Price:  100,
		Indicators: map[string]float64{
			models.IndRSI:        28,
			models.IndMACD:       1.2,
			models.IndMACDSignal: 0.8,
			models.IndSMA20:      98,
			models.IndSMA50:      95,
			models.IndSMA200:     90,
			models.IndBBUpper:    105,
			models.IndBBLower:    95,
			models.IndADX:        30,
			models.IndPlusDI:     28,
			models.IndMinusDI:    14,
			models.IndSenkouA:    92,
			models.IndSenkouB:    94,
			models.IndVWAP:       99,
		},
	}
}

func TestFuseAllBullishIndicators(t *testing.T) {
	sig := newTestEngine().Fuse(bullishReadings())

	// 2+2+2+1+0+2+2+1, Bollinger mid-band votes nothing
	if sig.NetScore != 12 {
		t.Fatalf("net = %d, want 12", sig.NetScore)
	}
	if sig.MaxScore != 13 {
		t.Fatalf("max = %d, want 13", sig.MaxScore)
	}
	if sig.Bullish != 7 || sig.Bearish != 0 {
		t.Fatalf("bullish/bearish = %d/%d, want 7/0", sig.Bullish, sig.Bearish)
	}
	if sig.Verdict != models.VerdictBuy {
		t.Fatalf("verdict = %s, want BUY", sig.Verdict)
	}
	if math.Abs(sig.Confidence-100*12.0/13.0) > 1e-9 {
		t.Fatalf("confidence = %f, want ~92.31", sig.Confidence)
	}
	want := []string{"RSI 28.0 oversold", "MACD vs signal bullish", "price > SMA20 > SMA50"}
	if len(sig.Rationales) != len(want) {
		t.Fatalf("rationales = %v", sig.Rationales)
	}
	for i := range want {
		if sig.Rationales[i] != want[i] {
			t.Fatalf("rationale[%d] = %q, want %q", i, sig.Rationales[i], want[i])
		}
	}
}

func TestFuseVerdictThresholds(t *testing.T) {
	tests := []struct {
		name       string
		indicators map[string]float64
		wantNet    int
		want       models.Verdict
	}{
		{name: "no indicators", indicators: nil, wantNet: 0, want: models.VerdictHold},
		{name: "single rsi vote stays hold", indicators: map[string]float64{models.IndRSI: 20}, wantNet: 2, want: models.VerdictHold},
		{name: "rsi plus vwap reaches buy", indicators: map[string]float64{models.IndRSI: 20, models.IndVWAP: 90}, wantNet: 3, want: models.VerdictBuy},
		{name: "bearish pair reaches sell", indicators: map[string]float64{models.IndRSI: 80, models.IndVWAP: 110}, wantNet: -3, want: models.VerdictSell},
		{name: "macd alone without signal", indicators: map[string]float64{models.IndMACD: -0.4}, wantNet: -2, want: models.VerdictHold},
		{name: "weak adx does not vote", indicators: map[string]float64{models.IndADX: 12, models.IndPlusDI: 40, models.IndMinusDI: 5}, wantNet: 0, want: models.VerdictHold},
		{name: "price below cloud", indicators: map[string]float64{models.IndSenkouA: 120, models.IndSenkouB: 110, models.IndSMA200: 130}, wantNet: -3, want: models.VerdictSell},
	}

	e := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := e.Fuse(models.TickerReadings{Ticker: "T", Price: 100, Indicators: tt.indicators})
			if sig.NetScore != tt.wantNet || sig.Verdict != tt.want {
				t.Fatalf("got net=%d verdict=%s, want net=%d verdict=%s", sig.NetScore, sig.Verdict, tt.wantNet, tt.want)
			}
		})
	}
}

func TestFuseRecoversBadInputs(t *testing.T) {
	tests := []struct {
		name       string
		price      float64
		indicators map[string]float64
		wantNet    int
	}{
		{name: "negative rsi clamps to oversold", price: 100, indicators: map[string]float64{models.IndRSI: -5}, wantNet: 2},
		{name: "rsi above range clamps to overbought", price: 100, indicators: map[string]float64{models.IndRSI: 140}, wantNet: -2},
		{name: "nan reading is ignored", price: 100, indicators: map[string]float64{models.IndRSI: math.NaN()}, wantNet: 0},
		{name: "zero level is missing", price: 100, indicators: map[string]float64{models.IndVWAP: 0}, wantNet: 0},
		{name: "missing price disables price votes", price: 0, indicators: map[string]float64{models.IndVWAP: 90, models.IndSMA200: 80}, wantNet: 0},
		{name: "infinite price disables price votes", price: math.Inf(1), indicators: map[string]float64{models.IndVWAP: 90}, wantNet: 0},
	}

	e := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := e.Fuse(models.TickerReadings{Ticker: "T", Price: tt.price, Indicators: tt.indicators})
			if sig.NetScore != tt.wantNet {
				t.Fatalf("net = %d, want %d", sig.NetScore, tt.wantNet)
			}
		})
	}
}

func TestFuseNetNeverExceedsWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	names := []string{
		models.IndRSI, models.IndMACD, models.IndMACDSignal, models.IndSMA20, models.IndSMA50, models.IndSMA200,
		models.IndBBUpper, models.IndBBLower, models.IndADX, models.IndPlusDI, models.IndMinusDI,
		models.IndSenkouA, models.IndSenkouB, models.IndVWAP,
	}

	for i := 0; i < 500; i++ {
		cfg := config.Default().Fusion
		cfg.Weights = config.FusionWeights{
			RSI: rng.Intn(5), MACD: rng.Intn(5), MAAlignment: rng.Intn(5), SMA200: rng.Intn(5),
			Bollinger: rng.Intn(5), ADXDI: rng.Intn(5), Ichimoku: rng.Intn(5), VWAP: rng.Intn(5),
		}
		e := NewEngine(cfg)

		ind := make(map[string]float64)
		for _, n := range names {
			if rng.Intn(4) > 0 {
				ind[n] = rng.Float64()*300 - 50
			}
		}
		sig := e.Fuse(models.TickerReadings{Ticker: "R", Price: rng.Float64() * 200, Indicators: ind})

		if abs(sig.NetScore) > cfg.Weights.Sum() {
			t.Fatalf("iteration %d: |net| %d exceeds weight sum %d", i, sig.NetScore, cfg.Weights.Sum())
		}
		if sig.Confidence < 0 || sig.Confidence > 100 {
			t.Fatalf("iteration %d: confidence %f out of range", i, sig.Confidence)
		}
		if len(sig.Rationales) > cfg.MaxRationales {
			t.Fatalf("iteration %d: %d rationales", i, len(sig.Rationales))
		}
	}
}

func TestRationaleTieBreakIsDeterministic(t *testing.T) {
	// rsi, macd, ma_alignment, adx_di and ichimoku all vote with weight 2
	r := bullishReadings()
	e := newTestEngine()
	first := e.Fuse(r).Rationales
	for i := 0; i < 20; i++ {
		got := e.Fuse(r).Rationales
		for j := range first {
			if got[j] != first[j] {
				t.Fatalf("run %d: rationales changed: %v vs %v", i, got, first)
			}
		}
	}

	delete(r.Indicators, models.IndRSI)
	got := e.Fuse(r).Rationales
	if got[2] != "ADX 30.0 uptrend (+DI > -DI)" {
		t.Fatalf("third rationale = %q, want adx_di ahead of ichimoku", got[2])
	}
}
