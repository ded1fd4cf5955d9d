package models

import (
	"math"
	"sort"
	"time"
)

// Indicator names understood by the fusion engine. Levels are absolute prices.
const (
	IndRSI        = "rsi"
	IndMACD       = "macd"
	IndMACDSignal = "macd_signal"
	IndSMA20      = "sma_20"
	IndSMA50      = "sma_50"
	IndSMA200     = "sma_200"
	IndBBUpper    = "bollinger_upper"
	IndBBLower    = "bollinger_lower"
	IndADX        = "adx"
	IndPlusDI     = "plus_di"
	IndMinusDI    = "minus_di"
	IndSenkouA    = "ichimoku_senkou_a"
	IndSenkouB    = "ichimoku_senkou_b"
	IndVWAP       = "vwap"
)

// Sub-score names supplied by collaborators.
const (
	SubScoreBacktest    = "backtest"
	SubScoreRiskProfile = "risk_profile"
	SubScoreSentiment   = "sentiment"
	SubScoreAlerts      = "alerts"
)

// IndicatorReading is one named numeric reading for a ticker.
type IndicatorReading struct {
	Ticker string    `json:"ticker"`
	Name   string    `json:"name"`
	Value  float64   `json:"value"`
	AsOf   time.Time `json:"as_of"`
}

// PriceHistory is oldest-first. Volumes may be empty or shorter than Closes.
type PriceHistory struct {
	Closes  []float64 `json:"closes"`
	Volumes []float64 `json:"volumes,omitempty"`
}

// MarketData carries the session figures the alert detector looks at.
// Zero means "not supplied".
type MarketData struct {
	Open      float64 `json:"open,omitempty"`
	PrevClose float64 `json:"prev_close,omitempty"`
	High52W   float64 `json:"high_52w,omitempty"`
	Low52W    float64 `json:"low_52w,omitempty"`
	Volume    float64 `json:"volume,omitempty"`
	AvgVolume float64 `json:"avg_volume,omitempty"`
}

// SubScore is a collaborator output pre-normalized to -100..100.
type SubScore struct {
	Value float64 `json:"value"`
	Note  string  `json:"note,omitempty"`
}

// TickerReadings bundles everything supplied for one ticker in one evaluation.
type TickerReadings struct {
	Ticker     string             `json:"ticker" validate:"required"`
	AsOf       time.Time          `json:"as_of"`
	Price      float64            `json:"price" validate:"gte=0"`
	Indicators map[string]float64 `json:"indicators"`
	History    PriceHistory       `json:"history"`
	Market     MarketData         `json:"market"`
	Targets    []float64          `json:"targets,omitempty"`
	// MaxAdverseExcursionPct overrides the drawdown computed from History.
	MaxAdverseExcursionPct *float64            `json:"max_adverse_excursion_pct,omitempty"`
	SubScores              map[string]SubScore `json:"sub_scores,omitempty"`
}

// Indicator returns a reading only when present and finite.
func (r TickerReadings) Indicator(name string) (float64, bool) {
	v, ok := r.Indicators[name]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Readings flattens the indicator map into IndicatorReading values, sorted by name.
func (r TickerReadings) Readings() []IndicatorReading {
	out := make([]IndicatorReading, 0, len(r.Indicators))
	for name, v := range r.Indicators {
		out = append(out, IndicatorReading{Ticker: r.Ticker, Name: name, Value: v, AsOf: r.AsOf})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SubScore looks up a collaborator sub-score by name.
func (r TickerReadings) SubScore(name string) (SubScore, bool) {
	s, ok := r.SubScores[name]
	if !ok || math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return SubScore{}, false
	}
	return s, true
}
