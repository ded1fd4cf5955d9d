// Package fusion turns named indicator readings into one weighted, deterministic verdict.
package fusion

import (
	"fmt"
	"math"
	"sort"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/config"
	"SignalGate/pkg/util"
)

// Vote names, also used as rationale keys.
const (
	VoteRSI         = "rsi"
	VoteMACD        = "macd"
	VoteMAAlignment = "ma_alignment"
	VoteSMA200      = "sma200"
	VoteBollinger   = "bollinger"
	VoteADXDI       = "adx_di"
	VoteIchimoku    = "ichimoku"
	VoteVWAP        = "vwap"
)

// priority for rationale tie-breaks; everything else ranks after these.
var priority = map[string]int{VoteRSI: 0, VoteMACD: 1, VoteMAAlignment: 2}

type rule struct {
	name   string
	weight int
	eval   func(r models.TickerReadings, price float64) (dir int, why string)
}

// Engine is safe for concurrent use; it holds no mutable state.
type Engine struct {
	cfg   config.FusionConfig
	rules []rule
}

func NewEngine(cfg config.FusionConfig) *Engine {
	e := &Engine{cfg: cfg}
	w := cfg.Weights
	e.rules = []rule{
		{VoteRSI, w.RSI, e.rsi},
		{VoteMACD, w.MACD, macd},
		{VoteMAAlignment, w.MAAlignment, maAlignment},
		{VoteSMA200, w.SMA200, sma200},
		{VoteBollinger, w.Bollinger, bollinger},
		{VoteADXDI, w.ADXDI, e.adxDI},
		{VoteIchimoku, w.Ichimoku, ichimoku},
		{VoteVWAP, w.VWAP, vwap},
	}
	return e
}

// MaxScore is the largest net magnitude the configured weights allow.
func (e *Engine) MaxScore() int { return e.cfg.Weights.Sum() }

// Fuse never fails: missing or unusable readings vote zero.
func (e *Engine) Fuse(r models.TickerReadings) models.CompositeSignal {
	price := r.Price
	if !util.IsFinite(price) || price <= 0 {
		price = 0
	}

	out := models.CompositeSignal{
		Ticker:   r.Ticker,
		MaxScore: e.MaxScore(),
		Votes:    make([]models.SignalVote, 0, len(e.rules)),
	}
	for _, rl := range e.rules {
		if rl.weight == 0 {
			continue
		}
		dir, why := rl.eval(r, price)
		v := models.SignalVote{Indicator: rl.name, Vote: dir * rl.weight, Weight: rl.weight, Rationale: why}
		out.Votes = append(out.Votes, v)
		out.NetScore += v.Vote
		switch {
		case dir > 0:
			out.Bullish++
		case dir < 0:
			out.Bearish++
		}
	}

	switch {
	case out.NetScore >= e.cfg.BuyThreshold:
		out.Verdict = models.VerdictBuy
	case out.NetScore <= e.cfg.SellThreshold:
		out.Verdict = models.VerdictSell
	default:
		out.Verdict = models.VerdictHold
	}
	if out.MaxScore > 0 {
		out.Confidence = math.Min(math.Abs(float64(out.NetScore))/float64(out.MaxScore), 1) * 100
	}
	out.Rationales = topRationales(out.Votes, e.cfg.MaxRationales)
	return out
}

func topRationales(votes []models.SignalVote, n int) []string {
	ranked := make([]models.SignalVote, 0, len(votes))
	for _, v := range votes {
		if v.Vote != 0 {
			ranked = append(ranked, v)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if abs(a.Vote) != abs(b.Vote) {
			return abs(a.Vote) > abs(b.Vote)
		}
		pa, pb := rank(a.Indicator), rank(b.Indicator)
		if pa != pb {
			return pa < pb
		}
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		return a.Indicator < b.Indicator
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, 0, len(ranked))
	for _, v := range ranked {
		out = append(out, v.Rationale)
	}
	return out
}

func rank(name string) int {
	if p, ok := priority[name]; ok {
		return p
	}
	return len(priority)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// level reads a price-like indicator; non-positive values mean missing.
func level(r models.TickerReadings, name string) (float64, bool) {
	v, ok := r.Indicator(name)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

func bounded(r models.TickerReadings, name string) (float64, bool) {
	v, ok := r.Indicator(name)
	if !ok {
		return 0, false
	}
	return util.Clamp(v, 0, 100), true
}

func (e *Engine) rsi(r models.TickerReadings, _ float64) (int, string) {
	v, ok := bounded(r, models.IndRSI)
	if !ok {
		return 0, ""
	}
	switch {
	case v < e.cfg.RSIOversold:
		return 1, fmt.Sprintf("RSI %.1f oversold", v)
	case v > e.cfg.RSIOverbought:
		return -1, fmt.Sprintf("RSI %.1f overbought", v)
	}
	return 0, fmt.Sprintf("RSI %.1f neutral", v)
}

func macd(r models.TickerReadings, _ float64) (int, string) {
	m, ok := r.Indicator(models.IndMACD)
	if !ok {
		return 0, ""
	}
	diff := m
	label := "MACD"
	if s, ok := r.Indicator(models.IndMACDSignal); ok {
		diff = m - s
		label = "MACD vs signal"
	}
	switch {
	case diff > 0:
		return 1, label + " bullish"
	case diff < 0:
		return -1, label + " bearish"
	}
	return 0, label + " flat"
}

func maAlignment(r models.TickerReadings, price float64) (int, string) {
	s20, ok20 := level(r, models.IndSMA20)
	s50, ok50 := level(r, models.IndSMA50)
	if price == 0 || !ok20 || !ok50 {
		return 0, ""
	}
	switch {
	case price > s20 && s20 > s50:
		return 1, "price > SMA20 > SMA50"
	case price < s20 && s20 < s50:
		return -1, "price < SMA20 < SMA50"
	}
	return 0, "moving averages mixed"
}

func sma200(r models.TickerReadings, price float64) (int, string) {
	s, ok := level(r, models.IndSMA200)
	if price == 0 || !ok {
		return 0, ""
	}
	switch {
	case price > s:
		return 1, "price above SMA200"
	case price < s:
		return -1, "price below SMA200"
	}
	return 0, "price at SMA200"
}

func bollinger(r models.TickerReadings, price float64) (int, string) {
	upper, okU := level(r, models.IndBBUpper)
	lower, okL := level(r, models.IndBBLower)
	if price == 0 || (!okU && !okL) {
		return 0, ""
	}
	switch {
	case okL && price <= lower:
		return 1, "price at lower Bollinger band"
	case okU && price >= upper:
		return -1, "price at upper Bollinger band"
	}
	return 0, "price inside Bollinger bands"
}

func (e *Engine) adxDI(r models.TickerReadings, _ float64) (int, string) {
	adx, ok := bounded(r, models.IndADX)
	if !ok {
		return 0, ""
	}
	if adx < e.cfg.ADXTrending {
		return 0, fmt.Sprintf("ADX %.1f no trend", adx)
	}
	plus, okP := bounded(r, models.IndPlusDI)
	minus, okM := bounded(r, models.IndMinusDI)
	if !okP || !okM {
		return 0, ""
	}
	switch {
	case plus > minus:
		return 1, fmt.Sprintf("ADX %.1f uptrend (+DI > -DI)", adx)
	case plus < minus:
		return -1, fmt.Sprintf("ADX %.1f downtrend (-DI > +DI)", adx)
	}
	return 0, fmt.Sprintf("ADX %.1f DI balanced", adx)
}

func ichimoku(r models.TickerReadings, price float64) (int, string) {
	a, okA := level(r, models.IndSenkouA)
	b, okB := level(r, models.IndSenkouB)
	if price == 0 || !okA || !okB {
		return 0, ""
	}
	switch {
	case price > math.Max(a, b):
		return 1, "price above Ichimoku cloud"
	case price < math.Min(a, b):
		return -1, "price below Ichimoku cloud"
	}
	return 0, "price inside Ichimoku cloud"
}

func vwap(r models.TickerReadings, price float64) (int, string) {
	v, ok := level(r, models.IndVWAP)
	if price == 0 || !ok {
		return 0, ""
	}
	switch {
	case price > v:
		return 1, "price above VWAP"
	case price < v:
		return -1, "price below VWAP"
	}
	return 0, "price at VWAP"
}
