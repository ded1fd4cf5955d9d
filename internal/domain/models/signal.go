package models

// Verdict is the fused direction for a ticker.
type Verdict string

const (
	VerdictBuy  Verdict = "BUY"
	VerdictSell Verdict = "SELL"
	VerdictHold Verdict = "HOLD"
)

// SignalVote is one indicator's signed, weighted contribution.
type SignalVote struct {
	Indicator string `json:"indicator"`
	Vote      int    `json:"vote"`
	Weight    int    `json:"weight"`
	Rationale string `json:"rationale,omitempty"`
}

// CompositeSignal is the fused verdict. Confidence is a percentage in [0,100].
type CompositeSignal struct {
	Ticker     string       `json:"ticker"`
	NetScore   int          `json:"net_score"`
	MaxScore   int          `json:"max_score"`
	Verdict    Verdict      `json:"verdict"`
	Confidence float64      `json:"confidence"`
	Rationales []string     `json:"rationales"`
	Votes      []SignalVote `json:"votes"`
	Bullish    int          `json:"bullish"`
	Bearish    int          `json:"bearish"`
}

// SignedConfidence is Confidence carrying the sign of NetScore.
func (s CompositeSignal) SignedConfidence() float64 {
	switch {
	case s.NetScore > 0:
		return s.Confidence
	case s.NetScore < 0:
		return -s.Confidence
	default:
		return 0
	}
}
