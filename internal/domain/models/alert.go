package models

import (
	"time"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertBreakoutNearHigh AlertType = "BREAKOUT_NEAR_HIGH"
	AlertBounceNearLow    AlertType = "BOUNCE_NEAR_LOW"
	AlertSMA200Test       AlertType = "SMA200_TEST"
	AlertVolumeSpike      AlertType = "VOLUME_SPIKE"
	AlertPriceMoveUp      AlertType = "PRICE_MOVE_UP"
	AlertPriceMoveDown    AlertType = "PRICE_MOVE_DOWN"
	AlertGapUp            AlertType = "GAP_UP"
	AlertGapDown          AlertType = "GAP_DOWN"
	AlertHighDrawdownRisk AlertType = "HIGH_DRAWDOWN_RISK"
)

// AlertTypes lists every known type in a stable order.
func AlertTypes() []AlertType {
	return []AlertType{
		AlertBreakoutNearHigh, AlertBounceNearLow, AlertSMA200Test, AlertVolumeSpike,
		AlertPriceMoveUp, AlertPriceMoveDown, AlertGapUp, AlertGapDown, AlertHighDrawdownRisk,
	}
}

// ParseAlertType accepts only known types.
func ParseAlertType(s string) (AlertType, bool) {
	for _, t := range AlertTypes() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
)

// Sign is +1, -1 or 0.
func (d Direction) Sign() int {
	switch d {
	case DirectionBullish:
		return 1
	case DirectionBearish:
		return -1
	default:
		return 0
	}
}

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// AlertCondition is a detected condition before any gating.
type AlertCondition struct {
	Type       AlertType          `json:"type"`
	Direction  Direction          `json:"direction"`
	Severity   Severity           `json:"severity"`
	Ping       bool               `json:"ping"`
	Confidence float64            `json:"confidence"`
	Reason     string             `json:"reason"`
	Metrics    map[string]float64 `json:"metrics"`
}

// AlertRecord is an emitted alert. It is never mutated after creation.
type AlertRecord struct {
	ID          uuid.UUID          `json:"id"`
	Ticker      string             `json:"ticker"`
	Type        AlertType          `json:"type"`
	Direction   Direction          `json:"direction"`
	Severity    Severity           `json:"severity"`
	Ping        bool               `json:"ping"`
	Confidence  float64            `json:"confidence"`
	Reason      string             `json:"reason"`
	GeneratedAt time.Time          `json:"generated_at"`
	Metrics     map[string]float64 `json:"metrics"`
}

// LedgerKey identifies one dedup slot.
type LedgerKey struct {
	Ticker    string    `json:"ticker"`
	AlertType AlertType `json:"alert_type"`
}

func (k LedgerKey) String() string { return k.Ticker + ":" + string(k.AlertType) }

// DedupLedgerEntry is the last time an alert was sent for a key.
type DedupLedgerEntry struct {
	Ticker    string    `json:"ticker"`
	AlertType AlertType `json:"alert_type"`
	LastSent  time.Time `json:"last_sent"`
}

// GateState is where a candidate ended up in the alert gate.
type GateState string

const (
	GateCandidate  GateState = "CANDIDATE"
	GateEligible   GateState = "ELIGIBLE"
	GateRejected   GateState = "REJECTED" // detected but failed a quality gate
	GateSuppressed GateState = "SUPPRESSED"
	GateSent       GateState = "SENT"
)

// GateDecision explains the outcome for one detected condition.
type GateDecision struct {
	AlertType AlertType  `json:"alert_type"`
	State     GateState  `json:"state"`
	Reason    string     `json:"reason"`
	LastSent  *time.Time `json:"last_sent,omitempty"`
	Err       string     `json:"error,omitempty"`
}
