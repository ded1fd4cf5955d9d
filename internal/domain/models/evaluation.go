package models

import (
	"time"
)

// TickerEvaluation is the full per-ticker output of one cycle.
type TickerEvaluation struct {
	CycleID    string               `json:"cycle_id"`
	CycleAt    time.Time            `json:"cycle_at"`
	Ticker     string               `json:"ticker"`
	AsOf       time.Time            `json:"as_of"`
	Signal     CompositeSignal      `json:"signal"`
	Momentum   MomentumScore        `json:"momentum"`
	RiskReward RiskRewardAssessment `json:"risk_reward"`
	Quality    QualityScore         `json:"quality"`
	Alerts     []AlertRecord        `json:"alerts"`
	Decisions  []GateDecision       `json:"decisions"`
}

// Failure stages.
const (
	StageInput    = "input"
	StageScoring  = "scoring"
	StageAlerting = "alerting"
	StageSnapshot = "snapshot"
	StagePublish  = "publish"
)

// TickerFailure reports a ticker that did not complete cleanly. Evaluation holds
// the scores when the failure happened after scoring.
type TickerFailure struct {
	Ticker     string            `json:"ticker"`
	Stage      string            `json:"stage"`
	Error      string            `json:"error"`
	Evaluation *TickerEvaluation `json:"evaluation,omitempty"`
}

type CycleTrigger string

const (
	TriggerSchedule CycleTrigger = "schedule"
	TriggerOnDemand CycleTrigger = "on_demand"
)

// CycleReport is what a batch cycle returns: successes and explicit failures side by side.
type CycleReport struct {
	ID         string             `json:"id"`
	Trigger    CycleTrigger       `json:"trigger"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Results    []TickerEvaluation `json:"results"`
	Failures   []TickerFailure    `json:"failures"`
	Skipped    []string           `json:"skipped,omitempty"`
	Cancelled  bool               `json:"cancelled"`
}

// AlertCount totals emitted alerts across results.
func (r CycleReport) AlertCount() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Alerts)
	}
	return n
}
