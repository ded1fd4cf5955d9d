package models

// RunCycleRequest triggers an on-demand cycle. Readings supplied inline win over
// buffered readings for the same ticker.
type RunCycleRequest struct {
	Tickers  []string         `json:"tickers" validate:"omitempty,max=500,dive,required,ticker"`
	Readings []TickerReadings `json:"readings" validate:"omitempty,max=500,dive"`
}

type EvaluationRequest struct {
	Ticker string `param:"ticker" validate:"required,ticker"`
}

type LedgerRequest struct {
	Ticker    string `param:"ticker" validate:"required,ticker"`
	AlertType string `param:"type" validate:"required"`
}

type AlertFeedRequest struct {
	Ticker string `query:"ticker" default:"" validate:"omitempty,ticker"`
}
