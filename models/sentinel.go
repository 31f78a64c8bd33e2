package models

import "time"

// WhaleSide tags the direction a synthesized whale transaction moved funds.
type WhaleSide string

const (
	WhaleAccumulation WhaleSide = "ACCUMULATION"
	WhaleInflow       WhaleSide = "INFLOW"
)

// WhaleEvent is a synthesized large-transaction alert.
type WhaleEvent struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      WhaleSide `json:"side"`
	Quantity  float64   `json:"quantity"`
	ValueUSD  float64   `json:"value_usd"`
	Timestamp time.Time `json:"timestamp"`
	Narrative string    `json:"narrative"`
}

// SentinelConfig is the operator-controlled monitor configuration. The
// monitor only reads it; updates arrive wholesale via SetConfig.
type SentinelConfig struct {
	Active            bool    `json:"active"`
	WhaleThresholdUSD float64 `json:"whale_threshold_usd"`
	TrackWhales       bool    `json:"track_whales"`
	TrackVolatility   bool    `json:"track_volatility"`
	TrackSentiment    bool    `json:"track_sentiment"`
	QuietHoursStart   int     `json:"quiet_hours_start"`
	QuietHoursEnd     int     `json:"quiet_hours_end"`
}

// SentinelStats is the counter snapshot returned to the UI.
type SentinelStats struct {
	Active      bool  `json:"active"`
	Ticks       int64 `json:"ticks"`
	QuietSkips  int64 `json:"quiet_skips"`
	WhaleEvents int64 `json:"whale_events"`
	XPGrants    int64 `json:"xp_grants"`
	HistorySize int   `json:"history_size"`
}
