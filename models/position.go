package models

import "time"

// PositionSide selects the direction of a leveraged position.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// Position is a leveraged demo position. Size and LiquidationPrice are
// derived from margin, leverage and entry price at open time; PnL and ROI are
// recomputed from CurrentPrice on every snapshot, never drifted.
type Position struct {
	ID               string       `json:"id"`
	Symbol           string       `json:"symbol"`
	Side             PositionSide `json:"side"`
	EntryPrice       float64      `json:"entry_price"`
	CurrentPrice     float64      `json:"current_price"`
	Margin           float64      `json:"margin"`
	Leverage         float64      `json:"leverage"`
	Size             float64      `json:"size"`
	LiquidationPrice float64      `json:"liquidation_price"`
	TakeProfit       *float64     `json:"take_profit,omitempty"`
	StopLoss         *float64     `json:"stop_loss,omitempty"`
	OpenedAt         time.Time    `json:"opened_at"`
	PnL              float64      `json:"pnl"`
	ROIPercent       float64      `json:"roi_percent"`
}

// CloseReason records why a position left the book.
type CloseReason string

const (
	CloseManual     CloseReason = "manual"
	CloseLiquidated CloseReason = "liquidated"
	CloseTakeProfit CloseReason = "take_profit"
	CloseStopLoss   CloseReason = "stop_loss"
)

// ClosedPosition is the settlement record returned when a position closes.
type ClosedPosition struct {
	Position  Position    `json:"position"`
	ExitPrice float64     `json:"exit_price"`
	PnL       float64     `json:"pnl"`
	Reason    CloseReason `json:"reason"`
	ClosedAt  time.Time   `json:"closed_at"`
}
