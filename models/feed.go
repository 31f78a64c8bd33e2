package models

import "time"

// Control message methods understood by the exchange stream endpoint.
const (
	MethodSubscribe   = "SUBSCRIBE"
	MethodUnsubscribe = "UNSUBSCRIBE"
)

// ControlMessage is the outbound frame used to manage stream subscriptions
// over the single websocket connection.
type ControlMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// RawTickerMessage carries an undecoded all-market ticker array from the
// websocket to the aggregator.
type RawTickerMessage struct {
	Payload  []byte
	Received time.Time
}

// RawTradeMessage carries an undecoded trade event from the websocket to the
// aggregator. Trades bypass throttling.
type RawTradeMessage struct {
	Payload  []byte
	Received time.Time
}

// TickerItem is a single entry of the exchange's all-market ticker array.
// Prices arrive as strings on the wire.
type TickerItem struct {
	Symbol             string `json:"s"`
	LastPrice          string `json:"c"`
	PriceChangePercent string `json:"P"`
}

// TradeEvent is the tagged single-trade message shape.
type TradeEvent struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// Trade is a parsed trade forwarded to trade subscribers unthrottled.
type Trade struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	BuyerMaker bool      `json:"buyer_maker"`
	Time       time.Time `json:"time"`
}
