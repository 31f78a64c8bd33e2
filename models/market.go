package models

// SymbolPrice is the latest known price and 24h change for one symbol.
type SymbolPrice struct {
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
}

// PriceSnapshot maps base symbol (e.g. "BTC") to its latest price data.
// A snapshot is replaced wholesale on every throttled flush and must be
// treated as read-only by consumers.
type PriceSnapshot map[string]SymbolPrice

// Clone returns an independent copy of the snapshot.
func (s PriceSnapshot) Clone() PriceSnapshot {
	out := make(PriceSnapshot, len(s))
	for sym, p := range s {
		out[sym] = p
	}
	return out
}

// ArchiveRecord is a flat row written to the S3 archive. Kind is "whale"
// or "trade".
type ArchiveRecord struct {
	Kind      string  `json:"kind"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Quantity  float64 `json:"quantity"`
	ValueUSD  float64 `json:"value_usd"`
	Narrative string  `json:"narrative"`
	Timestamp int64   `json:"timestamp"`
}
