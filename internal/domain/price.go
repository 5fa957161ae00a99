package domain

import "time"

// PriceSnapshot is one row of a recorded quote log.
type PriceSnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	BestBid        float64   `json:"best_bid"`
	BestAsk        float64   `json:"best_ask"`
	Spread         float64   `json:"spread"`
	LastTradePrice float64   `json:"last_trade_price"`
	Volume         float64   `json:"volume"`
	Liquidity      float64   `json:"liquidity"`
}

// Mid returns the midpoint of the best bid and ask.
func (s PriceSnapshot) Mid() float64 {
	return (s.BestBid + s.BestAsk) / 2
}

// PricePoint is one entry of the flat price history exposed for charting.
// Timestamp is nil for synthetic runs.
type PricePoint struct {
	Tick      int        `json:"tick"`
	Timestamp *time.Time `json:"timestamp"`
	PriceA    float64    `json:"price_a"`
	PriceB    float64    `json:"price_b"`
	Spread    float64    `json:"spread"`
}
