package models

import (
	"time"
)

// PriceLevel is one side of a best bid/offer book entry.
type PriceLevel struct {
	Price float64
	Size  float64
}

// MarketTick is a best bid/ask update for one future, as delivered by the
// market-data feed. A side missing from the book arrives as nil.
type MarketTick struct {
	Symbol    string
	Bid       *PriceLevel
	Ask       *PriceLevel
	Timestamp time.Time
}

// TwoSided reports whether both book sides are present. Single-sided ticks
// are not processed by the engine.
func (t MarketTick) TwoSided() bool {
	return t.Bid != nil && t.Ask != nil
}

// Quote is a point-in-time bid/ask observation for any symbol.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Timestamp time.Time
}
