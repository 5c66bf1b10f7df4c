package models

import (
	"time"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// TradeLeg is one side of a paired arbitrage trade: a buy or sell of a
// future or its underlying at a known price.
type TradeLeg struct {
	Symbol   string    `json:"symbol"`
	Side     OrderSide `json:"side"`
	Quantity int64     `json:"quantity"`
	Price    float64   `json:"price"`
}

// ArbitrageTrade records one executed cash-and-carry opportunity: the four
// legs emitted plus the cash flows that justified them. Flows are signed;
// negative amounts are cash paid today or at maturity.
type ArbitrageTrade struct {
	ID             string     `json:"id"`
	DaysToMaturity int        `json:"days_to_maturity"`
	ShortRate      float64    `json:"short_rate"`
	LongRate       float64    `json:"long_rate"`
	Legs           []TradeLeg `json:"legs"`
	TodayFlow      float64    `json:"today_flow"`
	MaturityFlow   float64    `json:"maturity_flow"`
	Profit         float64    `json:"profit"`
	MaturityDate   time.Time  `json:"maturity_date"`
	CreatedAt      time.Time  `json:"created_at"`
}
