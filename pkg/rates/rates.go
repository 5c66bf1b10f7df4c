// Package rates converts period interest observations into annualized rates
// and derives the implied borrow/lend rates of a future against its
// underlying spot instrument.
package rates

import "math"

// Yearly annualizes an interest earned over the given number of days.
// The nominal rate scales linearly over a 365-day year; the effective rate
// compounds. days must be >= 1. Negative interest is valid and yields a
// negative annualized rate, signalling the opposite arbitrage direction.
func Yearly(interest float64, days int) (nominal, effective float64) {
	nominal = interest * 365 / float64(days)
	effective = math.Pow(1+interest, 365/float64(days)) - 1
	return nominal, effective
}

// Implicit computes the nominal annualized rates implied by a
// future/underlying bid-ask quadruple.
//
// The short (borrow) rate prices selling the underlying short and buying the
// future; it needs the future ask and the spot bid. The long (lend) rate
// prices buying the underlying and selling the future; it needs the future
// bid and the spot ask. A leg whose required quote is missing (zero) reports
// a zero rate, indistinguishable from a genuine zero.
func Implicit(spotBid, spotAsk, futureBid, futureAsk float64, days int, transactionCost float64) (shortRate, longRate float64) {
	if futureAsk != 0 && spotBid != 0 {
		lent := spotBid * (1 - transactionCost)
		returned := futureAsk * (1 + transactionCost)
		interest := returned/lent - 1
		shortRate, _ = Yearly(interest, days)
	}

	if futureBid != 0 && spotAsk != 0 {
		investment := spotAsk * (1 + transactionCost)
		proceeds := futureBid * (1 - transactionCost)
		interest := proceeds/investment - 1
		longRate, _ = Yearly(interest, days)
	}

	return shortRate, longRate
}
