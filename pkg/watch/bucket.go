package watch

import "sort"

// rateEntry is the last observed implied-rate state for one future within
// its maturity bucket. Sizes are the quoted depth backing each rate: the ask
// size backs the short (borrow) rate, the bid size backs the long (lend)
// rate. Entries are only as fresh as the last tick for that future.
type rateEntry struct {
	ShortRate float64
	LongRate  float64
	ShortSize float64
	LongSize  float64
}

// bucket groups the futures sharing one whole-number days-to-maturity,
// keyed by future symbol.
type bucket map[string]rateEntry

// sortedSymbols gives a deterministic scan order so that best-rate ties
// resolve to the lexicographically smallest symbol.
func (b bucket) sortedSymbols() []string {
	symbols := make([]string, 0, len(b))
	for symbol := range b {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// bestShort finds the minimum short (borrow) rate in the bucket and the
// future that owns it. ok is false for an empty bucket.
func (b bucket) bestShort() (symbol string, rate float64, ok bool) {
	for _, s := range b.sortedSymbols() {
		if !ok || b[s].ShortRate < rate {
			symbol, rate, ok = s, b[s].ShortRate, true
		}
	}
	return symbol, rate, ok
}

// bestLong finds the maximum long (lend) rate in the bucket and the future
// that owns it. ok is false for an empty bucket.
func (b bucket) bestLong() (symbol string, rate float64, ok bool) {
	for _, s := range b.sortedSymbols() {
		if !ok || b[s].LongRate > rate {
			symbol, rate, ok = s, b[s].LongRate, true
		}
	}
	return symbol, rate, ok
}
