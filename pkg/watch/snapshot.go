package watch

import (
	"sort"

	"github.com/hgiraudo/rofex/pkg/models"
)

// EntrySnapshot is the tracked rate state of one future inside a bucket.
type EntrySnapshot struct {
	Future    string  `json:"future"`
	ShortRate float64 `json:"short_rate"`
	LongRate  float64 `json:"long_rate"`
	ShortSize float64 `json:"short_size"`
	LongSize  float64 `json:"long_size"`
}

// BucketSnapshot is a read-only view of one maturity bucket with its best
// obtainable rates resolved.
type BucketSnapshot struct {
	DaysToMaturity  int             `json:"days_to_maturity"`
	BestShortFuture string          `json:"best_short_future,omitempty"`
	BestShortRate   float64         `json:"best_short_rate"`
	BestLongFuture  string          `json:"best_long_future,omitempty"`
	BestLongRate    float64         `json:"best_long_rate"`
	Entries         []EntrySnapshot `json:"entries"`
}

// PairInfo describes one watched future/underlying pair.
type PairInfo struct {
	Future     models.Instrument `json:"future"`
	Underlying models.Instrument `json:"underlying"`
}

// Snapshot copies the current bucket state, ordered by days to maturity.
// Buckets that currently track no future are omitted.
func (r *Registry) Snapshot() []BucketSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	days := make([]int, 0, len(r.buckets))
	for d, b := range r.buckets {
		if len(b) > 0 {
			days = append(days, d)
		}
	}
	sort.Ints(days)

	snaps := make([]BucketSnapshot, 0, len(days))
	for _, d := range days {
		b := r.buckets[d]
		snap := BucketSnapshot{DaysToMaturity: d}
		for _, symbol := range b.sortedSymbols() {
			e := b[symbol]
			snap.Entries = append(snap.Entries, EntrySnapshot{
				Future:    symbol,
				ShortRate: e.ShortRate,
				LongRate:  e.LongRate,
				ShortSize: e.ShortSize,
				LongSize:  e.LongSize,
			})
		}
		snap.BestShortFuture, snap.BestShortRate, _ = b.bestShort()
		snap.BestLongFuture, snap.BestLongRate, _ = b.bestLong()
		snaps = append(snaps, snap)
	}
	return snaps
}

// Pairs lists the watched pairs ordered by future symbol.
func (r *Registry) Pairs() []PairInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbols := make([]string, 0, len(r.pairs))
	for symbol := range r.pairs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	infos := make([]PairInfo, 0, len(symbols))
	for _, symbol := range symbols {
		p := r.pairs[symbol]
		infos = append(infos, PairInfo{Future: p.future, Underlying: p.underlying})
	}
	return infos
}
