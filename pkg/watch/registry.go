// Package watch implements the rate-arbitrage engine: a registry of watched
// future/underlying pairs that consumes market-data ticks, tracks implied
// borrow and lend rates per maturity bucket, and emits paired orders when the
// best lend rate in a bucket crosses above the best borrow rate.
package watch

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hgiraudo/rofex/pkg/models"
	"github.com/hgiraudo/rofex/pkg/rates"
)

// QuoteSource supplies the current bid/ask for an instrument. A missing
// quote is reported as models.ErrNoQuote with a zero price; implementations
// never panic on well-formed symbols.
type QuoteSource interface {
	BidPrice(ctx context.Context, symbol string) (float64, error)
	AskPrice(ctx context.Context, symbol string) (float64, error)
}

// OrderSink accepts buy/sell instructions. Submissions are fire-and-forget:
// the engine logs failures and keeps going, it does not track order state.
type OrderSink interface {
	Buy(ctx context.Context, symbol string, quantity int64, price float64) error
	Sell(ctx context.Context, symbol string, quantity int64, price float64) error
}

// TradeRecorder receives every executed arbitrage trade.
type TradeRecorder interface {
	Record(ctx context.Context, trade models.ArbitrageTrade) error
}

// MissingQuotePolicy decides what happens when the underlying's quote source
// has no current price for a tick.
type MissingQuotePolicy string

const (
	// PolicyTreatAsZero degrades the affected implied rate to zero and
	// processes the tick anyway. A zero rate is then indistinguishable from
	// a genuine zero; this mirrors the historical behavior.
	PolicyTreatAsZero MissingQuotePolicy = "zero"
	// PolicySkip drops the tick without touching bucket state.
	PolicySkip MissingQuotePolicy = "skip"
)

// Config carries the engine's collaborators and startup parameters.
type Config struct {
	// TransactionCost is the flat proportional rate applied symmetrically
	// to both legs of both trade directions, e.g. 0.001 for 0.1%.
	TransactionCost float64
	OnMissingQuote  MissingQuotePolicy
	// FutureSink receives the futures legs, SpotSink the underlying legs.
	FutureSink OrderSink
	SpotSink   OrderSink
	// Recorder is optional.
	Recorder TradeRecorder
}

type pair struct {
	future     models.Instrument
	underlying models.Instrument
	quotes     QuoteSource
}

// Registry owns the watched pairs, the per-maturity rate buckets and the
// market price cache. All mutable state sits behind one mutex held for the
// whole of a tick, so interleaved feed callbacks observe consistent
// snapshots.
type Registry struct {
	mu       sync.Mutex
	pairs    map[string]*pair // keyed by future symbol
	buckets  map[int]bucket   // keyed by days-to-maturity at registration
	bidCache map[string]float64
	askCache map[string]float64

	cost           float64
	onMissingQuote MissingQuotePolicy
	futureSink     OrderSink
	spotSink       OrderSink
	recorder       TradeRecorder
	logger         *logrus.Logger
}

func NewRegistry(cfg Config, logger *logrus.Logger) *Registry {
	policy := cfg.OnMissingQuote
	if policy == "" {
		policy = PolicyTreatAsZero
	}
	return &Registry{
		pairs:          make(map[string]*pair),
		buckets:        make(map[int]bucket),
		bidCache:       make(map[string]float64),
		askCache:       make(map[string]float64),
		cost:           cfg.TransactionCost,
		onMissingQuote: policy,
		futureSink:     cfg.FutureSink,
		spotSink:       cfg.SpotSink,
		recorder:       cfg.Recorder,
		logger:         logger,
	}
}

// Watch registers a future/underlying pair. The pair lands in the bucket
// keyed by the future's days-to-maturity as computed at registration, so two
// futures with the same maturity date registered on different days may sit
// in different buckets.
func (r *Registry) Watch(future, underlying models.Instrument, quotes QuoteSource) error {
	if future.Class != models.ClassFuture {
		return fmt.Errorf("watch %s: not a future", future.Symbol)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pairs[future.Symbol]; exists {
		return fmt.Errorf("watch %s: already watched", future.Symbol)
	}
	r.pairs[future.Symbol] = &pair{future: future, underlying: underlying, quotes: quotes}
	if r.buckets[future.DaysToMaturity] == nil {
		r.buckets[future.DaysToMaturity] = make(bucket)
	}

	r.logger.WithFields(logrus.Fields{
		"future":     future.Symbol,
		"underlying": underlying.Symbol,
		"days":       future.DaysToMaturity,
	}).Info("Watching pair")
	return nil
}

// WatchSymbols lists the watched future symbols; used to subscribe for
// market data.
func (r *Registry) WatchSymbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbols := make([]string, 0, len(r.pairs))
	for symbol := range r.pairs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Underlying resolves the underlying instrument of a watched future.
func (r *Registry) Underlying(futureSymbol string) (models.Instrument, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pairs[futureSymbol]
	if !ok {
		return models.Instrument{}, false
	}
	return p.underlying, true
}

// ProcessTick runs the full ingest-to-execute sequence for one market-data
// tick: quote the underlying, recompute implied rates, update the bucket and
// price cache, scan for a crossed-rate opportunity and, if one survives
// sizing and the profitability gate, emit the four orders and retire the
// consumed quotes. Single-sided ticks are dropped.
func (r *Registry) ProcessTick(ctx context.Context, tick models.MarketTick) {
	if !tick.TwoSided() {
		r.logger.WithField("symbol", tick.Symbol).Debug("Dropping single-sided tick")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pairs[tick.Symbol]
	if !ok {
		r.logger.WithField("symbol", tick.Symbol).Warn("Tick for unwatched future")
		return
	}

	spotBid, spotAsk, ok := r.spotQuotes(ctx, p)
	if !ok {
		return
	}

	days := p.future.DaysToMaturity
	shortRate, longRate := rates.Implicit(
		spotBid, spotAsk, tick.Bid.Price, tick.Ask.Price, days, r.cost)

	b := r.buckets[days]
	if b == nil {
		b = make(bucket)
		r.buckets[days] = b
	}
	b[tick.Symbol] = rateEntry{
		ShortRate: shortRate,
		LongRate:  longRate,
		ShortSize: tick.Ask.Size,
		LongSize:  tick.Bid.Size,
	}

	r.bidCache[tick.Symbol] = tick.Bid.Price
	r.askCache[tick.Symbol] = tick.Ask.Price
	r.bidCache[p.underlying.Symbol] = spotBid
	r.askCache[p.underlying.Symbol] = spotAsk

	bestShortSym, bestShort, okS := b.bestShort()
	bestLongSym, bestLong, okL := b.bestLong()
	if !okS || !okL {
		return
	}

	r.logger.WithFields(logrus.Fields{
		"days":         days,
		"best_long":    fmt.Sprintf("%.2f%%", bestLong*100),
		"long_future":  bestLongSym,
		"best_short":   fmt.Sprintf("%.2f%%", bestShort*100),
		"short_future": bestShortSym,
	}).Info("Bucket best rates")

	// Opportunity: lending in this bucket pays more than borrowing costs,
	// regardless of which future triggered the tick.
	if bestLong <= bestShort {
		return
	}

	r.execute(ctx, days, b, bestShortSym, bestShort, bestLongSym, bestLong)
}

// spotQuotes pulls the underlying's current bid/ask, applying the configured
// missing-quote policy. ok is false when the tick should be skipped.
func (r *Registry) spotQuotes(ctx context.Context, p *pair) (bid, ask float64, ok bool) {
	var err error
	bid, err = p.quotes.BidPrice(ctx, p.underlying.Symbol)
	if err != nil {
		if r.onMissingQuote == PolicySkip {
			r.logger.WithError(err).WithField("symbol", p.underlying.Symbol).
				Info("No spot bid, skipping tick")
			return 0, 0, false
		}
		r.logger.WithError(err).WithField("symbol", p.underlying.Symbol).
			Debug("No spot bid, treating as zero")
		bid = 0
	}
	ask, err = p.quotes.AskPrice(ctx, p.underlying.Symbol)
	if err != nil {
		if r.onMissingQuote == PolicySkip {
			r.logger.WithError(err).WithField("symbol", p.underlying.Symbol).
				Info("No spot ask, skipping tick")
			return 0, 0, false
		}
		r.logger.WithError(err).WithField("symbol", p.underlying.Symbol).
			Debug("No spot ask, treating as zero")
		ask = 0
	}
	return bid, ask, true
}

// execute sizes the crossed-rate opportunity, validates profitability under
// integer-lot constraints, retires the consumed quotes and emits the four
// orders. Called with the registry lock held.
func (r *Registry) execute(ctx context.Context, days int, b bucket,
	bestShortSym string, bestShort float64, bestLongSym string, bestLong float64) {

	longEntry := b[bestLongSym]
	shortEntry := b[bestShortSym]
	longPair := r.pairs[bestLongSym]
	shortPair := r.pairs[bestShortSym]

	// Lend leg: sell the future, buy the underlying.
	longSellSym := bestLongSym
	longBuySym := longPair.underlying.Symbol
	longSellPrice := r.bidCache[longSellSym]
	longBuyPrice := r.askCache[longBuySym]
	longInvestable := longSellPrice * longEntry.LongSize

	// Borrow leg: buy the future, sell the underlying short.
	shortBuySym := bestShortSym
	shortSellSym := shortPair.underlying.Symbol
	shortBuyPrice := r.askCache[shortBuySym]
	shortSellPrice := r.bidCache[shortSellSym]
	shortInvestable := shortBuyPrice * shortEntry.ShortSize

	if longBuyPrice <= 0 || shortSellPrice <= 0 {
		r.logger.WithFields(logrus.Fields{
			"long_buy":   longBuySym,
			"short_sell": shortSellSym,
		}).Info("Missing spot prices, cannot size trade")
		return
	}

	// Invest no more than the smaller of what the two quoted depths allow,
	// in whole units per leg. A rounded-to-zero leg is tried with one unit.
	maxInvestment := math.Min(longInvestable, shortInvestable)
	longQty := int64(math.Floor(maxInvestment / longBuyPrice))
	shortQty := int64(math.Floor(maxInvestment / shortSellPrice))
	if longQty == 0 {
		longQty = 1
	}
	if shortQty == 0 {
		shortQty = 1
	}

	// Signed cash flows: today (entry) and at maturity (unwind), each leg
	// adjusted by the transaction cost.
	longInvestment := -longBuyPrice * float64(longQty) * (1 + r.cost)
	shortInvestment := shortSellPrice * float64(shortQty) * (1 - r.cost)
	longReturn := longSellPrice * float64(longQty) * (1 - r.cost)
	shortReturn := -shortBuyPrice * float64(shortQty) * (1 + r.cost)
	todayFlow := longInvestment + shortInvestment
	maturityFlow := longReturn + shortReturn
	profit := todayFlow + maturityFlow

	fields := logrus.Fields{
		"days":          days,
		"long_future":   bestLongSym,
		"short_future":  bestShortSym,
		"long_qty":      longQty,
		"short_qty":     shortQty,
		"today_flow":    fmt.Sprintf("%.2f", todayFlow),
		"maturity_flow": fmt.Sprintf("%.2f", maturityFlow),
		"profit":        fmt.Sprintf("%.2f", profit),
	}

	// Integer-lot rounding can erase a theoretically positive edge.
	if profit < 0 {
		r.logger.WithFields(fields).Info("Opportunity not profitable after rounding, aborting")
		return
	}

	// Retire the consumed quotes so a later tick cannot trade them again
	// before fresh data arrives.
	delete(b, bestShortSym)
	delete(b, bestLongSym)
	delete(r.bidCache, shortSellSym)
	delete(r.bidCache, longSellSym)
	delete(r.askCache, shortBuySym)
	delete(r.askCache, longBuySym)

	r.logger.WithFields(fields).Info("Executing rate arbitrage")

	r.submit(ctx, r.futureSink, models.OrderSideSell, longSellSym, longQty, longSellPrice)
	r.submit(ctx, r.spotSink, models.OrderSideBuy, longBuySym, longQty, longBuyPrice)
	r.submit(ctx, r.futureSink, models.OrderSideBuy, shortBuySym, shortQty, shortBuyPrice)
	r.submit(ctx, r.spotSink, models.OrderSideSell, shortSellSym, shortQty, shortSellPrice)

	if r.recorder != nil {
		trade := models.ArbitrageTrade{
			ID:             uuid.NewString(),
			DaysToMaturity: days,
			ShortRate:      bestShort,
			LongRate:       bestLong,
			Legs: []models.TradeLeg{
				{Symbol: longSellSym, Side: models.OrderSideSell, Quantity: longQty, Price: longSellPrice},
				{Symbol: longBuySym, Side: models.OrderSideBuy, Quantity: longQty, Price: longBuyPrice},
				{Symbol: shortBuySym, Side: models.OrderSideBuy, Quantity: shortQty, Price: shortBuyPrice},
				{Symbol: shortSellSym, Side: models.OrderSideSell, Quantity: shortQty, Price: shortSellPrice},
			},
			TodayFlow:    todayFlow,
			MaturityFlow: maturityFlow,
			Profit:       profit,
			MaturityDate: longPair.future.MaturityDate,
			CreatedAt:    time.Now(),
		}
		if err := r.recorder.Record(ctx, trade); err != nil {
			r.logger.WithError(err).Error("Failed to record trade")
		}
	}
}

func (r *Registry) submit(ctx context.Context, sink OrderSink, side models.OrderSide,
	symbol string, quantity int64, price float64) {

	var err error
	if side == models.OrderSideBuy {
		err = sink.Buy(ctx, symbol, quantity, price)
	} else {
		err = sink.Sell(ctx, symbol, quantity, price)
	}
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"symbol": symbol,
			"side":   side,
		}).Error("Order submission failed")
	}
}
