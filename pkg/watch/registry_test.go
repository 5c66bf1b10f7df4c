package watch

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgiraudo/rofex/pkg/models"
)

type stubQuotes struct {
	bids map[string]float64
	asks map[string]float64
}

func (s stubQuotes) BidPrice(_ context.Context, symbol string) (float64, error) {
	if v, ok := s.bids[symbol]; ok {
		return v, nil
	}
	return 0, models.ErrNoQuote
}

func (s stubQuotes) AskPrice(_ context.Context, symbol string) (float64, error) {
	if v, ok := s.asks[symbol]; ok {
		return v, nil
	}
	return 0, models.ErrNoQuote
}

type sinkCall struct {
	Side     models.OrderSide
	Symbol   string
	Quantity int64
	Price    float64
}

type stubSink struct {
	calls []sinkCall
}

func (s *stubSink) Buy(_ context.Context, symbol string, quantity int64, price float64) error {
	s.calls = append(s.calls, sinkCall{models.OrderSideBuy, symbol, quantity, price})
	return nil
}

func (s *stubSink) Sell(_ context.Context, symbol string, quantity int64, price float64) error {
	s.calls = append(s.calls, sinkCall{models.OrderSideSell, symbol, quantity, price})
	return nil
}

type stubRecorder struct {
	trades []models.ArbitrageTrade
}

func (s *stubRecorder) Record(_ context.Context, trade models.ArbitrageTrade) error {
	s.trades = append(s.trades, trade)
	return nil
}

func future(symbol string, days int) models.Instrument {
	return models.Instrument{
		Symbol:         symbol,
		Class:          models.ClassFuture,
		MaturityDate:   time.Now().AddDate(0, 0, days),
		DaysToMaturity: days,
	}
}

func tick(symbol string, bid, bidSize, ask, askSize float64) models.MarketTick {
	return models.MarketTick{
		Symbol:    symbol,
		Bid:       &models.PriceLevel{Price: bid, Size: bidSize},
		Ask:       &models.PriceLevel{Price: ask, Size: askSize},
		Timestamp: time.Now(),
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRegistry(policy MissingQuotePolicy) (*Registry, *stubSink, *stubSink, *stubRecorder) {
	futSink := &stubSink{}
	spotSink := &stubSink{}
	recorder := &stubRecorder{}
	r := NewRegistry(Config{
		TransactionCost: 0,
		OnMissingQuote:  policy,
		FutureSink:      futSink,
		SpotSink:        spotSink,
		Recorder:        recorder,
	}, quietLogger())
	return r, futSink, spotSink, recorder
}

func TestWatchRejectsNonFutureAndDuplicate(t *testing.T) {
	r, _, _, _ := newTestRegistry(PolicyTreatAsZero)
	quotes := stubQuotes{}

	err := r.Watch(models.NewEquity("GGAL.BA"), models.NewEquity("GGAL.BA"), quotes)
	assert.Error(t, err)

	require.NoError(t, r.Watch(future("GGAL/AGO21", 71), models.NewEquity("GGAL.BA"), quotes))
	assert.Error(t, r.Watch(future("GGAL/AGO21", 71), models.NewEquity("GGAL.BA"), quotes))

	assert.Equal(t, []string{"GGAL/AGO21"}, r.WatchSymbols())
}

func TestProcessTickTracksRatesWithoutCross(t *testing.T) {
	r, futSink, spotSink, recorder := newTestRegistry(PolicyTreatAsZero)
	quotes := stubQuotes{
		bids: map[string]float64{"PAMP.BA": 105},
		asks: map[string]float64{"PAMP.BA": 113},
	}
	require.NoError(t, r.Watch(future("PAMP/AGO21", 71), models.NewEquity("PAMP.BA"), quotes))

	r.ProcessTick(context.Background(), tick("PAMP/AGO21", 115.4, 10, 119.55, 15))

	snaps := r.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, 71, snaps[0].DaysToMaturity)
	require.Len(t, snaps[0].Entries, 1)

	e := snaps[0].Entries[0]
	assert.InDelta(t, 0.7123742, e.ShortRate, 1e-6)
	assert.InDelta(t, 0.1091861, e.LongRate, 1e-6)
	assert.Equal(t, 15.0, e.ShortSize)
	assert.Equal(t, 10.0, e.LongSize)

	// A single future cannot lend above its own borrow cost here.
	assert.Empty(t, futSink.calls)
	assert.Empty(t, spotSink.calls)
	assert.Empty(t, recorder.trades)
}

func TestProcessTickIdempotent(t *testing.T) {
	r, _, _, _ := newTestRegistry(PolicyTreatAsZero)
	quotes := stubQuotes{
		bids: map[string]float64{"PAMP.BA": 105},
		asks: map[string]float64{"PAMP.BA": 113},
	}
	require.NoError(t, r.Watch(future("PAMP/AGO21", 71), models.NewEquity("PAMP.BA"), quotes))

	td := tick("PAMP/AGO21", 115.4, 10, 119.55, 15)
	r.ProcessTick(context.Background(), td)
	first := r.Snapshot()
	r.ProcessTick(context.Background(), td)
	second := r.Snapshot()

	assert.Equal(t, first, second)
}

func TestBucketIsolation(t *testing.T) {
	r, futSink, spotSink, _ := newTestRegistry(PolicyTreatAsZero)
	quotes := stubQuotes{
		bids: map[string]float64{"DLR": 94.8},
		asks: map[string]float64{"DLR": 100.8},
	}
	require.NoError(t, r.Watch(future("DLR/AGO21", 71), models.NewCurrency("DLR"), quotes))
	require.NoError(t, r.Watch(future("DLR/SEP21", 101), models.NewCurrency("DLR"), quotes))

	r.ProcessTick(context.Background(), tick("DLR/AGO21", 101.1, 100, 101.22, 400))
	r.ProcessTick(context.Background(), tick("DLR/SEP21", 103.6, 200, 103.8, 250))

	snaps := r.Snapshot()
	require.Len(t, snaps, 2)
	assert.Equal(t, 71, snaps[0].DaysToMaturity)
	assert.Equal(t, "DLR/AGO21", snaps[0].Entries[0].Future)
	assert.Equal(t, 101, snaps[1].DaysToMaturity)
	assert.Equal(t, "DLR/SEP21", snaps[1].Entries[0].Future)

	// Rates never cross across buckets, whatever their values.
	assert.Empty(t, futSink.calls)
	assert.Empty(t, spotSink.calls)
}

func TestCrossedRatesExecuteArbitrage(t *testing.T) {
	r, futSink, spotSink, recorder := newTestRegistry(PolicyTreatAsZero)
	quotes := stubQuotes{
		bids: map[string]float64{"DLR": 94.8, "YPFD.BA": 847.55, "GGAL.BA": 100},
		asks: map[string]float64{"DLR": 100.8, "YPFD.BA": 850, "GGAL.BA": 102},
	}
	require.NoError(t, r.Watch(future("DLR/AGO21", 71), models.NewCurrency("DLR"), quotes))
	require.NoError(t, r.Watch(future("YPFD/AGO21", 71), models.NewEquity("YPFD.BA"), quotes))
	require.NoError(t, r.Watch(future("GGAL/AGO21", 71), models.NewEquity("GGAL.BA"), quotes))

	ctx := context.Background()
	r.ProcessTick(ctx, tick("DLR/AGO21", 101.1, 100, 101.22, 400))
	r.ProcessTick(ctx, tick("GGAL/AGO21", 102.5, 5, 108, 5))
	require.Empty(t, futSink.calls, "no cross before the lend leg appears")

	// YPFD lends at ~43.5% while DLR borrows at ~34.8%: crossed.
	r.ProcessTick(ctx, tick("YPFD/AGO21", 921, 7, 931, 4))

	// Lend leg: investable = 921*7 = 6447 capped by the short side's 40488;
	// 6447/850 floors to 7 units. Borrow leg: 6447/94.8 floors to 68.
	require.Len(t, futSink.calls, 2)
	assert.Equal(t, sinkCall{models.OrderSideSell, "YPFD/AGO21", 7, 921}, futSink.calls[0])
	assert.Equal(t, sinkCall{models.OrderSideBuy, "DLR/AGO21", 68, 101.22}, futSink.calls[1])

	require.Len(t, spotSink.calls, 2)
	assert.Equal(t, sinkCall{models.OrderSideBuy, "YPFD.BA", 7, 850}, spotSink.calls[0])
	assert.Equal(t, sinkCall{models.OrderSideSell, "DLR", 68, 94.8}, spotSink.calls[1])

	require.Len(t, recorder.trades, 1)
	trade := recorder.trades[0]
	assert.Equal(t, 71, trade.DaysToMaturity)
	assert.InDelta(t, 496.40, trade.TodayFlow, 0.01)
	assert.InDelta(t, -435.96, trade.MaturityFlow, 0.01)
	assert.InDelta(t, 60.44, trade.Profit, 0.01)
	assert.Len(t, trade.Legs, 4)

	// Consumed entries are retired; the uninvolved future survives.
	snaps := r.Snapshot()
	require.Len(t, snaps, 1)
	require.Len(t, snaps[0].Entries, 1)
	assert.Equal(t, "GGAL/AGO21", snaps[0].Entries[0].Future)
}

func TestSizingFlooredToOneUnitMinimum(t *testing.T) {
	r, futSink, spotSink, recorder := newTestRegistry(PolicyTreatAsZero)
	quotes := stubQuotes{
		bids: map[string]float64{"LLL.BA": 94, "SSS.BA": 96},
		asks: map[string]float64{"LLL.BA": 95, "SSS.BA": 97},
	}
	require.NoError(t, r.Watch(future("LLL/OCT99", 71), models.NewEquity("LLL.BA"), quotes))
	require.NoError(t, r.Watch(future("SSS/OCT99", 71), models.NewEquity("SSS.BA"), quotes))

	ctx := context.Background()
	// Lend leg LLL at a fat rate but almost no depth: investable 120*0.5 = 60.
	r.ProcessTick(ctx, tick("LLL/OCT99", 120, 0.5, 121, 0.5))
	require.Empty(t, futSink.calls, "no cross before the borrow leg appears")

	// Borrow leg SSS caps the investment at 100*0.5 = 50. Both quotients
	// floor to zero (50/95, 50/96), so each leg trades the one-unit minimum.
	r.ProcessTick(ctx, tick("SSS/OCT99", 99, 0.5, 100, 0.5))

	require.Len(t, futSink.calls, 2)
	assert.Equal(t, sinkCall{models.OrderSideSell, "LLL/OCT99", 1, 120}, futSink.calls[0])
	assert.Equal(t, sinkCall{models.OrderSideBuy, "SSS/OCT99", 1, 100}, futSink.calls[1])

	require.Len(t, spotSink.calls, 2)
	assert.Equal(t, sinkCall{models.OrderSideBuy, "LLL.BA", 1, 95}, spotSink.calls[0])
	assert.Equal(t, sinkCall{models.OrderSideSell, "SSS.BA", 1, 96}, spotSink.calls[1])

	require.Len(t, recorder.trades, 1)
	for _, leg := range recorder.trades[0].Legs {
		assert.Equal(t, int64(1), leg.Quantity, "leg %s", leg.Symbol)
	}
	assert.InDelta(t, 21.0, recorder.trades[0].Profit, 1e-9)
}

func TestUnprofitableAfterRoundingAborts(t *testing.T) {
	r, futSink, spotSink, recorder := newTestRegistry(PolicyTreatAsZero)
	quotes := stubQuotes{
		bids: map[string]float64{"AAA.BA": 990, "BBB.BA": 10},
		asks: map[string]float64{"AAA.BA": 999, "BBB.BA": 10.05},
	}
	require.NoError(t, r.Watch(future("AAA/OCT99", 10), models.NewEquity("AAA.BA"), quotes))
	require.NoError(t, r.Watch(future("BBB/OCT99", 10), models.NewEquity("BBB.BA"), quotes))

	ctx := context.Background()
	// Lend leg AAA: rate (1001/999-1)*36.5 ~ 7.3%, investable 1001*1.9.
	r.ProcessTick(ctx, tick("AAA/OCT99", 1001, 1.9, 1050, 1))
	// Borrow leg BBB: rate (10.015/10-1)*36.5 ~ 5.5%, below AAA's lend rate.
	// Sizing: lend qty floors 1901.9/999 to 1 (gains 2), borrow qty floors
	// to 190 (loses 190*0.015 = 2.85). Total profit is negative.
	r.ProcessTick(ctx, tick("BBB/OCT99", 9.9, 5, 10.015, 190))

	assert.Empty(t, futSink.calls)
	assert.Empty(t, spotSink.calls)
	assert.Empty(t, recorder.trades)

	// Nothing was retired.
	snaps := r.Snapshot()
	require.Len(t, snaps, 1)
	assert.Len(t, snaps[0].Entries, 2)
}

func TestMissingQuoteSkipPolicy(t *testing.T) {
	r, _, _, _ := newTestRegistry(PolicySkip)
	quotes := stubQuotes{} // no spot quotes at all
	require.NoError(t, r.Watch(future("GGAL/AGO21", 71), models.NewEquity("GGAL.BA"), quotes))

	r.ProcessTick(context.Background(), tick("GGAL/AGO21", 168.1, 18, 168.95, 14))

	assert.Empty(t, r.Snapshot(), "skip policy must leave bucket state untouched")
}

func TestMissingQuoteZeroPolicy(t *testing.T) {
	r, futSink, _, _ := newTestRegistry(PolicyTreatAsZero)
	quotes := stubQuotes{}
	require.NoError(t, r.Watch(future("GGAL/AGO21", 71), models.NewEquity("GGAL.BA"), quotes))

	r.ProcessTick(context.Background(), tick("GGAL/AGO21", 168.1, 18, 168.95, 14))

	snaps := r.Snapshot()
	require.Len(t, snaps, 1)
	require.Len(t, snaps[0].Entries, 1)
	assert.Equal(t, 0.0, snaps[0].Entries[0].ShortRate)
	assert.Equal(t, 0.0, snaps[0].Entries[0].LongRate)
	assert.Empty(t, futSink.calls)
}

func TestSingleSidedAndUnwatchedTicksDropped(t *testing.T) {
	r, _, _, _ := newTestRegistry(PolicyTreatAsZero)
	quotes := stubQuotes{
		bids: map[string]float64{"GGAL.BA": 105},
		asks: map[string]float64{"GGAL.BA": 113},
	}
	require.NoError(t, r.Watch(future("GGAL/AGO21", 71), models.NewEquity("GGAL.BA"), quotes))

	ctx := context.Background()
	r.ProcessTick(ctx, models.MarketTick{
		Symbol: "GGAL/AGO21",
		Bid:    &models.PriceLevel{Price: 168.1, Size: 18},
	})
	r.ProcessTick(ctx, tick("PAMP/AGO21", 115.4, 10, 119.55, 15))

	assert.Empty(t, r.Snapshot())
}

func TestBestRateTieBreaksLexicographically(t *testing.T) {
	r, _, _, _ := newTestRegistry(PolicyTreatAsZero)
	quotes := stubQuotes{
		bids: map[string]float64{"DLR": 100},
		asks: map[string]float64{"DLR": 100},
	}
	require.NoError(t, r.Watch(future("ZZZ/AGO21", 71), models.NewCurrency("DLR"), quotes))
	require.NoError(t, r.Watch(future("AAA/AGO21", 71), models.NewCurrency("DLR"), quotes))

	ctx := context.Background()
	// Identical quotes produce identical rates for both futures.
	r.ProcessTick(ctx, tick("ZZZ/AGO21", 101, 10, 102, 10))
	r.ProcessTick(ctx, tick("AAA/AGO21", 101, 10, 102, 10))

	snaps := r.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, "AAA/AGO21", snaps[0].BestShortFuture)
	assert.Equal(t, "AAA/AGO21", snaps[0].BestLongFuture)
}

func TestMultiRecorderFansOutAndKeepsGoing(t *testing.T) {
	failing := &failingRecorder{}
	second := &stubRecorder{}
	m := MultiRecorder{failing, second}

	err := m.Record(context.Background(), models.ArbitrageTrade{ID: "t-1"})
	assert.Error(t, err)
	require.Len(t, second.trades, 1)
	assert.Equal(t, "t-1", second.trades[0].ID)
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, models.ArbitrageTrade) error {
	return errors.New("sink down")
}
