// Package console renders the live rate board and executed trades to the
// terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/hgiraudo/rofex/pkg/models"
	"github.com/hgiraudo/rofex/pkg/watch"
)

// Board writes rate snapshots and trade notices to out.
type Board struct {
	out io.Writer
	mu  sync.Mutex
}

func NewBoard(out io.Writer) *Board {
	return &Board{out: out}
}

// RenderRates prints one table per maturity bucket: every tracked future's
// implied borrow/lend rates plus the bucket's current bests.
func (b *Board) RenderRates(buckets []watch.BucketSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().Format("15:04:05")
	if len(buckets) == 0 {
		fmt.Fprintf(b.out, "\n[%s] no rates yet\n", now)
		return
	}

	for _, bucket := range buckets {
		fmt.Fprintf(b.out, "\n[%s] %d days to maturity — borrow %s %.2f%% / lend %s %.2f%%\n",
			now, bucket.DaysToMaturity,
			bucket.BestShortFuture, bucket.BestShortRate*100,
			bucket.BestLongFuture, bucket.BestLongRate*100)

		table := tablewriter.NewWriter(b.out)
		table.Header("Future", "Borrow %", "Lend %", "Ask size", "Bid size")
		for _, entry := range bucket.Entries {
			table.Append(
				entry.Future,
				fmt.Sprintf("%.4f", entry.ShortRate*100),
				fmt.Sprintf("%.4f", entry.LongRate*100),
				fmt.Sprintf("%.0f", entry.ShortSize),
				fmt.Sprintf("%.0f", entry.LongSize),
			)
		}
		table.Render()
	}
}

// Record prints an executed trade with its four legs. It satisfies the
// registry's trade-recorder capability so executions surface on the console
// as they happen.
func (b *Board) Record(ctx context.Context, trade models.ArbitrageTrade) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fmt.Fprintf(b.out, "\n[%s] ARBITRAGE %s — %d days, borrow %.2f%% < lend %.2f%%, profit %.2f\n",
		trade.CreatedAt.Format("15:04:05"), trade.ID, trade.DaysToMaturity,
		trade.ShortRate*100, trade.LongRate*100, trade.Profit)

	table := tablewriter.NewWriter(b.out)
	table.Header("Side", "Symbol", "Qty", "Price")
	for _, leg := range trade.Legs {
		table.Append(
			string(leg.Side),
			leg.Symbol,
			fmt.Sprintf("%d", leg.Quantity),
			fmt.Sprintf("%.2f", leg.Price),
		)
	}
	table.Render()

	fmt.Fprintf(b.out, "today %+.2f / maturity %+.2f\n", trade.TodayFlow, trade.MaturityFlow)
	return nil
}
