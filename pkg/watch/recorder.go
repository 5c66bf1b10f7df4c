package watch

import (
	"context"

	"github.com/hgiraudo/rofex/pkg/models"
)

// MultiRecorder fans an executed trade out to several recorders. The first
// error is returned but every recorder still runs.
type MultiRecorder []TradeRecorder

func (m MultiRecorder) Record(ctx context.Context, trade models.ArbitrageTrade) error {
	var first error
	for _, r := range m {
		if err := r.Record(ctx, trade); err != nil && first == nil {
			first = err
		}
	}
	return first
}
