package collector

import (
	"context"
	"errors"

	"github.com/Avi18971911/TraceView/internal/db/trace_store"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/model"
	"go.uber.org/zap"
)

var ErrCollectorStopped = errors.New("collector stopped")

// batchQueue is the hand-off between request handlers and the single store consumer. The
// channel has a capacity of one, so a second producer waits until the consumer has taken
// the first batch.
type batchQueue struct {
	ctx     context.Context
	batches chan model.SpanBatch
}

func newBatchQueue(ctx context.Context) *batchQueue {
	return &batchQueue{
		ctx:     ctx,
		batches: make(chan model.SpanBatch, 1),
	}
}

func (bq *batchQueue) Submit(ctx context.Context, batch model.SpanBatch) error {
	select {
	case bq.batches <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-bq.ctx.Done():
		return ErrCollectorStopped
	}
}

// consume rebuilds the store for every delivered batch, in delivery order, until the queue
// is stopped. A failed rebuild is logged and the next batch is processed as usual.
func (bq *batchQueue) consume(store trace_store.TraceStore, logger *zap.Logger) {
	for {
		select {
		case <-bq.ctx.Done():
			return
		case batch := <-bq.batches:
			if err := store.Rebuild(batch); err != nil {
				logger.Error("Failed to rebuild traces", zap.String("batch_id", batch.Id), zap.Error(err))
			}
		}
	}
}
