package rebind

import "context"

// DefaultBackfillBatchSize is used when Backfill is called with a batch
// size of zero or less.
const DefaultBackfillBatchSize = 100

// Backfill writes tuples to the adapter in batches, returning the count
// written. It is the bulk-load path for bringing the store up to date
// with pre-existing records, for example after first enabling
// synchronization on a model.
//
// Tuples are drained from the channel until it is closed, so producers
// can stream from large tables without materializing the full set. On
// adapter failure the count written so far is returned with the error;
// writes are touch-semantics, so re-running a backfill is safe.
func Backfill(ctx context.Context, adapter Adapter, tuples <-chan TupleWrite, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatchSize
	}

	buffer := make([]TupleWrite, 0, batchSize)
	total := 0

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		// Each batch gets its own backing array; an adapter may retain
		// the slice past the call.
		batch := buffer
		buffer = make([]TupleWrite, 0, batchSize)
		if err := adapter.WriteTuples(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case tw, ok := <-tuples:
			if !ok {
				return total, flush()
			}
			buffer = append(buffer, tw)
			if len(buffer) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
