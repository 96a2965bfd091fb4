package enrich

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/inkshelf/enricher/internal/model"
	"github.com/inkshelf/enricher/internal/store"
)

// BatchWriter accumulates finished records and flushes them to the store
// when the buffer reaches the threshold or on ForceFlush. Only one flush
// runs at a time; records queued during a flush land in the next one.
type BatchWriter struct {
	st        store.Store
	threshold int
	onResult  func(model.BatchEntry)

	mu  sync.Mutex
	buf []model.Record

	// flightMu serializes flushes.
	flightMu sync.Mutex
}

// NewBatchWriter creates a writer that flushes every threshold records.
// onResult fires once per record after its flush attempt, with Err set when
// the write failed; it may be nil.
func NewBatchWriter(st store.Store, threshold int, onResult func(model.BatchEntry)) *BatchWriter {
	if threshold <= 0 {
		threshold = 10
	}
	return &BatchWriter{
		st:        st,
		threshold: threshold,
		onResult:  onResult,
	}
}

// Add queues a record and flushes if the buffer reached the threshold.
func (w *BatchWriter) Add(ctx context.Context, rec model.Record) error {
	w.mu.Lock()
	w.buf = append(w.buf, rec)
	full := len(w.buf) >= w.threshold
	w.mu.Unlock()

	if !full {
		return nil
	}
	return w.flush(ctx)
}

// Pending returns the number of records waiting for a flush.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// ForceFlush drains the buffer completely, flushing repeatedly until no
// records remain, including any that arrive while a flush is in progress.
func (w *BatchWriter) ForceFlush(ctx context.Context) error {
	for {
		w.mu.Lock()
		n := len(w.buf)
		w.mu.Unlock()
		if n == 0 {
			return nil
		}
		if err := w.flush(ctx); err != nil {
			return err
		}
	}
}

// flush writes up to threshold buffered records in one batch. Records past
// the cap stay buffered for the next flush. A transport-level failure marks
// every entry in the batch as failed.
func (w *BatchWriter) flush(ctx context.Context) error {
	w.flightMu.Lock()
	defer w.flightMu.Unlock()

	w.mu.Lock()
	n := min(len(w.buf), w.threshold)
	batch := w.buf[:n:n]
	w.buf = w.buf[n:]
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	outcomes, err := w.st.UpsertBatch(ctx, batch)
	if err != nil {
		zap.L().Error("writer: batch flush failed",
			zap.Int("records", len(batch)),
			zap.Error(err),
		)
		w.emitAll(batch, err)
		return eris.Wrap(err, "writer: flush batch")
	}

	for i, o := range outcomes {
		entry := model.BatchEntry{Record: batch[i]}
		if o.Err != nil {
			entry.Err = o.Err.Error()
			zap.L().Warn("writer: record write failed",
				zap.String("url", o.URL),
				zap.Error(o.Err),
			)
		}
		w.emit(entry)
	}

	zap.L().Debug("writer: flushed batch", zap.Int("records", len(batch)))
	return nil
}

func (w *BatchWriter) emitAll(batch []model.Record, err error) {
	for _, rec := range batch {
		w.emit(model.BatchEntry{Record: rec, Err: err.Error()})
	}
}

func (w *BatchWriter) emit(entry model.BatchEntry) {
	if w.onResult != nil {
		w.onResult(entry)
	}
}
