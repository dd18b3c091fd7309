package recorder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shelfline/flightrec/model"
	"github.com/shelfline/flightrec/internal/store"
)

// Buffer defaults. A flush is issued when the queue reaches FlushSize
// entries or FlushInterval after the first unflushed entry was queued,
// whichever comes first.
const (
	DefaultFlushSize     = 20
	DefaultFlushInterval = 5 * time.Second
)

// detailBuffer batches started detail rows into periodic bulk inserts.
// Completions arriving while the row is still queued are applied in place,
// so most details reach the store as a single terminal-state insert instead
// of an insert-then-update pair.
type detailBuffer struct {
	store     store.Store
	logger    *zap.Logger
	flushSize int
	interval  time.Duration

	// schedule is time.AfterFunc in production; tests inject their own to
	// control flush timing.
	schedule func(d time.Duration, fn func()) *time.Timer

	// notify reports flush outcomes to the owning Recorder's observers.
	notify func(count int, failed bool)

	mu        sync.Mutex
	queue     []*model.Detail
	index     map[string]*model.Detail
	scheduled bool
}

func newDetailBuffer(s store.Store, logger *zap.Logger, flushSize int, interval time.Duration) *detailBuffer {
	if flushSize <= 0 {
		flushSize = DefaultFlushSize
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &detailBuffer{
		store:     s,
		logger:    logger,
		flushSize: flushSize,
		interval:  interval,
		schedule:  time.AfterFunc,
		index:     make(map[string]*model.Detail),
	}
}

// add queues a started detail row. Reaching the size threshold triggers an
// immediate flush; otherwise the first queued entry schedules an idle flush.
func (b *detailBuffer) add(d model.Detail) {
	b.mu.Lock()
	row := d
	b.queue = append(b.queue, &row)
	b.index[d.DetailID] = &row

	if len(b.queue) >= b.flushSize {
		batch := b.drainLocked()
		b.mu.Unlock()
		b.persist(context.Background(), batch)
		return
	}
	if !b.scheduled {
		b.scheduled = true
		b.schedule(b.interval, b.timedFlush)
	}
	b.mu.Unlock()
}

// complete applies a terminal transition to a still-buffered detail.
// Returns false when the row has already been flushed, in which case the
// caller must issue a store update instead.
func (b *detailBuffer) complete(detailID string, terminal store.DetailTerminal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	row, ok := b.index[detailID]
	if !ok {
		return false
	}
	row.Status = terminal.Status
	row.ResponseStatus = terminal.ResponseStatus
	row.ResponseBody = terminal.ResponseBody
	row.ResponseHeaders = terminal.ResponseHeaders
	row.OperationOutput = terminal.OperationOutput
	row.Error = terminal.Error
	finished := terminal.FinishedAt
	row.DateFinished = &finished
	row.DurationMs = terminal.DurationMs
	return true
}

// flush drains the queue and persists everything unconditionally. The trace
// terminal path calls this before any trace is marked completed or failed,
// which is the ordering guarantee that keeps details from outliving their
// trace's terminal write.
func (b *detailBuffer) flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.drainLocked()
	b.mu.Unlock()
	b.persist(ctx, batch)
}

// pending returns the number of queued rows. For testing.
func (b *detailBuffer) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *detailBuffer) timedFlush() {
	b.flush(context.Background())
}

// drainLocked empties the queue and clears the scheduled-flush flag. Caller
// must hold the lock.
func (b *detailBuffer) drainLocked() []model.Detail {
	if len(b.queue) == 0 {
		b.scheduled = false
		return nil
	}
	batch := make([]model.Detail, 0, len(b.queue))
	for _, row := range b.queue {
		batch = append(batch, *row)
		delete(b.index, row.DetailID)
	}
	b.queue = b.queue[:0]
	b.scheduled = false
	return batch
}

// persist writes a drained batch. A failed write is logged and dropped;
// tracing data loss is acceptable, retry storms against a sick store are
// not.
func (b *detailBuffer) persist(ctx context.Context, batch []model.Detail) {
	if len(batch) == 0 || b.store == nil {
		return
	}
	err := b.store.CreateDetails(ctx, batch)
	if err != nil {
		b.logger.Warn("detail batch write failed",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
	}
	if b.notify != nil {
		b.notify(len(batch), err != nil)
	}
}
