package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/fixrouter/internal/buffer"
	"github.com/rickgao/fixrouter/internal/router"
)

// Writer consumes routing events and writes them to routed_messages in
// batches. It implements router.Observer.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	// Input from the pipeline
	input *buffer.Growable[router.Event]

	// Database
	db DB

	// Batching
	batch   []row
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Stats
}

// NewWriter creates a Writer. Events are buffered from the moment it is
// created; nothing is written until Start.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	initial := 1024
	if initial > cfg.BufferSize {
		initial = cfg.BufferSize
	}

	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "journal"),
		input:  buffer.New[router.Event](initial, cfg.BufferSize),
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// Observe queues ev for writing. It never blocks; when the buffer is full
// the event is dropped and counted.
func (w *Writer) Observe(ev router.Event) {
	if !w.input.Send(ev) {
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
	}
}

// Start begins consuming events and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop halts the loops, then writes whatever is still buffered using ctx.
// It returns ctx's error if rows remain unwritten when ctx ends.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.cancel != nil {
		w.cancel()
	}
	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		return ctx.Err()
	}

	for _, ev := range w.input.DrainTo(0) {
		w.add(ev)
	}
	for w.pending() > 0 && ctx.Err() == nil {
		w.flush(ctx)
	}

	if left := w.pending(); left > 0 {
		w.logger.Warn("journal writer stopped with unwritten rows", "count", left)
		return ctx.Err()
	}
	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop moves events from the input buffer into the batch.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		ev, ok := w.input.Receive(w.ctx)
		if !ok {
			return
		}
		if w.add(ev) {
			// Once stopping, the rest is left to Stop's final flush.
			if w.ctx.Err() != nil {
				return
			}
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends ev to the batch and reports whether the batch is full.
func (w *Writer) add(ev router.Event) bool {
	r := transform(ev)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, r)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts an Event to a row.
func transform(ev router.Event) row {
	r := row{
		MsgID:      ev.MsgID.String(),
		ReceivedAt: ev.Time,
		SourceID:   ev.SourceID,
		DestID:     ev.DestID,
		MsgType:    ev.MsgType,
		Outcome:    ev.Outcome.String(),
		Raw:        ev.Raw,
	}
	if ev.ClOrdID != "" {
		r.ClOrdID = &ev.ClOrdID
	}
	if ev.Reason != "" {
		r.Reason = &ev.Reason
	}
	return r
}

// pending returns the number of rows waiting in the batch.
func (w *Writer) pending() int {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return len(w.batch)
}

// flush writes up to BatchSize rows from the head of the batch and reports
// whether it wrote any. Rows whose insert failed because ctx ended are put
// back for a later flush; any other failure discards them.
func (w *Writer) flush(ctx context.Context) bool {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return false
	}

	// Take ownership of the head of the batch
	n := min(len(w.batch), w.cfg.BatchSize)
	batch := w.batch[:n:n]
	rest := make([]row, 0, w.cfg.BatchSize)
	w.batch = append(rest, w.batch[n:]...)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.batchMu.Lock()
		defer w.batchMu.Unlock()
		if ctx.Err() != nil {
			w.batch = append(batch, w.batch...)
			w.logger.Debug("batch insert deferred", "count", len(batch), "error", err)
			return false
		}
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.metrics.Errors++
		return false
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed journal rows",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return true
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL,
			r.MsgID, r.ReceivedAt, r.SourceID, r.DestID, r.MsgType,
			r.ClOrdID, r.Outcome, r.Reason, r.Raw,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
