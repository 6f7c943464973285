package snapshot

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// WriterStats counts snapshot outcomes.
type WriterStats struct {
	Saved   uint64 `json:"saved"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Writer saves snapshots on a background goroutine so ingestion never waits on
// the store. At most one snapshot is queued; a newer offer replaces it.
// Failures are logged and counted, never returned.
type Writer struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
	pending chan Snapshot
	done    chan struct{}
	closed  bool

	saved   atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewWriter starts a writer for store. Each save is bounded by timeout.
func NewWriter(store Store, timeout time.Duration, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		store:   store,
		logger:  logger,
		timeout: timeout,
		pending: make(chan Snapshot, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Offer queues snap for saving without blocking. It must be called from a
// single goroutine.
func (w *Writer) Offer(snap Snapshot) {
	if w.closed {
		return
	}
	select {
	case w.pending <- snap:
		return
	default:
	}

	// A save is already queued; replace it with the newer snapshot.
	select {
	case stale := <-w.pending:
		w.dropped.Add(1)
		w.logger.Debug("snapshot superseded", slog.Uint64("line", stale.Line))
	default:
	}
	select {
	case w.pending <- snap:
	default:
		w.dropped.Add(1)
	}
}

// Close waits for the queued snapshot to be saved, then clears the stored
// checkpoint when clear is set. It gives up waiting when ctx is done.
func (w *Writer) Close(ctx context.Context, clear bool) {
	if w.closed {
		return
	}
	w.closed = true
	close(w.pending)

	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Error("snapshot writer did not drain", slog.Any("error", ctx.Err()))
		return
	}

	if !clear {
		return
	}
	if err := w.store.Clear(ctx); err != nil {
		w.logger.Error("failed to clear snapshot", slog.Any("error", err))
		return
	}
	w.logger.Info("snapshot cleared")
}

// Stats returns the outcome counters.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Saved:   w.saved.Load(),
		Failed:  w.failed.Load(),
		Dropped: w.dropped.Load(),
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for snap := range w.pending {
		w.save(snap)
	}
}

func (w *Writer) save(snap Snapshot) {
	ctx := context.Background()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	if err := w.store.Save(ctx, snap); err != nil {
		w.failed.Add(1)
		w.logger.Error("failed to write snapshot", slog.Uint64("line", snap.Line), slog.Any("error", err))
		return
	}
	w.saved.Add(1)
	w.logger.Info("snapshot written",
		slog.Uint64("line", snap.Line),
		slog.Int("accounts", len(snap.Accounts)),
		slog.Int("records", len(snap.Records)),
	)
}
