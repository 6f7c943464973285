// Package replay drives an event source through the engine, checkpointing
// progress so an interrupted run can resume.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/congo-pay/ledger-replay/internal/engine"
	"github.com/congo-pay/ledger-replay/internal/ledger"
	"github.com/congo-pay/ledger-replay/internal/notification"
	"github.com/congo-pay/ledger-replay/internal/snapshot"
)

const (
	defaultDrainTimeout  = 30 * time.Second
	defaultNotifyTimeout = 5 * time.Second
)

// Source yields events in input order. Next returns io.EOF once exhausted.
// Line reports how many input records have been consumed so far.
type Source interface {
	Next() (engine.Event, error)
	Line() uint64
}

type malformedCounter interface {
	Malformed() uint64
}

// Options tune a run.
type Options struct {
	RunID string
	// SnapshotEvery is the number of input records between checkpoints.
	// Zero disables checkpoints.
	SnapshotEvery   uint64
	SnapshotTimeout time.Duration
	Resume          bool
}

// Result is the final state of a completed run.
type Result struct {
	RunID       string               `json:"run_id"`
	Accounts    []ledger.Account     `json:"accounts"`
	Stats       engine.Stats         `json:"stats"`
	Lines       uint64               `json:"lines"`
	Malformed   uint64               `json:"malformed"`
	ResumedFrom uint64               `json:"resumed_from"`
	Snapshots   snapshot.WriterStats `json:"snapshots"`
	Duration    time.Duration        `json:"duration"`
}

// Runner replays one source. A nil store disables checkpoints and resume.
type Runner struct {
	source   Source
	store    snapshot.Store
	opts     Options
	logger   *slog.Logger
	engine   *engine.Engine
	notifier notification.Notifier
}

// NewRunner wires a runner around a fresh engine.
func NewRunner(source Source, store snapshot.Store, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("run_id", opts.RunID))
	return &Runner{
		source: source,
		store:  store,
		opts:   opts,
		logger: logger,
		engine: engine.New(logger),
	}
}

// WithNotifier sends an account_locked message through n whenever a
// chargeback freezes an account.
func (r *Runner) WithNotifier(n notification.Notifier) *Runner {
	r.notifier = n
	return r
}

// Engine exposes the engine being driven.
func (r *Runner) Engine() *engine.Engine {
	return r.engine
}

// Run consumes the source until it is exhausted, ctx is done or the source
// fails. Only a clean exhaustion yields a Result; the checkpoint is then
// removed. On any error the latest checkpoint is kept for a later resume.
// Checkpoint problems never fail the run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	started := time.Now()

	skipThrough := r.resume(ctx)

	var writer *snapshot.Writer
	if r.store != nil && r.opts.SnapshotEvery > 0 {
		writer = snapshot.NewWriter(r.store, r.opts.SnapshotTimeout, r.logger)
	}

	lastOffered := skipThrough
	for {
		if err := ctx.Err(); err != nil {
			r.closeWriter(writer, false)
			return Result{}, fmt.Errorf("replay interrupted at line %d: %w", r.source.Line(), err)
		}

		ev, err := r.source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.closeWriter(writer, false)
			return Result{}, err
		}

		line := r.source.Line()
		if line <= skipThrough {
			continue
		}
		r.apply(ctx, ev)

		if writer != nil && line-lastOffered >= r.opts.SnapshotEvery {
			writer.Offer(snapshot.Capture(r.opts.RunID, line, r.engine))
			lastOffered = line
		}
	}

	if r.source.Line() < skipThrough {
		r.logger.Warn("snapshot is beyond the end of input",
			slog.Uint64("snapshot_line", skipThrough),
			slog.Uint64("input_lines", r.source.Line()),
		)
	}

	res := Result{
		RunID:       r.opts.RunID,
		Accounts:    r.engine.Accounts(),
		Stats:       r.engine.Stats(),
		Lines:       r.source.Line(),
		ResumedFrom: skipThrough,
		Duration:    time.Since(started),
	}
	if mc, ok := r.source.(malformedCounter); ok {
		res.Malformed = mc.Malformed()
	}
	if writer != nil {
		r.closeWriter(writer, true)
		res.Snapshots = writer.Stats()
	} else if skipThrough > 0 {
		// Resumed without writing new checkpoints; drop the one we used.
		if err := r.store.Clear(ctx); err != nil {
			r.logger.Error("failed to clear snapshot", slog.Any("error", err))
		}
	}

	r.logger.Info("replay complete",
		slog.Uint64("lines", res.Lines),
		slog.Uint64("malformed", res.Malformed),
		slog.Uint64("applied", res.Stats.Applied),
		slog.Uint64("rejected", res.Stats.Rejected),
		slog.Int("accounts", len(res.Accounts)),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

// apply feeds ev to the engine and announces accounts that it locks.
func (r *Runner) apply(ctx context.Context, ev engine.Event) {
	if ev.Kind != engine.KindChargeback {
		r.engine.Apply(ev)
		return
	}
	before, _ := r.engine.Account(ev.Client)
	if out := r.engine.Apply(ev); out.Rejected() || before.Locked {
		return
	}
	if after, _ := r.engine.Account(ev.Client); after.Locked {
		r.notifyLocked(ctx, ev)
	}
}

// resume restores the last checkpoint when requested and returns the input
// line it covers. An unreadable checkpoint is logged and the replay starts
// from the first line.
func (r *Runner) resume(ctx context.Context) uint64 {
	if !r.opts.Resume {
		return 0
	}
	if r.store == nil {
		r.logger.Warn("resume requested without a snapshot store")
		return 0
	}

	snap, ok, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Error("failed to load snapshot, replaying from the start", slog.Any("error", err))
		return 0
	}
	if !ok {
		r.logger.Info("no snapshot to resume from")
		return 0
	}

	r.engine.Restore(snap.Accounts, snap.Records)
	r.logger.Info("resuming from snapshot",
		slog.String("snapshot_run_id", snap.RunID),
		slog.Uint64("line", snap.Line),
		slog.Time("taken_at", snap.TakenAt),
		slog.Int("accounts", len(snap.Accounts)),
	)
	return snap.Line
}

func (r *Runner) notifyLocked(ctx context.Context, ev engine.Event) {
	if r.notifier == nil {
		return
	}
	timeout := defaultNotifyTimeout
	if r.opts.SnapshotTimeout > 0 {
		timeout = r.opts.SnapshotTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := r.notifier.Send(ctx, notification.Message{
		Kind:   notification.KindAccountLocked,
		RunID:  r.opts.RunID,
		Client: uint16(ev.Client),
		Tx:     uint32(ev.Tx),
		Body:   fmt.Sprintf("client %d locked by chargeback of tx %d", ev.Client, ev.Tx),
	})
	if err != nil {
		r.logger.Warn("failed to send notification", slog.Uint64("client", uint64(ev.Client)), slog.Any("error", err))
	}
}

func (r *Runner) closeWriter(w *snapshot.Writer, clear bool) {
	if w == nil {
		return
	}
	timeout := defaultDrainTimeout
	if r.opts.SnapshotTimeout > 0 {
		timeout = 2 * r.opts.SnapshotTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	w.Close(ctx, clear)
}
