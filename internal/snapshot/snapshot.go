package snapshot

import (
	"context"
	"time"

	"github.com/congo-pay/ledger-replay/internal/engine"
	"github.com/congo-pay/ledger-replay/internal/ledger"
)

// Snapshot is a point-in-time copy of engine state taken after Line input
// records had been consumed.
type Snapshot struct {
	RunID    string           `json:"run_id"`
	Line     uint64           `json:"line"`
	TakenAt  time.Time        `json:"taken_at"`
	Accounts []ledger.Account `json:"accounts"`
	Records  []engine.Record  `json:"records"`
}

// Store persists the most recent snapshot. Each Save replaces the previous one.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load returns the stored snapshot and true, or false when none exists.
	Load(ctx context.Context) (Snapshot, bool, error)
	Clear(ctx context.Context) error
}

// Capture copies the engine state. The returned snapshot shares nothing
// mutable with the engine and may be handed to another goroutine.
func Capture(runID string, line uint64, e *engine.Engine) Snapshot {
	return Snapshot{
		RunID:    runID,
		Line:     line,
		TakenAt:  time.Now().UTC(),
		Accounts: e.Accounts(),
		Records:  e.Records(),
	}
}
