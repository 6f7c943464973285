// Package report exposes the outcome of a finished replay over HTTP.
package report

import (
	"errors"
	"strconv"
	"time"

	"github.com/congo-pay/ledger-replay/internal/csvio"
	"github.com/congo-pay/ledger-replay/internal/ledger"
	"github.com/congo-pay/ledger-replay/internal/replay"
)

var (
	ErrInvalidClient = errors.New("client id must be an integer between 0 and 65535")
	ErrUnknownClient = errors.New("client not found")
)

// AccountView is the wire form of an account. Amounts carry four decimal
// places, matching the CSV output.
type AccountView struct {
	Client    ledger.ClientID `json:"client"`
	Available string          `json:"available"`
	Held      string          `json:"held"`
	Total     string          `json:"total"`
	Locked    bool            `json:"locked"`
}

// Report is an immutable, indexed view of one replay result. It is safe for
// concurrent readers.
type Report struct {
	result      replay.Result
	completedAt time.Time
	accounts    []AccountView
	byClient    map[ledger.ClientID]int
}

// New indexes res for lookup by client.
func New(res replay.Result, completedAt time.Time) *Report {
	r := &Report{
		result:      res,
		completedAt: completedAt.UTC(),
		accounts:    make([]AccountView, 0, len(res.Accounts)),
		byClient:    make(map[ledger.ClientID]int, len(res.Accounts)),
	}
	for _, a := range res.Accounts {
		r.byClient[a.Client] = len(r.accounts)
		r.accounts = append(r.accounts, AccountView{
			Client:    a.Client,
			Available: a.Available.StringFixed(csvio.MoneyPlaces),
			Held:      a.Held.StringFixed(csvio.MoneyPlaces),
			Total:     a.Total.StringFixed(csvio.MoneyPlaces),
			Locked:    a.Locked,
		})
	}
	return r
}

// RunID identifies the replay the report describes.
func (r *Report) RunID() string {
	return r.result.RunID
}

// CompletedAt is when the replay finished.
func (r *Report) CompletedAt() time.Time {
	return r.completedAt
}

// Accounts lists every account in ascending client order.
func (r *Report) Accounts() []AccountView {
	out := make([]AccountView, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// Account looks up one client from its textual id.
func (r *Report) Account(raw string) (AccountView, error) {
	id, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return AccountView{}, ErrInvalidClient
	}
	idx, ok := r.byClient[ledger.ClientID(id)]
	if !ok {
		return AccountView{}, ErrUnknownClient
	}
	return r.accounts[idx], nil
}

// Summary carries the run counters.
type Summary struct {
	RunID       string            `json:"run_id"`
	Lines       uint64            `json:"lines"`
	Malformed   uint64            `json:"malformed"`
	Applied     uint64            `json:"applied"`
	Rejected    uint64            `json:"rejected"`
	Reasons     map[string]uint64 `json:"reasons"`
	Accounts    int               `json:"accounts"`
	Locked      int               `json:"locked"`
	ResumedFrom uint64            `json:"resumed_from"`
	Snapshots   SnapshotSummary   `json:"snapshots"`
	DurationMS  int64             `json:"duration_ms"`
	CompletedAt time.Time         `json:"completed_at"`
}

type SnapshotSummary struct {
	Saved   uint64 `json:"saved"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Summary reports the run counters.
func (r *Report) Summary() Summary {
	locked := 0
	for _, a := range r.accounts {
		if a.Locked {
			locked++
		}
	}
	reasons := make(map[string]uint64, len(r.result.Stats.Reasons))
	for k, v := range r.result.Stats.Reasons {
		reasons[k] = v
	}
	return Summary{
		RunID:       r.result.RunID,
		Lines:       r.result.Lines,
		Malformed:   r.result.Malformed,
		Applied:     r.result.Stats.Applied,
		Rejected:    r.result.Stats.Rejected,
		Reasons:     reasons,
		Accounts:    len(r.accounts),
		Locked:      locked,
		ResumedFrom: r.result.ResumedFrom,
		Snapshots: SnapshotSummary{
			Saved:   r.result.Snapshots.Saved,
			Failed:  r.result.Snapshots.Failed,
			Dropped: r.result.Snapshots.Dropped,
		},
		DurationMS:  r.result.Duration.Milliseconds(),
		CompletedAt: r.completedAt,
	}
}
