package engine

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledger-replay/internal/ledger"
)

// Outcome is the result of applying one event. A nil Err means the event was
// applied; otherwise Err is one of the rejection reasons and no state changed.
type Outcome struct {
	Event Event
	Err   error
}

// Applied reports whether the event mutated engine state.
func (o Outcome) Applied() bool {
	return o.Err == nil
}

// Rejected reports whether the event was dropped.
func (o Outcome) Rejected() bool {
	return o.Err != nil
}

// Stats counts event outcomes for one run.
type Stats struct {
	Applied  uint64            `json:"applied"`
	Rejected uint64            `json:"rejected"`
	Reasons  map[string]uint64 `json:"reasons"`
}

// Engine applies events in arrival order to the account ledger. It owns the
// ledger and the store of funds-moving records and must be driven by a single
// goroutine.
type Engine struct {
	ledger  *ledger.Ledger
	records map[TxID]*Record
	logger  *slog.Logger
	stats   Stats
}

// New builds an engine with an empty ledger. A nil logger falls back to
// slog.Default.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		ledger:  ledger.New(),
		records: make(map[TxID]*Record),
		logger:  logger,
		stats:   Stats{Reasons: make(map[string]uint64)},
	}
}

// Apply routes ev to its handler. It never fails the stream: inapplicable
// events come back as rejected outcomes and are logged.
func (e *Engine) Apply(ev Event) Outcome {
	acct := e.ledger.EnsureAccount(ev.Client)

	var err error
	switch ev.Kind {
	case KindDeposit:
		err = e.deposit(acct, ev)
	case KindWithdrawal:
		err = e.withdraw(acct, ev)
	case KindDispute:
		err = e.transition(ev, acct.Hold)
	case KindResolve:
		err = e.transition(ev, acct.Release)
	case KindChargeback:
		err = e.transition(ev, acct.SettleChargeback)
	default:
		err = ErrUnsupportedKind
	}

	return e.observe(ev, err)
}

func (e *Engine) deposit(acct *ledger.Account, ev Event) error {
	amount, err := e.admit(ev)
	if err != nil {
		return err
	}
	acct.Credit(amount)
	e.store(ev, amount)
	return nil
}

func (e *Engine) withdraw(acct *ledger.Account, ev Event) error {
	amount, err := e.admit(ev)
	if err != nil {
		return err
	}
	if !acct.Debit(amount) {
		return ErrInsufficientFunds
	}
	e.store(ev, amount)
	return nil
}

// admit runs the checks shared by deposits and withdrawals.
func (e *Engine) admit(ev Event) (decimal.Decimal, error) {
	if _, exists := e.records[ev.Tx]; exists {
		return decimal.Zero, ErrDuplicateTransaction
	}
	if !ev.Amount.Valid {
		return decimal.Zero, ErrMissingAmount
	}
	if ev.Amount.Decimal.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return ev.Amount.Decimal, nil
}

func (e *Engine) store(ev Event, amount decimal.Decimal) {
	e.records[ev.Tx] = &Record{
		Kind:   ev.Kind,
		Client: ev.Client,
		Tx:     ev.Tx,
		Amount: amount,
		State:  StateNormal,
	}
}

// transition moves the record referenced by ev through the dispute lifecycle
// and applies the matching balance mutation to the owning account.
func (e *Engine) transition(ev Event, mutate func(decimal.Decimal)) error {
	rec, exists := e.records[ev.Tx]
	if !exists {
		return ErrUnknownTransaction
	}
	if rec.Client != ev.Client {
		return ErrClientMismatch
	}
	to, err := next(rec.State, ev.Kind)
	if err != nil {
		return err
	}
	mutate(rec.Amount)
	rec.State = to
	return nil
}

func (e *Engine) observe(ev Event, err error) Outcome {
	if err != nil {
		e.stats.Rejected++
		e.stats.Reasons[err.Error()]++
		e.logger.Warn("event rejected",
			slog.String("kind", string(ev.Kind)),
			slog.Int("client", int(ev.Client)),
			slog.Uint64("tx", uint64(ev.Tx)),
			slog.String("reason", err.Error()),
		)
		return Outcome{Event: ev, Err: err}
	}
	e.stats.Applied++
	return Outcome{Event: ev}
}

// Account returns a copy of the client's account.
func (e *Engine) Account(id ledger.ClientID) (ledger.Account, bool) {
	return e.ledger.Account(id)
}

// Accounts returns copies of all accounts ordered by client.
func (e *Engine) Accounts() []ledger.Account {
	return e.ledger.Accounts()
}

// Record returns a copy of the stored record for tx.
func (e *Engine) Record(tx TxID) (Record, bool) {
	rec, exists := e.records[tx]
	if !exists {
		return Record{}, false
	}
	return *rec, true
}

// Records returns copies of all stored records ordered by transaction.
func (e *Engine) Records() []Record {
	out := make([]Record, 0, len(e.records))
	for _, rec := range e.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tx < out[j].Tx })
	return out
}

// Stats returns a copy of the outcome counters.
func (e *Engine) Stats() Stats {
	reasons := make(map[string]uint64, len(e.stats.Reasons))
	for k, v := range e.stats.Reasons {
		reasons[k] = v
	}
	return Stats{Applied: e.stats.Applied, Rejected: e.stats.Rejected, Reasons: reasons}
}

// Restore replaces the engine state with previously captured accounts and
// records. Outcome counters are reset.
func (e *Engine) Restore(accounts []ledger.Account, records []Record) {
	e.ledger.Restore(accounts)
	e.records = make(map[TxID]*Record, len(records))
	for _, r := range records {
		rec := r
		if rec.State == "" {
			rec.State = StateNormal
		}
		e.records[rec.Tx] = &rec
	}
	e.stats = Stats{Reasons: make(map[string]uint64)}
}
