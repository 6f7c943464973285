package engine

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/ledger-replay/internal/ledger"
	"github.com/congo-pay/ledger-replay/internal/logging"
)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func run(t *testing.T, events ...Event) (*Engine, []Outcome) {
	t.Helper()
	e := New(logging.Discard())
	outcomes := make([]Outcome, 0, len(events))
	for _, ev := range events {
		outcomes = append(outcomes, e.Apply(ev))
	}
	return e, outcomes
}

func requireAccount(t *testing.T, e *Engine, id ledger.ClientID, available, held, total string, locked bool) {
	t.Helper()
	acct, ok := e.Account(id)
	require.True(t, ok, "account %d not found", id)
	assert.True(t, acct.Available.Equal(amt(available)), "client %d available: want %s got %s", id, available, acct.Available)
	assert.True(t, acct.Held.Equal(amt(held)), "client %d held: want %s got %s", id, held, acct.Held)
	assert.True(t, acct.Total.Equal(amt(total)), "client %d total: want %s got %s", id, total, acct.Total)
	assert.Equal(t, locked, acct.Locked, "client %d locked", id)
}

func TestEngine_DepositWithdrawScenario(t *testing.T) {
	e, outcomes := run(t,
		Deposit(1, 1, amt("1.0")),
		Deposit(2, 2, amt("2.0")),
		Deposit(1, 3, amt("2.0")),
		Withdrawal(1, 4, amt("1.5")),
		Withdrawal(2, 5, amt("3.0")),
	)

	for _, o := range outcomes[:4] {
		assert.True(t, o.Applied())
	}
	assert.ErrorIs(t, outcomes[4].Err, ErrInsufficientFunds)

	assert.Len(t, e.Accounts(), 2)
	assert.Len(t, e.Records(), 4, "rejected withdrawal is not stored")

	requireAccount(t, e, 1, "1.5", "0", "1.5", false)
	requireAccount(t, e, 2, "2.0", "0", "2.0", false)
}

func TestEngine_DisputeResolveScenario(t *testing.T) {
	e, outcomes := run(t,
		Deposit(1, 1, amt("5.0")),
		Dispute(1, 1),
	)
	for _, o := range outcomes {
		require.True(t, o.Applied())
	}
	requireAccount(t, e, 1, "0", "5", "5", false)
	rec, ok := e.Record(1)
	require.True(t, ok)
	assert.True(t, rec.InDispute())

	out := e.Apply(Resolve(1, 1))
	require.True(t, out.Applied())
	requireAccount(t, e, 1, "5.0", "0", "5.0", false)
	rec, _ = e.Record(1)
	assert.Equal(t, StateNormal, rec.State)
}

func TestEngine_DisputeChargebackScenario(t *testing.T) {
	e, outcomes := run(t,
		Deposit(2, 2, amt("5.0")),
		Dispute(2, 2),
		Chargeback(2, 2),
	)
	for _, o := range outcomes {
		require.True(t, o.Applied())
	}
	requireAccount(t, e, 2, "0", "0", "0", true)
	rec, _ := e.Record(2)
	assert.Equal(t, StateChargedBack, rec.State)
	assert.False(t, rec.InDispute())
}

func TestEngine_ResolvedTransactionCanBeDisputedAgain(t *testing.T) {
	e, outcomes := run(t,
		Deposit(1, 1, amt("3")),
		Dispute(1, 1),
		Resolve(1, 1),
		Dispute(1, 1),
	)
	for _, o := range outcomes {
		require.True(t, o.Applied())
	}
	requireAccount(t, e, 1, "0", "3", "3", false)
}

func TestEngine_DisputedWithdrawalHoldsStoredAmount(t *testing.T) {
	e, outcomes := run(t,
		Deposit(1, 1, amt("10")),
		Withdrawal(1, 2, amt("4")),
		Dispute(1, 2),
	)
	for _, o := range outcomes {
		require.True(t, o.Applied())
	}
	requireAccount(t, e, 1, "2", "4", "6", false)
}

func TestEngine_DisputeAfterSpendDrivesAvailableNegative(t *testing.T) {
	e, outcomes := run(t,
		Deposit(1, 1, amt("5")),
		Withdrawal(1, 2, amt("5")),
		Dispute(1, 1),
	)
	for _, o := range outcomes {
		require.True(t, o.Applied())
	}
	requireAccount(t, e, 1, "-5", "5", "0", false)
}

func TestEngine_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		setup []Event
		event Event
		want  error
	}{
		{
			name:  "duplicate deposit",
			setup: []Event{Deposit(1, 1, amt("5"))},
			event: Deposit(1, 1, amt("7")),
			want:  ErrDuplicateTransaction,
		},
		{
			name:  "withdrawal reusing deposit id",
			setup: []Event{Deposit(1, 1, amt("5"))},
			event: Withdrawal(1, 1, amt("1")),
			want:  ErrDuplicateTransaction,
		},
		{
			name:  "deposit without amount",
			setup: []Event{Deposit(1, 1, amt("5"))},
			event: Event{Kind: KindDeposit, Client: 1, Tx: 2},
			want:  ErrMissingAmount,
		},
		{
			name:  "withdrawal without amount",
			setup: []Event{Deposit(1, 1, amt("5"))},
			event: Event{Kind: KindWithdrawal, Client: 1, Tx: 2},
			want:  ErrMissingAmount,
		},
		{
			name:  "negative deposit",
			setup: []Event{Deposit(1, 1, amt("5"))},
			event: Deposit(1, 2, amt("-1")),
			want:  ErrInvalidAmount,
		},
		{
			name:  "insufficient funds",
			setup: []Event{Deposit(1, 1, amt("5"))},
			event: Withdrawal(1, 2, amt("5.0001")),
			want:  ErrInsufficientFunds,
		},
		{
			name:  "dispute unknown transaction",
			setup: []Event{Deposit(1, 1, amt("5"))},
			event: Dispute(1, 99),
			want:  ErrUnknownTransaction,
		},
		{
			name:  "dispute other client's transaction",
			setup: []Event{Deposit(1, 1, amt("5")), Deposit(2, 2, amt("1"))},
			event: Dispute(2, 1),
			want:  ErrClientMismatch,
		},
		{
			name:  "dispute twice",
			setup: []Event{Deposit(1, 1, amt("5")), Dispute(1, 1)},
			event: Dispute(1, 1),
			want:  ErrAlreadyDisputed,
		},
		{
			name:  "resolve undisputed",
			setup: []Event{Deposit(1, 1, amt("5"))},
			event: Resolve(1, 1),
			want:  ErrNotDisputed,
		},
		{
			name:  "resolve unknown",
			setup: []Event{Deposit(1, 1, amt("5"))},
			event: Resolve(1, 2),
			want:  ErrUnknownTransaction,
		},
		{
			name:  "resolve other client's dispute",
			setup: []Event{Deposit(1, 1, amt("5")), Dispute(1, 1), Deposit(2, 2, amt("1"))},
			event: Resolve(2, 1),
			want:  ErrClientMismatch,
		},
		{
			name:  "chargeback undisputed",
			setup: []Event{Deposit(1, 1, amt("5"))},
			event: Chargeback(1, 1),
			want:  ErrNotDisputed,
		},
		{
			name:  "chargeback after resolve",
			setup: []Event{Deposit(1, 1, amt("5")), Dispute(1, 1), Resolve(1, 1)},
			event: Chargeback(1, 1),
			want:  ErrNotDisputed,
		},
		{
			name:  "dispute after chargeback",
			setup: []Event{Deposit(1, 1, amt("5")), Dispute(1, 1), Chargeback(1, 1)},
			event: Dispute(1, 1),
			want:  ErrChargedBack,
		},
		{
			name:  "chargeback twice",
			setup: []Event{Deposit(1, 1, amt("5")), Dispute(1, 1), Chargeback(1, 1)},
			event: Chargeback(1, 1),
			want:  ErrChargedBack,
		},
		{
			name:  "unknown kind",
			setup: []Event{Deposit(1, 1, amt("5"))},
			event: Event{Kind: "transfer", Client: 1, Tx: 3},
			want:  ErrUnsupportedKind,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, outcomes := run(t, tc.setup...)
			for _, o := range outcomes {
				require.True(t, o.Applied(), "setup event %+v rejected: %v", o.Event, o.Err)
			}
			accountsBefore := e.Accounts()
			recordsBefore := e.Records()

			out := e.Apply(tc.event)

			assert.True(t, out.Rejected())
			assert.ErrorIs(t, out.Err, tc.want)
			assert.Equal(t, tc.event, out.Event)
			assert.Equal(t, accountsBefore, e.Accounts())
			assert.Equal(t, recordsBefore, e.Records())

			stats := e.Stats()
			assert.Equal(t, uint64(1), stats.Rejected)
			assert.Equal(t, uint64(1), stats.Reasons[tc.want.Error()])
		})
	}
}

func TestEngine_RejectedEventStillCreatesAccount(t *testing.T) {
	e, outcomes := run(t, Dispute(4, 1))
	assert.ErrorIs(t, outcomes[0].Err, ErrUnknownTransaction)
	requireAccount(t, e, 4, "0", "0", "0", false)
}

func TestEngine_LockIsFinal(t *testing.T) {
	e, _ := run(t,
		Deposit(1, 1, amt("5")),
		Deposit(1, 2, amt("3")),
		Dispute(1, 1),
		Chargeback(1, 1),
	)
	requireAccount(t, e, 1, "3", "0", "3", true)

	out := e.Apply(Deposit(1, 3, amt("2")))
	require.True(t, out.Applied(), "locked accounts keep accepting mutations")
	out = e.Apply(Dispute(1, 2))
	require.True(t, out.Applied())
	out = e.Apply(Resolve(1, 2))
	require.True(t, out.Applied())

	requireAccount(t, e, 1, "5", "0", "5", true)
}

func TestEngine_Stats(t *testing.T) {
	e, _ := run(t,
		Deposit(1, 1, amt("1")),
		Deposit(1, 1, amt("1")),
		Withdrawal(1, 2, amt("9")),
		Withdrawal(1, 3, amt("9")),
		Dispute(1, 1),
	)

	stats := e.Stats()
	assert.Equal(t, uint64(2), stats.Applied)
	assert.Equal(t, uint64(3), stats.Rejected)
	assert.Equal(t, uint64(1), stats.Reasons[ErrDuplicateTransaction.Error()])
	assert.Equal(t, uint64(2), stats.Reasons[ErrInsufficientFunds.Error()])

	stats.Reasons["mutated"] = 1
	_, leaked := e.Stats().Reasons["mutated"]
	assert.False(t, leaked)
}

func TestEngine_RestoreContinuesLifecycle(t *testing.T) {
	src, _ := run(t,
		Deposit(1, 1, amt("5")),
		Deposit(2, 2, amt("4")),
		Dispute(1, 1),
	)

	dst := New(logging.Discard())
	dst.Apply(Deposit(9, 9, amt("1")))
	dst.Restore(src.Accounts(), src.Records())

	_, ok := dst.Account(9)
	assert.False(t, ok)
	assert.Equal(t, src.Records(), dst.Records())
	assert.Equal(t, uint64(0), dst.Stats().Applied)

	require.True(t, dst.Apply(Chargeback(1, 1)).Applied())
	requireAccount(t, dst, 1, "0", "0", "0", true)
	assert.ErrorIs(t, dst.Apply(Deposit(2, 2, amt("1"))).Err, ErrDuplicateTransaction)
}

func TestAllowedTransitions(t *testing.T) {
	allowed := AllowedTransitions()

	assert.Equal(t, map[Kind]State{KindDispute: StateInDispute}, allowed[StateNormal])
	assert.Equal(t, map[Kind]State{KindResolve: StateNormal, KindChargeback: StateChargedBack}, allowed[StateInDispute])
	assert.Empty(t, allowed[StateChargedBack])

	allowed[StateChargedBack][KindResolve] = StateNormal
	_, err := next(StateChargedBack, KindResolve)
	assert.ErrorIs(t, err, ErrChargedBack, "returned map must be a copy")
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"deposit":      KindDeposit,
		" Withdrawal ": KindWithdrawal,
		"DISPUTE":      KindDispute,
		"resolve":      KindResolve,
		"chargeback":   KindChargeback,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseKind("transfer")
	assert.Error(t, err)

	assert.True(t, KindDeposit.MovesFunds())
	assert.True(t, KindWithdrawal.MovesFunds())
	assert.False(t, KindChargeback.MovesFunds())
}

// TestEngine_Invariants drives a seeded random stream and checks the balance
// invariants after every event.
func TestEngine_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	e := New(logging.Discard())
	kinds := []Kind{KindDeposit, KindWithdrawal, KindDispute, KindResolve, KindChargeback}
	locked := map[ledger.ClientID]bool{}

	for i := 0; i < 5000; i++ {
		ev := Event{
			Kind:   kinds[rng.Intn(len(kinds))],
			Client: ledger.ClientID(rng.Intn(5) + 1),
			Tx:     TxID(rng.Intn(400) + 1),
		}
		if ev.Kind.MovesFunds() {
			ev.Amount = decimal.NewNullDecimal(decimal.New(rng.Int63n(100000), -4))
		}

		before, _ := e.Account(ev.Client)
		out := e.Apply(ev)
		after, ok := e.Account(ev.Client)
		require.True(t, ok)

		for _, acct := range e.Accounts() {
			require.True(t, acct.Total.Equal(acct.Available.Add(acct.Held)), "total drift on client %d", acct.Client)
			if locked[acct.Client] {
				require.True(t, acct.Locked, "client %d unlocked", acct.Client)
			}
			locked[acct.Client] = acct.Locked
		}

		if ev.Kind == KindWithdrawal && out.Applied() {
			require.False(t, after.Available.IsNegative(), "withdrawal drove available negative")
		}
		if out.Rejected() && ev.Kind != KindDeposit && ev.Kind != KindWithdrawal {
			require.Equal(t, before.Available.String(), after.Available.String())
			require.Equal(t, before.Held.String(), after.Held.String())
		}
	}
}
