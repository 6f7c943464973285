package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledger-replay/internal/ledger"
)

// TxID identifies a funds-moving transaction.
type TxID uint32

// Kind is the type of a ledger event.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindDispute    Kind = "dispute"
	KindResolve    Kind = "resolve"
	KindChargeback Kind = "chargeback"
)

// ParseKind maps the textual event type onto a Kind. Matching ignores case and
// surrounding whitespace.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindDeposit, KindWithdrawal, KindDispute, KindResolve, KindChargeback:
		return k, nil
	default:
		return "", fmt.Errorf("unknown event type %q", s)
	}
}

// MovesFunds reports whether events of this kind carry an amount and are
// stored for later dispute lookups.
func (k Kind) MovesFunds() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// Event is one ledger instruction as received from the input feed. Dispute,
// resolve and chargeback events reference the transaction they act on through
// Tx and carry no amount.
type Event struct {
	Kind   Kind
	Client ledger.ClientID
	Tx     TxID
	Amount decimal.NullDecimal
}

func Deposit(client ledger.ClientID, tx TxID, amount decimal.Decimal) Event {
	return Event{Kind: KindDeposit, Client: client, Tx: tx, Amount: decimal.NewNullDecimal(amount)}
}

func Withdrawal(client ledger.ClientID, tx TxID, amount decimal.Decimal) Event {
	return Event{Kind: KindWithdrawal, Client: client, Tx: tx, Amount: decimal.NewNullDecimal(amount)}
}

func Dispute(client ledger.ClientID, tx TxID) Event {
	return Event{Kind: KindDispute, Client: client, Tx: tx}
}

func Resolve(client ledger.ClientID, tx TxID) Event {
	return Event{Kind: KindResolve, Client: client, Tx: tx}
}

func Chargeback(client ledger.ClientID, tx TxID) Event {
	return Event{Kind: KindChargeback, Client: client, Tx: tx}
}

// Record is the stored form of a deposit or withdrawal, kept for dispute
// lookups.
type Record struct {
	Kind   Kind            `json:"kind"`
	Client ledger.ClientID `json:"client"`
	Tx     TxID            `json:"tx"`
	Amount decimal.Decimal `json:"amount"`
	State  State           `json:"state"`
}

// InDispute reports whether the record's funds are currently held.
func (r Record) InDispute() bool {
	return r.State == StateInDispute
}
