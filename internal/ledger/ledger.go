package ledger

import (
	"errors"
	"sort"
)

// ErrInsufficientFunds occurs when an account lacks available balance to cover
// a requested debit.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ClientID identifies a client account. Identifiers come from the event source
// and are never reused.
type ClientID uint16

// Ledger owns the mapping from client identifier to account state. It is
// exclusively owned by one engine for the lifetime of a run and is not safe
// for concurrent mutation.
type Ledger struct {
	accounts map[ClientID]*Account
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[ClientID]*Account)}
}

// EnsureAccount returns the account for id, creating it with zero balances on
// first reference.
func (l *Ledger) EnsureAccount(id ClientID) *Account {
	if acct, exists := l.accounts[id]; exists {
		return acct
	}
	acct := NewAccount(id)
	l.accounts[id] = acct
	return acct
}

// Account returns a copy of the account for id.
func (l *Ledger) Account(id ClientID) (Account, bool) {
	acct, exists := l.accounts[id]
	if !exists {
		return Account{}, false
	}
	return *acct, true
}

// Len reports the number of known accounts.
func (l *Ledger) Len() int {
	return len(l.accounts)
}

// Accounts returns copies of every account ordered by client identifier.
func (l *Ledger) Accounts() []Account {
	out := make([]Account, 0, len(l.accounts))
	for _, acct := range l.accounts {
		out = append(out, *acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}

// Restore replaces the ledger contents with the provided accounts. Totals are
// recomputed rather than trusted.
func (l *Ledger) Restore(accounts []Account) {
	l.accounts = make(map[ClientID]*Account, len(accounts))
	for _, a := range accounts {
		acct := a
		acct.updateTotal()
		l.accounts[acct.Client] = &acct
	}
}
