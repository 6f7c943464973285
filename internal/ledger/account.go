package ledger

import "github.com/shopspring/decimal"

// Account is the balance state of one client.
type Account struct {
	Client    ClientID        `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Total     decimal.Decimal `json:"total"`
	Locked    bool            `json:"locked"`
}

// NewAccount creates an unlocked account with zero balances.
func NewAccount(id ClientID) *Account {
	return &Account{
		Client:    id,
		Available: decimal.Zero,
		Held:      decimal.Zero,
		Total:     decimal.Zero,
	}
}

// Credit adds amount to the available funds.
func (a *Account) Credit(amount decimal.Decimal) {
	a.Available = a.Available.Add(amount)
	a.updateTotal()
}

// Debit removes amount from the available funds when they cover it. It reports
// whether the debit was applied; an uncovered debit leaves the account as is.
func (a *Account) Debit(amount decimal.Decimal) bool {
	if amount.GreaterThan(a.Available) {
		return false
	}
	a.Available = a.Available.Sub(amount)
	a.updateTotal()
	return true
}

// Hold moves amount from available to held. Sufficiency is not checked, so
// available may go negative when the disputed funds were already spent.
func (a *Account) Hold(amount decimal.Decimal) {
	a.Available = a.Available.Sub(amount)
	a.Held = a.Held.Add(amount)
	a.updateTotal()
}

// Release moves amount from held back to available.
func (a *Account) Release(amount decimal.Decimal) {
	a.Held = a.Held.Sub(amount)
	a.Available = a.Available.Add(amount)
	a.updateTotal()
}

// SettleChargeback removes amount from held and locks the account. The lock is
// never lifted.
func (a *Account) SettleChargeback(amount decimal.Decimal) {
	a.Held = a.Held.Sub(amount)
	a.Locked = true
	a.updateTotal()
}

func (a *Account) updateTotal() {
	a.Total = a.Available.Add(a.Held)
}
