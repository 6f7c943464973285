package engine

import (
	"errors"

	"github.com/congo-pay/ledger-replay/internal/ledger"
)

// Rejection reasons. An event rejected for one of these is dropped without
// changing any state.
var (
	// ErrDuplicateTransaction indicates a deposit or withdrawal reused a
	// transaction identifier that is already stored.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrMissingAmount        = errors.New("missing amount")
	ErrInvalidAmount        = errors.New("negative amount")
	// ErrInsufficientFunds indicates a withdrawal exceeded the available funds.
	ErrInsufficientFunds  = ledger.ErrInsufficientFunds
	ErrUnknownTransaction = errors.New("unknown transaction")
	// ErrClientMismatch indicates the referenced transaction belongs to a
	// different client than the event.
	ErrClientMismatch  = errors.New("transaction belongs to another client")
	ErrAlreadyDisputed = errors.New("transaction already in dispute")
	ErrNotDisputed     = errors.New("transaction not in dispute")
	ErrChargedBack     = errors.New("transaction already charged back")
	ErrUnsupportedKind = errors.New("unsupported event kind")
)
