package models

import "errors"

// Domain errors returned by the ledger engine. The transport layer maps these
// to response codes with errors.Is; the engine never returns raw store errors.
var (
	// ErrInvalidAmount means the amount is zero, negative, or malformed.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidTransfer means the transfer is structurally invalid, e.g.
	// sender and recipient are the same account.
	ErrInvalidTransfer = errors.New("invalid transfer")

	// ErrAccountNotFound means a referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists means an account with the given ID already exists.
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidAccountID means the account identifier is empty or malformed.
	ErrInvalidAccountID = errors.New("invalid account id")

	// ErrInsufficientBalance means the balance is too low for a withdrawal
	// or transfer. No mutation has occurred.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateOperation means the idempotency key was already recorded:
	// a previous attempt committed, so the retry is rejected unapplied.
	ErrDuplicateOperation = errors.New("operation already processed")

	// ErrStoreUnavailable means the durable store could not complete the
	// commit. The operation applied nothing and may be retried.
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)
