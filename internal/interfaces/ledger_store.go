package interfaces

import (
	"context"

	"github.com/bankcore/ledger-service/internal/models"
)

// LedgerStore is the durable backing for accounts and their transaction
// records. Implementations must make Commit atomic (all of the change set
// becomes visible or none of it) and AccountSnapshot consistent (balance and
// transactions read at a single logical instant).
//
// The store does not serialize operations against each other; the ledger
// engine holds per-account locks across its read-validate-commit span.
type LedgerStore interface {
	// CreateAccount persists a new account. Returns models.ErrAccountExists
	// if the ID is taken.
	CreateAccount(ctx context.Context, acct models.Account) error

	// GetAccount returns the current account record, or
	// models.ErrAccountNotFound.
	GetAccount(ctx context.Context, accountID string) (models.Account, error)

	// OperationSeen reports whether an idempotency key has been committed.
	OperationSeen(ctx context.Context, key string) (bool, error)

	// Commit applies a change set atomically: every balance in set.Balances,
	// every record in set.Transactions, and set.IdempotencyKey if present.
	Commit(ctx context.Context, set models.ChangeSet) error

	// AccountSnapshot returns the account and its transactions in
	// chronological order, read at one instant. The returned balance always
	// reconciles with the returned records.
	AccountSnapshot(ctx context.Context, accountID string) (models.Account, []models.Transaction, error)
}
