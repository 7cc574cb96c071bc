package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind classifies a balance-changing operation.
type TransactionKind string

const (
	KindDeposit  TransactionKind = "deposit"
	KindWithdraw TransactionKind = "withdraw"
	KindTransfer TransactionKind = "transfer"
)

// Transaction is one immutable ledger record for one account. Amount is
// signed: positive means funds added to the account, negative means funds
// removed. A transfer produces two Transactions whose amounts are exact
// negatives of each other.
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Kind      TransactionKind `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// ChangeSet is the unit of durability for a single logical operation: every
// balance it moves and every Transaction it records. A store must make the
// whole set visible atomically or fail without applying any of it.
type ChangeSet struct {
	// IdempotencyKey, when non-empty, is recorded in the same commit so a
	// retried operation can be detected. Empty means no replay protection.
	IdempotencyKey string
	// Balances maps accountID to the post-operation balance.
	Balances map[string]decimal.Decimal
	// Transactions are appended in order; for a transfer the debit leg
	// precedes the credit leg.
	Transactions []Transaction
}
