package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bankcore/ledger-service/internal/models"
)

// OperationCompleted is published after a ledger operation commits. One event
// per logical operation; a transfer carries both legs' transaction IDs.
type OperationCompleted struct {
	OperationID    string                 `json:"operation_id"`
	Kind           models.TransactionKind `json:"kind"`
	AccountID      string                 `json:"account_id"`
	CounterpartyID string                 `json:"counterparty_id,omitempty"`
	Amount         decimal.Decimal        `json:"amount"`
	TransactionIDs []string               `json:"transaction_ids"`
	OccurredAt     time.Time              `json:"occurred_at"`
}
