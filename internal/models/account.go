package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a ledger account. Balance is never negative between operations;
// only the ledger engine mutates it.
type Account struct {
	ID        string          `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}
