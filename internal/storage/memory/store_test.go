package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bankcore/ledger-service/internal/models"
)

func account(id string, balance int64) models.Account {
	return models.Account{
		ID:        id,
		Balance:   decimal.NewFromInt(balance),
		CreatedAt: time.Now().UTC(),
	}
}

func record(id, accountID string, amount int64) models.Transaction {
	return models.Transaction{
		ID:        id,
		AccountID: accountID,
		Kind:      models.KindDeposit,
		Amount:    decimal.NewFromInt(amount),
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndGetAccount(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.CreateAccount(ctx, account("A", 100)); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateAccount(ctx, account("A", 100)); !errors.Is(err, models.ErrAccountExists) {
		t.Fatalf("want ErrAccountExists, got %v", err)
	}

	acct, err := s.GetAccount(ctx, "A")
	if err != nil {
		t.Fatal(err)
	}
	if !acct.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance = %s, want 100", acct.Balance)
	}

	if _, err := s.GetAccount(ctx, "ghost"); !errors.Is(err, models.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestCommitAppliesWholeChangeSet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, a := range []models.Account{account("A", 100), account("B", 0)} {
		if err := s.CreateAccount(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	err := s.Commit(ctx, models.ChangeSet{
		Balances: map[string]decimal.Decimal{
			"A": decimal.NewFromInt(80),
			"B": decimal.NewFromInt(20),
		},
		Transactions: []models.Transaction{
			record("t1-debit", "A", -20),
			record("t1-credit", "B", 20),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	a, txsA, _ := s.AccountSnapshot(ctx, "A")
	b, txsB, _ := s.AccountSnapshot(ctx, "B")
	if !a.Balance.Equal(decimal.NewFromInt(80)) || !b.Balance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("balances A=%s B=%s", a.Balance, b.Balance)
	}
	if len(txsA) != 1 || len(txsB) != 1 {
		t.Fatalf("transaction counts A=%d B=%d, want 1 each", len(txsA), len(txsB))
	}
}

// A change set touching an unknown account must fail without applying any of
// its writes, including those against accounts that do exist.
func TestCommitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := s.CreateAccount(ctx, account("A", 100)); err != nil {
		t.Fatal(err)
	}

	err := s.Commit(ctx, models.ChangeSet{
		Balances: map[string]decimal.Decimal{
			"A":     decimal.NewFromInt(80),
			"ghost": decimal.NewFromInt(20),
		},
		Transactions: []models.Transaction{
			record("t1-debit", "A", -20),
			record("t1-credit", "ghost", 20),
		},
	})
	if !errors.Is(err, models.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}

	acct, txs, _ := s.AccountSnapshot(ctx, "A")
	if !acct.Balance.Equal(decimal.NewFromInt(100)) || len(txs) != 0 {
		t.Fatalf("partial apply: balance=%s txs=%d", acct.Balance, len(txs))
	}
}

func TestIdempotencyKeys(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := s.CreateAccount(ctx, account("A", 0)); err != nil {
		t.Fatal(err)
	}

	seen, err := s.OperationSeen(ctx, "op-1")
	if err != nil || seen {
		t.Fatalf("fresh key: seen=%v err=%v", seen, err)
	}

	set := models.ChangeSet{
		IdempotencyKey: "op-1",
		Balances:       map[string]decimal.Decimal{"A": decimal.NewFromInt(10)},
		Transactions:   []models.Transaction{record("t1", "A", 10)},
	}
	if err := s.Commit(ctx, set); err != nil {
		t.Fatal(err)
	}

	seen, _ = s.OperationSeen(ctx, "op-1")
	if !seen {
		t.Fatal("key not recorded by commit")
	}
	if err := s.Commit(ctx, set); !errors.Is(err, models.ErrDuplicateOperation) {
		t.Fatalf("want ErrDuplicateOperation, got %v", err)
	}
	if _, txs, _ := s.AccountSnapshot(ctx, "A"); len(txs) != 1 {
		t.Fatalf("replayed commit appended records: %d", len(txs))
	}
}

func TestSnapshotPreservesOrderAndIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := s.CreateAccount(ctx, account("A", 0)); err != nil {
		t.Fatal(err)
	}

	for i, id := range []string{"t1", "t2", "t3"} {
		set := models.ChangeSet{
			Balances:     map[string]decimal.Decimal{"A": decimal.NewFromInt(int64(i + 1))},
			Transactions: []models.Transaction{record(id, "A", 1)},
		}
		if err := s.Commit(ctx, set); err != nil {
			t.Fatal(err)
		}
	}

	_, txs, err := s.AccountSnapshot(ctx, "A")
	if err != nil {
		t.Fatal(err)
	}
	for i, id := range []string{"t1", "t2", "t3"} {
		if txs[i].ID != id {
			t.Fatalf("txs[%d].ID = %s, want %s (commit order lost)", i, txs[i].ID, id)
		}
	}

	// Mutating the returned slice must not affect the store.
	txs[0].ID = "mutated"
	_, txs2, _ := s.AccountSnapshot(ctx, "A")
	if txs2[0].ID != "t1" {
		t.Fatal("snapshot leaked internal state")
	}
}
