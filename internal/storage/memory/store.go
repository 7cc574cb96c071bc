package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bankcore/ledger-service/internal/interfaces"
	"github.com/bankcore/ledger-service/internal/models"
)

// Store is an in-memory implementation of interfaces.LedgerStore. One mutex
// guards all state, so a Commit is trivially atomic and AccountSnapshot is
// trivially consistent. It is the default backend and what the tests run on.
type Store struct {
	mu           sync.Mutex
	accounts     map[string]models.Account
	transactions map[string][]models.Transaction // accountID -> records in commit order
	seenKeys     map[string]time.Time            // committed idempotency keys
}

func NewStore() *Store {
	return &Store{
		accounts:     make(map[string]models.Account),
		transactions: make(map[string][]models.Transaction),
		seenKeys:     make(map[string]time.Time),
	}
}

func (s *Store) CreateAccount(ctx context.Context, acct models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acct.ID]; exists {
		return models.ErrAccountExists
	}
	s.accounts[acct.ID] = acct
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return models.Account{}, models.ErrAccountNotFound
	}
	return acct, nil
}

func (s *Store) OperationSeen(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, seen := s.seenKeys[key]
	return seen, nil
}

// Commit applies the whole change set under one lock acquisition. It
// validates every referenced account before touching anything, so a failed
// commit leaves no partial state behind.
func (s *Store) Commit(ctx context.Context, set models.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set.IdempotencyKey != "" {
		if _, seen := s.seenKeys[set.IdempotencyKey]; seen {
			return models.ErrDuplicateOperation
		}
	}
	for accountID := range set.Balances {
		if _, ok := s.accounts[accountID]; !ok {
			return models.ErrAccountNotFound
		}
	}
	for _, tx := range set.Transactions {
		if _, ok := s.accounts[tx.AccountID]; !ok {
			return models.ErrAccountNotFound
		}
	}

	for accountID, balance := range set.Balances {
		acct := s.accounts[accountID]
		acct.Balance = balance
		s.accounts[accountID] = acct
	}
	for _, tx := range set.Transactions {
		s.transactions[tx.AccountID] = append(s.transactions[tx.AccountID], tx)
	}
	if set.IdempotencyKey != "" {
		s.seenKeys[set.IdempotencyKey] = time.Now()
	}
	return nil
}

// AccountSnapshot reads the balance and the transaction sequence under the
// same lock acquisition, so the two always reconcile.
func (s *Store) AccountSnapshot(ctx context.Context, accountID string) (models.Account, []models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return models.Account{}, nil, models.ErrAccountNotFound
	}

	// Copy so callers cannot mutate internal state.
	txs := make([]models.Transaction, len(s.transactions[accountID]))
	copy(txs, s.transactions[accountID])
	return acct, txs, nil
}

var _ interfaces.LedgerStore = (*Store)(nil)
