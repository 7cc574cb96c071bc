package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bankcore/ledger-service/internal/interfaces"
	"github.com/bankcore/ledger-service/internal/models"
	"github.com/bankcore/ledger-service/internal/models/events"
)

// completedTopic is where OperationCompleted events are published.
const completedTopic = "operation_completed"

// commitAttempts bounds the retry budget for a transient store failure before
// the operation surfaces ErrStoreUnavailable.
const commitAttempts = 3

// Ledger applies deposit, withdraw and transfer operations to accounts and
// records each as an immutable Transaction. Operations on the same account
// are serialized by a per-account mutex held across the whole
// read-validate-commit span; operations on disjoint accounts run in parallel.
type Ledger struct {
	store  interfaces.LedgerStore
	events interfaces.EventPublisher // optional, best-effort

	muMap map[string]*sync.Mutex // one mutex per account, created on first use
	mapMu sync.Mutex             // protects muMap itself
}

// Result is what a successful mutation returns: the caller's post-operation
// balance and the Transaction records the operation created (one for deposit
// and withdraw, debit leg then credit leg for transfer).
type Result struct {
	Balance      decimal.Decimal
	Transactions []models.Transaction
}

// New creates a Ledger backed by the given store. events may be nil, in which
// case no completion events are published.
func New(store interfaces.LedgerStore, events interfaces.EventPublisher) *Ledger {
	return &Ledger{
		store:  store,
		events: events,
		muMap:  make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) accountLock(accountID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	mu, ok := l.muMap[accountID]
	if !ok {
		mu = &sync.Mutex{}
		l.muMap[accountID] = mu
	}
	return mu
}

// CreateAccount registers a new account with an opening balance. The opening
// balance may be zero but never negative.
func (l *Ledger) CreateAccount(ctx context.Context, accountID string, opening decimal.Decimal) (models.Account, error) {
	if accountID == "" {
		return models.Account{}, models.ErrInvalidAccountID
	}
	if opening.IsNegative() {
		return models.Account{}, models.ErrInvalidAmount
	}

	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	acct := models.Account{
		ID:        accountID,
		Balance:   opening,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.store.CreateAccount(ctx, acct); err != nil {
		return models.Account{}, storeErr(err)
	}
	return acct, nil
}

// Deposit adds amount to the account and records one deposit Transaction.
// The balance update and the record commit as one atomic unit.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, idemKey string) (Result, error) {
	if !amount.IsPositive() {
		return Result{}, models.ErrInvalidAmount
	}

	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	if err := l.checkReplay(ctx, idemKey); err != nil {
		return Result{}, err
	}
	acct, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return Result{}, storeErr(err)
	}

	tx := models.Transaction{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Kind:      models.KindDeposit,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	balance := acct.Balance.Add(amount)

	err = l.commit(ctx, models.ChangeSet{
		IdempotencyKey: idemKey,
		Balances:       map[string]decimal.Decimal{accountID: balance},
		Transactions:   []models.Transaction{tx},
	})
	if err != nil {
		return Result{}, err
	}

	l.publish(events.OperationCompleted{
		OperationID:    tx.ID,
		Kind:           models.KindDeposit,
		AccountID:      accountID,
		Amount:         amount,
		TransactionIDs: []string{tx.ID},
		OccurredAt:     tx.CreatedAt,
	})
	return Result{Balance: balance, Transactions: []models.Transaction{tx}}, nil
}

// Withdraw removes amount from the account and records one withdraw
// Transaction. Fails with ErrInsufficientBalance, mutating nothing, if the
// balance would go below zero.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, idemKey string) (Result, error) {
	if !amount.IsPositive() {
		return Result{}, models.ErrInvalidAmount
	}

	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	if err := l.checkReplay(ctx, idemKey); err != nil {
		return Result{}, err
	}
	acct, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return Result{}, storeErr(err)
	}
	if acct.Balance.LessThan(amount) {
		return Result{}, models.ErrInsufficientBalance
	}

	tx := models.Transaction{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Kind:      models.KindWithdraw,
		Amount:    amount.Neg(),
		CreatedAt: time.Now().UTC(),
	}
	balance := acct.Balance.Sub(amount)

	err = l.commit(ctx, models.ChangeSet{
		IdempotencyKey: idemKey,
		Balances:       map[string]decimal.Decimal{accountID: balance},
		Transactions:   []models.Transaction{tx},
	})
	if err != nil {
		return Result{}, err
	}

	l.publish(events.OperationCompleted{
		OperationID:    tx.ID,
		Kind:           models.KindWithdraw,
		AccountID:      accountID,
		Amount:         amount,
		TransactionIDs: []string{tx.ID},
		OccurredAt:     tx.CreatedAt,
	})
	return Result{Balance: balance, Transactions: []models.Transaction{tx}}, nil
}

// Transfer moves amount from one account to another as a single atomic
// operation: both balance updates and both Transaction legs (debit on the
// sender, credit on the recipient) commit together or not at all. The
// returned Result carries the sender's post-transfer balance.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, idemKey string) (Result, error) {
	if !amount.IsPositive() {
		return Result{}, models.ErrInvalidAmount
	}
	if fromID == toID {
		return Result{}, fmt.Errorf("%w: sender and recipient are the same account", models.ErrInvalidTransfer)
	}

	fromMu := l.accountLock(fromID)
	toMu := l.accountLock(toID)

	// Lock both accounts in a globally consistent order so two opposite
	// transfers between the same pair cannot deadlock.
	if fromID < toID {
		fromMu.Lock()
		toMu.Lock()
	} else {
		toMu.Lock()
		fromMu.Lock()
	}
	defer fromMu.Unlock()
	defer toMu.Unlock()

	if err := l.checkReplay(ctx, idemKey); err != nil {
		return Result{}, err
	}

	sender, senderErr := l.store.GetAccount(ctx, fromID)
	recipient, recipientErr := l.store.GetAccount(ctx, toID)
	if err := transferLookupErr(senderErr, recipientErr); err != nil {
		return Result{}, err
	}
	if sender.Balance.LessThan(amount) {
		return Result{}, models.ErrInsufficientBalance
	}

	opID := uuid.New().String()
	now := time.Now().UTC()
	debit := models.Transaction{
		ID:        opID + "-debit",
		AccountID: fromID,
		Kind:      models.KindTransfer,
		Amount:    amount.Neg(),
		CreatedAt: now,
	}
	credit := models.Transaction{
		ID:        opID + "-credit",
		AccountID: toID,
		Kind:      models.KindTransfer,
		Amount:    amount,
		CreatedAt: now,
	}
	senderBalance := sender.Balance.Sub(amount)

	err := l.commit(ctx, models.ChangeSet{
		IdempotencyKey: idemKey,
		Balances: map[string]decimal.Decimal{
			fromID: senderBalance,
			toID:   recipient.Balance.Add(amount),
		},
		Transactions: []models.Transaction{debit, credit},
	})
	if err != nil {
		return Result{}, err
	}

	l.publish(events.OperationCompleted{
		OperationID:    opID,
		Kind:           models.KindTransfer,
		AccountID:      fromID,
		CounterpartyID: toID,
		Amount:         amount,
		TransactionIDs: []string{debit.ID, credit.ID},
		OccurredAt:     now,
	})
	return Result{Balance: senderBalance, Transactions: []models.Transaction{debit, credit}}, nil
}

// GetHistory returns the account's current balance and its Transactions in
// chronological order, read as one consistent snapshot: the balance always
// equals the account's opening balance plus the sum of the returned amounts,
// even while mutations are in flight.
func (l *Ledger) GetHistory(ctx context.Context, accountID string) (models.Account, []models.Transaction, error) {
	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	acct, txs, err := l.store.AccountSnapshot(ctx, accountID)
	if err != nil {
		return models.Account{}, nil, storeErr(err)
	}
	return acct, txs, nil
}

// checkReplay rejects an idempotency key that has already been committed.
// Callers retrying after an unknown commit outcome re-send the same key: a
// duplicate answer proves the first attempt applied.
func (l *Ledger) checkReplay(ctx context.Context, idemKey string) error {
	if idemKey == "" {
		return nil
	}
	seen, err := l.store.OperationSeen(ctx, idemKey)
	if err != nil {
		return storeErr(err)
	}
	if seen {
		return models.ErrDuplicateOperation
	}
	return nil
}

// commit applies a change set, retrying transient store failures within the
// bounded budget. Domain errors from the store pass through untouched.
func (l *Ledger) commit(ctx context.Context, set models.ChangeSet) error {
	var err error
	for attempt := 0; attempt < commitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, ctx.Err())
			case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
			}
		}
		err = l.store.Commit(ctx, set)
		if err == nil {
			return nil
		}
		if isDomainErr(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}

func (l *Ledger) publish(ev events.OperationCompleted) {
	if l.events == nil {
		return
	}
	if err := l.events.Publish(completedTopic, ev); err != nil {
		// Events are informational; a publish failure never fails the
		// already-committed operation.
		log.Printf("ledger: publish %s event: %v", ev.Kind, err)
	}
}

// transferLookupErr folds the two account lookups into one error that names
// which side was missing.
func transferLookupErr(senderErr, recipientErr error) error {
	senderMissing := errors.Is(senderErr, models.ErrAccountNotFound)
	recipientMissing := errors.Is(recipientErr, models.ErrAccountNotFound)
	switch {
	case senderMissing && recipientMissing:
		return fmt.Errorf("sender and recipient: %w", models.ErrAccountNotFound)
	case senderMissing:
		return fmt.Errorf("sender: %w", models.ErrAccountNotFound)
	case recipientMissing:
		return fmt.Errorf("recipient: %w", models.ErrAccountNotFound)
	case senderErr != nil:
		return storeErr(senderErr)
	case recipientErr != nil:
		return storeErr(recipientErr)
	}
	return nil
}

// storeErr keeps domain errors intact and wraps everything else as
// ErrStoreUnavailable so storage details never leak to callers.
func storeErr(err error) error {
	if isDomainErr(err) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}

func isDomainErr(err error) bool {
	return errors.Is(err, models.ErrAccountNotFound) ||
		errors.Is(err, models.ErrAccountExists) ||
		errors.Is(err, models.ErrInsufficientBalance) ||
		errors.Is(err, models.ErrInvalidAmount) ||
		errors.Is(err, models.ErrInvalidAccountID) ||
		errors.Is(err, models.ErrInvalidTransfer) ||
		errors.Is(err, models.ErrDuplicateOperation)
}
