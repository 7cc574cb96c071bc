package postgres

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/bankcore/ledger-service/internal/interfaces"
	"github.com/bankcore/ledger-service/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	balance    NUMERIC(20,4) NOT NULL CHECK (balance >= 0),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	kind       TEXT NOT NULL,
	amount     NUMERIC(20,4) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS transactions_account_idx ON transactions (account_id, seq);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	key          TEXT PRIMARY KEY,
	committed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Store is the Postgres implementation of interfaces.LedgerStore. Commit runs
// every write of a change set inside one database transaction, so a failed
// commit never leaves a half-applied operation behind.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres and creates the schema if missing.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateAccount(ctx context.Context, acct models.Account) error {
	const query = `INSERT INTO accounts (id, balance, created_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query, acct.ID, acct.Balance, acct.CreatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrAccountExists
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	const query = `SELECT id, balance, created_at FROM accounts WHERE id = $1`

	var acct models.Account
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(&acct.ID, &acct.Balance, &acct.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, models.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	return acct, nil
}

func (s *Store) OperationSeen(ctx context.Context, key string) (bool, error) {
	const query = `SELECT 1 FROM idempotency_keys WHERE key = $1 LIMIT 1`

	var one int
	err := s.db.QueryRowContext(ctx, query, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Commit applies the change set inside a single database transaction: the
// idempotency key claim, every balance update and every transaction insert
// become durable together or roll back together.
func (s *Store) Commit(ctx context.Context, set models.ChangeSet) (err error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if set.IdempotencyKey != "" {
		const claim = `INSERT INTO idempotency_keys (key) VALUES ($1)
		ON CONFLICT (key) DO NOTHING`
		res, execErr := dbTx.ExecContext(ctx, claim, set.IdempotencyKey)
		if execErr != nil {
			err = execErr
			return err
		}
		n, raErr := res.RowsAffected()
		if raErr != nil {
			err = raErr
			return err
		}
		if n == 0 {
			err = models.ErrDuplicateOperation
			return err
		}
	}

	const update = `UPDATE accounts SET balance = $2 WHERE id = $1`
	for accountID, balance := range set.Balances {
		res, execErr := dbTx.ExecContext(ctx, update, accountID, balance)
		if execErr != nil {
			err = execErr
			return err
		}
		n, raErr := res.RowsAffected()
		if raErr != nil {
			err = raErr
			return err
		}
		if n == 0 {
			err = models.ErrAccountNotFound
			return err
		}
	}

	const insert = `INSERT INTO transactions (id, account_id, kind, amount, created_at)
	VALUES ($1, $2, $3, $4, $5)`
	for _, tx := range set.Transactions {
		if _, err = dbTx.ExecContext(ctx, insert, tx.ID, tx.AccountID, tx.Kind, tx.Amount, tx.CreatedAt); err != nil {
			return err
		}
	}

	err = dbTx.Commit()
	return err
}

// AccountSnapshot reads the balance and the transaction sequence in one
// repeatable-read transaction so the two reconcile even under concurrent
// commits.
func (s *Store) AccountSnapshot(ctx context.Context, accountID string) (models.Account, []models.Transaction, error) {
	dbTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return models.Account{}, nil, err
	}
	defer dbTx.Rollback()

	var acct models.Account
	err = dbTx.QueryRowContext(ctx,
		`SELECT id, balance, created_at FROM accounts WHERE id = $1`, accountID).
		Scan(&acct.ID, &acct.Balance, &acct.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, nil, models.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, nil, err
	}

	rows, err := dbTx.QueryContext(ctx,
		`SELECT id, account_id, kind, amount, created_at FROM transactions
		 WHERE account_id = $1 ORDER BY seq`, accountID)
	if err != nil {
		return models.Account{}, nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Kind, &tx.Amount, &tx.CreatedAt); err != nil {
			return models.Account{}, nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return models.Account{}, nil, err
	}
	return acct, txs, nil
}

var _ interfaces.LedgerStore = (*Store)(nil)
