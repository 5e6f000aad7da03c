package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockSeed salts the per-identity advisory lock key so ledger locks
// cannot collide with other advisory lock users on the same database. The
// value is arbitrary but must be consistent across all server instances.
const advisoryLockSeed = int64(7_240_113_559)

// PostgresStore persists account records to PostgreSQL. It implements the
// Store interface.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, identity string) (Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx,
		`SELECT identity, goal, balance, created_at, updated_at
		 FROM accounts WHERE identity = $1`, identity,
	).Scan(&a.Identity, &a.Goal, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{Identity: identity}, nil
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// Update implements Store.
// It acquires a per-identity PostgreSQL advisory lock, reads the record,
// applies fn, and writes the result — all within a single transaction, so
// two concurrent calls on the same account can never both observe a stale
// balance. The lock key is derived from the identity, so calls on different
// accounts do not contend.
func (s *PostgresStore) Update(ctx context.Context, identity string, fn func(*Account) error) (Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise per-account updates with a transaction-scoped advisory lock.
	// The lock is automatically released when the transaction commits or
	// rolls back, and also covers the not-yet-inserted row case that
	// SELECT ... FOR UPDATE cannot.
	if _, err := tx.Exec(ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended($1, $2))",
		identity, advisoryLockSeed,
	); err != nil {
		return Account{}, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var a Account
	existed := true
	err = tx.QueryRow(ctx,
		`SELECT identity, goal, balance, created_at, updated_at
		 FROM accounts WHERE identity = $1`, identity,
	).Scan(&a.Identity, &a.Goal, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		a = Account{Identity: identity}
		existed = false
	} else if err != nil {
		return Account{}, fmt.Errorf("read account: %w", err)
	}

	if err := fn(&a); err != nil {
		return Account{}, err
	}

	now := time.Now().UTC()
	a.UpdatedAt = now

	switch {
	case !a.Exists() && a.Balance == 0 && existed:
		if _, err := tx.Exec(ctx,
			"DELETE FROM accounts WHERE identity = $1", identity,
		); err != nil {
			return Account{}, fmt.Errorf("delete account: %w", err)
		}
	case !a.Exists() && a.Balance == 0:
		// Nothing to persist: the record never existed and is still closed.
	case existed:
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET goal = $2, balance = $3, updated_at = $4
			 WHERE identity = $1`,
			identity, a.Goal, a.Balance, a.UpdatedAt,
		); err != nil {
			return Account{}, fmt.Errorf("update account: %w", err)
		}
	default:
		a.CreatedAt = now
		if _, err := tx.Exec(ctx,
			`INSERT INTO accounts (identity, goal, balance, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			identity, a.Goal, a.Balance, a.CreatedAt, a.UpdatedAt,
		); err != nil {
			return Account{}, fmt.Errorf("insert account: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Account{}, fmt.Errorf("commit account tx: %w", err)
	}

	s.logger.Debug("account updated",
		zap.String("identity", identity),
		zap.Int64("goal", a.Goal),
		zap.Int64("balance", a.Balance),
	)
	return a, nil
}
