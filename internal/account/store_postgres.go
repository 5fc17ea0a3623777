package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"relay/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed account store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, acc Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, owner, currency, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		acc.ID, acc.Owner, acc.Currency, acc.Balance, string(acc.Status), acc.CreatedAt, acc.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("account %q: %w", acc.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner, currency, balance, status, created_at, updated_at
		FROM accounts WHERE id = $1`, id)
	return scanAccount(row, id)
}

func (s *PostgresStore) ApplyDelta(ctx context.Context, id string, delta int64, at time.Time) (Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $2, updated_at = $3
		WHERE id = $1 AND status = $4
		RETURNING id, owner, currency, balance, status, created_at, updated_at`,
		id, delta, at, string(StatusActive),
	)
	acc, err := scanAccount(row, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Distinguish an absent account from one in the wrong state.
		if _, getErr := s.Get(ctx, id); getErr == nil {
			return Account{}, fmt.Errorf("account %q is not active: %w", id, sentinel.ErrInvalidState)
		}
		return Account{}, err
	}
	return acc, err
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status, at time.Time) (Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status <> $2
		RETURNING id, owner, currency, balance, status, created_at, updated_at`,
		id, string(status), at,
	)
	acc, err := scanAccount(row, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		if _, getErr := s.Get(ctx, id); getErr == nil {
			return Account{}, fmt.Errorf("account %q already %s: %w", id, status, sentinel.ErrInvalidState)
		}
		return Account{}, err
	}
	return acc, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, id string) (Account, error) {
	var acc Account
	var status string
	err := row.Scan(&acc.ID, &acc.Owner, &acc.Currency, &acc.Balance, &status, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("account %q: %w", id, sentinel.ErrNotFound)
		}
		return Account{}, fmt.Errorf("scan account: %w", err)
	}
	acc.Status = Status(status)
	return acc, nil
}
