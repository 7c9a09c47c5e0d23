package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Querier is the subset of pgx shared by pools, pooled connections and transactions.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// TxFromContext returns the transaction opened by WithinTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(TxKey).(pgx.Tx)
	return tx
}

// Conn resolves the querier for a repository call: the open transaction first,
// then the tenant connection, then the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// Postgres SQLSTATEs that are safe to retry from the top of the transaction.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// IsRetryable reports whether err is a serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
	}
	return false
}

// Transactor runs units of work in SERIALIZABLE transactions so that
// read-then-write sequences (conflict check, then insert) cannot interleave.
type Transactor struct {
	pool    *pgxpool.Pool
	retries int
	logger  zerolog.Logger
}

func NewTransactor(pool *pgxpool.Pool, retries int, logger zerolog.Logger) *Transactor {
	if retries < 0 {
		retries = 0
	}
	return &Transactor{pool: pool, retries: retries, logger: logger}
}

// WithinTx calls fn with a context carrying the transaction. A transaction
// already present in ctx is reused. Serialization failures are retried.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	var err error
	for attempt := 0; attempt <= t.retries; attempt++ {
		err = t.run(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		t.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("retrying serializable transaction")
	}
	return fmt.Errorf("transaction aborted after %d attempts: %w", t.retries+1, err)
}

func (t *Transactor) run(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}

	var (
		tx  pgx.Tx
		err error
	)
	// Prefer the tenant connection so the search_path carries over.
	if c := ConnFromContext(ctx); c != nil {
		tx, err = c.BeginTx(ctx, opts)
	} else {
		tx, err = t.pool.BeginTx(ctx, opts)
	}
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, TxKey, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
