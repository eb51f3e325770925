package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/config"
	"boxbluebook/internal/pricing"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = fmt.Errorf("storage: pool not configured: %w", apperr.ErrConfigurationMissing)

const (
	tryAdvisoryLockSQL  = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL   = `SELECT pg_advisory_unlock($1);`
	advisoryXactLockSQL = `SELECT pg_advisory_xact_lock($1);`
)

// AdvisoryLocker exposes session-level advisory locks held across a whole job.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// AggregationTx is the store surface available inside a locked aggregation transaction.
type AggregationTx interface {
	VerifiedTransactions(ctx context.Context, cigarID uuid.UUID, from, to time.Time) ([]pricing.Transaction, error)
	AggregateAt(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType, start time.Time) (*pricing.PriceAggregate, error)
	BaselineAggregate(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType, notAfter time.Time) (*pricing.PriceAggregate, error)
	UpsertAggregate(ctx context.Context, agg pricing.PriceAggregate) error
}

// TxLocker runs work inside a single transaction holding a transaction-scoped advisory lock.
type TxLocker interface {
	WithTxLock(ctx context.Context, key int64, fn func(tx AggregationTx) error) error
}

// dbtx is the query surface shared by the pool and an open transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required: %w", apperr.ErrConfigurationMissing)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Store is the PostgreSQL implementation of every persistence interface in the service. A Store
// handed out by WithTxLock issues every query on its transaction.
type Store struct {
	pool   *pgxpool.Pool
	tx     pgx.Tx
	logger zerolog.Logger
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool, logger zerolog.Logger) *Store {
	return &Store{pool: pool, logger: logger.With().Str("component", "storage").Logger()}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}
	return s.unlocker(conn, key), true, nil
}

// WithTxLock begins a transaction, takes pg_advisory_xact_lock(key) in it and runs fn with a
// Store bound to that transaction. The lock and all of fn's queries share one pooled connection;
// the lock is released when the transaction commits or rolls back.
func (s *Store) WithTxLock(ctx context.Context, key int64, fn func(tx AggregationTx) error) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin locked transaction: %w", err)
	}
	return s.runLocked(ctx, tx, key, fn)
}

func (s *Store) runLocked(ctx context.Context, tx pgx.Tx, key int64, fn func(tx AggregationTx) error) error {
	if _, err := tx.Exec(ctx, advisoryXactLockSQL, key); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("advisory xact lock: %w", err)
	}
	if err := fn(&Store{tx: tx, logger: s.logger}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit locked transaction: %w", err)
	}
	return nil
}

func (s *Store) unlocker(conn *pgxpool.Conn, key int64) func() {
	return func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			s.logger.Warn().Err(err).Int64("key", key).Msg("advisory unlock failed")
		}
		conn.Release()
	}
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func (s *Store) getDB() (dbtx, error) {
	if s == nil {
		return nil, ErrNotConfigured
	}
	if s.tx != nil {
		return s.tx, nil
	}
	if s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// notFound maps pgx.ErrNoRows onto the shared taxonomy.
func notFound(err error, what string) error {
	if isNoRows(err) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func decArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseDec(s string, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

func parseOptDec(s *string, field string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := parseDec(*s, field)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
