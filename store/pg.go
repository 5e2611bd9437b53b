// Package store is the repository layer over the trading schema: generic
// per-table CRUD, typed helpers for the tables the services touch most,
// and classification of integrity errors raised by the database.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GoCodeAlone/tradestore/schema"
)

// PGConfig holds PostgreSQL connection configuration.
type PGConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
	// ConnectTimeout bounds the total time spent retrying the first
	// connection. Zero means 30s.
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pool and pings it, retrying with exponential backoff
// while the failure is transient.
func Connect(ctx context.Context, cfg PGConfig) (*pgxpool.Pool, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse pg config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = timeout

	connect := func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create pg pool: %w", err))
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			if !IsRetryable(err) {
				return nil, backoff.Permanent(fmt.Errorf("ping pg: %w", err))
			}
			return nil, fmt.Errorf("ping pg: %w", err)
		}
		return pool, nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("database not reachable, retrying", "error", err, "wait", wait.Round(time.Millisecond))
	}

	pool, err := backoff.RetryNotifyWithData(connect, backoff.WithContext(bo, ctx), notify)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// PGStore wraps a pgxpool.Pool and provides access to the typed stores.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	accounts    *PGAccountStore
	instruments *PGInstrumentStore
	orders      *PGOrderStore
	executions  *PGExecutionStore
	configs     *PGConfigStore
	audit       *PGAuditStore
}

// NewPGStore builds the typed stores over pool.
func NewPGStore(pool *pgxpool.Pool, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{
		pool:        pool,
		logger:      logger,
		accounts:    &PGAccountStore{db: pool},
		instruments: &PGInstrumentStore{db: pool},
		orders:      &PGOrderStore{db: pool},
		executions:  &PGExecutionStore{db: pool},
		configs:     &PGConfigStore{pool: pool},
		audit:       &PGAuditStore{db: pool, logger: logger},
	}
}

// Pool returns the underlying pgxpool.Pool.
func (s *PGStore) Pool() *pgxpool.Pool { return s.pool }

// Close closes the connection pool.
func (s *PGStore) Close() { s.pool.Close() }

// Table returns a generic repository for the named table of the baseline
// schema.
func (s *PGStore) Table(name string) (*Repository, error) {
	t := schema.Baseline().Table(name)
	if t == nil {
		return nil, fmt.Errorf("%w: table %q", ErrNotFound, name)
	}
	return NewRepository(s.pool, t), nil
}

// Accounts returns the account store.
func (s *PGStore) Accounts() *PGAccountStore { return s.accounts }

// Instruments returns the instrument store.
func (s *PGStore) Instruments() *PGInstrumentStore { return s.instruments }

// Orders returns the order store.
func (s *PGStore) Orders() *PGOrderStore { return s.orders }

// Executions returns the execution store.
func (s *PGStore) Executions() *PGExecutionStore { return s.executions }

// Configs returns the config store.
func (s *PGStore) Configs() *PGConfigStore { return s.configs }

// AuditEvents returns the audit event store.
func (s *PGStore) AuditEvents() *PGAuditStore { return s.audit }

// InTx runs fn in a transaction with stores bound to it. The transaction
// commits when fn returns nil and rolls back otherwise.
func (s *PGStore) InTx(ctx context.Context, fn func(tx *TxStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(newTxStore(tx, s.logger)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// TxStore exposes the typed stores bound to one transaction.
type TxStore struct {
	Tx          pgx.Tx
	Accounts    *PGAccountStore
	Instruments *PGInstrumentStore
	Orders      *PGOrderStore
	Executions  *PGExecutionStore
	AuditEvents *PGAuditStore
}

func newTxStore(tx pgx.Tx, logger *slog.Logger) *TxStore {
	return &TxStore{
		Tx:          tx,
		Accounts:    &PGAccountStore{db: tx},
		Instruments: &PGInstrumentStore{db: tx},
		Orders:      &PGOrderStore{db: tx},
		Executions:  &PGExecutionStore{db: tx},
		AuditEvents: &PGAuditStore{db: tx, logger: logger},
	}
}
