package migration

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// DistributedLock provides mutual exclusion for migration runs across
// processes.
type DistributedLock interface {
	// Acquire obtains the lock for the given key. The returned release
	// function must be called to release it.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NoopLock does no locking. Deployments that already serialise migration
// runs use it.
type NoopLock struct{}

// Acquire returns immediately unless ctx is done.
func (NoopLock) Acquire(ctx context.Context, _ string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() {}, nil
}

// PostgresLock implements DistributedLock with a session-level advisory
// lock. The lock is taken and released on one dedicated connection, since
// advisory locks belong to the session that took them.
type PostgresLock struct {
	db *sql.DB
}

// NewPostgresLock creates a new PostgresLock.
func NewPostgresLock(db *sql.DB) *PostgresLock {
	return &PostgresLock{db: db}
}

// Acquire blocks until the advisory lock for key is held. The key is
// hashed to an int64.
func (l *PostgresLock) Acquire(ctx context.Context, key string) (func(), error) {
	lockID := hashLockKey(key)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve lock connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pg_advisory_lock(%d): %w", lockID, err)
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
		_ = conn.Close()
	}
	return release, nil
}

// LocalLock implements DistributedLock with a process-local mutex. It is
// enough for SQLite, which is single-writer.
type LocalLock struct {
	mu sync.Mutex
}

// Acquire obtains the mutex. Returns an error if the context is already cancelled.
func (l *LocalLock) Acquire(ctx context.Context, _ string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire local lock: %w", err)
	}

	l.mu.Lock()
	return func() { l.mu.Unlock() }, nil
}

// hashLockKey produces a stable int64 from key using FNV-1a.
func hashLockKey(key string) int64 {
	var h uint64 = 14695981039346656037 // FNV offset basis
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211 // FNV prime
	}
	return int64(h & 0x7FFFFFFFFFFFFFFF) //nolint:gosec // intentional truncation for advisory lock key
}
