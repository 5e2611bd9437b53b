package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/tradestore/schema"
)

// Account is a broker account.
type Account struct {
	ID        uuid.UUID  `db:"id"`
	CreatedAt *time.Time `db:"created_at"`
	Broker    string     `db:"broker"`
	Product   string     `db:"product"`
	Timezone  string     `db:"timezone"`
	APIKeyRef string     `db:"api_key_ref"`
	IsActive  bool       `db:"is_active"`
}

// PGAccountStore manages account rows.
type PGAccountStore struct {
	db DBTX
}

// Create inserts an account. Empty Product and Timezone take the column
// defaults.
func (s *PGAccountStore) Create(ctx context.Context, a Account) (*Account, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	if a.Broker == "" {
		a.Broker = schema.BrokerZerodha
	}
	return queryOne[Account](ctx, s.db, "insert account", `
		INSERT INTO account (id, broker, product, timezone, api_key_ref, is_active)
		VALUES ($1, $2, COALESCE(NULLIF($3, '')::product_enum, 'MIS'), COALESCE(NULLIF($4, ''), 'Asia/Kolkata'), $5, $6)
		RETURNING *`,
		id, a.Broker, a.Product, a.Timezone, a.APIKeyRef, a.IsActive)
}

// Get returns the account with the given id.
func (s *PGAccountStore) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	return queryOne[Account](ctx, s.db, "get account", `SELECT * FROM account WHERE id = $1`, id)
}

// ListActive returns active accounts, oldest first.
func (s *PGAccountStore) ListActive(ctx context.Context) ([]*Account, error) {
	return queryAll[Account](ctx, s.db, "list accounts",
		`SELECT * FROM account WHERE is_active ORDER BY created_at, id`)
}

// Deactivate clears is_active.
func (s *PGAccountStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE account SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate account: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
