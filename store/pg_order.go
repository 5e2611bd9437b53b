package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GoCodeAlone/tradestore/schema"
)

// Order is one row of the order table.
type Order struct {
	ID              uuid.UUID           `db:"id"`
	AccountID       uuid.UUID           `db:"account_id"`
	InstrumentID    int64               `db:"instrument_id"`
	SignalID        *uuid.UUID          `db:"signal_id"`
	ParentID        *uuid.UUID          `db:"parent_id"`
	ClientID        string              `db:"client_id"`
	BrokerOrderID   *string             `db:"broker_order_id"`
	Side            string              `db:"side"`
	Type            string              `db:"type"`
	Qty             int32               `db:"qty"`
	LimitPrice      decimal.NullDecimal `db:"limit_price"`
	TriggerPrice    decimal.NullDecimal `db:"trigger_price"`
	Status          string              `db:"status"`
	RejectionReason *string             `db:"rejection_reason"`
	PlacedAt        time.Time           `db:"placed_at"`
	UpdatedAt       time.Time           `db:"updated_at"`
	GoodTill        *time.Time          `db:"good_till"`
}

// OrderRequest is what a caller supplies to place an order.
type OrderRequest struct {
	AccountID    uuid.UUID
	InstrumentID int64
	SignalID     *uuid.UUID
	ParentID     *uuid.UUID
	ClientID     string
	Side         string
	Type         string
	Qty          int32
	LimitPrice   decimal.NullDecimal
	TriggerPrice decimal.NullDecimal
	GoodTill     *time.Time
}

const maxClientIDLen = 64

// Validate applies the pricing rules: LIMIT needs a limit price, SL_LIMIT
// needs both a limit and a trigger price.
func (r OrderRequest) Validate() error {
	switch {
	case r.ClientID == "":
		return fmt.Errorf("%w: client_id is required", ErrInvalidOrder)
	case len(r.ClientID) > maxClientIDLen:
		return fmt.Errorf("%w: client_id longer than %d", ErrInvalidOrder, maxClientIDLen)
	case r.Side != schema.SideBuy && r.Side != schema.SideSell:
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, r.Side)
	case r.Qty <= 0:
		return fmt.Errorf("%w: qty must be positive, got %d", ErrInvalidOrder, r.Qty)
	}
	switch r.Type {
	case schema.OrderTypeMarket:
	case schema.OrderTypeLimit:
		if !r.LimitPrice.Valid {
			return fmt.Errorf("%w: LIMIT order requires limit_price", ErrInvalidOrder)
		}
	case schema.OrderTypeSLLimit:
		if !r.LimitPrice.Valid || !r.TriggerPrice.Valid {
			return fmt.Errorf("%w: SL_LIMIT order requires both limit_price and trigger_price", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidOrder, r.Type)
	}
	for _, p := range []decimal.NullDecimal{r.LimitPrice, r.TriggerPrice} {
		if p.Valid && !p.Decimal.IsPositive() {
			return fmt.Errorf("%w: prices must be positive, got %s", ErrInvalidOrder, p.Decimal)
		}
	}
	return nil
}

// PGOrderStore manages order rows.
type PGOrderStore struct {
	db DBTX
}

// Place validates req and inserts it with status NEW. A repeated
// client_id fails with ErrDuplicate on uq_order__client_id.
func (s *PGOrderStore) Place(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return queryOne[Order](ctx, s.db, "place order", `
		INSERT INTO "order" (account_id, instrument_id, signal_id, parent_id, client_id, side, type, qty,
			limit_price, trigger_price, good_till)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING *`,
		req.AccountID, req.InstrumentID, req.SignalID, req.ParentID, req.ClientID, req.Side, req.Type, req.Qty,
		req.LimitPrice, req.TriggerPrice, req.GoodTill)
}

// Get returns the order with the given id.
func (s *PGOrderStore) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return queryOne[Order](ctx, s.db, "get order", `SELECT * FROM "order" WHERE id = $1`, id)
}

// GetByClientID returns the order with the given client id.
func (s *PGOrderStore) GetByClientID(ctx context.Context, clientID string) (*Order, error) {
	return queryOne[Order](ctx, s.db, "get order by client id",
		`SELECT * FROM "order" WHERE client_id = $1`, clientID)
}

// GetByBrokerOrderID returns the order the broker knows by brokerOrderID.
func (s *PGOrderStore) GetByBrokerOrderID(ctx context.Context, brokerOrderID string) (*Order, error) {
	return queryOne[Order](ctx, s.db, "get order by broker order id",
		`SELECT * FROM "order" WHERE broker_order_id = $1`, brokerOrderID)
}

// ListOpen returns the open orders of an instrument, oldest first. The
// predicate matches ix_order__open so the partial index is usable.
func (s *PGOrderStore) ListOpen(ctx context.Context, instrumentID int64) ([]*Order, error) {
	return queryAll[Order](ctx, s.db, "list open orders",
		`SELECT * FROM "order" WHERE instrument_id = $1 AND `+schema.OpenOrderPredicate()+` ORDER BY placed_at, id`,
		instrumentID)
}

// ListByAccount returns the newest orders of an account.
func (s *PGOrderStore) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	return queryAll[Order](ctx, s.db, "list orders by account",
		`SELECT * FROM "order" WHERE account_id = $1 ORDER BY placed_at DESC LIMIT $2`, accountID, limit)
}

// Acknowledge stores the broker's order id and moves the order to status.
// A broker id already used by another order fails with ErrDuplicate.
func (s *PGOrderStore) Acknowledge(ctx context.Context, id uuid.UUID, brokerOrderID, status string) (*Order, error) {
	return queryOne[Order](ctx, s.db, "acknowledge order",
		`UPDATE "order" SET broker_order_id = $2, status = $3 WHERE id = $1 RETURNING *`,
		id, brokerOrderID, status)
}

// SetStatus moves an order to status. reason is stored for rejections and
// may be empty.
func (s *PGOrderStore) SetStatus(ctx context.Context, id uuid.UUID, status, reason string) (*Order, error) {
	return queryOne[Order](ctx, s.db, "set order status",
		`UPDATE "order" SET status = $2, rejection_reason = NULLIF($3, '') WHERE id = $1 RETURNING *`,
		id, status, reason)
}

// Delete removes an order and, by cascade, its executions.
func (s *PGOrderStore) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM "order" WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete order: %w", classify(err))
	}
	return tag.RowsAffected(), nil
}
