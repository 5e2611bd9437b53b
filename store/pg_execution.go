package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GoCodeAlone/tradestore/schema"
)

// Execution is a (partial) fill of an order.
type Execution struct {
	ID        int64           `db:"id"`
	OrderID   uuid.UUID       `db:"order_id"`
	TS        time.Time       `db:"ts"`
	Qty       int32           `db:"qty"`
	Price     decimal.Decimal `db:"price"`
	TradeID   *string         `db:"trade_id"`
	Liquidity string          `db:"liquidity"`
}

// PGExecutionStore manages execution rows.
type PGExecutionStore struct {
	db DBTX
}

// Record inserts a fill. A trade id seen before fails with ErrDuplicate on
// uq_execution__trade_id; fills without a trade id are never deduplicated.
func (s *PGExecutionStore) Record(ctx context.Context, e Execution) (*Execution, error) {
	if e.Liquidity == "" {
		e.Liquidity = schema.LiquidityUnknown
	}
	if e.TS.IsZero() {
		e.TS = time.Now().UTC()
	}
	return queryOne[Execution](ctx, s.db, "insert execution", `
		INSERT INTO execution (order_id, ts, qty, price, trade_id, liquidity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		e.OrderID, e.TS, e.Qty, e.Price, e.TradeID, e.Liquidity)
}

// ListByOrder returns the fills of an order in time order.
func (s *PGExecutionStore) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Execution, error) {
	return queryAll[Execution](ctx, s.db, "list executions",
		`SELECT * FROM execution WHERE order_id = $1 ORDER BY ts, id`, orderID)
}
