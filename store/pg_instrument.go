package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GoCodeAlone/tradestore/schema"
)

// Instrument is a tradable symbol on an exchange.
type Instrument struct {
	ID            int64           `db:"id"`
	Token         int64           `db:"token"`
	Symbol        string          `db:"symbol"`
	Exchange      string          `db:"exchange"`
	TickSize      decimal.Decimal `db:"tick_size"`
	LotSize       int32           `db:"lot_size"`
	IsTradable    bool            `db:"is_tradable"`
	LastRefreshed *time.Time      `db:"last_refreshed"`
}

// PGInstrumentStore manages instrument rows.
type PGInstrumentStore struct {
	db DBTX
}

// Create inserts an instrument. Exchange defaults to NSE and LotSize to 1.
func (s *PGInstrumentStore) Create(ctx context.Context, in Instrument) (*Instrument, error) {
	if in.Exchange == "" {
		in.Exchange = schema.ExchangeNSE
	}
	if in.LotSize == 0 {
		in.LotSize = 1
	}
	return queryOne[Instrument](ctx, s.db, "insert instrument", `
		INSERT INTO instrument (token, symbol, exchange, tick_size, lot_size, is_tradable, last_refreshed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *`,
		in.Token, in.Symbol, in.Exchange, in.TickSize, in.LotSize, in.IsTradable, in.LastRefreshed)
}

// Get returns the instrument with the given id.
func (s *PGInstrumentStore) Get(ctx context.Context, id int64) (*Instrument, error) {
	return queryOne[Instrument](ctx, s.db, "get instrument", `SELECT * FROM instrument WHERE id = $1`, id)
}

// GetBySymbol looks an instrument up by symbol and exchange.
func (s *PGInstrumentStore) GetBySymbol(ctx context.Context, symbol, exchange string) (*Instrument, error) {
	if exchange == "" {
		exchange = schema.ExchangeNSE
	}
	return queryOne[Instrument](ctx, s.db, "get instrument by symbol",
		`SELECT * FROM instrument WHERE symbol = $1 AND exchange = $2`, symbol, exchange)
}

// GetByToken looks an instrument up by broker token.
func (s *PGInstrumentStore) GetByToken(ctx context.Context, token int64) (*Instrument, error) {
	return queryOne[Instrument](ctx, s.db, "get instrument by token",
		`SELECT * FROM instrument WHERE token = $1`, token)
}

// ListTradable returns tradable instruments ordered by symbol.
func (s *PGInstrumentStore) ListTradable(ctx context.Context) ([]*Instrument, error) {
	return queryAll[Instrument](ctx, s.db, "list tradable instruments",
		`SELECT * FROM instrument WHERE is_tradable ORDER BY symbol`)
}

// Delete removes an instrument. It fails with ErrForeignKey while orders,
// signals or positions still reference it.
func (s *PGInstrumentStore) Delete(ctx context.Context, id int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM instrument WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete instrument: %w", classify(err))
	}
	return tag.RowsAffected(), nil
}
