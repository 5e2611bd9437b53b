package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/GoCodeAlone/tradestore/schema"
)

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestOrderRequest_Validate(t *testing.T) {
	valid := OrderRequest{ClientID: "c-1", Side: schema.SideBuy, Type: schema.OrderTypeMarket, Qty: 10}

	tests := []struct {
		name   string
		mutate func(r *OrderRequest)
		ok     bool
	}{
		{"market", func(r *OrderRequest) {}, true},
		{"limit with price", func(r *OrderRequest) { r.Type = schema.OrderTypeLimit; r.LimitPrice = price("101.25") }, true},
		{"limit without price", func(r *OrderRequest) { r.Type = schema.OrderTypeLimit }, false},
		{"sl limit with both", func(r *OrderRequest) {
			r.Type = schema.OrderTypeSLLimit
			r.LimitPrice = price("99.5")
			r.TriggerPrice = price("100")
		}, true},
		{"sl limit without trigger", func(r *OrderRequest) {
			r.Type = schema.OrderTypeSLLimit
			r.LimitPrice = price("99.5")
		}, false},
		{"sl limit without limit", func(r *OrderRequest) {
			r.Type = schema.OrderTypeSLLimit
			r.TriggerPrice = price("100")
		}, false},
		{"zero qty", func(r *OrderRequest) { r.Qty = 0 }, false},
		{"negative price", func(r *OrderRequest) { r.Type = schema.OrderTypeLimit; r.LimitPrice = price("-1") }, false},
		{"missing client id", func(r *OrderRequest) { r.ClientID = "" }, false},
		{"long client id", func(r *OrderRequest) { r.ClientID = string(make([]byte, 65)) }, false},
		{"bad side", func(r *OrderRequest) { r.Side = "HOLD" }, false},
		{"bad type", func(r *OrderRequest) { r.Type = "STOP" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidOrder)
			}
		})
	}
}
