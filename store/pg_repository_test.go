package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/tradestore/schema"
)

// Column checks happen before any SQL reaches the database, so a nil DBTX
// is enough here.
func TestRepository_RejectsUnknownColumns(t *testing.T) {
	repo := NewRepository(nil, schema.Baseline().Table(schema.TableOrder))
	ctx := context.Background()

	_, err := repo.Create(ctx, Row{"client_id": "x", "bogus": 1})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = repo.Update(ctx, "id", Row{`qty"; DROP TABLE account; --`: 1})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = repo.Find(ctx, Row{"nope": 1}, Page{})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = repo.List(ctx, Page{OrderBy: "nope"})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestRepository_UpdateNeedsChanges(t *testing.T) {
	repo := NewRepository(nil, schema.Baseline().Table(schema.TableOrder))
	_, err := repo.Update(context.Background(), "id", Row{})
	assert.ErrorIs(t, err, errEmptyChanges)
}

func TestRepository_Columns(t *testing.T) {
	repo := NewRepository(nil, schema.Baseline().Table(schema.TableOrder))
	cols, args, err := repo.columns(Row{"qty": 5, "client_id": "c", "side": "BUY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"client_id", "qty", "side"}, cols)
	assert.Equal(t, []any{"c", 5, "BUY"}, args)
}

func TestQuoteHelpers(t *testing.T) {
	assert.Equal(t, `"order"`, quote("order"))
	assert.Equal(t, `"a", "b"`, quoteList([]string{"a", "b"}))
	assert.Equal(t, "$3, $4, $5", placeholders(3, 3))
}

func TestYAMLToJSON(t *testing.T) {
	data, err := yamlToJSON("risk:\n  max_loss: 5000\n  symbols: [INFY, TCS]\n1: one\n")
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk":{"max_loss":5000,"symbols":["INFY","TCS"]},"1":"one"}`, string(data))

	_, err = yamlToJSON("")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = yamlToJSON("a: [unclosed")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
