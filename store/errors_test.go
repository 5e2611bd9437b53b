package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/tradestore/schema"
)

func TestClassify_ConstraintKinds(t *testing.T) {
	tests := []struct {
		code string
		kind error
	}{
		{"23505", ErrDuplicate},
		{"23503", ErrForeignKey},
		{"23514", ErrCheck},
		{"23502", ErrNotNull},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.code, ConstraintName: "some_constraint", TableName: "order"}
			err := classify(fmt.Errorf("insert: %w", pgErr))

			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, ErrConstraintViolation)
			assert.Equal(t, "some_constraint", ConstraintName(err))

			var got *pgconn.PgError
			require.ErrorAs(t, err, &got)
			assert.Same(t, pgErr, got)
		})
	}
}

func TestClassify_KindsAreDistinct(t *testing.T) {
	err := classify(&pgconn.PgError{Code: "23505"})
	assert.NotErrorIs(t, err, ErrForeignKey)
	assert.NotErrorIs(t, err, ErrCheck)
}

func TestClassify_Immutable(t *testing.T) {
	err := classify(&pgconn.PgError{Code: "P0001", Message: schema.ImmutableMessage})
	assert.ErrorIs(t, err, ErrImmutable)
	assert.NotErrorIs(t, err, ErrConstraintViolation)

	other := &pgconn.PgError{Code: "P0001", Message: "something else"}
	assert.Same(t, error(other), classify(other))
}

func TestClassify_Passthrough(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(pgx.ErrNoRows), ErrNotFound)

	plain := errors.New("boom")
	assert.Same(t, plain, classify(plain))
}

func TestConstraintName_NoConstraint(t *testing.T) {
	assert.Empty(t, ConstraintName(errors.New("boom")))
	assert.Equal(t, "uq_x", ConstraintName(fmt.Errorf("wrapped: %w", &pgconn.PgError{ConstraintName: "uq_x"})))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"starting up", &pgconn.PgError{Code: "57P03"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"classified unique violation", classify(&pgconn.PgError{Code: "23505"}), false},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
