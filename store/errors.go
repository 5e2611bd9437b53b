package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/GoCodeAlone/tradestore/schema"
)

// Sentinel errors for store operations.
var (
	ErrNotFound = errors.New("not found")

	// ErrConstraintViolation is wrapped by every integrity error the
	// database reports; the kinds below wrap it in turn.
	ErrConstraintViolation = errors.New("constraint violation")
	ErrDuplicate           = fmt.Errorf("%w: duplicate entry", ErrConstraintViolation)
	ErrForeignKey          = fmt.Errorf("%w: foreign key", ErrConstraintViolation)
	ErrCheck               = fmt.Errorf("%w: check", ErrConstraintViolation)
	ErrNotNull             = fmt.Errorf("%w: not null", ErrConstraintViolation)

	// ErrImmutable is returned for any attempt to change an audit_event row.
	ErrImmutable = errors.New("audit_event rows are immutable")

	ErrUnknownColumn = errors.New("unknown column")
	ErrInvalidOrder  = errors.New("invalid order")
)

// SQLSTATE codes the store classifies.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
	codeRaiseException      = "P0001"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
	codeCannotConnectNow    = "57P03"
	classConnection         = "08"
)

// ConstraintError is a classified integrity error. It unwraps to both its
// kind (ErrDuplicate, ErrForeignKey, ...) and the driver's *pgconn.PgError.
type ConstraintError struct {
	Kind       error
	Constraint string
	Table      string
	Column     string
	Err        *pgconn.PgError
}

func (e *ConstraintError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Constraint != "" {
		fmt.Fprintf(&b, " (%s)", e.Constraint)
	} else if e.Column != "" {
		fmt.Fprintf(&b, " (%s.%s)", e.Table, e.Column)
	}
	if e.Err.Detail != "" {
		b.WriteString(": " + e.Err.Detail)
	}
	return b.String()
}

func (e *ConstraintError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify maps driver errors onto the store's sentinels. Errors it does
// not recognise come back unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	var kind error
	switch pgErr.Code {
	case codeUniqueViolation:
		kind = ErrDuplicate
	case codeForeignKeyViolation:
		kind = ErrForeignKey
	case codeCheckViolation:
		kind = ErrCheck
	case codeNotNullViolation:
		kind = ErrNotNull
	case codeRaiseException:
		if pgErr.Message == schema.ImmutableMessage {
			return fmt.Errorf("%w: %w", ErrImmutable, pgErr)
		}
		return err
	default:
		return err
	}
	return &ConstraintError{
		Kind:       kind,
		Constraint: pgErr.ConstraintName,
		Table:      pgErr.TableName,
		Column:     pgErr.ColumnName,
		Err:        pgErr,
	}
}

// ConstraintName returns the name of the constraint err violated, or "".
func ConstraintName(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// IsRetryable reports whether err is transient: lost or refused
// connections, serialization failures and deadlocks. Integrity errors
// and cancellations are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeSerialization, pgErr.Code == codeDeadlock, pgErr.Code == codeCannotConnectNow:
			return true
		case strings.HasPrefix(pgErr.Code, classConnection):
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
