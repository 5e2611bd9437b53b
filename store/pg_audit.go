package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one immutable audit_event row. Hash is computed by the
// database when left empty.
type AuditEvent struct {
	ID         int64           `db:"id"`
	TS         time.Time       `db:"ts"`
	ActorType  string          `db:"actor_type"`
	ActorID    *uuid.UUID      `db:"actor_id"`
	Action     string          `db:"action"`
	EntityType string          `db:"entity_type"`
	EntityID   string          `db:"entity_id"`
	Reason     *string         `db:"reason"`
	IP         *string         `db:"ip"`
	UserAgent  *string         `db:"user_agent"`
	Before     json.RawMessage `db:"before"`
	After      json.RawMessage `db:"after"`
	Hash       string          `db:"hash"`
}

// PGAuditStore appends to and reads audit_event. Rows can never be changed
// once written.
type PGAuditStore struct {
	db     DBTX
	logger *slog.Logger
}

// Append inserts ev. A zero TS takes the column default. Appending an
// event whose logical content equals an earlier one fails with ErrDuplicate
// on uq_audit_event__hash.
func (s *PGAuditStore) Append(ctx context.Context, ev AuditEvent) (*AuditEvent, error) {
	var ts *time.Time
	if !ev.TS.IsZero() {
		ts = &ev.TS
	}
	var hash *string
	if ev.Hash != "" {
		hash = &ev.Hash
	}
	return queryOne[AuditEvent](ctx, s.db, "append audit event", `
		INSERT INTO audit_event (ts, actor_type, actor_id, action, entity_type, entity_id, reason, ip, user_agent,
			before, after, hash)
		VALUES (COALESCE($1, now()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING *`,
		ts, ev.ActorType, ev.ActorID, ev.Action, ev.EntityType, ev.EntityID, ev.Reason, ev.IP, ev.UserAgent,
		ev.Before, ev.After, hash)
}

// Get returns the event with the given id.
func (s *PGAuditStore) Get(ctx context.Context, id int64) (*AuditEvent, error) {
	return queryOne[AuditEvent](ctx, s.db, "get audit event", `SELECT * FROM audit_event WHERE id = $1`, id)
}

// ListByEntity returns the newest events for an entity.
func (s *PGAuditStore) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	return queryAll[AuditEvent](ctx, s.db, "list audit events", `
		SELECT * FROM audit_event
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY ts DESC, id DESC
		LIMIT $3`, entityType, entityID, limit)
}

// SetReason tries to rewrite the reason of an event. The database refuses
// and the call returns ErrImmutable.
func (s *PGAuditStore) SetReason(ctx context.Context, id int64, reason string) error {
	_, err := s.db.Exec(ctx, `UPDATE audit_event SET reason = $2 WHERE id = $1`, id, reason)
	return s.refused(ctx, err, "update", id)
}

// Delete tries to remove an event. The database refuses and the call
// returns ErrImmutable.
func (s *PGAuditStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM audit_event WHERE id = $1`, id)
	return s.refused(ctx, err, "delete", id)
}

// refused turns the outcome of a change attempt into an error. Row
// triggers only fire for matching rows, so a clean result means the row
// is missing or the trigger is.
func (s *PGAuditStore) refused(ctx context.Context, err error, op string, id int64) error {
	if err == nil {
		var exists bool
		if qerr := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM audit_event WHERE id = $1)`, id).Scan(&exists); qerr != nil {
			return fmt.Errorf("%s audit event %d: %w", op, id, classify(qerr))
		}
		if !exists {
			return fmt.Errorf("%s audit event %d: %w", op, id, ErrNotFound)
		}
		s.logger.Error("audit_event change was not rejected", "op", op, "id", id)
		return fmt.Errorf("%s audit event %d: immutability trigger did not fire", op, id)
	}
	err = classify(err)
	if errors.Is(err, ErrImmutable) {
		s.logger.Error("rejected change to audit_event", "op", op, "id", id)
	}
	return fmt.Errorf("%s audit event %d: %w", op, id, err)
}
