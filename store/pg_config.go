package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"
)

// DefaultConfigKey is the key used when none is given.
const DefaultConfigKey = "trading"

// ErrInvalidConfig is returned for YAML that cannot be stored.
var ErrInvalidConfig = errors.New("invalid config document")

// ConfigVersion is one stored version of a config document.
type ConfigVersion struct {
	ID         uuid.UUID       `db:"id"`
	Key        string          `db:"key"`
	Version    int32           `db:"version"`
	YAML       string          `db:"yaml"`
	JSON       json.RawMessage `db:"json"`
	SchemaHash *string         `db:"schema_hash"`
	IsActive   bool            `db:"is_active"`
	CreatedBy  *uuid.UUID      `db:"created_by"`
	CreatedAt  time.Time       `db:"created_at"`
}

type txBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGConfigStore manages versioned config documents. At most one version
// per key is active; uq_config__key_active enforces it.
type PGConfigStore struct {
	pool txBeginner
}

// NewPGConfigStore creates a config store over db, which is a pool or a
// transaction.
func NewPGConfigStore(db txBeginner) *PGConfigStore {
	return &PGConfigStore{pool: db}
}

// CreateFromYAML stores a new inactive version. The YAML is parsed and kept
// alongside its JSON rendering; schema_hash is the SHA-256 of that JSON.
func (s *PGConfigStore) CreateFromYAML(ctx context.Context, key string, version int32, doc string, createdBy *uuid.UUID) (*ConfigVersion, error) {
	if key == "" {
		key = DefaultConfigKey
	}
	data, err := yamlToJSON(doc)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	return queryOne[ConfigVersion](ctx, s.pool, "insert config", `
		INSERT INTO config (key, version, yaml, json, schema_hash, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		key, version, doc, json.RawMessage(data), hash, createdBy)
}

// Get returns one version of key.
func (s *PGConfigStore) Get(ctx context.Context, key string, version int32) (*ConfigVersion, error) {
	return queryOne[ConfigVersion](ctx, s.pool, "get config",
		`SELECT * FROM config WHERE key = $1 AND version = $2`, key, version)
}

// GetActive returns the active version of key.
func (s *PGConfigStore) GetActive(ctx context.Context, key string) (*ConfigVersion, error) {
	if key == "" {
		key = DefaultConfigKey
	}
	return queryOne[ConfigVersion](ctx, s.pool, "get active config",
		`SELECT * FROM config WHERE key = $1 AND is_active`, key)
}

// ListVersions returns every version of key, newest first.
func (s *PGConfigStore) ListVersions(ctx context.Context, key string) ([]*ConfigVersion, error) {
	return queryAll[ConfigVersion](ctx, s.pool, "list config versions",
		`SELECT * FROM config WHERE key = $1 ORDER BY version DESC`, key)
}

// Activate makes version the only active version of key. Two concurrent
// activations of the same key can collide on uq_config__key_active; the
// loser gets ErrDuplicate and may retry.
func (s *PGConfigStore) Activate(ctx context.Context, key string, version int32) (*ConfigVersion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE config SET is_active = false WHERE key = $1 AND is_active AND version <> $2`, key, version); err != nil {
		return nil, fmt.Errorf("deactivate config %q: %w", key, classify(err))
	}
	cv, err := queryOne[ConfigVersion](ctx, tx, "activate config",
		`UPDATE config SET is_active = true WHERE key = $1 AND version = $2 RETURNING *`, key, version)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit activate config %q: %w", key, classify(err))
	}
	return cv, nil
}

// yamlToJSON parses doc and renders it as JSON. Mappings with non-string
// keys are rendered with their keys formatted as strings.
func yamlToJSON(doc string) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal([]byte(doc), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidConfig)
	}
	data, err := json.Marshal(jsonCompatible(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return data, nil
}

func jsonCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = jsonCompatible(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jsonCompatible(val)
		}
		return out
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}
