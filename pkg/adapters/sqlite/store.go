// Package sqlite provides a SQLite-backed core.Store using the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/aretw0/introspection"
	_ "modernc.org/sqlite"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// maxParams bounds the number of placeholders per statement.
const maxParams = 500

const migrationSQL = `
CREATE TABLE IF NOT EXISTS aggregate_records (
	id          TEXT PRIMARY KEY,
	context_id  TEXT NOT NULL,
	variant_key TEXT NOT NULL,
	field_path  TEXT NOT NULL,
	depth       INTEGER NOT NULL,
	record      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_variant ON aggregate_records(context_id, variant_key);
CREATE INDEX IF NOT EXISTS idx_records_order ON aggregate_records(depth, field_path, context_id, id);
`

// Config holds the SQLite store configuration.
type Config struct {
	DBPath string
	Logger *slog.Logger
}

// Store implements core.Store on SQLite. Every record is kept as a JSON
// document next to the indexed columns used for projection and ordering.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	writes  atomic.Uint64
	queries atomic.Uint64
}

// New opens the database and applies the connection pragmas. Call
// Initialize to create the schema.
func New(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("sqlite store: db path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			if pragma == "PRAGMA journal_mode = WAL" && strings.Contains(err.Error(), "database is locked") {
				continue
			}
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &Store{db: db, path: cfg.DBPath, logger: logger}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize implements core.Store. The migration is idempotent.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migrationSQL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	s.logger.Debug("sqlite store initialized", "path", s.path)
	return nil
}

// GetByIDs implements core.Store.
func (s *Store) GetByIDs(ctx context.Context, ids []core.FieldIdentity) (map[core.FieldIdentity]core.AggregateRecord, error) {
	out := make(map[core.FieldIdentity]core.AggregateRecord, len(ids))
	for start := 0; start < len(ids); start += maxParams {
		end := min(start+maxParams, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = string(id)
		}
		rows, err := s.db.QueryContext(ctx,
			"SELECT record FROM aggregate_records WHERE id IN ("+placeholders(len(chunk))+")", args...)
		if err != nil {
			return nil, fmt.Errorf("querying records: %w", err)
		}
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[rec.ID] = rec
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PutAll implements core.Store. All records are written in one transaction.
func (s *Store) PutAll(ctx context.Context, records []core.AggregateRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO aggregate_records (id, context_id, variant_key, field_path, depth, record)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			context_id = excluded.context_id,
			variant_key = excluded.variant_key,
			field_path = excluded.field_path,
			depth = excluded.depth,
			record = excluded.record`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			string(rec.ID), rec.ContextID, core.VariantKey(rec.RequiredMetadata),
			rec.FieldPath, rec.Depth(), string(data),
		); err != nil {
			return fmt.Errorf("writing record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	s.writes.Add(uint64(len(records)))
	return nil
}

// FindFieldPaths implements core.Store.
func (s *Store) FindFieldPaths(ctx context.Context, contextID string, required map[string]string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT field_path FROM aggregate_records WHERE context_id = ? AND variant_key = ? ORDER BY field_path",
		contextID, core.VariantKey(required))
	if err != nil {
		return nil, fmt.Errorf("querying field paths: %w", err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Query implements core.Store. Scope and ordering are pushed down to SQL;
// the remaining predicates are evaluated while iterating.
func (s *Store) Query(ctx context.Context, q core.StructuredQuery) (core.Cursor, error) {
	if len(q.ContextIDs) == 0 {
		return core.NewSliceCursor(nil), nil
	}

	args := make([]any, len(q.ContextIDs))
	for i, id := range q.ContextIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT record FROM aggregate_records WHERE context_id IN ("+placeholders(len(args))+
			") ORDER BY depth, field_path, context_id, id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	s.queries.Add(1)
	return &rowsCursor{rows: rows, query: q}, nil
}

// DeleteByContext implements core.Store.
func (s *Store) DeleteByContext(ctx context.Context, contextID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM aggregate_records WHERE context_id = ?", contextID)
	if err != nil {
		return 0, fmt.Errorf("deleting records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// rowsCursor streams matching records straight from the result set.
type rowsCursor struct {
	rows    *sql.Rows
	query   core.StructuredQuery
	current core.AggregateRecord
	err     error
}

func (c *rowsCursor) Next() bool {
	for c.err == nil && c.rows.Next() {
		rec, err := scanRecord(c.rows)
		if err != nil {
			c.err = err
			return false
		}
		if c.query.Matches(rec) {
			c.current = rec
			return true
		}
	}
	return false
}

func (c *rowsCursor) Record() core.AggregateRecord { return c.current }

func (c *rowsCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *rowsCursor) Close() error { return c.rows.Close() }

func scanRecord(rows *sql.Rows) (core.AggregateRecord, error) {
	var data string
	if err := rows.Scan(&data); err != nil {
		return core.AggregateRecord{}, err
	}
	var rec core.AggregateRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return core.AggregateRecord{}, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Path    string `json:"path"`
	Writes  uint64 `json:"writes"`
	Queries uint64 `json:"queries"`
	Open    int    `json:"open_connections"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	return StoreState{
		Path:    s.path,
		Writes:  s.writes.Load(),
		Queries: s.queries.Load(),
		Open:    s.db.Stats().OpenConnections,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "sqlite-store"
}

var _ core.Store = (*Store)(nil)
var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
