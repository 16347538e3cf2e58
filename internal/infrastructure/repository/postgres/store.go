package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// Store keeps each service's denormalized documents as JSONB rows. Every
// update method compiles its ports.Update into one UPDATE statement, so the
// mutation of a single document is atomic.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent service startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	doc JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_doc ON documents USING GIN (doc jsonb_path_ops);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *Store) InsertOne(ctx context.Context, collection string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	var fields struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &fields); err != nil || fields.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "insert document", errors.New("document has no id"))
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3::jsonb)
`, collection, fields.ID, string(data))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter ports.Filter, out any) error {
	b := &builder{}
	collectionArg := b.bind(collection)
	where, err := filterSQL(b, "doc", filter)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		`SELECT doc FROM documents WHERE collection = %s AND %s LIMIT 1`,
		collectionArg, where,
	)

	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, b.args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrNotFound, "find document", err)
		}
		return fmt.Errorf("find document: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func (s *Store) FindAll(ctx context.Context, collection string, filter ports.Filter, out any) error {
	b := &builder{}
	collectionArg := b.bind(collection)
	where, err := filterSQL(b, "doc", filter)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		`SELECT doc FROM documents WHERE collection = %s AND %s ORDER BY created_at`,
		collectionArg, where,
	)

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return fmt.Errorf("find documents: %w", err)
	}
	defer rows.Close()

	docs := []json.RawMessage{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate documents: %w", err)
	}

	combined, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("combine documents: %w", err)
	}
	if err := json.Unmarshal(combined, out); err != nil {
		return fmt.Errorf("decode documents: %w", err)
	}
	return nil
}

func (s *Store) FindOneAndUpdate(ctx context.Context, collection string, filter ports.Filter, update ports.Update, out any) error {
	b := &builder{}
	collectionArg := b.bind(collection)
	expr, err := updateSQL(b, update)
	if err != nil {
		return err
	}
	where, err := filterSQL(b, "doc", filter)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
UPDATE documents SET doc = %s, updated_at = now()
WHERE collection = %s AND id = (
	SELECT id FROM documents WHERE collection = %s AND %s LIMIT 1)
RETURNING doc
`, expr, collectionArg, collectionArg, where)

	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, b.args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrNotFound, "update document", err)
		}
		return fmt.Errorf("update document: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode updated document: %w", err)
	}
	return nil
}

func (s *Store) UpdateMany(ctx context.Context, collection string, filter ports.Filter, update ports.Update) (int64, error) {
	b := &builder{}
	collectionArg := b.bind(collection)
	expr, err := updateSQL(b, update)
	if err != nil {
		return 0, err
	}
	where, err := filterSQL(b, "doc", filter)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
UPDATE documents SET doc = %s, updated_at = now()
WHERE collection = %s AND %s
`, expr, collectionArg, where)

	result, err := s.db.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, fmt.Errorf("update documents: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update documents rows affected: %w", err)
	}
	return affected, nil
}

func (s *Store) DeleteOne(ctx context.Context, collection string, filter ports.Filter) (int64, error) {
	b := &builder{}
	collectionArg := b.bind(collection)
	where, err := filterSQL(b, "doc", filter)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
DELETE FROM documents
WHERE collection = %s AND id = (
	SELECT id FROM documents WHERE collection = %s AND %s LIMIT 1)
`, collectionArg, collectionArg, where)

	result, err := s.db.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete document rows affected: %w", err)
	}
	return affected, nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter ports.Filter) (int64, error) {
	b := &builder{}
	collectionArg := b.bind(collection)
	where, err := filterSQL(b, "doc", filter)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`DELETE FROM documents WHERE collection = %s AND %s`, collectionArg, where)

	result, err := s.db.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete documents rows affected: %w", err)
	}
	return affected, nil
}

func (s *Store) ArrayLength(ctx context.Context, collection string, filter ports.Filter, arrayPath string) (int, error) {
	b := &builder{}
	collectionArg := b.bind(collection)
	literal, err := pgPath(arrayPath)
	if err != nil {
		return 0, err
	}
	where, err := filterSQL(b, "doc", filter)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(
		`SELECT jsonb_array_length(coalesce(doc #> %s, '[]'::jsonb)) FROM documents WHERE collection = %s AND %s LIMIT 1`,
		literal, collectionArg, where,
	)

	var length int
	if err := s.db.QueryRowContext(ctx, query, b.args...).Scan(&length); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.WrapError(domain.ErrNotFound, "count array elements", err)
		}
		return 0, fmt.Errorf("count array elements: %w", err)
	}
	return length, nil
}
