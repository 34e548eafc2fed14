// Package sqldoc stores documents in a single SQL table keyed by
// (collection, key). Dialects cover postgres (JSONB) and sqlite (JSON text).
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
)

// Dialect captures the SQL differences between backends.
type Dialect interface {
	Name() string
	// Schema returns the DDL statements to create the documents table.
	Schema() []string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder(n int) string
	// DocParam wraps a placeholder that carries JSON document text.
	DocParam(ph string) string
	// Filter pushes a Where clause down into SQL. ok=false means filter in process.
	Filter(w docstore.Where, next func(arg any) string) (clause string, ok bool, err error)
	TxOptions() *sql.TxOptions
	// Retryable reports whether err is a serialization or lock conflict.
	Retryable(err error) bool
}

// Store is a docstore.Store over database/sql.
type Store struct {
	db          *sql.DB
	dialect     Dialect
	maxAttempts int
	now         func() time.Time
}

// New wraps an open database. Call Migrate before use.
func New(db *sql.DB, d Dialect, maxAttempts int) *Store {
	if maxAttempts < 1 {
		maxAttempts = docstore.DefaultMaxAttempts
	}
	return &Store{db: db, dialect: d, maxAttempts: maxAttempts, now: time.Now}
}

// Migrate creates the documents table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return unavailable(err, "migrate %s", s.dialect.Name())
		}
	}
	return nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getRaw(ctx context.Context, q execer, collection, key string) (json.RawMessage, error) {
	query := "SELECT doc FROM documents WHERE collection = " + s.dialect.Placeholder(1) +
		" AND key = " + s.dialect.Placeholder(2)
	var raw []byte
	err := q.QueryRowContext(ctx, query, collection, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err, "get %s/%s", collection, key)
	}
	return raw, nil
}

func (s *Store) putRaw(ctx context.Context, q execer, collection, key string, raw json.RawMessage) error {
	d := s.dialect
	query := "INSERT INTO documents (collection, key, doc, updated_at) VALUES (" +
		d.Placeholder(1) + ", " + d.Placeholder(2) + ", " + d.DocParam(d.Placeholder(3)) + ", " + d.Placeholder(4) + ")" +
		" ON CONFLICT (collection, key) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at"
	if _, err := q.ExecContext(ctx, query, collection, key, string(raw), s.now().UnixMilli()); err != nil {
		return unavailable(err, "set %s/%s", collection, key)
	}
	return nil
}

func (s *Store) deleteRaw(ctx context.Context, q execer, collection, key string) error {
	query := "DELETE FROM documents WHERE collection = " + s.dialect.Placeholder(1) +
		" AND key = " + s.dialect.Placeholder(2)
	if _, err := q.ExecContext(ctx, query, collection, key); err != nil {
		return unavailable(err, "delete %s/%s", collection, key)
	}
	return nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, key string, dst any) error {
	raw, err := s.getRaw(ctx, s.db, collection, key)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(raw, dst), "decode %s/%s", collection, key)
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, key string, doc any) error {
	raw, err := docstore.Marshal(doc)
	if err != nil {
		return err
	}
	return s.putRaw(ctx, s.db, collection, key, raw)
}

// Update implements docstore.Store as a read-merge-write transaction.
func (s *Store) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Update(collection, key, fields)
	})
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	return s.deleteRaw(ctx, s.db, collection, key)
}

// Query implements docstore.Store. Filters the dialect cannot push down are
// applied after loading.
func (s *Store) Query(ctx context.Context, collection string, where ...docstore.Where) ([]docstore.Snapshot, error) {
	args := []any{collection}
	next := func(arg any) string {
		args = append(args, arg)
		return s.dialect.Placeholder(len(args))
	}

	var (
		b        strings.Builder
		residual []docstore.Where
	)
	b.WriteString("SELECT key, doc FROM documents WHERE collection = " + s.dialect.Placeholder(1))
	for _, w := range where {
		clause, ok, err := s.dialect.Filter(w, next)
		if err != nil {
			return nil, err
		}
		if !ok {
			residual = append(residual, w)
			continue
		}
		b.WriteString(" AND " + clause)
	}
	b.WriteString(" ORDER BY key")

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, unavailable(err, "query %s", collection)
	}
	defer rows.Close()

	out := []docstore.Snapshot{}
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, unavailable(err, "scan %s", collection)
		}
		match, err := docstore.Match(raw, residual)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, docstore.Snapshot{Key: key, Data: raw})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "query %s", collection)
	}
	return out, nil
}

// RunTransaction implements docstore.Store.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	attempt := func() error {
		sqlTx, err := s.db.BeginTx(ctx, s.dialect.TxOptions())
		if err != nil {
			return unavailable(err, "begin transaction")
		}
		t := &tx{ctx: ctx, store: s, sqlTx: sqlTx}
		if err := fn(ctx, t); err != nil {
			_ = sqlTx.Rollback()
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			return unavailable(err, "commit transaction")
		}
		return nil
	}
	return docstore.Retry(ctx, s.maxAttempts, attempt, s.dialect.Retryable)
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// HealthPing checks connectivity.
func (s *Store) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

type tx struct {
	ctx   context.Context
	store *Store
	sqlTx *sql.Tx
	guard docstore.WriteGuard
}

func (t *tx) Get(ctx context.Context, collection, key string, dst any) error {
	if err := t.guard.Read(); err != nil {
		return err
	}
	raw, err := t.store.getRaw(ctx, t.sqlTx, collection, key)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(raw, dst), "decode %s/%s", collection, key)
}

func (t *tx) Set(collection, key string, doc any) error {
	raw, err := docstore.Marshal(doc)
	if err != nil {
		return err
	}
	t.guard.Wrote()
	return t.store.putRaw(t.ctx, t.sqlTx, collection, key, raw)
}

func (t *tx) Update(collection, key string, fields map[string]any) error {
	raw, err := t.store.getRaw(t.ctx, t.sqlTx, collection, key)
	if err != nil {
		return err
	}
	merged, err := docstore.Merge(raw, fields)
	if err != nil {
		return err
	}
	t.guard.Wrote()
	return t.store.putRaw(t.ctx, t.sqlTx, collection, key, merged)
}

func (t *tx) Delete(collection, key string) error {
	t.guard.Wrote()
	return t.store.deleteRaw(t.ctx, t.sqlTx, collection, key)
}

func unavailable(err error, format string, args ...any) error {
	return errors.Wrapf(&storeError{cause: err}, format, args...)
}

// storeError marks driver failures with docstore.ErrStoreUnavailable while
// keeping the driver error reachable for Retryable.
type storeError struct{ cause error }

func (e *storeError) Error() string { return e.cause.Error() }

func (e *storeError) Unwrap() []error { return []error{docstore.ErrStoreUnavailable, e.cause} }
