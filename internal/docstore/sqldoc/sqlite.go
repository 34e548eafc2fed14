package sqldoc

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
)

// OpenSQLite opens (creating if needed) a database file in WAL mode. Write
// transactions take the lock at BEGIN so contending writers queue on the busy
// timeout instead of failing at upgrade.
func OpenSQLite(ctx context.Context, path string, maxAttempts int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create sqlite directory")
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable(err, "ping sqlite")
	}
	s := New(db, SQLite{}, maxAttempts)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLite stores documents as JSON text and filters in process.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			key TEXT NOT NULL,
			doc TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (collection, key)
		)`,
	}
}

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) DocParam(ph string) string { return ph }

func (SQLite) Filter(docstore.Where, func(any) string) (string, bool, error) {
	return "", false, nil
}

func (SQLite) TxOptions() *sql.TxOptions { return nil }

// Retryable matches SQLITE_BUSY and SQLITE_LOCKED, including extended codes.
func (SQLite) Retryable(err error) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	switch sqErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
