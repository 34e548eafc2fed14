package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
)

// OpenPostgres connects with the pgx stdlib driver and creates the schema.
func OpenPostgres(ctx context.Context, dsn string, maxAttempts int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable(err, "ping postgres")
	}
	s := New(db, Postgres{}, maxAttempts)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Postgres stores documents as JSONB and pushes scalar filters into SQL.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			key TEXT NOT NULL,
			doc JSONB NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (collection, key)
		)`,
	}
}

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Postgres) DocParam(ph string) string { return "CAST(" + ph + " AS JSONB)" }

func (Postgres) Filter(w docstore.Where, next func(arg any) string) (string, bool, error) {
	switch w.Value.(type) {
	case string, bool, int, int64, float64:
	default:
		return "", false, nil
	}
	var operand any = w.Value
	op := "="
	switch w.Op {
	case docstore.OpEqual:
	case docstore.OpArrayContains:
		operand = []any{w.Value}
		op = "@>"
	default:
		return "", false, nil
	}
	b, err := json.Marshal(operand)
	if err != nil {
		return "", false, errors.Wrap(err, "encode filter value")
	}
	field := next(w.Field)
	value := next(string(b))
	return "doc -> CAST(" + field + " AS TEXT) " + op + " CAST(" + value + " AS JSONB)", true, nil
}

func (Postgres) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}

// Retryable matches serialization_failure and deadlock_detected.
func (Postgres) Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
