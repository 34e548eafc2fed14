// Package docstore is the entity store contract: keyed JSON documents grouped
// into collections, with field queries and optimistic read-then-write transactions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

var (
	ErrNotFound           = model.ErrNotFound
	ErrStoreUnavailable   = errors.New("document store unavailable")
	ErrTransactionAborted = errors.New("transaction aborted after repeated contention")
	ErrReadAfterWrite     = errors.New("transaction reads must precede writes")
)

// DefaultMaxAttempts bounds RunTransaction retries when a backend is not configured otherwise.
const DefaultMaxAttempts = 5

// Op is a query operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Where filters documents on a top-level field.
type Where struct {
	Field string
	Op    Op
	Value any
}

// Snapshot is one document returned by Query.
type Snapshot struct {
	Key  string
	Data json.RawMessage
}

// Decode unmarshals the document into dst.
func (s Snapshot) Decode(dst any) error {
	return json.Unmarshal(s.Data, dst)
}

// Store is implemented by every document backend.
type Store interface {
	// Get decodes the document into dst, or returns ErrNotFound.
	Get(ctx context.Context, collection, key string, dst any) error
	// Set replaces the whole document, creating it if absent.
	Set(ctx context.Context, collection, key string, doc any) error
	// Update merges top-level fields into an existing document; ErrNotFound if absent.
	Update(ctx context.Context, collection, key string, fields map[string]any) error
	// Delete removes the document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, key string) error
	// Query returns documents matching every filter, ordered by key.
	Query(ctx context.Context, collection string, where ...Where) ([]Snapshot, error)
	// RunTransaction runs fn atomically, retrying on contention. Errors from fn
	// abort the transaction without retry.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx is the handle passed to RunTransaction callbacks. Get must not follow a write.
type Tx interface {
	Get(ctx context.Context, collection, key string, dst any) error
	Set(collection, key string, doc any) error
	Update(collection, key string, fields map[string]any) error
	Delete(collection, key string) error
}
