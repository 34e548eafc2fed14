// Package redisdoc stores documents as JSON strings in Redis. Each collection
// keeps a set of its member keys for scans; transactions use WATCH/MULTI.
package redisdoc

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
)

// Store is a docstore.Store backed by Redis.
type Store struct {
	client      *redis.Client
	prefix      string
	maxAttempts int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts bounds transaction retries on WATCH conflicts.
func WithMaxAttempts(n int) Option { return func(s *Store) { s.maxAttempts = n } }

// WithPrefix namespaces every key the store touches.
func WithPrefix(p string) Option { return func(s *Store) { s.prefix = p } }

// Open connects to redisURL and verifies the connection.
func Open(ctx context.Context, redisURL string, opts ...Option) (*Store, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable(err, "ping redis")
	}
	return NewWithClient(client, opts...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, maxAttempts: docstore.DefaultMaxAttempts}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) docKey(collection, key string) string {
	return s.prefix + "doc:" + collection + ":" + key
}

func (s *Store) setKey(collection string) string {
	return s.prefix + "col:" + collection
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, key string, dst any) error {
	raw, err := s.client.Get(ctx, s.docKey(collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return unavailable(err, "get %s/%s", collection, key)
	}
	return errors.Wrapf(json.Unmarshal(raw, dst), "decode %s/%s", collection, key)
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, key string, doc any) error {
	raw, err := docstore.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.docKey(collection, key), []byte(raw), 0)
		p.SAdd(ctx, s.setKey(collection), key)
		return nil
	})
	if err != nil {
		return unavailable(err, "set %s/%s", collection, key)
	}
	return nil
}

// Update implements docstore.Store as a single-document transaction.
func (s *Store) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Update(collection, key, fields)
	})
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.docKey(collection, key))
		p.SRem(ctx, s.setKey(collection), key)
		return nil
	})
	if err != nil {
		return unavailable(err, "delete %s/%s", collection, key)
	}
	return nil
}

// Query loads every member of the collection and filters in process.
func (s *Store) Query(ctx context.Context, collection string, where ...docstore.Where) ([]docstore.Snapshot, error) {
	members, err := s.client.SMembers(ctx, s.setKey(collection)).Result()
	if err != nil {
		return nil, unavailable(err, "scan %s", collection)
	}
	if len(members) == 0 {
		return []docstore.Snapshot{}, nil
	}
	sort.Strings(members)

	docKeys := make([]string, len(members))
	for i, m := range members {
		docKeys[i] = s.docKey(collection, m)
	}
	vals, err := s.client.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, unavailable(err, "load %s", collection)
	}

	out := make([]docstore.Snapshot, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Key set entry outlived its document.
			continue
		}
		raw := json.RawMessage(str)
		match, err := docstore.Match(raw, where)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, docstore.Snapshot{Key: members[i], Data: raw})
		}
	}
	return out, nil
}

// RunTransaction implements docstore.Store with optimistic WATCH/MULTI/EXEC.
// Every key read inside fn is watched; EXEC fails if any changed, and the
// whole callback is retried.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	attempt := func() error {
		return s.client.Watch(ctx, func(rtx *redis.Tx) error {
			t := &tx{ctx: ctx, store: s, rtx: rtx, reads: map[string]json.RawMessage{}, pending: map[string]pendingWrite{}}
			if err := fn(ctx, t); err != nil {
				return err
			}
			if len(t.order) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				for _, k := range t.order {
					w := t.pending[k]
					if w.deleted {
						p.Del(ctx, s.docKey(w.collection, w.key))
						p.SRem(ctx, s.setKey(w.collection), w.key)
						continue
					}
					p.Set(ctx, s.docKey(w.collection, w.key), []byte(w.raw), 0)
					p.SAdd(ctx, s.setKey(w.collection), w.key)
				}
				return nil
			})
			return err
		})
	}
	return docstore.Retry(ctx, s.maxAttempts, attempt, func(err error) bool {
		return errors.Is(err, redis.TxFailedErr)
	})
}

// Close releases the client.
func (s *Store) Close() error { return s.client.Close() }

// HealthPing checks connectivity.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type pendingWrite struct {
	collection string
	key        string
	raw        json.RawMessage
	deleted    bool
}

type tx struct {
	ctx     context.Context
	store   *Store
	rtx     *redis.Tx
	guard   docstore.WriteGuard
	reads   map[string]json.RawMessage
	pending map[string]pendingWrite
	order   []string
}

func (t *tx) Get(ctx context.Context, collection, key string, dst any) error {
	if err := t.guard.Read(); err != nil {
		return err
	}
	raw, err := t.read(ctx, collection, key)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(raw, dst), "decode %s/%s", collection, key)
}

// read watches and loads one document. A key is watched at most once per
// attempt; later reads return the version that watch observed, so EXEC fails
// if anyone commits after the first read.
func (t *tx) read(ctx context.Context, collection, key string) (json.RawMessage, error) {
	k := t.store.docKey(collection, key)
	if raw, ok := t.reads[k]; ok {
		if raw == nil {
			return nil, docstore.ErrNotFound
		}
		return raw, nil
	}
	if err := t.rtx.Watch(ctx, k).Err(); err != nil {
		return nil, unavailable(err, "watch %s/%s", collection, key)
	}
	raw, err := t.rtx.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		t.reads[k] = nil
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err, "get %s/%s", collection, key)
	}
	t.reads[k] = raw
	return raw, nil
}

func (t *tx) Set(collection, key string, doc any) error {
	raw, err := docstore.Marshal(doc)
	if err != nil {
		return err
	}
	t.stage(pendingWrite{collection: collection, key: key, raw: raw})
	return nil
}

// Update merges over a write staged earlier in this transaction, else over
// the document as this transaction first read it.
func (t *tx) Update(collection, key string, fields map[string]any) error {
	k := t.store.docKey(collection, key)
	var base json.RawMessage
	if w, ok := t.pending[k]; ok {
		if w.deleted {
			return docstore.ErrNotFound
		}
		base = w.raw
	} else {
		raw, err := t.read(t.ctx, collection, key)
		if err != nil {
			return err
		}
		base = raw
	}
	merged, err := docstore.Merge(base, fields)
	if err != nil {
		return err
	}
	t.stage(pendingWrite{collection: collection, key: key, raw: merged})
	return nil
}

func (t *tx) Delete(collection, key string) error {
	t.stage(pendingWrite{collection: collection, key: key, deleted: true})
	return nil
}

func (t *tx) stage(w pendingWrite) {
	k := t.store.docKey(w.collection, w.key)
	if _, seen := t.pending[k]; !seen {
		t.order = append(t.order, k)
	}
	t.pending[k] = w
	t.guard.Wrote()
}

func unavailable(err error, format string, args ...any) error {
	return errors.Wrapf(&storeError{cause: err}, format, args...)
}

// storeError marks transport failures with docstore.ErrStoreUnavailable.
type storeError struct{ cause error }

func (e *storeError) Error() string { return e.cause.Error() }

func (e *storeError) Unwrap() []error { return []error{docstore.ErrStoreUnavailable, e.cause} }
