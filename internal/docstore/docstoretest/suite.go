// Package docstoretest holds the compliance suite every docstore backend runs.
package docstoretest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
)

type doc struct {
	Title string   `json:"title"`
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
	Note  string   `json:"note,omitempty"`
}

// Run exercises the docstore.Store contract. makeStore may return a shared
// store; every subtest works in its own uniquely named collection.
func Run(t *testing.T, makeStore func(t *testing.T) docstore.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()
	col := func() string { return "c-" + uuid.NewString() }

	t.Run("GetMissing", func(t *testing.T) {
		var d doc
		err := s.Get(ctx, col(), "nope", &d)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("SetReplacesWholeDocument", func(t *testing.T) {
		c := col()
		require.NoError(t, s.Set(ctx, c, "k1", doc{Title: "a", Count: 1, Note: "first"}))
		require.NoError(t, s.Set(ctx, c, "k1", doc{Title: "b", Count: 2}))

		var got doc
		require.NoError(t, s.Get(ctx, c, "k1", &got))
		assert.Equal(t, doc{Title: "b", Count: 2}, got)
	})

	t.Run("NestedCollectionPath", func(t *testing.T) {
		parent := col()
		sub := parent + "/p1/replies"
		require.NoError(t, s.Set(ctx, sub, "r1", doc{Title: "reply"}))

		var got doc
		require.NoError(t, s.Get(ctx, sub, "r1", &got))
		assert.Equal(t, "reply", got.Title)
		assert.ErrorIs(t, s.Get(ctx, parent, "r1", &got), docstore.ErrNotFound)
	})

	t.Run("UpdateMergesTopLevel", func(t *testing.T) {
		c := col()
		require.NoError(t, s.Set(ctx, c, "k1", doc{Title: "a", Count: 1, Note: "keep"}))
		require.NoError(t, s.Update(ctx, c, "k1", map[string]any{"count": 9, "tags": []string{"x"}}))

		var got doc
		require.NoError(t, s.Get(ctx, c, "k1", &got))
		assert.Equal(t, doc{Title: "a", Count: 9, Tags: []string{"x"}, Note: "keep"}, got)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		err := s.Update(ctx, col(), "nope", map[string]any{"count": 1})
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		c := col()
		require.NoError(t, s.Set(ctx, c, "k1", doc{Title: "a"}))
		require.NoError(t, s.Delete(ctx, c, "k1"))
		require.NoError(t, s.Delete(ctx, c, "k1"))

		var got doc
		assert.ErrorIs(t, s.Get(ctx, c, "k1", &got), docstore.ErrNotFound)
		snaps, err := s.Query(ctx, c)
		require.NoError(t, err)
		assert.Empty(t, snaps)
	})

	t.Run("Query", func(t *testing.T) {
		c := col()
		require.NoError(t, s.Set(ctx, c, "b", doc{Title: "two", Count: 2, Tags: []string{"dnd", "rpg"}}))
		require.NoError(t, s.Set(ctx, c, "a", doc{Title: "one", Count: 1, Tags: []string{"rpg"}}))
		require.NoError(t, s.Set(ctx, c, "c", doc{Title: "three", Count: 2}))
		require.NoError(t, s.Set(ctx, col(), "z", doc{Title: "other", Tags: []string{"rpg"}}))

		all, err := s.Query(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, keys(all))

		rpg, err := s.Query(ctx, c, docstore.Where{Field: "tags", Op: docstore.OpArrayContains, Value: "rpg"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, keys(rpg))

		two, err := s.Query(ctx, c, docstore.Where{Field: "count", Op: docstore.OpEqual, Value: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, keys(two))

		both, err := s.Query(ctx, c,
			docstore.Where{Field: "count", Op: docstore.OpEqual, Value: 2},
			docstore.Where{Field: "tags", Op: docstore.OpArrayContains, Value: "dnd"})
		require.NoError(t, err)
		require.Equal(t, []string{"b"}, keys(both))

		var d doc
		require.NoError(t, both[0].Decode(&d))
		assert.Equal(t, "two", d.Title)
	})

	t.Run("TransactionReadModifyWrite", func(t *testing.T) {
		c := col()
		require.NoError(t, s.Set(ctx, c, "counter", doc{Count: 1}))

		err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			var d doc
			if err := tx.Get(ctx, c, "counter", &d); err != nil {
				return err
			}
			d.Count++
			if err := tx.Set(c, "counter", d); err != nil {
				return err
			}
			return tx.Update(c, "counter", map[string]any{"title": "bumped"})
		})
		require.NoError(t, err)

		var got doc
		require.NoError(t, s.Get(ctx, c, "counter", &got))
		assert.Equal(t, doc{Title: "bumped", Count: 2}, got)
	})

	t.Run("TransactionCreatesMissing", func(t *testing.T) {
		c := col()
		err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			var d doc
			err := tx.Get(ctx, c, "fresh", &d)
			if !errors.Is(err, docstore.ErrNotFound) {
				return err
			}
			return tx.Set(c, "fresh", doc{Title: "created"})
		})
		require.NoError(t, err)

		var got doc
		require.NoError(t, s.Get(ctx, c, "fresh", &got))
		assert.Equal(t, "created", got.Title)
	})

	t.Run("TransactionCallbackErrorDiscardsWrites", func(t *testing.T) {
		c := col()
		boom := errors.New("boom")
		calls := 0
		err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			calls++
			if err := tx.Set(c, "k", doc{Title: "never"}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)

		var got doc
		assert.ErrorIs(t, s.Get(ctx, c, "k", &got), docstore.ErrNotFound)
	})

	t.Run("TransactionReadAfterWrite", func(t *testing.T) {
		c := col()
		err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			if err := tx.Set(c, "k", doc{Title: "x"}); err != nil {
				return err
			}
			var d doc
			return tx.Get(ctx, c, "k", &d)
		})
		assert.ErrorIs(t, err, docstore.ErrReadAfterWrite)
	})

	t.Run("TransactionUpdateMissing", func(t *testing.T) {
		c := col()
		err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			return tx.Update(c, "nope", map[string]any{"count": 1})
		})
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("ConcurrentIncrementsNeverLoseUpdates", func(t *testing.T) {
		c := col()
		require.NoError(t, s.Set(ctx, c, "counter", doc{}))

		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			committed int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
					var d doc
					if err := tx.Get(ctx, c, "counter", &d); err != nil {
						return err
					}
					d.Count++
					return tx.Set(c, "counter", d)
				})
				if err == nil {
					mu.Lock()
					committed++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, docstore.ErrTransactionAborted)
			}()
		}
		wg.Wait()

		var got doc
		require.NoError(t, s.Get(ctx, c, "counter", &got))
		assert.Positive(t, committed)
		assert.Equal(t, committed, got.Count)
	})

	t.Run("ConcurrentGetThenUpdateNeverLosesUpdates", func(t *testing.T) {
		c := col()
		require.NoError(t, s.Set(ctx, c, "counter", doc{Title: "keep"}))

		const workers = 10
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			committed int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
					var d doc
					if err := tx.Get(ctx, c, "counter", &d); err != nil {
						return err
					}
					return tx.Update(c, "counter", map[string]any{"count": d.Count + 1})
				})
				if err == nil {
					mu.Lock()
					committed++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, docstore.ErrTransactionAborted)
			}()
		}
		wg.Wait()

		var got doc
		require.NoError(t, s.Get(ctx, c, "counter", &got))
		assert.Positive(t, committed)
		assert.Equal(t, committed, got.Count)
		assert.Equal(t, "keep", got.Title)
	})
}

func keys(snaps []docstore.Snapshot) []string {
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Key)
	}
	return out
}
