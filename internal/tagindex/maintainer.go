// Package tagindex keeps the flat tag index collection in step with threads.
// Each entity has at most one index record, keyed by the entity key, holding
// the union of its content tags and admin labels.
package tagindex

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
	"github.com/villetakanen/pelilauta-17-sub000/internal/metrics"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

const (
	opWrite  = "write"
	opDelete = "delete"
)

// Maintainer reconciles index records.
type Maintainer struct {
	store docstore.Store
	log   zerolog.Logger
	now   func() time.Time
}

func New(store docstore.Store, log zerolog.Logger) *Maintainer {
	return &Maintainer{store: store, log: log, now: time.Now}
}

// WithClock overrides the time source used for missing flowTimes.
func (m *Maintainer) WithClock(now func() time.Time) *Maintainer {
	m.now = now
	return m
}

// Reconcile replaces the entity's index record with one built from e, or
// deletes it when e carries no tags. A flowTime <= 0 becomes the current time.
func (m *Maintainer) Reconcile(ctx context.Context, e model.TagIndexEntry) error {
	if e.Key == "" {
		return model.Errorf(model.ErrValidation, "index entry key is required")
	}
	tags := MergeTags(e.Tags)

	op := opWrite
	if len(tags) == 0 {
		op = opDelete
	}
	start := time.Now()
	var err error
	if op == opDelete {
		err = m.store.Delete(ctx, model.CollectionTagIndex, e.Key)
	} else {
		if e.FlowTime <= 0 {
			e.FlowTime = m.now().UnixMilli()
		}
		if e.Type == "" {
			e.Type = model.EntityThread
		}
		e.Tags = tags
		err = m.store.Set(ctx, model.CollectionTagIndex, e.Key, e)
	}
	metrics.IndexReconcileDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.IndexReconcileResults.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		return errors.Wrapf(err, "tag index %s %s", op, e.Key)
	}

	m.log.Debug().
		Str("entity_key", e.Key).
		Str("op", op).
		Strs("tags", tags).
		Msg("tag index reconciled")
	return nil
}

// EntryForThread builds the index record for t from its tags and labels.
func EntryForThread(t *model.Thread) model.TagIndexEntry {
	return model.TagIndexEntry{
		Key:      t.Key,
		Title:    t.Title,
		Type:     model.EntityThread,
		Author:   t.CanonicalOwner(),
		Tags:     MergeTags(t.Tags, t.Labels),
		FlowTime: t.FlowTime,
	}
}

// ReconcileThread reconciles the index from the thread's current state.
func (m *Maintainer) ReconcileThread(ctx context.Context, t *model.Thread) error {
	return m.Reconcile(ctx, EntryForThread(t))
}

// AddLabels adds labels to the thread and reconciles its index record from a
// fresh read. It returns the thread's resulting label set.
func (m *Maintainer) AddLabels(ctx context.Context, threadKey string, labels []string) ([]string, error) {
	return m.editLabels(ctx, threadKey, labels, func(current, change []string) []string {
		return MergeTags(current, change)
	})
}

// RemoveLabels removes labels from the thread and reconciles its index record
// from a fresh read. Removing labels that are absent is not an error.
func (m *Maintainer) RemoveLabels(ctx context.Context, threadKey string, labels []string) ([]string, error) {
	return m.editLabels(ctx, threadKey, labels, Difference)
}

// editLabels is last-write-wins: concurrent label edits on one thread may
// overwrite each other, but the index always follows the stored thread.
func (m *Maintainer) editLabels(ctx context.Context, threadKey string, labels []string, apply func(current, change []string) []string) ([]string, error) {
	if len(MergeTags(labels)) == 0 {
		return nil, model.Errorf(model.ErrValidation, "labels must contain at least one non-empty label")
	}

	var t model.Thread
	if err := m.store.Get(ctx, model.CollectionThreads, threadKey, &t); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, model.Errorf(model.ErrNotFound, "thread %s not found", threadKey)
		}
		return nil, errors.Wrapf(err, "load thread %s", threadKey)
	}

	next := apply(t.Labels, labels)
	if err := m.store.Update(ctx, model.CollectionThreads, threadKey, map[string]any{"labels": next}); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, model.Errorf(model.ErrNotFound, "thread %s not found", threadKey)
		}
		return nil, errors.Wrapf(err, "update labels on %s", threadKey)
	}

	var fresh model.Thread
	if err := m.store.Get(ctx, model.CollectionThreads, threadKey, &fresh); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			// Deleted between the label write and the re-read: drop the record.
			return nil, m.Reconcile(ctx, model.TagIndexEntry{Key: threadKey})
		}
		return nil, errors.Wrapf(err, "reload thread %s", threadKey)
	}
	if err := m.ReconcileThread(ctx, &fresh); err != nil {
		return nil, err
	}
	return MergeTags(fresh.Labels), nil
}

// ListByTag returns the index records carrying tag, newest flowTime first.
func (m *Maintainer) ListByTag(ctx context.Context, tag string) ([]model.TagIndexEntry, error) {
	tag = Normalize(tag)
	if tag == "" {
		return nil, model.Errorf(model.ErrValidation, "tag is required")
	}
	snaps, err := m.store.Query(ctx, model.CollectionTagIndex, docstore.Where{
		Field: "tags",
		Op:    docstore.OpArrayContains,
		Value: tag,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "query tag %s", tag)
	}

	out := make([]model.TagIndexEntry, 0, len(snaps))
	for _, s := range snaps {
		var e model.TagIndexEntry
		if err := s.Decode(&e); err != nil {
			return nil, errors.Wrapf(err, "decode index record %s", s.Key)
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FlowTime > out[j].FlowTime })
	return out, nil
}

// Get returns the index record for key.
func (m *Maintainer) Get(ctx context.Context, key string) (*model.TagIndexEntry, error) {
	var e model.TagIndexEntry
	if err := m.store.Get(ctx, model.CollectionTagIndex, key, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
