package tagindex

import (
	"context"

	"github.com/pkg/errors"

	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

// RebuildStats summarizes a Rebuild run.
type RebuildStats struct {
	Threads int `json:"threads"`
	Written int `json:"written"`
	Removed int `json:"removed"`
	Orphans int `json:"orphans"`
	Failed  int `json:"failed"`
}

// Rebuild reconciles every thread's index record and deletes records whose
// thread no longer exists. Per-thread failures are logged and counted.
func (m *Maintainer) Rebuild(ctx context.Context) (RebuildStats, error) {
	var stats RebuildStats

	threads, err := m.store.Query(ctx, model.CollectionThreads)
	if err != nil {
		return stats, errors.Wrap(err, "list threads")
	}
	live := make(map[string]bool, len(threads))
	for _, snap := range threads {
		stats.Threads++
		var t model.Thread
		if err := snap.Decode(&t); err != nil {
			stats.Failed++
			m.log.Error().Err(err).Str("entity_key", snap.Key).Msg("rebuild: decode thread")
			continue
		}
		if t.Key == "" {
			t.Key = snap.Key
		}
		live[t.Key] = true
		entry := EntryForThread(&t)
		if err := m.Reconcile(ctx, entry); err != nil {
			stats.Failed++
			m.log.Error().Err(err).Str("entity_key", t.Key).Msg("rebuild: reconcile thread")
			continue
		}
		if len(entry.Tags) == 0 {
			stats.Removed++
		} else {
			stats.Written++
		}
	}

	records, err := m.store.Query(ctx, model.CollectionTagIndex)
	if err != nil {
		return stats, errors.Wrap(err, "list index records")
	}
	for _, rec := range records {
		var e model.TagIndexEntry
		if err := rec.Decode(&e); err == nil && e.Type != "" && e.Type != model.EntityThread {
			continue
		}
		if live[rec.Key] {
			continue
		}
		if err := m.Reconcile(ctx, model.TagIndexEntry{Key: rec.Key}); err != nil {
			stats.Failed++
			m.log.Error().Err(err).Str("entity_key", rec.Key).Msg("rebuild: remove orphan")
			continue
		}
		stats.Orphans++
	}

	m.log.Info().
		Int("threads", stats.Threads).
		Int("written", stats.Written).
		Int("removed", stats.Removed).
		Int("orphans", stats.Orphans).
		Int("failed", stats.Failed).
		Msg("tag index rebuilt")
	return stats, nil
}
