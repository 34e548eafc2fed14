package services

import (
	"context"

	"github.com/pkg/errors"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

// bumpChannel adjusts a channel's thread count, creating the channel record
// when missing. A positive delta also advances the channel's flowTime.
func (s *ThreadService) bumpChannel(ctx context.Context, slug string, delta int, flowTime int64) error {
	if slug == "" {
		return nil
	}
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var ch model.Channel
		if err := tx.Get(ctx, model.CollectionChannels, slug, &ch); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		ch.Slug = slug
		ch.ThreadCount += delta
		if ch.ThreadCount < 0 {
			ch.ThreadCount = 0
		}
		if delta > 0 && flowTime > ch.FlowTime {
			ch.FlowTime = flowTime
		}
		return tx.Set(model.CollectionChannels, slug, ch)
	})
}

// bumpReplyCount increments the parent's reply count and moves its flowTime
// forward to the reply's.
func (s *ThreadService) bumpReplyCount(ctx context.Context, threadKey string, flowTime int64) error {
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var t struct {
			ReplyCount int   `json:"replyCount"`
			FlowTime   int64 `json:"flowTime"`
		}
		if err := tx.Get(ctx, model.CollectionThreads, threadKey, &t); err != nil {
			return errors.Wrapf(err, "load thread %s", threadKey)
		}
		next := t.FlowTime
		if flowTime > next {
			next = flowTime
		}
		return tx.Update(model.CollectionThreads, threadKey, map[string]any{
			"replyCount": t.ReplyCount + 1,
			"flowTime":   next,
		})
	})
}

func (s *ThreadService) createReactions(ctx context.Context, key, subscriber string) error {
	return s.store.Set(ctx, model.CollectionReactions, key, model.Reactions{
		Key:         key,
		Subscribers: []string{subscriber},
		Love:        []string{},
	})
}

// markSeen records that uid has seen entityKey as of flowTime.
func (s *ThreadService) markSeen(ctx context.Context, uid, entityKey string, flowTime int64) error {
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var seen model.Seen
		if err := tx.Get(ctx, model.CollectionSeen, uid, &seen); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		seen.UID = uid
		if seen.Entities == nil {
			seen.Entities = map[string]int64{}
		}
		if flowTime > seen.Entities[entityKey] {
			seen.Entities[entityKey] = flowTime
		}
		return tx.Set(model.CollectionSeen, uid, seen)
	})
}
