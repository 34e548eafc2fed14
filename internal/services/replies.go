package services

import (
	"context"

	"github.com/pkg/errors"

	"github.com/villetakanen/pelilauta-17-sub000/internal/attachments"
	"github.com/villetakanen/pelilauta-17-sub000/internal/authz"
	"github.com/villetakanen/pelilauta-17-sub000/internal/background"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
	"github.com/villetakanen/pelilauta-17-sub000/internal/notify"
)

// CreateReplyInput carries a new reply's fields.
type CreateReplyInput struct {
	MarkdownContent string
	QuoteRef        string
	Files           []attachments.File
}

// CreateReply persists a reply under threadKey. The parent's reply count,
// flowTime and owner notification are left to the returned batch.
func (s *ThreadService) CreateReply(ctx context.Context, p authz.Principal, threadKey string, in CreateReplyInput) (*model.Reply, *background.Batch, error) {
	if len(in.Files) > 0 && s.uploader == nil {
		return nil, nil, model.Errorf(model.ErrValidation, "attachments are not enabled")
	}
	if err := s.gate.RequireActive(ctx, p); err != nil {
		return nil, nil, err
	}
	thread, err := s.GetThread(ctx, threadKey)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UnixMilli()
	r := &model.Reply{
		Key:             s.newKey(),
		ThreadKey:       threadKey,
		MarkdownContent: in.MarkdownContent,
		Owners:          []string{p.UID},
		QuoteRef:        in.QuoteRef,
		FlowTime:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	replies := model.RepliesCollection(threadKey)
	if err := s.store.Set(ctx, replies, r.Key, r); err != nil {
		return nil, nil, errors.Wrap(err, "persist reply")
	}

	if len(in.Files) > 0 {
		images, err := s.attach(ctx, replies, r.Key, "Threads/"+threadKey+"/replies/"+r.Key, in.Files)
		if err != nil {
			return r, nil, err
		}
		r.Images = images
	}

	s.log.Info().
		Str("thread_key", threadKey).
		Str("reply_key", r.Key).
		Str("uid", p.UID).
		Msg("reply created")

	b := s.runner.NewBatch(ctx)
	b.Add(TaskReplyCount, threadKey, func(ctx context.Context) error {
		return s.bumpReplyCount(ctx, threadKey, now)
	})
	b.Add(TaskReactionsCreate, r.Key, func(ctx context.Context) error {
		return s.createReactions(ctx, r.Key, p.UID)
	})
	b.Add(TaskSeenMark, threadKey, func(ctx context.Context) error {
		return s.markSeen(ctx, p.UID, threadKey, now)
	})
	if to := ReplyRecipients(thread, p.UID); len(to) > 0 && s.notifier != nil {
		n := model.Notification{
			TargetType:  model.NotifyThreadReply,
			TargetKey:   threadKey,
			TargetTitle: thread.Title,
			Message:     notify.Snippet(in.MarkdownContent, s.snippetLength),
			To:          to,
			From:        p.UID,
			CreatedAt:   now,
		}
		b.Add(TaskNotifyOwner, threadKey, func(ctx context.Context) error {
			s.notifier.Send(ctx, n)
			return nil
		})
	}
	s.addPurge(b, threadKey, thread.Channel)
	return r, b, nil
}

// ReplyRecipients is who hears about a reply: the thread's canonical owner,
// unless they wrote it.
func ReplyRecipients(t *model.Thread, author string) []string {
	owner := t.CanonicalOwner()
	if owner == "" || owner == author {
		return nil
	}
	return []string{owner}
}

// UpdateReply edits a reply's text. The parent thread is not touched.
func (s *ThreadService) UpdateReply(ctx context.Context, p authz.Principal, threadKey, replyKey, markdown string) (*background.Batch, error) {
	replies := model.RepliesCollection(threadKey)
	var r model.Reply
	if err := s.store.Get(ctx, replies, replyKey, &r); err != nil {
		return nil, notFoundOr(err, "reply "+replyKey)
	}
	if err := s.gate.RequireOwner(p, r.Owners); err != nil {
		return nil, err
	}
	fields := map[string]any{
		"markdownContent": markdown,
		"updatedAt":       s.now().UnixMilli(),
	}
	if err := s.store.Update(ctx, replies, replyKey, fields); err != nil {
		return nil, notFoundOr(err, "reply "+replyKey)
	}

	b := s.runner.NewBatch(ctx)
	if s.purger != nil {
		var channel string
		if t, err := s.GetThread(ctx, threadKey); err == nil {
			channel = t.Channel
		}
		s.addPurge(b, threadKey, channel)
	}
	return b, nil
}

// GetReply loads one reply.
func (s *ThreadService) GetReply(ctx context.Context, threadKey, replyKey string) (*model.Reply, error) {
	var r model.Reply
	if err := s.store.Get(ctx, model.RepliesCollection(threadKey), replyKey, &r); err != nil {
		return nil, notFoundOr(err, "reply "+replyKey)
	}
	return &r, nil
}
