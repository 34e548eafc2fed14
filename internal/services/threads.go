// Package services coordinates thread and reply writes. Every mutating call
// does its required work (primary write, index reconcile, uploads) before
// returning, and hands the rest back as a background.Batch for the caller to
// dispatch once the response is sent.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/villetakanen/pelilauta-17-sub000/internal/attachments"
	"github.com/villetakanen/pelilauta-17-sub000/internal/authz"
	"github.com/villetakanen/pelilauta-17-sub000/internal/background"
	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
	"github.com/villetakanen/pelilauta-17-sub000/internal/purge"
	"github.com/villetakanen/pelilauta-17-sub000/internal/searchmirror"
	"github.com/villetakanen/pelilauta-17-sub000/internal/tagindex"
)

// Background task names.
const (
	TaskChannelCount    = "channel.count"
	TaskReactionsCreate = "reactions.create"
	TaskReactionsDelete = "reactions.delete"
	TaskSeenMark        = "seen.mark"
	TaskSearchUpsert    = "search.upsert"
	TaskSearchDelete    = "search.delete"
	TaskCachePurge      = "cache.purge"
	TaskReplyCount      = "thread.replyCount"
	TaskNotifyOwner     = "notify.owner"
)

// Notifier delivers notifications on a best-effort basis.
type Notifier interface {
	Send(ctx context.Context, n model.Notification)
}

// Purger drops cached pages.
type Purger interface {
	Purge(ctx context.Context, paths ...string) error
}

// Deps wires a ThreadService. Uploader, Purger and Mirror may be nil, which
// disables uploads, cache purges and search mirroring respectively.
type Deps struct {
	Store    docstore.Store
	Index    *tagindex.Maintainer
	Gate     *authz.Gate
	Notifier Notifier
	Uploader attachments.Uploader
	Purger   Purger
	Mirror   searchmirror.Mirror
	Runner   *background.Runner
	Log      zerolog.Logger
	// SnippetLength bounds notification message text.
	SnippetLength int
}

// ThreadService implements thread, reply and label operations.
type ThreadService struct {
	store         docstore.Store
	index         *tagindex.Maintainer
	gate          *authz.Gate
	notifier      Notifier
	uploader      attachments.Uploader
	purger        Purger
	mirror        searchmirror.Mirror
	runner        *background.Runner
	log           zerolog.Logger
	snippetLength int
	now           func() time.Time
	newKey        func() string
}

func NewThreadService(d Deps) *ThreadService {
	if d.SnippetLength < 1 {
		d.SnippetLength = 120
	}
	return &ThreadService{
		store:         d.Store,
		index:         d.Index,
		gate:          d.Gate,
		notifier:      d.Notifier,
		uploader:      d.Uploader,
		purger:        d.Purger,
		mirror:        d.Mirror,
		runner:        d.Runner,
		log:           d.Log,
		snippetLength: d.SnippetLength,
		now:           time.Now,
		newKey:        uuid.NewString,
	}
}

// CreateThreadInput carries a new thread's fields.
type CreateThreadInput struct {
	Title           string
	MarkdownContent string
	Channel         string
	SiteKey         string
	Tags            []string
	Files           []attachments.File
}

// CreateThread persists a thread owned by p, uploads its attachments and
// writes its tag index record before returning.
func (s *ThreadService) CreateThread(ctx context.Context, p authz.Principal, in CreateThreadInput) (*model.Thread, *background.Batch, error) {
	if len(in.Files) > 0 && s.uploader == nil {
		return nil, nil, model.Errorf(model.ErrValidation, "attachments are not enabled")
	}
	if err := s.gate.RequireActive(ctx, p); err != nil {
		return nil, nil, err
	}

	now := s.now().UnixMilli()
	t := &model.Thread{
		Key:             s.newKey(),
		Title:           in.Title,
		MarkdownContent: in.MarkdownContent,
		Channel:         in.Channel,
		SiteKey:         in.SiteKey,
		Owners:          []string{p.UID},
		Tags:            tagindex.MergeTags(in.Tags, tagindex.ExtractTags(in.MarkdownContent)),
		FlowTime:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Set(ctx, model.CollectionThreads, t.Key, t); err != nil {
		return nil, nil, errors.Wrap(err, "persist thread")
	}

	if len(in.Files) > 0 {
		images, err := s.attach(ctx, model.CollectionThreads, t.Key, "Threads/"+t.Key, in.Files)
		if err != nil {
			return t, nil, err
		}
		t.Images = images
	}

	if len(t.Tags) > 0 {
		if err := s.index.ReconcileThread(ctx, t); err != nil {
			return t, nil, err
		}
	}

	s.log.Info().
		Str("thread_key", t.Key).
		Str("uid", p.UID).
		Str("channel", t.Channel).
		Int("tags", len(t.Tags)).
		Int("images", len(t.Images)).
		Msg("thread created")

	snapshot := *t
	b := s.runner.NewBatch(ctx)
	b.Add(TaskChannelCount, t.Key, func(ctx context.Context) error {
		return s.bumpChannel(ctx, snapshot.Channel, 1, snapshot.FlowTime)
	})
	b.Add(TaskReactionsCreate, t.Key, func(ctx context.Context) error {
		return s.createReactions(ctx, snapshot.Key, p.UID)
	})
	b.Add(TaskSeenMark, t.Key, func(ctx context.Context) error {
		return s.markSeen(ctx, p.UID, snapshot.Key, snapshot.FlowTime)
	})
	s.addMirrorUpsert(b, &snapshot)
	s.addPurge(b, snapshot.Key, snapshot.Channel)
	return t, b, nil
}

// UpdateThreadInput carries an owner's edit. A nil Title leaves it unchanged.
type UpdateThreadInput struct {
	Title           *string
	MarkdownContent string
	Tags            []string
}

// UpdateThread applies an owner's edit and reconciles the index from the
// stored result. The thread's flowTime is left alone.
func (s *ThreadService) UpdateThread(ctx context.Context, p authz.Principal, key string, in UpdateThreadInput) (*model.Thread, *background.Batch, error) {
	current, err := s.GetThread(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if err := s.gate.RequireOwner(p, current.Owners); err != nil {
		return nil, nil, err
	}

	fields := map[string]any{
		"markdownContent": in.MarkdownContent,
		"tags":            tagindex.MergeTags(in.Tags, tagindex.ExtractTags(in.MarkdownContent)),
		"updatedAt":       s.now().UnixMilli(),
	}
	if in.Title != nil {
		fields["title"] = *in.Title
	}
	if err := s.store.Update(ctx, model.CollectionThreads, key, fields); err != nil {
		return nil, nil, notFoundOr(err, "thread "+key)
	}

	fresh, err := s.GetThread(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if err := s.index.ReconcileThread(ctx, fresh); err != nil {
		return fresh, nil, err
	}

	snapshot := *fresh
	b := s.runner.NewBatch(ctx)
	s.addMirrorUpsert(b, &snapshot)
	s.addPurge(b, snapshot.Key, snapshot.Channel)
	return fresh, b, nil
}

// DeleteThread removes a thread. Owners and admins may delete.
func (s *ThreadService) DeleteThread(ctx context.Context, p authz.Principal, key string) (*background.Batch, error) {
	t, err := s.GetThread(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireOwnerOrAdmin(ctx, p, t.Owners); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, model.CollectionThreads, key); err != nil {
		return nil, errors.Wrapf(err, "delete thread %s", key)
	}
	if err := s.index.Reconcile(ctx, model.TagIndexEntry{Key: key}); err != nil {
		return nil, err
	}

	s.log.Info().Str("thread_key", key).Str("uid", p.UID).Msg("thread deleted")

	b := s.runner.NewBatch(ctx)
	b.Add(TaskReactionsDelete, key, func(ctx context.Context) error {
		return s.store.Delete(ctx, model.CollectionReactions, key)
	})
	b.Add(TaskChannelCount, key, func(ctx context.Context) error {
		return s.bumpChannel(ctx, t.Channel, -1, 0)
	})
	if s.mirror != nil {
		b.Add(TaskSearchDelete, key, func(context.Context) error {
			return s.mirror.DeleteThread(key)
		})
	}
	s.addPurge(b, key, t.Channel)
	return b, nil
}

// GetThread loads a thread by key.
func (s *ThreadService) GetThread(ctx context.Context, key string) (*model.Thread, error) {
	var t model.Thread
	if err := s.store.Get(ctx, model.CollectionThreads, key, &t); err != nil {
		return nil, notFoundOr(err, "thread "+key)
	}
	if t.Key == "" {
		t.Key = key
	}
	return &t, nil
}

// ListTagged returns the index records for tag, newest first.
func (s *ThreadService) ListTagged(ctx context.Context, tag string) ([]model.TagIndexEntry, error) {
	return s.index.ListByTag(ctx, tag)
}

// AddLabels attaches admin labels to a thread. Returns the resulting label set.
func (s *ThreadService) AddLabels(ctx context.Context, p authz.Principal, key string, labels []string) ([]string, error) {
	if err := s.gate.RequireAdmin(ctx, p); err != nil {
		return nil, err
	}
	out, err := s.index.AddLabels(ctx, key, labels)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("thread_key", key).Str("uid", p.UID).Strs("labels", out).Msg("labels added")
	return out, nil
}

// RemoveLabels detaches admin labels from a thread. Returns the resulting label set.
func (s *ThreadService) RemoveLabels(ctx context.Context, p authz.Principal, key string, labels []string) ([]string, error) {
	if err := s.gate.RequireAdmin(ctx, p); err != nil {
		return nil, err
	}
	out, err := s.index.RemoveLabels(ctx, key, labels)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("thread_key", key).Str("uid", p.UID).Strs("labels", out).Msg("labels removed")
	return out, nil
}

// attach uploads files and appends them to the entity's images.
func (s *ThreadService) attach(ctx context.Context, collection, key, prefix string, files []attachments.File) ([]model.Image, error) {
	images, err := attachments.UploadAll(ctx, s.uploader, prefix, files)
	if err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, collection, key, map[string]any{"images": images}); err != nil {
		return nil, errors.Wrapf(err, "record images on %s", key)
	}
	return images, nil
}

func (s *ThreadService) addMirrorUpsert(b *background.Batch, t *model.Thread) {
	if s.mirror == nil {
		return
	}
	b.Add(TaskSearchUpsert, t.Key, func(context.Context) error {
		return s.mirror.UpsertThread(t)
	})
}

func (s *ThreadService) addPurge(b *background.Batch, key, channel string) {
	if s.purger == nil {
		return
	}
	b.Add(TaskCachePurge, key, func(ctx context.Context) error {
		return s.purger.Purge(ctx, purge.ThreadPaths(key, channel)...)
	})
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Errorf(model.ErrNotFound, "%s not found", what)
	}
	return errors.Wrapf(err, "load %s", what)
}
