package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villetakanen/pelilauta-17-sub000/internal/attachments"
	"github.com/villetakanen/pelilauta-17-sub000/internal/authz"
	"github.com/villetakanen/pelilauta-17-sub000/internal/background"
	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore/redisdoc"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
	"github.com/villetakanen/pelilauta-17-sub000/internal/notify"
	"github.com/villetakanen/pelilauta-17-sub000/internal/tagindex"
)

var (
	alice = authz.Principal{UID: "alice"}
	bob   = authz.Principal{UID: "bob"}
	root  = authz.Principal{UID: "root"}
)

type recordingPurger struct {
	mu    sync.Mutex
	paths [][]string
}

func (p *recordingPurger) Purge(_ context.Context, paths ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, paths)
	return nil
}

type recordingMirror struct {
	mu      sync.Mutex
	upserts []string
	deletes []string
}

func (m *recordingMirror) UpsertThread(t *model.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, t.Key)
	return nil
}

func (m *recordingMirror) DeleteThread(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	return nil
}

type fakeUploader struct {
	fail bool
}

func (u *fakeUploader) Upload(_ context.Context, prefix string, f attachments.File) (model.Image, error) {
	if u.fail {
		return model.Image{}, errors.New("bucket unavailable")
	}
	return model.Image{URL: "https://cdn.test/" + prefix + "/" + f.Name, Alt: f.Name}, nil
}

type fixture struct {
	svc    *ThreadService
	store  docstore.Store
	index  *tagindex.Maintainer
	runner *background.Runner
	purger *recordingPurger
	mirror *recordingMirror
	notes  *notify.Service
	clock  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, func(s docstore.Store) docstore.Store { return s })
}

// newFixtureWithStore builds a fixture whose services see the store through wrap.
func newFixtureWithStore(t *testing.T, wrap func(docstore.Store) docstore.Store) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := redisdoc.Open(context.Background(), "redis://"+mr.Addr(), redisdoc.WithMaxAttempts(50))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })
	store := wrap(rs)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, model.CollectionMeta, model.AdminsKey, model.AdminList{Admins: []string{"root"}}))

	log := zerolog.Nop()
	f := &fixture{
		store:  store,
		index:  tagindex.New(store, log),
		runner: background.NewRunner(log, 5*time.Second),
		purger: &recordingPurger{},
		mirror: &recordingMirror{},
		notes:  notify.New(store, log, notify.Options{}),
		clock:  1_000,
	}
	gate := authz.NewGate(authz.NewStaticVerifier(nil), authz.NewAdminList(store, time.Minute), store)
	f.svc = NewThreadService(Deps{
		Store:    store,
		Index:    f.index,
		Gate:     gate,
		Notifier: f.notes,
		Uploader: &fakeUploader{},
		Purger:   f.purger,
		Mirror:   f.mirror,
		Runner:   f.runner,
		Log:      log,
	})
	var mu sync.Mutex
	f.svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		f.clock += 10
		return time.UnixMilli(f.clock)
	}
	return f
}

func (f *fixture) settle(t *testing.T, b *background.Batch) {
	t.Helper()
	b.Dispatch()
	require.NoError(t, f.runner.Wait(context.Background()))
}

func (f *fixture) thread(t *testing.T, key string) model.Thread {
	t.Helper()
	var th model.Thread
	require.NoError(t, f.store.Get(context.Background(), model.CollectionThreads, key, &th))
	return th
}

func TestCreateThreadIndexesBeforeReturning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	th, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{
		Title:           "Game night",
		MarkdownContent: "Who is in for #Traveller?",
		Channel:         "general",
		Tags:            []string{"RPG"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"rpg", "traveller"}, th.Tags)
	assert.Equal(t, []string{"alice"}, th.Owners)

	// The index record exists before any background work runs.
	rec, err := f.index.Get(ctx, th.Key)
	require.NoError(t, err)
	assert.Equal(t, []string{"rpg", "traveller"}, rec.Tags)
	assert.Equal(t, "alice", rec.Author)
	assert.Equal(t, th.FlowTime, rec.FlowTime)

	assert.Equal(t, []string{TaskChannelCount, TaskReactionsCreate, TaskSeenMark, TaskSearchUpsert, TaskCachePurge}, b.Names())
	var ch model.Channel
	assert.ErrorIs(t, f.store.Get(ctx, model.CollectionChannels, "general", &ch), docstore.ErrNotFound)

	f.settle(t, b)

	require.NoError(t, f.store.Get(ctx, model.CollectionChannels, "general", &ch))
	assert.Equal(t, 1, ch.ThreadCount)
	var reactions model.Reactions
	require.NoError(t, f.store.Get(ctx, model.CollectionReactions, th.Key, &reactions))
	assert.Equal(t, []string{"alice"}, reactions.Subscribers)
	var seen model.Seen
	require.NoError(t, f.store.Get(ctx, model.CollectionSeen, "alice", &seen))
	assert.Equal(t, th.FlowTime, seen.Entities[th.Key])
	assert.Equal(t, []string{th.Key}, f.mirror.upserts)
	require.Len(t, f.purger.paths, 1)
	assert.Contains(t, f.purger.paths[0], "/threads/"+th.Key)
}

func TestCreateThreadWithoutTagsWritesNoRecord(t *testing.T) {
	f := newFixture(t)
	th, b, err := f.svc.CreateThread(context.Background(), alice, CreateThreadInput{Title: "Plain", MarkdownContent: "no tags", Channel: "general"})
	require.NoError(t, err)
	f.settle(t, b)
	_, err = f.index.Get(context.Background(), th.Key)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestCreateThreadFrozenAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, model.CollectionAccounts, "alice", model.Account{UID: "alice", Frozen: true}))

	_, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{Title: "x", MarkdownContent: "#x", Channel: "general"})
	assert.ErrorIs(t, err, model.ErrForbidden)
	assert.Nil(t, b)

	snaps, err := f.store.Query(ctx, model.CollectionThreads)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestCreateThreadAttachments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	th, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{
		Title: "Maps", MarkdownContent: "see attached", Channel: "general",
		Files: []attachments.File{{Name: "map.png", Body: strings.NewReader("png")}},
	})
	require.NoError(t, err)
	f.settle(t, b)
	stored := f.thread(t, th.Key)
	require.Len(t, stored.Images, 1)
	assert.Equal(t, "https://cdn.test/Threads/"+th.Key+"/map.png", stored.Images[0].URL)
}

func TestCreateThreadUploadFailureKeepsPrimary(t *testing.T) {
	f := newFixture(t)
	f.svc.uploader = &fakeUploader{fail: true}
	ctx := context.Background()

	th, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{
		Title: "Maps", MarkdownContent: "#maps", Channel: "general",
		Files: []attachments.File{{Name: "map.png", Body: strings.NewReader("png")}},
	})
	require.Error(t, err)
	assert.Nil(t, b)
	require.NotNil(t, th)
	stored := f.thread(t, th.Key)
	assert.Empty(t, stored.Images)
}

func TestCreateThreadAttachmentsDisabled(t *testing.T) {
	f := newFixture(t)
	f.svc.uploader = nil
	_, _, err := f.svc.CreateThread(context.Background(), alice, CreateThreadInput{
		Title: "Maps", MarkdownContent: "x", Channel: "general",
		Files: []attachments.File{{Name: "map.png", Body: strings.NewReader("png")}},
	})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestUpdateThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{Title: "Old", MarkdownContent: "#dnd", Channel: "general"})
	require.NoError(t, err)
	f.settle(t, b)

	_, _, err = f.svc.UpdateThread(ctx, bob, th.Key, UpdateThreadInput{MarkdownContent: "#hijack"})
	assert.ErrorIs(t, err, model.ErrForbidden)

	title := "New"
	updated, b, err := f.svc.UpdateThread(ctx, alice, th.Key, UpdateThreadInput{Title: &title, MarkdownContent: "now #gurps", Tags: []string{"Featured"}})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.Equal(t, []string{"featured", "gurps"}, updated.Tags)
	assert.Equal(t, th.FlowTime, updated.FlowTime)

	rec, err := f.index.Get(ctx, th.Key)
	require.NoError(t, err)
	assert.Equal(t, []string{"featured", "gurps"}, rec.Tags)
	assert.Equal(t, "New", rec.Title)
	f.settle(t, b)

	_, b, err = f.svc.UpdateThread(ctx, alice, th.Key, UpdateThreadInput{MarkdownContent: "no tags left"})
	require.NoError(t, err)
	f.settle(t, b)
	_, err = f.index.Get(ctx, th.Key)
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	_, _, err = f.svc.UpdateThread(ctx, alice, "missing", UpdateThreadInput{MarkdownContent: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{Title: "Bye", MarkdownContent: "#dnd", Channel: "general"})
	require.NoError(t, err)
	f.settle(t, b)

	_, err = f.svc.DeleteThread(ctx, bob, th.Key)
	assert.ErrorIs(t, err, model.ErrForbidden)

	b, err = f.svc.DeleteThread(ctx, root, th.Key)
	require.NoError(t, err)
	_, err = f.index.Get(ctx, th.Key)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	f.settle(t, b)

	var ch model.Channel
	require.NoError(t, f.store.Get(ctx, model.CollectionChannels, "general", &ch))
	assert.Equal(t, 0, ch.ThreadCount)
	var reactions model.Reactions
	assert.ErrorIs(t, f.store.Get(ctx, model.CollectionReactions, th.Key, &reactions), docstore.ErrNotFound)
	assert.Equal(t, []string{th.Key}, f.mirror.deletes)

	_, err = f.svc.DeleteThread(ctx, root, th.Key)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLabelsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{Title: "Lab", MarkdownContent: "#dnd", Channel: "general"})
	require.NoError(t, err)
	f.settle(t, b)

	_, err = f.svc.AddLabels(ctx, alice, th.Key, []string{"featured"})
	assert.ErrorIs(t, err, model.ErrForbidden)

	labels, err := f.svc.AddLabels(ctx, root, th.Key, []string{"featured"})
	require.NoError(t, err)
	assert.Equal(t, []string{"featured"}, labels)

	entries, err := f.svc.ListTagged(ctx, "featured")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"dnd", "featured"}, entries[0].Tags)

	labels, err = f.svc.RemoveLabels(ctx, root, th.Key, []string{"featured"})
	require.NoError(t, err)
	assert.Empty(t, labels)
	entries, err = f.svc.ListTagged(ctx, "featured")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateReplyNotifiesOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{Title: "Hello", MarkdownContent: "hi", Channel: "general"})
	require.NoError(t, err)
	f.settle(t, b)

	r, b, err := f.svc.CreateReply(ctx, bob, th.Key, CreateReplyInput{MarkdownContent: "count me in"})
	require.NoError(t, err)
	assert.Contains(t, b.Names(), TaskNotifyOwner)

	// Parent is untouched until the batch runs.
	assert.Equal(t, 0, f.thread(t, th.Key).ReplyCount)
	f.settle(t, b)

	parent := f.thread(t, th.Key)
	assert.Equal(t, 1, parent.ReplyCount)
	assert.Equal(t, r.FlowTime, parent.FlowTime)

	notes, err := f.notes.ListFor(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotifyThreadReply, notes[0].TargetType)
	assert.Equal(t, th.Key, notes[0].TargetKey)
	assert.Equal(t, "bob", notes[0].From)
	assert.Equal(t, "count me in", notes[0].Message)

	stored, err := f.svc.GetReply(ctx, th.Key, r.Key)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, stored.Owners)
}

func TestSelfReplyDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{Title: "Hello", MarkdownContent: "hi", Channel: "general"})
	require.NoError(t, err)
	f.settle(t, b)

	_, b, err = f.svc.CreateReply(ctx, alice, th.Key, CreateReplyInput{MarkdownContent: "bump"})
	require.NoError(t, err)
	assert.NotContains(t, b.Names(), TaskNotifyOwner)
	f.settle(t, b)

	notes, err := f.notes.ListFor(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestReplyRecipients(t *testing.T) {
	th := &model.Thread{Owners: []string{"alice", "carol"}}
	assert.Equal(t, []string{"alice"}, ReplyRecipients(th, "bob"))
	assert.Nil(t, ReplyRecipients(th, "alice"))
	assert.Equal(t, []string{"alice"}, ReplyRecipients(th, "carol"))
	assert.Nil(t, ReplyRecipients(&model.Thread{}, "bob"))
}

func TestCreateReplyMissingThread(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.CreateReply(context.Background(), bob, "missing", CreateReplyInput{MarkdownContent: "hi"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateReplyLeavesParentFlowTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{Title: "Hello", MarkdownContent: "hi", Channel: "general"})
	require.NoError(t, err)
	f.settle(t, b)
	r, b, err := f.svc.CreateReply(ctx, bob, th.Key, CreateReplyInput{MarkdownContent: "first"})
	require.NoError(t, err)
	f.settle(t, b)
	before := f.thread(t, th.Key)

	_, err = f.svc.UpdateReply(ctx, alice, th.Key, r.Key, "not mine")
	assert.ErrorIs(t, err, model.ErrForbidden)

	b, err = f.svc.UpdateReply(ctx, bob, th.Key, r.Key, "edited")
	require.NoError(t, err)
	assert.Equal(t, []string{TaskCachePurge}, b.Names())
	f.settle(t, b)

	after := f.thread(t, th.Key)
	assert.Equal(t, before.FlowTime, after.FlowTime)
	assert.Equal(t, before.ReplyCount, after.ReplyCount)
	stored, err := f.svc.GetReply(ctx, th.Key, r.Key)
	require.NoError(t, err)
	assert.Equal(t, "edited", stored.MarkdownContent)

	_, err = f.svc.UpdateReply(ctx, bob, th.Key, "missing", "x")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConcurrentRepliesCountExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{Title: "Busy", MarkdownContent: "hi", Channel: "general"})
	require.NoError(t, err)
	f.settle(t, b)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := authz.Principal{UID: fmt.Sprintf("user-%d", i)}
			_, b, err := f.svc.CreateReply(ctx, p, th.Key, CreateReplyInput{MarkdownContent: "me too"})
			if assert.NoError(t, err) {
				b.Dispatch()
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, f.runner.Wait(ctx))

	assert.Equal(t, n, f.thread(t, th.Key).ReplyCount)
	notes, err := f.notes.ListFor(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, notes, n)
}

func TestConcurrentThreadsCountChannelExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{Title: "t", MarkdownContent: "#race", Channel: "busy"})
			if assert.NoError(t, err) {
				b.Dispatch()
			}
		}()
	}
	wg.Wait()
	require.NoError(t, f.runner.Wait(ctx))

	var ch model.Channel
	require.NoError(t, f.store.Get(ctx, model.CollectionChannels, "busy", &ch))
	assert.Equal(t, n, ch.ThreadCount)
	entries, err := f.svc.ListTagged(ctx, "race")
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

// failingIndexStore rejects tag index writes while failIndex is set.
type failingIndexStore struct {
	docstore.Store
	failIndex atomic.Bool
}

func (s *failingIndexStore) Set(ctx context.Context, collection, key string, doc any) error {
	if collection == model.CollectionTagIndex && s.failIndex.Load() {
		return errors.New("index backend down")
	}
	return s.Store.Set(ctx, collection, key, doc)
}

func (s *failingIndexStore) Delete(ctx context.Context, collection, key string) error {
	if collection == model.CollectionTagIndex && s.failIndex.Load() {
		return errors.New("index backend down")
	}
	return s.Store.Delete(ctx, collection, key)
}

func TestIndexWriteFailureSurfaces(t *testing.T) {
	var failing *failingIndexStore
	f := newFixtureWithStore(t, func(s docstore.Store) docstore.Store {
		failing = &failingIndexStore{Store: s}
		return failing
	})
	ctx := context.Background()

	th, b, err := f.svc.CreateThread(ctx, alice, CreateThreadInput{Title: "Ok", MarkdownContent: "#dnd", Channel: "general"})
	require.NoError(t, err)
	f.settle(t, b)

	failing.failIndex.Store(true)

	_, _, err = f.svc.CreateThread(ctx, alice, CreateThreadInput{Title: "Lost", MarkdownContent: "#dnd", Channel: "general"})
	assert.ErrorContains(t, err, "index backend down")

	_, _, err = f.svc.UpdateThread(ctx, alice, th.Key, UpdateThreadInput{MarkdownContent: "now #gurps"})
	assert.ErrorContains(t, err, "index backend down")

	_, err = f.svc.AddLabels(ctx, root, th.Key, []string{"featured"})
	assert.ErrorContains(t, err, "index backend down")

	_, err = f.svc.RemoveLabels(ctx, root, th.Key, []string{"featured"})
	assert.ErrorContains(t, err, "index backend down")
}
