package notify

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore/redisdoc"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

func newService(t *testing.T, opts Options) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := redisdoc.Open(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, zerolog.Nop(), opts)
}

func reply(to ...string) model.Notification {
	return model.Notification{
		TargetType:  model.NotifyThreadReply,
		TargetKey:   "t1",
		TargetTitle: "Game night",
		Message:     "see you there",
		To:          to,
		From:        "bob",
	}
}

func TestNormalize(t *testing.T) {
	svc := newService(t, Options{MaxRecipients: 2, SnippetLength: 10})

	n, err := svc.Normalize(reply("alice", "alice", "bob", " "))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, n.To)
	assert.Equal(t, "see you t…", n.Message)
	assert.Positive(t, n.CreatedAt)

	cases := map[string]model.Notification{
		"unknown type":  {TargetType: "thread.poke", TargetKey: "t1", From: "bob", To: []string{"a"}},
		"missing key":   {TargetType: model.NotifyThreadReply, From: "bob", To: []string{"a"}},
		"missing from":  {TargetType: model.NotifyThreadReply, TargetKey: "t1", To: []string{"a"}},
		"only self":     reply("bob"),
		"too many":      reply("a", "b", "c"),
		"no recipients": reply(),
	}
	for name, n := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Normalize(n)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestSendWritesOneRecordPerRecipient(t *testing.T) {
	svc := newService(t, Options{})
	ctx := context.Background()

	svc.Send(ctx, reply("alice", "carol"))

	for _, uid := range []string{"alice", "carol"} {
		got, err := svc.ListFor(ctx, uid)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, model.NotifyThreadReply, got[0].TargetType)
		assert.Equal(t, "t1", got[0].TargetKey)
		assert.Equal(t, "bob", got[0].From)
		assert.False(t, got[0].Read)
		assert.NotEmpty(t, got[0].Key)
	}

	got, err := svc.ListFor(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSendDropsInvalid(t *testing.T) {
	svc := newService(t, Options{})
	ctx := context.Background()

	svc.Send(ctx, reply("bob"))
	got, err := svc.ListFor(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", Snippet("  short ", 10))
	long := strings.Repeat("ä", 200)
	out := Snippet(long, 120)
	assert.Equal(t, 120, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "…"))

	assert.Equal(t, "", Snippet("anything", 0))
	assert.Equal(t, "", Snippet("anything", -3))
	assert.Equal(t, "…", Snippet("anything", 1))
}
