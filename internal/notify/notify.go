// Package notify validates notification requests and delivers one record per
// recipient into the notifications collection. Delivery is best effort:
// invalid requests are dropped with a log line, never returned to callers.
package notify

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
	"github.com/villetakanen/pelilauta-17-sub000/internal/metrics"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

// Service delivers notifications.
type Service struct {
	store         docstore.Store
	log           zerolog.Logger
	maxRecipients int
	snippetLength int
	now           func() time.Time
	newKey        func() string
}

// Options bounds recipient fan-out and message length.
type Options struct {
	MaxRecipients int
	SnippetLength int
}

func New(store docstore.Store, log zerolog.Logger, opts Options) *Service {
	if opts.MaxRecipients < 1 {
		opts.MaxRecipients = 25
	}
	if opts.SnippetLength < 1 {
		opts.SnippetLength = 120
	}
	return &Service{
		store:         store,
		log:           log,
		maxRecipients: opts.MaxRecipients,
		snippetLength: opts.SnippetLength,
		now:           time.Now,
		newKey:        uuid.NewString,
	}
}

// Normalize validates n and returns the canonical form that will be stored:
// recipients deduplicated with the sender removed, message truncated.
func (s *Service) Normalize(n model.Notification) (model.Notification, error) {
	switch n.TargetType {
	case model.NotifyThreadReply, model.NotifyThreadLabel, model.NotifyReplyLove:
	default:
		return n, model.Errorf(model.ErrValidation, "unknown notification type %q", n.TargetType)
	}
	if n.TargetKey == "" {
		return n, model.Errorf(model.ErrValidation, "notification target key is required")
	}
	if n.From == "" {
		return n, model.Errorf(model.ErrValidation, "notification sender is required")
	}

	seen := map[string]bool{n.From: true}
	to := make([]string, 0, len(n.To))
	for _, uid := range n.To {
		uid = strings.TrimSpace(uid)
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		to = append(to, uid)
	}
	if len(to) == 0 {
		return n, model.Errorf(model.ErrValidation, "notification has no recipients")
	}
	if len(to) > s.maxRecipients {
		return n, model.Errorf(model.ErrValidation, "notification has %d recipients, limit is %d", len(to), s.maxRecipients)
	}
	n.To = to
	n.Message = Snippet(n.Message, s.snippetLength)
	if n.CreatedAt <= 0 {
		n.CreatedAt = s.now().UnixMilli()
	}
	return n, nil
}

// Send delivers n. Failures are logged and counted, never returned.
func (s *Service) Send(ctx context.Context, n model.Notification) {
	norm, err := s.Normalize(n)
	if err != nil {
		metrics.Notifications.WithLabelValues(string(n.TargetType), metrics.ResultDropped).Inc()
		s.log.Warn().
			Str("target_type", string(n.TargetType)).
			Str("target_key", n.TargetKey).
			Str("reason", model.Reason(err)).
			Msg("notification dropped")
		return
	}
	if err := s.deliver(ctx, norm); err != nil {
		metrics.Notifications.WithLabelValues(string(n.TargetType), metrics.ResultError).Inc()
		s.log.Error().Err(err).Stack().
			Str("target_type", string(n.TargetType)).
			Str("target_key", n.TargetKey).
			Msg("notification delivery failed")
		return
	}
	metrics.Notifications.WithLabelValues(string(n.TargetType), metrics.ResultOK).Inc()
}

func (s *Service) deliver(ctx context.Context, n model.Notification) error {
	for _, uid := range n.To {
		rec := model.NotificationRecord{
			Key:         s.newKey(),
			TargetType:  n.TargetType,
			TargetKey:   n.TargetKey,
			TargetTitle: n.TargetTitle,
			Message:     n.Message,
			To:          uid,
			From:        n.From,
			CreatedAt:   n.CreatedAt,
		}
		if err := s.store.Set(ctx, model.CollectionNotifications, rec.Key, rec); err != nil {
			return errors.Wrapf(err, "store notification for %s", uid)
		}
	}
	return nil
}

// Snippet trims text to at most limit runes, marking truncation with an
// ellipsis. A limit below one yields "".
func Snippet(text string, limit int) string {
	if limit < 1 {
		return ""
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

// ListFor returns every stored notification addressed to uid.
func (s *Service) ListFor(ctx context.Context, uid string) ([]model.NotificationRecord, error) {
	snaps, err := s.store.Query(ctx, model.CollectionNotifications, docstore.Where{Field: "to", Op: docstore.OpEqual, Value: uid})
	if err != nil {
		return nil, errors.Wrapf(err, "list notifications for %s", uid)
	}
	out := make([]model.NotificationRecord, 0, len(snaps))
	for _, snap := range snaps {
		var rec model.NotificationRecord
		if err := snap.Decode(&rec); err != nil {
			return nil, errors.Wrapf(err, "decode notification %s", snap.Key)
		}
		out = append(out, rec)
	}
	return out, nil
}
