// Package searchmirror copies thread text into Meilisearch for full-text search.
// Mirroring is best effort and never part of a request's critical path.
package searchmirror

import (
	meili "github.com/meilisearch/meilisearch-go"
	"github.com/pkg/errors"

	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

// Mirror receives thread changes.
type Mirror interface {
	UpsertThread(t *model.Thread) error
	DeleteThread(key string) error
}

// ThreadRecord is the searchable projection of a thread.
type ThreadRecord struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Channel  string   `json:"channel"`
	Tags     []string `json:"tags"`
	Author   string   `json:"author"`
	FlowTime int64    `json:"flowTime"`
}

// RecordFor projects t into its search record. Labels are searchable tags too.
func RecordFor(t *model.Thread) ThreadRecord {
	tags := append(append([]string{}, t.Tags...), t.Labels...)
	return ThreadRecord{
		ID:       t.Key,
		Title:    t.Title,
		Body:     t.MarkdownContent,
		Channel:  t.Channel,
		Tags:     tags,
		Author:   t.CanonicalOwner(),
		FlowTime: t.FlowTime,
	}
}

// Meili implements Mirror against one Meilisearch index.
type Meili struct {
	client meili.ServiceManager
	index  string
}

func NewMeili(url, apiKey, index string) *Meili {
	return &Meili{client: meili.New(url, meili.WithAPIKey(apiKey)), index: index}
}

// Configure creates the index and its searchable attributes. Errors on an
// existing index are expected and ignored by callers.
func (m *Meili) Configure() error {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: m.index, PrimaryKey: "id"}); err != nil {
		return errors.Wrapf(err, "create index %s", m.index)
	}
	searchable := []string{"title", "body", "tags"}
	if _, err := m.client.Index(m.index).UpdateSearchableAttributes(&searchable); err != nil {
		return errors.Wrapf(err, "searchable attributes for %s", m.index)
	}
	return nil
}

// HealthPing reports whether Meilisearch answers.
func (m *Meili) HealthPing() error {
	_, err := m.client.Health()
	return err
}

func (m *Meili) UpsertThread(t *model.Thread) error {
	_, err := m.client.Index(m.index).AddDocuments([]ThreadRecord{RecordFor(t)}, nil)
	return errors.Wrapf(err, "mirror thread %s", t.Key)
}

func (m *Meili) DeleteThread(key string) error {
	_, err := m.client.Index(m.index).DeleteDocument(key, nil)
	return errors.Wrapf(err, "unmirror thread %s", key)
}
