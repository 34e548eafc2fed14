package model

// EntityType identifies what a tag index record points to.
type EntityType string

const (
	EntityThread EntityType = "thread"
	EntityPage   EntityType = "page"
)

// TagIndexEntry is the flat secondary-index record, keyed by the entity key.
// Tags holds the union of content tags and admin labels.
type TagIndexEntry struct {
	Key      string     `json:"key"`
	Title    string     `json:"title"`
	Type     EntityType `json:"type"`
	Author   string     `json:"author"`
	Tags     []string   `json:"tags"`
	FlowTime int64      `json:"flowTime"`
}
