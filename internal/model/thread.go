package model

// Collection names in the document store.
const (
	CollectionThreads       = "threads"
	CollectionTagIndex      = "tags"
	CollectionReactions     = "reactions"
	CollectionNotifications = "notifications"
	CollectionChannels      = "channels"
	CollectionSeen          = "seen"
	CollectionAccounts      = "accounts"
	CollectionMeta          = "meta"

	// AdminsKey is the meta document holding the admin uid list.
	AdminsKey = "admins"
)

// RepliesCollection is the per-thread subcollection of replies.
func RepliesCollection(threadKey string) string {
	return CollectionThreads + "/" + threadKey + "/replies"
}

// Image is an uploaded attachment reference.
type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Thread is a discussion thread. Times are unix milliseconds.
type Thread struct {
	Key             string   `json:"key"`
	Title           string   `json:"title"`
	MarkdownContent string   `json:"markdownContent"`
	Channel         string   `json:"channel"`
	SiteKey         string   `json:"siteKey,omitempty"`
	Owners          []string `json:"owners"`
	Tags            []string `json:"tags,omitempty"`
	Labels          []string `json:"labels,omitempty"`
	Images          []Image  `json:"images,omitempty"`
	ReplyCount      int      `json:"replyCount"`
	FlowTime        int64    `json:"flowTime"`
	CreatedAt       int64    `json:"createdAt"`
	UpdatedAt       int64    `json:"updatedAt"`
}

// CanonicalOwner is owners[0], or "" when the thread has no owners.
func (t *Thread) CanonicalOwner() string {
	if len(t.Owners) == 0 {
		return ""
	}
	return t.Owners[0]
}

// HasOwner reports whether uid is any of the thread's owners.
func (t *Thread) HasOwner(uid string) bool {
	return contains(t.Owners, uid)
}

// Reply is a message inside a thread's replies subcollection.
type Reply struct {
	Key             string   `json:"key"`
	ThreadKey       string   `json:"threadKey"`
	MarkdownContent string   `json:"markdownContent"`
	Owners          []string `json:"owners"`
	QuoteRef        string   `json:"quoteRef,omitempty"`
	Images          []Image  `json:"images,omitempty"`
	FlowTime        int64    `json:"flowTime"`
	CreatedAt       int64    `json:"createdAt"`
	UpdatedAt       int64    `json:"updatedAt"`
}

func (r *Reply) HasOwner(uid string) bool {
	return contains(r.Owners, uid)
}

// Reactions holds per-entity subscribers and love marks.
type Reactions struct {
	Key         string   `json:"key"`
	Subscribers []string `json:"subscribers"`
	Love        []string `json:"love"`
}

// Channel aggregates per-channel thread counters.
type Channel struct {
	Slug        string `json:"slug"`
	ThreadCount int    `json:"threadCount"`
	FlowTime    int64  `json:"flowTime"`
}

// Seen maps entity keys to the flowTime the user last saw.
type Seen struct {
	UID      string           `json:"uid"`
	Entities map[string]int64 `json:"entities"`
}

// Account is the subset of a user account the service consults.
type Account struct {
	UID    string `json:"uid"`
	Frozen bool   `json:"frozen"`
}

// AdminList is the meta/admins document.
type AdminList struct {
	Admins []string `json:"admins"`
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
