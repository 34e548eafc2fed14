package validate

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

// Field limits, in runes.
const (
	MaxTitle    = 200
	MaxContent  = 40000
	MaxLabel    = 64
	MaxLabels   = 32
	MaxQuoteRef = 128
)

// channelRx matches channel slugs: lowercase letters, digits and hyphens.
var channelRx = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{0,63}$`)

func invalid(format string, args ...any) error {
	return model.Errorf(model.ErrValidation, format, args...)
}

func NonEmpty(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid("%s is required", field)
	}
	return nil
}

func MaxLen(field, v string, limit int) error {
	if utf8.RuneCountInString(v) > limit {
		return invalid("%s exceeds %d characters", field, limit)
	}
	return nil
}

// Channel validates a channel slug.
func Channel(v string) error {
	if err := NonEmpty("channel", v); err != nil {
		return err
	}
	if !channelRx.MatchString(v) {
		return invalid("channel must match %s", channelRx.String())
	}
	return nil
}

// TagsField parses the multipart tags field, a JSON array of strings. An
// empty field yields no tags.
func TagsField(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, invalid("tags must be a JSON array of strings")
	}
	for _, t := range tags {
		if err := MaxLen("tag", t, MaxLabel); err != nil {
			return nil, err
		}
	}
	return tags, nil
}

// -------- Request specific helpers ----------

func CreateThread(title, markdown, channel string) error {
	if err := NonEmpty("title", title); err != nil {
		return err
	}
	if err := MaxLen("title", title, MaxTitle); err != nil {
		return err
	}
	if err := NonEmpty("markdownContent", markdown); err != nil {
		return err
	}
	if err := MaxLen("markdownContent", markdown, MaxContent); err != nil {
		return err
	}
	return Channel(channel)
}

func UpdateThread(title *string, markdown string) error {
	if title != nil {
		if err := NonEmpty("title", *title); err != nil {
			return err
		}
		if err := MaxLen("title", *title, MaxTitle); err != nil {
			return err
		}
	}
	if err := NonEmpty("markdownContent", markdown); err != nil {
		return err
	}
	return MaxLen("markdownContent", markdown, MaxContent)
}

func Reply(markdown, quoteRef string) error {
	if err := NonEmpty("markdownContent", markdown); err != nil {
		return err
	}
	if err := MaxLen("markdownContent", markdown, MaxContent); err != nil {
		return err
	}
	return MaxLen("quoteRef", quoteRef, MaxQuoteRef)
}

// Labels requires at least one non-blank label.
func Labels(labels []string) error {
	if len(labels) == 0 {
		return invalid("labels is required")
	}
	if len(labels) > MaxLabels {
		return invalid("at most %d labels per request", MaxLabels)
	}
	for _, l := range labels {
		if err := NonEmpty("label", l); err != nil {
			return err
		}
		if err := MaxLen("label", l, MaxLabel); err != nil {
			return err
		}
	}
	return nil
}
