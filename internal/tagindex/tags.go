package tagindex

import (
	"regexp"
	"sort"
	"strings"
)

var (
	inlineCode = regexp.MustCompile("`[^`]*`")
	// A hashtag starts the line or follows a character that cannot be part
	// of a word, URL path, or HTML entity.
	hashtag = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_&/#])#([\p{L}\p{N}_][\p{L}\p{N}_-]*)`)
)

// ExtractTags finds #hashtags in markdown outside code fences, inline code
// spans, and heading markers. Results are normalized and deduplicated in
// order of first appearance.
func ExtractTags(markdown string) []string {
	var (
		out     []string
		seen    = map[string]bool{}
		inFence bool
		fence   string
	)
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if marker := fenceMarker(trimmed); marker != "" {
			switch {
			case !inFence:
				inFence, fence = true, marker
			case strings.HasPrefix(trimmed, fence):
				inFence = false
			}
			continue
		}
		if inFence {
			continue
		}
		line = inlineCode.ReplaceAllString(line, " ")
		for _, m := range hashtag.FindAllStringSubmatch(line, -1) {
			tag := Normalize(m[1])
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}

func fenceMarker(line string) string {
	for _, m := range []string{"```", "~~~"} {
		if strings.HasPrefix(line, m) {
			return m
		}
	}
	return ""
}

// Normalize lower-cases and trims a tag; surrounding '#' marks are dropped.
func Normalize(tag string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(tag), "#"))
}

// MergeTags returns the normalized, sorted union of the given sets. Empty
// entries are dropped.
func MergeTags(sets ...[]string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, set := range sets {
		for _, t := range set {
			n := Normalize(t)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Difference returns the normalized, sorted members of base not in remove.
func Difference(base, remove []string) []string {
	drop := map[string]bool{}
	for _, t := range remove {
		drop[Normalize(t)] = true
	}
	out := []string{}
	for _, t := range MergeTags(base) {
		if !drop[t] {
			out = append(out, t)
		}
	}
	return out
}
