// Package webfetch downloads web pages under concurrency and size caps and
// extracts their main content.
//
// Extraction runs in two tiers: a readability-style scoring walk over the
// parsed tree (method "primary"), falling back to a structural walk that
// strips chrome elements and picks the most likely content subtree (method
// "structural"). Batch fetches never fail as a whole: every input URL yields
// exactly one [Content], with failures tagged method "failed".
package webfetch

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Extraction methods recorded on [Content].
const (
	MethodPrimary    = "primary"
	MethodStructural = "structural"
	MethodFailed     = "failed"
)

// dedupePrefixLen is how many leading characters of text feed the
// deduplication hash.
const dedupePrefixLen = 1000

// Media is an image, video, or embedded player found on a page.
type Media struct {
	URL         string `json:"url"`
	Type        string `json:"type"` // "image", "video", "youtube"
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// Content is the outcome of fetching and extracting one URL. A failed fetch
// has Method "failed", empty Text, and a non-empty Error; it is still a valid
// value and callers must tolerate it.
type Content struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Text      string  `json:"text"`
	Media     []Media `json:"media,omitempty"`
	WordCount int     `json:"word_count"`
	Method    string  `json:"method"`
	Author    string  `json:"author,omitempty"`
	Date      string  `json:"date,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Deduplicate drops contents whose first 1000 characters of text hash to an
// already-kept item. Items without text (failures) are always preserved.
func Deduplicate(contents []Content) []Content {
	seen := make(map[string]struct{}, len(contents))
	unique := make([]Content, 0, len(contents))
	for _, c := range contents {
		if c.Text == "" {
			unique = append(unique, c)
			continue
		}
		prefix := c.Text
		if len(prefix) > dedupePrefixLen {
			prefix = prefix[:dedupePrefixLen]
		}
		sum := sha256.Sum256([]byte(prefix))
		key := hex.EncodeToString(sum[:])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}

// Score computes the quality score used by [Prioritize]: has text +10,
// word count >500 +5 and >1000 +5 more, has title +2, primary extraction +3
// or structural +1, no error +5.
func Score(c Content) int {
	score := 0
	if c.Text != "" {
		score += 10
	}
	if c.WordCount > 500 {
		score += 5
	}
	if c.WordCount > 1000 {
		score += 5
	}
	if c.Title != "" {
		score += 2
	}
	switch c.Method {
	case MethodPrimary:
		score += 3
	case MethodStructural:
		score += 1
	}
	if c.Error == "" {
		score += 5
	}
	return score
}

// Prioritize stable-sorts contents by descending [Score] and truncates to
// maxItems. Equal-score items keep their input order.
func Prioritize(contents []Content, maxItems int) []Content {
	scored := make([]Content, len(contents))
	copy(scored, contents)
	sort.SliceStable(scored, func(i, j int) bool {
		return Score(scored[i]) > Score(scored[j])
	})
	if maxItems > 0 && len(scored) > maxItems {
		scored = scored[:maxItems]
	}
	return scored
}
