package domain

import "strings"

// Indexed field names.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCategory    = "category"
)

// Result size caps.
const (
	SearchLimit  = 50
	SuggestLimit = 10
)

// SearchFields are matched by a full-text search.
func SearchFields() []string {
	return []string{FieldTitle, FieldDescription, FieldCategory}
}

// SuggestFields are matched by an autocomplete lookup.
func SuggestFields() []string {
	return []string{FieldTitle, FieldCategory}
}

// SearchQuery is user-entered text, trimmed of surrounding whitespace.
type SearchQuery struct {
	Text string `json:"q"`
}

// NewSearchQuery trims raw and wraps it.
func NewSearchQuery(raw string) SearchQuery {
	return SearchQuery{Text: strings.TrimSpace(raw)}
}

// IsEmpty reports whether the query has no text. Empty queries never reach
// the engine.
func (q SearchQuery) IsEmpty() bool {
	return q.Text == ""
}

// ItemFailure describes one product that could not be indexed.
type ItemFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ImportOutcome summarises an import run.
type ImportOutcome struct {
	Indexed  int           `json:"indexed"`
	Failures []ItemFailure `json:"failures"`
}

// DedupTitles returns titles with duplicates removed, keeping the first
// occurrence of each and at most limit entries.
func DedupTitles(titles []string, limit int) []string {
	seen := make(map[string]struct{}, len(titles))
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
