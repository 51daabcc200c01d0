package engine

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
)

// ErrEmptyQuery is returned when Query is called without text. Callers are
// expected to short-circuit empty queries before reaching the engine.
var ErrEmptyQuery = errors.New("engine: empty query")

// MultiMatchQuery matches Text against several fields and returns hits in
// relevance order.
type MultiMatchQuery struct {
	Text   string
	Fields []string
	Limit  int

	// Prefix treats every query term as a word prefix, so "lap" matches
	// "Laptop". Used for autocomplete.
	Prefix bool

	// Source restricts the document fields returned with each hit. Empty
	// returns the whole document.
	Source []string
}

// Hit is one ranked match. ID is the engine document key.
type Hit struct {
	ID     string
	Score  float64
	Source domain.IndexDocument
}

// BulkResult reports the per-document outcome of a bulk call.
type BulkResult struct {
	Indexed  int
	Failures []domain.ItemFailure
}

// Engine is the full-text search capability the catalog is indexed into.
// BulkIndex must make documents searchable before it returns.
type Engine interface {
	// BulkIndex adds or replaces documents keyed by ID. A returned error means
	// the call as a whole failed; per-document failures go in BulkResult.
	BulkIndex(ctx context.Context, docs []domain.IndexDocument) (*BulkResult, error)

	// Query runs a multi-field match.
	Query(ctx context.Context, q *MultiMatchQuery) ([]Hit, error)

	// Delete removes a document. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)

	// Ping checks that the engine is reachable.
	Ping(ctx context.Context) error
}

// Tokenize lowercases s and splits it into letter and digit runs.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
