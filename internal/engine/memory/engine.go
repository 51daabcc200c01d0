package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine"
)

// Engine is an in-memory implementation of engine.Engine. Text is split on
// non-alphanumeric runes and lowercased; a document scores by the best field,
// counting how many query terms that field contains. Ties keep insertion order.
type Engine struct {
	mu   sync.RWMutex
	docs map[string]entry
	seq  uint64
}

type entry struct {
	doc domain.IndexDocument
	seq uint64
}

var _ engine.Engine = (*Engine)(nil)

// New creates an empty in-memory engine.
func New() *Engine {
	return &Engine{docs: make(map[string]entry)}
}

// BulkIndex adds or replaces documents. Documents without an ID are reported
// as failures.
func (e *Engine) BulkIndex(_ context.Context, docs []domain.IndexDocument) (*engine.BulkResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &engine.BulkResult{}
	for _, d := range docs {
		if d.ID == "" {
			res.Failures = append(res.Failures, domain.ItemFailure{Reason: "document id is empty"})
			continue
		}
		seq := e.seq
		if existing, ok := e.docs[d.ID]; ok {
			seq = existing.seq
		} else {
			e.seq++
		}
		e.docs[d.ID] = entry{doc: d, seq: seq}
		res.Indexed++
	}
	return res, nil
}

// Query matches q.Text against q.Fields.
func (e *Engine) Query(_ context.Context, q *engine.MultiMatchQuery) ([]engine.Hit, error) {
	terms := engine.Tokenize(q.Text)
	if len(terms) == 0 {
		return nil, engine.ErrEmptyQuery
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	type scored struct {
		hit engine.Hit
		seq uint64
	}
	matched := make([]scored, 0)
	for id, en := range e.docs {
		best := 0
		for _, field := range q.Fields {
			if n := matchCount(terms, engine.Tokenize(fieldValue(en.doc, field)), q.Prefix); n > best {
				best = n
			}
		}
		if best == 0 {
			continue
		}
		matched = append(matched, scored{
			hit: engine.Hit{ID: id, Score: float64(best), Source: project(en.doc, q.Source)},
			seq: en.seq,
		})
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].hit.Score != matched[j].hit.Score {
			return matched[i].hit.Score > matched[j].hit.Score
		}
		return matched[i].seq < matched[j].seq
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	hits := make([]engine.Hit, len(matched))
	for i, m := range matched {
		hits[i] = m.hit
	}
	return hits, nil
}

// Delete removes a document by ID.
func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.docs, id)
	return nil
}

// Count returns the number of documents.
func (e *Engine) Count(_ context.Context) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs), nil
}

// Ping always succeeds.
func (e *Engine) Ping(_ context.Context) error {
	return nil
}

func matchCount(terms, tokens []string, prefix bool) int {
	n := 0
	for _, term := range terms {
		for _, tok := range tokens {
			if tok == term || (prefix && strings.HasPrefix(tok, term)) {
				n++
				break
			}
		}
	}
	return n
}

func fieldValue(d domain.IndexDocument, field string) string {
	switch field {
	case domain.FieldTitle:
		return d.Title
	case domain.FieldDescription:
		return d.Description
	case domain.FieldCategory:
		return d.Category
	}
	return ""
}

func project(d domain.IndexDocument, fields []string) domain.IndexDocument {
	if len(fields) == 0 {
		return d
	}
	out := domain.IndexDocument{}
	for _, f := range fields {
		switch f {
		case "id":
			out.ID = d.ID
		case domain.FieldTitle:
			out.Title = d.Title
		case domain.FieldDescription:
			out.Description = d.Description
		case domain.FieldCategory:
			out.Category = d.Category
		case "price":
			out.Price = d.Price
		case "quantity":
			out.Quantity = d.Quantity
		}
	}
	return out
}
