package bleve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/shopspring/decimal"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine"
)

const (
	fieldID       = "id"
	fieldPrice    = "price"
	fieldQuantity = "quantity"
)

var storedFields = []string{
	fieldID,
	domain.FieldTitle,
	domain.FieldDescription,
	domain.FieldCategory,
	fieldPrice,
	fieldQuantity,
}

// Engine is an embedded Bleve implementation of engine.Engine, for running
// without an Elasticsearch cluster.
type Engine struct {
	index  bleve.Index
	logger *slog.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New opens the index at path, creating it when missing. An empty path
// keeps the index in memory.
func New(path string, logger *slog.Logger) (*Engine, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("bleve: create in-memory index: %w", err)
		}
		return &Engine{index: index, logger: logger}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("bleve: open index %s: %w", path, err)
		}
		logger.Info("bleve index opened", slog.String("path", path))
		return &Engine{index: index, logger: logger}, nil
	}

	index, err := bleve.New(path, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("bleve: create index %s: %w", path, err)
	}
	logger.Info("bleve index created", slog.String("path", path))
	return &Engine{index: index, logger: logger}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	doc.AddFieldMappingsAt(domain.FieldTitle, text)
	doc.AddFieldMappingsAt(domain.FieldDescription, text)
	doc.AddFieldMappingsAt(domain.FieldCategory, text)

	id := bleve.NewTextFieldMapping()
	id.Analyzer = keyword.Name
	doc.AddFieldMappingsAt(fieldID, id)

	// Price is kept as its exact decimal string and is never searched.
	price := bleve.NewTextFieldMapping()
	price.Analyzer = keyword.Name
	price.Index = false
	doc.AddFieldMappingsAt(fieldPrice, price)

	doc.AddFieldMappingsAt(fieldQuantity, bleve.NewNumericFieldMapping())

	im.DefaultMapping = doc
	return im
}

// BulkIndex writes docs in one batch. Documents that fail to map are
// reported individually; a failed batch fails the call.
func (e *Engine) BulkIndex(ctx context.Context, docs []domain.IndexDocument) (*engine.BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &engine.BulkResult{}
	batch := e.index.NewBatch()
	for _, d := range docs {
		if d.ID == "" {
			result.Failures = append(result.Failures, domain.ItemFailure{Reason: "document id is empty"})
			continue
		}
		if err := batch.Index(d.ID, toFields(d)); err != nil {
			result.Failures = append(result.Failures, domain.ItemFailure{ID: d.ID, Reason: err.Error()})
			continue
		}
		result.Indexed++
	}

	if batch.Size() > 0 {
		if err := e.index.Batch(batch); err != nil {
			return nil, fmt.Errorf("bleve bulk index: %w", err)
		}
	}

	e.logger.Info("bulk indexed documents",
		slog.Int("indexed", result.Indexed),
		slog.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// Query ORs one clause per field. Prefix queries use a prefix clause per
// term and field; otherwise each field gets an analyzed match clause.
func (e *Engine) Query(ctx context.Context, q *engine.MultiMatchQuery) ([]engine.Hit, error) {
	terms := engine.Tokenize(q.Text)
	if len(terms) == 0 {
		return nil, engine.ErrEmptyQuery
	}

	disjunction := bleve.NewDisjunctionQuery()
	for _, field := range q.Fields {
		if q.Prefix {
			for _, term := range terms {
				pq := bleve.NewPrefixQuery(term)
				pq.SetField(field)
				disjunction.AddQuery(pq)
			}
			continue
		}
		mq := bleve.NewMatchQuery(q.Text)
		mq.SetField(field)
		disjunction.AddQuery(mq)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = domain.SearchLimit
	}
	req := bleve.NewSearchRequestOptions(disjunction, limit, 0, false)
	req.Fields = storedFields
	if len(q.Source) > 0 {
		req.Fields = q.Source
	}

	res, err := e.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	hits := make([]engine.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, engine.Hit{ID: h.ID, Score: h.Score, Source: fromFields(h.Fields)})
	}
	return hits, nil
}

// Delete removes a document by ID.
func (e *Engine) Delete(_ context.Context, id string) error {
	if err := e.index.Delete(id); err != nil {
		return fmt.Errorf("bleve delete: %w", err)
	}
	return nil
}

// Count returns the number of documents.
func (e *Engine) Count(_ context.Context) (int, error) {
	n, err := e.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("bleve count: %w", err)
	}
	return int(n), nil
}

// Ping reports whether the index is open.
func (e *Engine) Ping(_ context.Context) error {
	if _, err := e.index.DocCount(); err != nil {
		return fmt.Errorf("bleve ping: %w", err)
	}
	return nil
}

// Close closes the index.
func (e *Engine) Close() error {
	if err := e.index.Close(); err != nil && !errors.Is(err, bleve.ErrorIndexClosed) {
		return err
	}
	return nil
}

func toFields(d domain.IndexDocument) map[string]any {
	return map[string]any{
		fieldID:                 d.ID,
		domain.FieldTitle:       d.Title,
		domain.FieldDescription: d.Description,
		domain.FieldCategory:    d.Category,
		fieldPrice:              d.Price.String(),
		fieldQuantity:           float64(d.Quantity),
	}
}

func fromFields(f map[string]any) domain.IndexDocument {
	var d domain.IndexDocument
	d.ID, _ = f[fieldID].(string)
	d.Title, _ = f[domain.FieldTitle].(string)
	d.Description, _ = f[domain.FieldDescription].(string)
	d.Category, _ = f[domain.FieldCategory].(string)
	if s, ok := f[fieldPrice].(string); ok {
		if p, err := decimal.NewFromString(s); err == nil {
			d.Price = p
		}
	}
	if q, ok := f[fieldQuantity].(float64); ok {
		d.Quantity = int(q)
	}
	return d
}
