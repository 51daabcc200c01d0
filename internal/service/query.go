package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine"
	apperrors "github.com/gmaxsoft/elasticsearch-project/pkg/errors"
	"github.com/gmaxsoft/elasticsearch-project/pkg/tracing"
)

// Readiness reports whether the catalog has been indexed.
type Readiness interface {
	Ready() bool
}

// SuggestionCache caches suggestion sets by query text.
type SuggestionCache interface {
	Get(ctx context.Context, query string) ([]string, bool, error)
	Set(ctx context.Context, query string, titles []string) error
}

// Option configures a QueryService.
type Option func(*QueryService)

// WithSuggestionCache serves repeated suggestion lookups from cache.
func WithSuggestionCache(c SuggestionCache) Option {
	return func(s *QueryService) { s.cache = c }
}

// QueryService answers search and autocomplete queries against the index.
type QueryService struct {
	engine    engine.Engine
	readiness Readiness
	cache     SuggestionCache
	logger    *slog.Logger
}

// NewQueryService creates a query service.
func NewQueryService(eng engine.Engine, readiness Readiness, logger *slog.Logger, opts ...Option) *QueryService {
	s := &QueryService{
		engine:    eng,
		readiness: readiness,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns up to domain.SearchLimit products matching q on title,
// description and category, in engine relevance order. An empty query
// returns an empty list without touching the engine.
func (s *QueryService) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Product, error) {
	if q.IsEmpty() {
		return []domain.Product{}, nil
	}
	if !s.readiness.Ready() {
		return nil, apperrors.IndexUnavailable(nil)
	}

	ctx, span := tracing.StartSpan(ctx, "service", "search", attribute.Int("search.query_length", len(q.Text)))
	hits, err := s.engine.Query(ctx, &engine.MultiMatchQuery{
		Text:   q.Text,
		Fields: domain.SearchFields(),
		Limit:  domain.SearchLimit,
	})
	tracing.End(span, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "search query failed",
			slog.String("query", q.Text),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.SearchFailed("search failed", err)
	}

	products := make([]domain.Product, 0, len(hits))
	for _, h := range hits {
		products = append(products, domain.ProductFromDocument(h.ID, h.Source))
	}
	return products, nil
}

// Suggest returns up to domain.SuggestLimit distinct product titles whose
// title or category starts with the query terms, in engine relevance order.
func (s *QueryService) Suggest(ctx context.Context, q domain.SearchQuery) ([]string, error) {
	if q.IsEmpty() {
		return []string{}, nil
	}
	if !s.readiness.Ready() {
		return nil, apperrors.IndexUnavailable(nil)
	}

	if s.cache != nil {
		titles, ok, err := s.cache.Get(ctx, q.Text)
		if err != nil {
			s.logger.WarnContext(ctx, "suggestion cache read failed", slog.String("error", err.Error()))
		} else if ok {
			return titles, nil
		}
	}

	ctx, span := tracing.StartSpan(ctx, "service", "suggest", attribute.Int("search.query_length", len(q.Text)))
	hits, err := s.engine.Query(ctx, &engine.MultiMatchQuery{
		Text:   q.Text,
		Fields: domain.SuggestFields(),
		Limit:  domain.SuggestLimit,
		Prefix: true,
		Source: []string{domain.FieldTitle, domain.FieldCategory},
	})
	tracing.End(span, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "suggest query failed",
			slog.String("query", q.Text),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.SearchFailed("suggest failed", err)
	}

	titles := make([]string, 0, len(hits))
	for _, h := range hits {
		titles = append(titles, h.Source.Title)
	}
	titles = domain.DedupTitles(titles, domain.SuggestLimit)

	if s.cache != nil {
		if err := s.cache.Set(ctx, q.Text, titles); err != nil {
			s.logger.WarnContext(ctx, "suggestion cache write failed", slog.String("error", err.Error()))
		}
	}
	return titles, nil
}
