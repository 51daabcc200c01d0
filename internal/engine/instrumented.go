package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/pkg/tracing"
)

var (
	engineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_engine_requests_total",
			Help: "Total number of search engine calls",
		},
		[]string{"backend", "operation", "status"},
	)

	engineRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_engine_request_duration_seconds",
			Help:    "Search engine call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)
)

// Instrumented wraps an Engine with Prometheus metrics and tracing spans.
type Instrumented struct {
	next    Engine
	backend string
}

var _ Engine = (*Instrumented)(nil)

// Instrument wraps next. backend labels the metrics, e.g. "elasticsearch".
func Instrument(next Engine, backend string) *Instrumented {
	return &Instrumented{next: next, backend: backend}
}

// Unwrap returns the wrapped engine.
func (i *Instrumented) Unwrap() Engine {
	return i.next
}

func (i *Instrumented) observe(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	attrs = append(attrs, attribute.String("search.backend", i.backend))
	ctx, span := tracing.StartSpan(ctx, "engine", op, attrs...)
	start := time.Now()

	err := fn(ctx)

	engineRequestDuration.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	engineRequestsTotal.WithLabelValues(i.backend, op, status).Inc()
	tracing.End(span, err)
	return err
}

func (i *Instrumented) BulkIndex(ctx context.Context, docs []domain.IndexDocument) (*BulkResult, error) {
	var res *BulkResult
	err := i.observe(ctx, "bulk_index", []attribute.KeyValue{attribute.Int("search.documents", len(docs))}, func(ctx context.Context) error {
		var err error
		res, err = i.next.BulkIndex(ctx, docs)
		return err
	})
	return res, err
}

func (i *Instrumented) Query(ctx context.Context, q *MultiMatchQuery) ([]Hit, error) {
	op := "query"
	if q.Prefix {
		op = "prefix_query"
	}
	var hits []Hit
	err := i.observe(ctx, op, []attribute.KeyValue{attribute.Int("search.limit", q.Limit)}, func(ctx context.Context) error {
		var err error
		hits, err = i.next.Query(ctx, q)
		return err
	})
	return hits, err
}

func (i *Instrumented) Delete(ctx context.Context, id string) error {
	return i.observe(ctx, "delete", []attribute.KeyValue{attribute.String("search.document_id", id)}, func(ctx context.Context) error {
		return i.next.Delete(ctx, id)
	})
}

func (i *Instrumented) Count(ctx context.Context) (int, error) {
	var n int
	err := i.observe(ctx, "count", nil, func(ctx context.Context) error {
		var err error
		n, err = i.next.Count(ctx)
		return err
	})
	return n, err
}

func (i *Instrumented) Ping(ctx context.Context) error {
	return i.next.Ping(ctx)
}
