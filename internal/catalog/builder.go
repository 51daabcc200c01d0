package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine"
	apperrors "github.com/gmaxsoft/elasticsearch-project/pkg/errors"
)

// ErrImportInProgress is returned when an import is requested while another
// one is still running.
var ErrImportInProgress = apperrors.Conflict("catalog import already in progress")

var (
	importItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_import_items_total",
			Help: "Catalog items processed by imports, by result",
		},
		[]string{"result"},
	)

	catalogReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_index_ready",
		Help: "1 once the catalog has been imported into the search index",
	})
)

// Source yields the full catalog.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]domain.Product, error)
}

// Invalidator drops cached query results after the index changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Backoff controls the startup retry delays.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// DefaultBackoff retries after 1s, 2s, 4s and so on up to 30s, each delay
// varied by up to 25% either way.
func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Max: 30 * time.Second, Jitter: 0.25}
}

// Delay returns the wait before retry number attempt (zero based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d = time.Duration(float64(d) * (1 + b.Jitter*(2*rand.Float64()-1)))
	}
	return d
}

// Option configures a Builder.
type Option func(*Builder)

// WithInvalidator registers a cache to clear after every index change.
func WithInvalidator(inv Invalidator) Option {
	return func(b *Builder) { b.invalidator = inv }
}

// WithBackoff overrides the startup retry backoff.
func WithBackoff(bo Backoff) Option {
	return func(b *Builder) { b.backoff = bo }
}

// Builder turns catalog records into index documents and loads them into the
// engine. Queries should not be served until Ready reports true.
type Builder struct {
	engine      engine.Engine
	source      Source
	invalidator Invalidator
	backoff     Backoff
	logger      *slog.Logger

	ready   atomic.Bool
	loading atomic.Bool
}

// NewBuilder creates a builder. source may be nil when the catalog is only
// ever pushed through Import.
func NewBuilder(eng engine.Engine, source Source, logger *slog.Logger, opts ...Option) *Builder {
	b := &Builder{
		engine:  eng,
		source:  source,
		backoff: DefaultBackoff(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ready reports whether a full catalog import has completed successfully.
// Single-product upserts never make the builder ready.
func (b *Builder) Ready() bool {
	return b.ready.Load()
}

// Import indexes products in one bulk call. Products without an id and
// documents the engine rejects are reported in the outcome without failing
// the batch. If the bulk call itself fails the error is IndexUnavailable.
func (b *Builder) Import(ctx context.Context, products []domain.Product) (*domain.ImportOutcome, error) {
	if !b.loading.CompareAndSwap(false, true) {
		return nil, ErrImportInProgress
	}
	defer b.loading.Store(false)

	outcome, err := b.importProducts(ctx, products)
	if err != nil {
		return nil, err
	}
	b.markReady()
	return outcome, nil
}

// Load reads the configured source and imports it.
func (b *Builder) Load(ctx context.Context) (*domain.ImportOutcome, error) {
	if b.source == nil {
		return nil, apperrors.InvalidInput("no catalog source configured")
	}
	if !b.loading.CompareAndSwap(false, true) {
		return nil, ErrImportInProgress
	}
	defer b.loading.Store(false)

	products, err := b.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog from %s: %w", b.source.Name(), err)
	}
	outcome, err := b.importProducts(ctx, products)
	if err != nil {
		return nil, err
	}
	b.markReady()
	return outcome, nil
}

// Run performs the startup load. While the engine is unavailable it keeps
// retrying with backoff until the load succeeds or ctx ends. Other failures
// are returned without retrying.
func (b *Builder) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		outcome, err := b.Load(ctx)
		if err == nil {
			b.logger.Info("catalog loaded",
				slog.String("source", b.source.Name()),
				slog.Int("indexed", outcome.Indexed),
				slog.Int("failed", len(outcome.Failures)),
			)
			return nil
		}
		if !errors.Is(err, apperrors.ErrIndexUnavailable) {
			b.logger.Error("catalog load failed", slog.String("error", err.Error()))
			return err
		}

		wait := b.backoff.Delay(attempt)
		b.logger.Warn("search index unavailable, retrying catalog load",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Upsert indexes a single product, outside the import lock.
func (b *Builder) Upsert(ctx context.Context, p domain.Product) error {
	outcome, err := b.importProducts(ctx, []domain.Product{p})
	if err != nil {
		return err
	}
	if len(outcome.Failures) > 0 {
		return apperrors.InvalidInput(fmt.Sprintf("product %q not indexed: %s", p.ID, outcome.Failures[0].Reason))
	}
	return nil
}

// Remove deletes a product from the index.
func (b *Builder) Remove(ctx context.Context, id string) error {
	if err := b.engine.Delete(ctx, id); err != nil {
		return apperrors.IndexUnavailable(err)
	}
	b.invalidate(ctx)
	b.logger.InfoContext(ctx, "product removed from index", slog.String("id", id))
	return nil
}

func (b *Builder) importProducts(ctx context.Context, products []domain.Product) (*domain.ImportOutcome, error) {
	outcome := &domain.ImportOutcome{Failures: []domain.ItemFailure{}}

	docs := make([]domain.IndexDocument, 0, len(products))
	for _, p := range products {
		if strings.TrimSpace(string(p.ID)) == "" {
			outcome.Failures = append(outcome.Failures, domain.ItemFailure{Reason: "id is required"})
			continue
		}
		docs = append(docs, p.Document())
	}

	if len(docs) > 0 {
		res, err := b.engine.BulkIndex(ctx, docs)
		if err != nil {
			b.logger.ErrorContext(ctx, "bulk import failed",
				slog.Int("documents", len(docs)),
				slog.String("error", err.Error()),
			)
			return nil, apperrors.IndexUnavailable(err)
		}
		outcome.Indexed = res.Indexed
		outcome.Failures = append(outcome.Failures, res.Failures...)
	}

	for _, f := range outcome.Failures {
		b.logger.WarnContext(ctx, "catalog item not indexed",
			slog.String("id", f.ID),
			slog.String("reason", f.Reason),
		)
	}
	importItemsTotal.WithLabelValues("indexed").Add(float64(outcome.Indexed))
	importItemsTotal.WithLabelValues("failed").Add(float64(len(outcome.Failures)))

	b.invalidate(ctx)

	return outcome, nil
}

func (b *Builder) markReady() {
	if b.ready.CompareAndSwap(false, true) {
		catalogReady.Set(1)
	}
}

func (b *Builder) invalidate(ctx context.Context) {
	if b.invalidator == nil {
		return
	}
	if err := b.invalidator.Invalidate(ctx); err != nil {
		b.logger.WarnContext(ctx, "failed to invalidate suggestion cache", slog.String("error", err.Error()))
	}
}
