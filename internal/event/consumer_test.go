package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gmaxsoft/elasticsearch-project/internal/catalog"
	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine/memory"
	apperrors "github.com/gmaxsoft/elasticsearch-project/pkg/errors"
	pkgkafka "github.com/gmaxsoft/elasticsearch-project/pkg/kafka"
	"github.com/gmaxsoft/elasticsearch-project/pkg/logger"
)

type mockIndexer struct {
	mock.Mock
}

func (m *mockIndexer) Upsert(ctx context.Context, p domain.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockIndexer) Remove(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func newEvent(t *testing.T, eventType string, data any) *pkgkafka.Event {
	t.Helper()
	ev, err := pkgkafka.NewEvent(eventType, "1", AggregateProduct, "test", data)
	require.NoError(t, err)
	return ev
}

func TestTopics(t *testing.T) {
	c := NewConsumer(&mockIndexer{}, logger.Discard())
	assert.Equal(t, []string{"catalog.product.upserted", "catalog.product.deleted"}, c.Topics())
}

func TestHandle_UpsertIndexesProduct(t *testing.T) {
	eng := memory.New()
	b := catalog.NewBuilder(eng, nil, logger.Discard())
	c := NewConsumer(b, logger.Discard())
	ctx := context.Background()

	p := domain.Product{ID: "1", Title: "Laptop Dell", Category: "Elektronika", Price: decimal.NewFromInt(2999), Quantity: 5}
	require.NoError(t, c.Handle(ctx, newEvent(t, TopicProductUpserted, p)))

	hits, err := eng.Query(ctx, &engine.MultiMatchQuery{Text: "laptop", Fields: domain.SearchFields(), Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].ID)

	require.NoError(t, c.Handle(ctx, newEvent(t, TopicProductDeleted, ProductDeletedData{ID: "1"})))
	n, err := eng.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandle_UpsertAcceptsNumericID(t *testing.T) {
	idx := &mockIndexer{}
	idx.On("Upsert", mock.Anything, mock.MatchedBy(func(p domain.Product) bool {
		return p.ID == "42" && p.Title == "Kubek"
	})).Return(nil)
	c := NewConsumer(idx, logger.Discard())

	ev := newEvent(t, TopicProductUpserted, nil)
	ev.Data = json.RawMessage(`{"id":42,"title":"Kubek","price":"19.99","quantity":3}`)

	require.NoError(t, c.Handle(context.Background(), ev))
	idx.AssertExpectations(t)
}

func TestHandle_InvalidProductIsSkipped(t *testing.T) {
	idx := &mockIndexer{}
	idx.On("Upsert", mock.Anything, mock.Anything).Return(apperrors.InvalidInput("id is required"))
	c := NewConsumer(idx, logger.Discard())

	assert.NoError(t, c.Handle(context.Background(), newEvent(t, TopicProductUpserted, domain.Product{Title: "x"})))
}

func TestHandle_EngineFailureIsRetried(t *testing.T) {
	idx := &mockIndexer{}
	idx.On("Upsert", mock.Anything, mock.Anything).Return(apperrors.IndexUnavailable(errors.New("dial tcp")))
	idx.On("Remove", mock.Anything, "1").Return(apperrors.IndexUnavailable(errors.New("dial tcp")))
	c := NewConsumer(idx, logger.Discard())

	err := c.Handle(context.Background(), newEvent(t, TopicProductUpserted, domain.Product{ID: "1"}))
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)

	err = c.Handle(context.Background(), newEvent(t, TopicProductDeleted, ProductDeletedData{ID: "1"}))
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
}

func TestHandle_MalformedPayloadIsDropped(t *testing.T) {
	idx := &mockIndexer{}
	c := NewConsumer(idx, logger.Discard())

	for _, topic := range c.Topics() {
		ev := newEvent(t, topic, nil)
		ev.Data = json.RawMessage(`{"id":`)
		assert.NoError(t, c.Handle(context.Background(), ev))
	}
	idx.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	idx.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestHandle_DeleteWithoutIDIsDropped(t *testing.T) {
	idx := &mockIndexer{}
	c := NewConsumer(idx, logger.Discard())

	assert.NoError(t, c.Handle(context.Background(), newEvent(t, TopicProductDeleted, ProductDeletedData{})))
	idx.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestHandle_UnknownEventType(t *testing.T) {
	idx := &mockIndexer{}
	c := NewConsumer(idx, logger.Discard())

	assert.NoError(t, c.Handle(context.Background(), newEvent(t, "catalog.order.created", nil)))
}
