package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine"
)

func newTestDoc(id, title, description, category string) domain.IndexDocument {
	return domain.IndexDocument{
		ID:          id,
		Title:       title,
		Description: description,
		Category:    category,
		Price:       decimal.NewFromInt(100),
		Quantity:    1,
	}
}

func seed(t *testing.T, e *Engine, docs ...domain.IndexDocument) {
	t.Helper()
	res, err := e.BulkIndex(context.Background(), docs)
	require.NoError(t, err)
	require.Empty(t, res.Failures)
}

func TestEngine_Query_MatchesAnyField(t *testing.T) {
	e := New()
	seed(t, e,
		newTestDoc("1", "Laptop Dell", "15 inch business laptop", "Elektronika"),
		newTestDoc("2", "Mysz Logitech", "wireless mouse", "Akcesoria"),
	)

	hits, err := e.Query(context.Background(), &engine.MultiMatchQuery{
		Text: "mouse", Fields: domain.SearchFields(), Limit: 50,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "2", hits[0].ID)
}

func TestEngine_Query_CaseInsensitive(t *testing.T) {
	e := New()
	seed(t, e, newTestDoc("1", "Laptop Dell", "", "Elektronika"))

	hits, err := e.Query(context.Background(), &engine.MultiMatchQuery{
		Text: "LAPTOP", Fields: domain.SearchFields(),
	})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestEngine_Query_WholeTermsWithoutPrefix(t *testing.T) {
	e := New()
	seed(t, e, newTestDoc("1", "Laptop Dell", "", "Elektronika"))

	hits, err := e.Query(context.Background(), &engine.MultiMatchQuery{
		Text: "lap", Fields: domain.SearchFields(),
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestEngine_Query_Prefix(t *testing.T) {
	e := New()
	seed(t, e, newTestDoc("1", "Laptop Dell", "", "Elektronika"))

	hits, err := e.Query(context.Background(), &engine.MultiMatchQuery{
		Text: "lap", Fields: domain.SuggestFields(), Prefix: true,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Laptop Dell", hits[0].Source.Title)
}

func TestEngine_Query_IgnoresFieldsNotRequested(t *testing.T) {
	e := New()
	seed(t, e, newTestDoc("1", "Laptop Dell", "mouse included", "Elektronika"))

	hits, err := e.Query(context.Background(), &engine.MultiMatchQuery{
		Text: "mouse", Fields: domain.SuggestFields(), Prefix: true,
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestEngine_Query_RanksByBestFieldThenInsertion(t *testing.T) {
	e := New()
	seed(t, e,
		newTestDoc("1", "Dell monitor", "", ""),
		newTestDoc("2", "Laptop Dell", "", ""),
		newTestDoc("3", "Dell", "", ""),
	)

	hits, err := e.Query(context.Background(), &engine.MultiMatchQuery{
		Text: "laptop dell", Fields: domain.SearchFields(),
	})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "2", hits[0].ID)
	assert.Equal(t, "1", hits[1].ID)
	assert.Equal(t, "3", hits[2].ID)
}

func TestEngine_Query_Limit(t *testing.T) {
	e := New()
	docs := make([]domain.IndexDocument, 0, 60)
	for i := 0; i < 60; i++ {
		docs = append(docs, newTestDoc(fmt.Sprint(i), fmt.Sprintf("Laptop %d", i), "", ""))
	}
	seed(t, e, docs...)

	hits, err := e.Query(context.Background(), &engine.MultiMatchQuery{
		Text: "laptop", Fields: domain.SearchFields(), Limit: domain.SearchLimit,
	})
	require.NoError(t, err)
	assert.Len(t, hits, domain.SearchLimit)
	assert.Equal(t, "0", hits[0].ID)
}

func TestEngine_Query_SourceProjection(t *testing.T) {
	e := New()
	seed(t, e, newTestDoc("1", "Laptop Dell", "secret description", "Elektronika"))

	hits, err := e.Query(context.Background(), &engine.MultiMatchQuery{
		Text:   "laptop",
		Fields: domain.SuggestFields(),
		Source: []string{domain.FieldTitle, domain.FieldCategory},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Laptop Dell", hits[0].Source.Title)
	assert.Equal(t, "Elektronika", hits[0].Source.Category)
	assert.Empty(t, hits[0].Source.Description)
	assert.True(t, hits[0].Source.Price.IsZero())
}

func TestEngine_Query_EmptyText(t *testing.T) {
	_, err := New().Query(context.Background(), &engine.MultiMatchQuery{Text: "  ", Fields: domain.SearchFields()})
	assert.ErrorIs(t, err, engine.ErrEmptyQuery)
}

func TestEngine_BulkIndex_Idempotent(t *testing.T) {
	e := New()
	ctx := context.Background()
	doc := newTestDoc("1", "Laptop Dell", "", "")

	seed(t, e, doc)
	doc.Title = "Laptop Dell XPS"
	seed(t, e, doc)

	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := e.Query(ctx, &engine.MultiMatchQuery{Text: "xps", Fields: domain.SearchFields()})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Laptop Dell XPS", hits[0].Source.Title)
}

func TestEngine_BulkIndex_EmptyIDIsFailure(t *testing.T) {
	e := New()
	res, err := e.BulkIndex(context.Background(), []domain.IndexDocument{
		newTestDoc("", "No id", "", ""),
		newTestDoc("2", "Has id", "", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Len(t, res.Failures, 1)
}

func TestEngine_Delete(t *testing.T) {
	e := New()
	ctx := context.Background()
	seed(t, e, newTestDoc("1", "Laptop Dell", "", ""))

	require.NoError(t, e.Delete(ctx, "1"))
	require.NoError(t, e.Delete(ctx, "missing"))

	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
