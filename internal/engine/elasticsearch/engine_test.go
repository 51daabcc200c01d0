package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine"
	"github.com/gmaxsoft/elasticsearch-project/pkg/logger"
)

// fakeCluster answers the handful of endpoints the engine uses.
type fakeCluster struct {
	mu          sync.Mutex
	indexExists bool
	existsCalls int
	mapping     string
	created     string
	bulkBody    string
	searchBody  map[string]any
	searchResp  string
	bulkResp    string
	status      int
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	body, _ := io.ReadAll(r.Body)

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"error":{"type":"cluster_block_exception","reason":"blocked"},"status":503}`)
		return
	}

	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/products":
		f.existsCalls++
		if f.indexExists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && r.URL.Path == "/products":
		f.created = string(body)
		f.indexExists = true
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case r.Method == http.MethodGet && r.URL.Path == "/products/_mapping":
		mapping := f.mapping
		if mapping == "" {
			mapping = autocompleteMapping
		}
		_, _ = io.WriteString(w, mapping)
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		f.bulkBody = string(body)
		_, _ = io.WriteString(w, f.bulkResp)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		f.searchBody = map[string]any{}
		_ = json.Unmarshal(body, &f.searchBody)
		_, _ = io.WriteString(w, f.searchResp)
	case strings.HasSuffix(r.URL.Path, "/_count"):
		_, _ = io.WriteString(w, `{"count":3}`)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{}`)
	}
}

const autocompleteMapping = `{"products":{"mappings":{"properties":{
	"title":{"type":"text","fields":{"autocomplete":{"type":"text"}}},
	"category":{"type":"text","fields":{"autocomplete":{"type":"text"}}}
}}}}`

const okBulk = `{"errors":false,"items":[{"index":{"_id":"1","status":201}}]}`

func newFakeEngine(t *testing.T, f *fakeCluster) *Engine {
	t.Helper()
	return newFakeEngineWithLogger(t, f, logger.Discard())
}

func newFakeEngineWithLogger(t *testing.T, f *fakeCluster, l *slog.Logger) *Engine {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	eng, err := New(Config{Addresses: []string{srv.URL}}, l)
	require.NoError(t, err)
	return eng
}

func TestNew_DoesNotContactCluster(t *testing.T) {
	eng, err := New(Config{Addresses: []string{"http://127.0.0.1:1"}}, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, DefaultIndexName, eng.IndexName())
}

func TestBulkIndex_CreatesIndexWithMappingOnce(t *testing.T) {
	f := &fakeCluster{bulkResp: okBulk}
	eng := newFakeEngine(t, f)

	_, err := eng.BulkIndex(context.Background(), []domain.IndexDocument{{ID: "1", Title: "Laptop Dell"}})
	require.NoError(t, err)
	assert.Contains(t, f.created, `"autocomplete"`)
	assert.Contains(t, f.created, `"scaled_float"`)

	_, err = eng.BulkIndex(context.Background(), []domain.IndexDocument{{ID: "1", Title: "Laptop Dell"}})
	require.NoError(t, err)
	assert.Equal(t, 1, f.existsCalls)
}

func TestBulkIndex_ExistingIndexIsKept(t *testing.T) {
	f := &fakeCluster{indexExists: true, bulkResp: okBulk}
	eng := newFakeEngine(t, f)

	_, err := eng.BulkIndex(context.Background(), []domain.IndexDocument{{ID: "1"}})
	require.NoError(t, err)
	assert.Empty(t, f.created)
}

func TestBulkIndex_UnreachableClusterIsRetriedOnNextCall(t *testing.T) {
	f := &fakeCluster{bulkResp: okBulk}
	srv := httptest.NewServer(f)
	addr := srv.URL
	srv.Close()

	eng, err := New(Config{Addresses: []string{addr}}, logger.Discard())
	require.NoError(t, err)

	_, err = eng.BulkIndex(context.Background(), []domain.IndexDocument{{ID: "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure index")

	eng.client = newFakeEngine(t, f).client
	_, err = eng.BulkIndex(context.Background(), []domain.IndexDocument{{ID: "1"}})
	require.NoError(t, err)
	assert.NotEmpty(t, f.created)
}

func TestBulkIndex_WarnsWhenExistingIndexLacksAutocomplete(t *testing.T) {
	var buf syncBuffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	f := &fakeCluster{
		indexExists: true,
		bulkResp:    okBulk,
		mapping:     `{"products":{"mappings":{"properties":{"title":{"type":"text"},"category":{"type":"text"}}}}}`,
	}
	eng := newFakeEngineWithLogger(t, f, l)

	_, err := eng.BulkIndex(context.Background(), []domain.IndexDocument{{ID: "1"}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no autocomplete subfields")
	assert.Contains(t, buf.String(), "title.autocomplete")
}

func TestMissingAutocompleteFields(t *testing.T) {
	var complete esMappingResponse
	require.NoError(t, json.Unmarshal([]byte(autocompleteMapping), &complete))
	assert.Empty(t, missingAutocompleteFields(complete))

	var partial esMappingResponse
	require.NoError(t, json.Unmarshal([]byte(`{"products":{"mappings":{"properties":{
		"title":{"type":"text","fields":{"autocomplete":{"type":"text"}}}
	}}}}`), &partial))
	assert.Equal(t, []string{"category.autocomplete"}, missingAutocompleteFields(partial))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBulkIndex_KeysByIDAndCollectsFailures(t *testing.T) {
	f := &fakeCluster{indexExists: true, bulkResp: `{
		"errors": true,
		"items": [
			{"index": {"_id": "1", "status": 201}},
			{"index": {"_id": "2", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "failed to parse field [price]"}}}
		]
	}`}
	eng := newFakeEngine(t, f)

	res, err := eng.BulkIndex(context.Background(), []domain.IndexDocument{
		{ID: "1", Title: "Laptop Dell", Price: decimal.NewFromInt(2999)},
		{ID: "2", Title: "Broken"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Indexed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "2", res.Failures[0].ID)
	assert.Contains(t, res.Failures[0].Reason, "mapper_parsing_exception")

	lines := strings.Split(strings.TrimSpace(f.bulkBody), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_index":"products","_id":"1"}}`, lines[0])
	assert.Contains(t, lines[1], `"title":"Laptop Dell"`)
}

func TestBulkIndex_Empty(t *testing.T) {
	eng := newFakeEngine(t, &fakeCluster{indexExists: true})
	res, err := eng.BulkIndex(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Indexed)
}

func TestBulkIndex_ClusterError(t *testing.T) {
	f := &fakeCluster{indexExists: true, bulkResp: okBulk}
	eng := newFakeEngine(t, f)
	_, err := eng.BulkIndex(context.Background(), []domain.IndexDocument{{ID: "1"}})
	require.NoError(t, err)

	f.mu.Lock()
	f.status = http.StatusServiceUnavailable
	f.mu.Unlock()

	_, err = eng.BulkIndex(context.Background(), []domain.IndexDocument{{ID: "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster_block_exception")
}

func TestQuery_BuildsMultiMatchAndUsesHitIDs(t *testing.T) {
	f := &fakeCluster{indexExists: true, searchResp: `{
		"hits": {"hits": [
			{"_id": "1", "_score": 1.5, "_source": {"id": 1, "title": "Laptop Dell", "price": 2999, "quantity": 5}}
		]}
	}`}
	eng := newFakeEngine(t, f)

	hits, err := eng.Query(context.Background(), &engine.MultiMatchQuery{
		Text:   "laptop",
		Fields: domain.SearchFields(),
		Limit:  domain.SearchLimit,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].ID)
	assert.Equal(t, "Laptop Dell", hits[0].Source.Title)
	assert.True(t, decimal.NewFromInt(2999).Equal(hits[0].Source.Price))

	mm := f.searchBody["query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "laptop", mm["query"])
	assert.Equal(t, []any{"title", "description", "category"}, mm["fields"])
	assert.Equal(t, float64(50), f.searchBody["size"])
	assert.NotContains(t, f.searchBody, "_source")
}

func TestQuery_PrefixTargetsAutocompleteSubfields(t *testing.T) {
	f := &fakeCluster{indexExists: true, searchResp: `{"hits":{"hits":[]}}`}
	eng := newFakeEngine(t, f)

	hits, err := eng.Query(context.Background(), &engine.MultiMatchQuery{
		Text:   "lap",
		Fields: domain.SuggestFields(),
		Limit:  domain.SuggestLimit,
		Prefix: true,
		Source: []string{"title", "category"},
	})
	require.NoError(t, err)
	assert.Empty(t, hits)

	mm := f.searchBody["query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, []any{"title.autocomplete", "category.autocomplete"}, mm["fields"])
	assert.Equal(t, []any{"title", "category"}, f.searchBody["_source"])
	assert.Equal(t, float64(10), f.searchBody["size"])
}

func TestQuery_EmptyText(t *testing.T) {
	eng := newFakeEngine(t, &fakeCluster{indexExists: true})
	_, err := eng.Query(context.Background(), &engine.MultiMatchQuery{Text: " "})
	assert.ErrorIs(t, err, engine.ErrEmptyQuery)
}

func TestCountAndDelete(t *testing.T) {
	eng := newFakeEngine(t, &fakeCluster{indexExists: true})

	n, err := eng.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.NoError(t, eng.Delete(context.Background(), "missing"))
}

func TestPrefixFields(t *testing.T) {
	assert.Equal(t,
		[]string{"title.autocomplete", "description", "category.autocomplete"},
		prefixFields(domain.SearchFields()),
	)
}
