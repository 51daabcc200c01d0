package elasticsearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine"
)

// Config holds connection settings. CloudID and APIKey target Elastic Cloud;
// Addresses targets a self-managed cluster.
type Config struct {
	Addresses          []string
	CloudID            string
	APIKey             string
	Username           string
	Password           string
	Index              string
	InsecureSkipVerify bool

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Engine is an Elasticsearch-backed implementation of engine.Engine.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger

	indexMu    sync.Mutex
	indexReady bool
}

var _ engine.Engine = (*Engine)(nil)

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string               `json:"_id"`
			Score  float64              `json:"_score"`
			Source domain.IndexDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

type esCountResponse struct {
	Count int `json:"count"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an engine without contacting the cluster. The index is checked
// and, if missing, created with the product mapping on the first BulkIndex.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Index == "" {
		cfg.Index = DefaultIndexName
	}

	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		CloudID:   cfg.CloudID,
		APIKey:    cfg.APIKey,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	}
	if esCfg.Transport == nil && cfg.InsecureSkipVerify {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		esCfg.Transport = tr
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	return &Engine{
		client:    client,
		indexName: cfg.Index,
		logger:    logger,
	}, nil
}

// IndexName returns the index the engine reads and writes.
func (e *Engine) IndexName() string {
	return e.indexName
}

// Ping checks whether the cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// ensureIndex prepares the index once. A failed attempt is retried on
// the next call.
func (e *Engine) ensureIndex(ctx context.Context) error {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()
	if e.indexReady {
		return nil
	}
	if err := e.prepareIndex(ctx); err != nil {
		return fmt.Errorf("elasticsearch: ensure index: %w", err)
	}
	e.indexReady = true
	return nil
}

func (e *Engine) prepareIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.indexName}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	_ = res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		e.logger.Info("elasticsearch index already exists", slog.String("index", e.indexName))
		return e.checkMapping(ctx)
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index exists: unexpected status %s", res.Status())
	}

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("create index", res)
	}

	e.logger.Info("elasticsearch index created", slog.String("index", e.indexName))
	return nil
}

type esMappingResponse map[string]struct {
	Mappings struct {
		Properties map[string]struct {
			Fields map[string]json.RawMessage `json:"fields"`
		} `json:"properties"`
	} `json:"mappings"`
}

// checkMapping warns when an existing index lacks the autocomplete subfields
// that prefix queries target. Such an index answers every suggestion with
// no hits.
func (e *Engine) checkMapping(ctx context.Context) error {
	res, err := e.client.Indices.GetMapping(
		e.client.Indices.GetMapping.WithIndex(e.indexName),
		e.client.Indices.GetMapping.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("get mapping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("get mapping", res)
	}

	var mappings esMappingResponse
	if err := json.NewDecoder(res.Body).Decode(&mappings); err != nil {
		return fmt.Errorf("get mapping: decode response: %w", err)
	}

	missing := missingAutocompleteFields(mappings)
	if len(missing) > 0 {
		e.logger.Warn("elasticsearch index has no autocomplete subfields, suggestions will be empty until it is recreated",
			slog.String("index", e.indexName),
			slog.Any("fields", missing),
		)
	}
	return nil
}

func missingAutocompleteFields(mappings esMappingResponse) []string {
	var missing []string
	for _, field := range []string{domain.FieldTitle, domain.FieldCategory} {
		found := false
		for _, idx := range mappings {
			if _, ok := idx.Mappings.Properties[field].Fields[autocompleteSubfield]; ok {
				found = true
			}
		}
		if !found {
			missing = append(missing, field+"."+autocompleteSubfield)
		}
	}
	return missing
}

// BulkIndex writes docs with one NDJSON bulk request and refresh=true, so the
// documents are searchable once it returns. Each document is keyed by its ID.
func (e *Engine) BulkIndex(ctx context.Context, docs []domain.IndexDocument) (*engine.BulkResult, error) {
	if len(docs) == 0 {
		return &engine.BulkResult{}, nil
	}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range docs {
		action := map[string]any{
			"index": map[string]any{
				"_index": e.indexName,
				"_id":    docs[i].ID,
			},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := enc.Encode(docs[i]); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch bulk index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("elasticsearch bulk index", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}

	result := &engine.BulkResult{}
	for _, item := range bulkResp.Items {
		if item.Index.Error.Type != "" {
			result.Failures = append(result.Failures, domain.ItemFailure{
				ID:     item.Index.ID,
				Reason: fmt.Sprintf("%s: %s", item.Index.Error.Type, item.Index.Error.Reason),
			})
			continue
		}
		result.Indexed++
	}

	e.logger.Info("bulk indexed documents",
		slog.Int("indexed", result.Indexed),
		slog.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// Query runs a multi_match query. Prefix queries target the edge n-gram
// subfields of title and category.
func (e *Engine) Query(ctx context.Context, q *engine.MultiMatchQuery) ([]engine.Hit, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, engine.ErrEmptyQuery
	}

	data, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("elasticsearch search", res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	hits := make([]engine.Hit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		hits = append(hits, engine.Hit{ID: h.ID, Score: h.Score, Source: h.Source})
	}
	return hits, nil
}

func buildQuery(q *engine.MultiMatchQuery) map[string]any {
	fields := q.Fields
	if q.Prefix {
		fields = prefixFields(fields)
	}

	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": fields,
			},
		},
	}
	if q.Limit > 0 {
		body["size"] = q.Limit
	}
	if len(q.Source) > 0 {
		body["_source"] = q.Source
	}
	return body
}

// Delete removes a document by ID. A missing document is not an error.
func (e *Engine) Delete(ctx context.Context, id string) error {
	res, err := e.client.Delete(
		e.indexName,
		id,
		e.client.Delete.WithRefresh("true"),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete", res)
	}

	e.logger.Debug("deleted document", slog.String("id", id))
	return nil
}

// Count returns the number of documents in the index.
func (e *Engine) Count(ctx context.Context) (int, error) {
	res, err := e.client.Count(
		e.client.Count.WithIndex(e.indexName),
		e.client.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return 0, responseError("elasticsearch count", res)
	}

	var countResp esCountResponse
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, fmt.Errorf("elasticsearch count: decode response: %w", err)
	}
	return countResp.Count, nil
}

// DeleteIndex removes the whole index. A missing index is not an error.
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete index", res)
	}

	e.indexMu.Lock()
	e.indexReady = false
	e.indexMu.Unlock()

	e.logger.Info("elasticsearch index deleted", slog.String("index", e.indexName))
	return nil
}

func responseError(op string, res *esapi.Response) error {
	var errResp esErrorResponse
	if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}
