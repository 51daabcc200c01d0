// Package client talks to the search HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/pkg/httpclient"
	"github.com/gmaxsoft/elasticsearch-project/pkg/middleware"
)

const serviceName = "search-api"

// Config configures an HTTPBackend.
type Config struct {
	BaseURL   string
	SessionID string
	HTTP      httpclient.Config
	Breaker   httpclient.CircuitBreakerConfig
}

// DefaultConfig returns a configuration pointing at baseURL with a fresh session id.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		SessionID: uuid.NewString(),
		HTTP:      httpclient.DefaultConfig(),
		Breaker:   httpclient.DefaultCircuitBreakerConfig(serviceName),
	}
}

// HTTPBackend implements the controller backend over the search HTTP API.
type HTTPBackend struct {
	baseURL string
	client  *httpclient.CircuitBreakerClient
	// suggestClient shares the breaker with client but answers an empty
	// suggestion list while it is open.
	suggestClient *httpclient.CircuitBreakerClient
	logger        *slog.Logger
}

// NewHTTPBackend creates a backend with retries and a circuit breaker.
func NewHTTPBackend(cfg Config, logger *slog.Logger) *HTTPBackend {
	headers := make(map[string]string, len(cfg.HTTP.Headers)+1)
	for k, v := range cfg.HTTP.Headers {
		headers[k] = v
	}
	if cfg.SessionID != "" {
		headers[middleware.SessionIDHeader] = cfg.SessionID
	}
	cfg.HTTP.Headers = headers
	if cfg.Breaker.Name == "" {
		cfg.Breaker = httpclient.DefaultCircuitBreakerConfig(serviceName)
	}

	cb := httpclient.NewCircuitBreakerClient(httpclient.New(cfg.HTTP), cfg.Breaker, logger)
	return &HTTPBackend{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		client:        cb,
		suggestClient: cb.WithFallback(emptySuggestions),
		logger:        logger,
	}
}

func emptySuggestions(context.Context, error) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"data":[]}`)),
	}, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// Search calls GET /api/search.
func (b *HTTPBackend) Search(ctx context.Context, query string) ([]domain.Product, error) {
	products := []domain.Product{}
	if err := b.get(ctx, b.client, "/api/search", query, &products); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return products, nil
}

// Suggest calls GET /api/suggestions. While the circuit breaker is open it
// returns no suggestions instead of an error.
func (b *HTTPBackend) Suggest(ctx context.Context, query string) ([]string, error) {
	titles := []string{}
	if err := b.get(ctx, b.suggestClient, "/api/suggestions", query, &titles); err != nil {
		return nil, fmt.Errorf("suggest %q: %w", query, err)
	}
	return titles, nil
}

// Import posts products to /api/import. A nil slice asks the server to
// reload its configured catalog source.
func (b *HTTPBackend) Import(ctx context.Context, products []domain.Product) (*domain.ImportOutcome, error) {
	var body *bytes.Reader
	if products == nil {
		body = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(map[string]any{"products": products})
		if err != nil {
			return nil, fmt.Errorf("marshal import request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/import", body)
	if err != nil {
		return nil, fmt.Errorf("create import request: %w", err)
	}
	if products != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var outcome domain.ImportOutcome
	if err := b.do(b.client, req, &outcome); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	return &outcome, nil
}

func (b *HTTPBackend) get(ctx context.Context, client *httpclient.CircuitBreakerClient, path, query string, dst any) error {
	u := b.baseURL + path + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return b.do(client, req, dst)
}

func (b *HTTPBackend) do(client *httpclient.CircuitBreakerClient, req *http.Request, dst any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(middleware.CorrelationIDHeader, uuid.NewString())

	resp, err := client.Do(req.Context(), req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
