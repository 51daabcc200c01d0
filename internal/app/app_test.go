package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmaxsoft/elasticsearch-project/internal/config"
	apperrors "github.com/gmaxsoft/elasticsearch-project/pkg/errors"
	"github.com/gmaxsoft/elasticsearch-project/pkg/logger"
)

const catalogJSON = `[
  {"id": 1, "title": "Laptop Dell", "description": "15 calowy laptop", "category": "Elektronika", "price": 2999, "quantity": 5},
  {"id": 2, "title": "Kubek", "description": "ceramiczny", "category": "Dom", "price": 19.99, "quantity": 40}
]`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o600))
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	base := map[string]string{
		"SEARCH_ENGINE": "memory",
		"CATALOG_FILE":  writeCatalog(t),
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.LoadFrom(base)
	require.NoError(t, err)
	return cfg
}

func get(t *testing.T, h http.Handler, target string) (int, json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body struct {
		Data json.RawMessage `json:"data"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&body)
	return rec.Code, body.Data
}

func TestNewApp_MemoryEngineServesAfterLoad(t *testing.T) {
	a, err := NewApp(loadConfig(t, nil), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	code, _ := get(t, a.Handler(), "/api/search?q=laptop")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = get(t, a.Handler(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	_, err = a.builder.Load(context.Background())
	require.NoError(t, err)

	code, data := get(t, a.Handler(), "/api/suggestions?q=lap")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["Laptop Dell"]`, string(data))

	code, _ = get(t, a.Handler(), "/health/ready")
	assert.Equal(t, http.StatusOK, code)
}

func TestNewApp_UnreachableElasticsearchStartsDegraded(t *testing.T) {
	addr := fmt.Sprintf("http://127.0.0.1:%d", freePort(t))
	a, err := NewApp(loadConfig(t, map[string]string{
		"SEARCH_ENGINE":     "elasticsearch",
		"ELASTICSEARCH_URL": addr,
	}), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=laptop", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "INDEX_UNAVAILABLE", body.Error.Code)

	_, err = a.builder.Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
	assert.False(t, a.builder.Ready())

	code, _ := get(t, a.Handler(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestNewApp_BleveEngine(t *testing.T) {
	a, err := NewApp(loadConfig(t, map[string]string{"SEARCH_ENGINE": "bleve"}), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	_, err = a.builder.Load(context.Background())
	require.NoError(t, err)

	code, data := get(t, a.Handler(), "/api/search?q=kubek")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(data), `"Kubek"`)
}

func TestNewApp_WithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := NewApp(loadConfig(t, map[string]string{
		"REDIS_ENABLED": "true",
		"REDIS_HOST":    mr.Host(),
		"REDIS_PORT":    mr.Port(),
	}), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	_, err = a.builder.Load(context.Background())
	require.NoError(t, err)

	code, data := get(t, a.Handler(), "/api/suggestions?q=lap")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["Laptop Dell"]`, string(data))
	assert.True(t, mr.Exists("search:suggest:lap"))

	_, err = a.builder.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, mr.Exists("search:suggest:lap"))
}

func TestNewApp_RedisUnavailable(t *testing.T) {
	_, err := NewApp(loadConfig(t, map[string]string{
		"REDIS_ENABLED": "true",
		"REDIS_HOST":    "127.0.0.1",
		"REDIS_PORT":    fmt.Sprint(freePort(t)),
	}), logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestRun_LoadsCatalogAndShutsDown(t *testing.T) {
	port := freePort(t)
	a, err := NewApp(loadConfig(t, map[string]string{
		"SEARCH_HTTP_PORT": fmt.Sprint(port),
		"CATALOG_WATCH":    "true",
	}), logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/search?q=laptop", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_MissingCatalogKeepsServingDegraded(t *testing.T) {
	port := freePort(t)
	a, err := NewApp(loadConfig(t, map[string]string{
		"SEARCH_HTTP_PORT": fmt.Sprint(port),
		"CATALOG_FILE":     filepath.Join(t.TempDir(), "missing.json"),
	}), logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/search?q=laptop", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusServiceUnavailable
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
