package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osamaflash/catalog/internal/adapters/repository"
	"github.com/osamaflash/catalog/internal/domain/entities"
	"github.com/osamaflash/catalog/internal/infrastructure/config"
	"github.com/osamaflash/catalog/internal/infrastructure/logger"
	"github.com/osamaflash/catalog/internal/ports"
)

func testConfig() *config.Config {
	return &config.Config{
		App:    config.AppConfig{Name: "catalog", Version: "test"},
		Server: config.ServerConfig{Port: 8080, RequestTimeout: 5 * time.Second},
		Store:  config.StoreConfig{Driver: config.StoreDriverFile, DataDir: "/material"},
		Security: config.SecurityConfig{
			CORSAllowedOrigins: "*",
			TokenExpiresIn:     time.Hour,
			TokenIssuer:        "catalog-test",
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func memStore(t *testing.T) ports.DocumentStore {
	t.Helper()

	backend, err := repository.NewFileBackend(afero.NewMemMapFs(), "/material")
	require.NoError(t, err)
	return repository.NewDocumentStore(backend, entities.Defaults{SiteTitle: "Osama Flash", AboutContent: "about"}, logger.NewNop())
}

func newTestServer(t *testing.T, cfg *config.Config, store ports.DocumentStore) http.Handler {
	t.Helper()

	srv, err := New(cfg, store, logger.NewNop())
	require.NoError(t, err)
	return srv.Handler()
}

func do(h http.Handler, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type unhealthyStore struct {
	ports.DocumentStore
}

func (unhealthyStore) HealthCheck(context.Context) error { return errors.New("no route to host") }

func (unhealthyStore) Get(context.Context, entities.DocumentKey, interface{}) error {
	return errors.New("no route to host")
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(testConfig(), nil, logger.NewNop())
	assert.Error(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t, testConfig(), memStore(t))

	rec := do(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = do(h, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/health/detailed", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	checks := decode(t, rec)["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["store"].(map[string]interface{})["status"])
}

func TestUnhealthyStore(t *testing.T) {
	h := newTestServer(t, testConfig(), unhealthyStore{memStore(t)})

	rec := do(h, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(h, http.MethodGet, "/health/detailed", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "no route to host")

	rec = do(h, http.MethodGet, "/api/api.php?action=get_all", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]interface{}{"error": "Internal server error"}, decode(t, rec))

	rec = do(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`http_requests_total{action="get_all",method="GET",path="/api/api.php",status="500"} 1`)
	assert.NotContains(t, rec.Body.String(), `action="get_all",method="GET",path="/api/api.php",status="200"`)
}

func TestBothEndpointPaths(t *testing.T) {
	h := newTestServer(t, testConfig(), memStore(t))

	for _, path := range []string{"/api/api.php", "/api"} {
		rec := do(h, http.MethodGet, path+"?action=increment_visitor", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := do(h, http.MethodGet, "/material/stats.txt", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"visitors": 2`)

	rec = do(h, http.MethodGet, "/material/secret.txt", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]interface{}{"error": "Not found"}, decode(t, rec))
}

func TestAdminTokenRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.TokenSecret = "server-test-secret"
	cfg.Security.RequireAdminToken = true
	h := newTestServer(t, cfg, memStore(t))

	addBody := `{"name":"Foo","type":"Game"}`

	rec := do(h, http.MethodPost, "/api/api.php?action=add_item", addBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodPost, "/api/api.php?action=add_item", addBody, http.Header{"Authorization": {"Bearer not-a-token"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// public actions stay open
	rec = do(h, http.MethodGet, "/api/api.php?action=get_all", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodPost, "/api/api.php?action=login", `{"password":""}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode(t, rec)
	require.Equal(t, true, login["success"])
	token, ok := login["token"].(string)
	require.True(t, ok)

	rec = do(h, http.MethodPost, "/api/api.php?action=add_item", addBody, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["success"])
}

func TestAdminTokenNotRequiredByDefault(t *testing.T) {
	h := newTestServer(t, testConfig(), memStore(t))

	rec := do(h, http.MethodPost, "/api/api.php?action=add_item", `{"name":"Foo"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, testConfig(), memStore(t))

	do(h, http.MethodPost, "/api?action=increment_visitor", "", nil)
	do(h, http.MethodPost, "/api?action=nonsense", "", nil)

	rec := do(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "catalog_visitors_total 1")
	assert.Contains(t, body, `action="increment_visitor"`)
	assert.Contains(t, body, `action="other"`)
	assert.NotContains(t, body, "nonsense")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	h := newTestServer(t, cfg, memStore(t))

	rec := do(h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSwaggerDoc(t *testing.T) {
	h := newTestServer(t, testConfig(), memStore(t))

	rec := do(h, http.MethodGet, "/swagger/doc.json", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/api.php")
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, splitOrigins(""))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitOrigins("https://a.example, https://b.example,"))
}
