package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitquery/internal/appconf"
)

func checkHealth(t *testing.T, api *RestAPI) (int, HealthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	api.healthHandler(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w.Code, resp
}

func TestHealthHandlerWithNilApplication(t *testing.T) {
	code, resp := checkHealth(t, &RestAPI{})

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, "manager not initialized", resp.Detail)
}

func TestHealthHandlerReturnsOK(t *testing.T) {
	server := serveApi(t, createTestApi(t))

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var healthResp HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&healthResp))
	assert.Equal(t, "ok", healthResp.Status)
	assert.Equal(t, 1, healthResp.Backends)
}

func TestHealthHandlerWithoutNetworks(t *testing.T) {
	api := createTestApiWith(t, defaultFixtures, func(cfg *appconf.Config) {
		cfg.NetworksDir = t.TempDir()
	})

	code, resp := checkHealth(t, api)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "no networks loaded", resp.Detail)
}

func TestHealthHandlerWithoutCacheDir(t *testing.T) {
	api := createTestApi(t)
	require.NoError(t, os.RemoveAll(api.Cache.Root()))

	code, resp := checkHealth(t, api)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "cache directory unavailable", resp.Detail)
	assert.Equal(t, 1, resp.Backends)
}
