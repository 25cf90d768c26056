package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitquery/internal/app"
	"transitquery/internal/appconf"
)

func testApplication(t *testing.T) *app.Application {
	t.Helper()
	cfg := appconf.Default()
	cfg.Env = appconf.Test
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	cfg.RequestTimeout = 20 * time.Second

	coreApp, err := app.New(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(coreApp.Shutdown)
	return coreApp
}

func TestCreateServer(t *testing.T) {
	srv, api := CreateServer(testApplication(t))
	defer api.Shutdown()

	assert.Equal(t, ":8080", srv.Addr, "Server address should match configuration")
	assert.NotNil(t, srv.Handler, "Server handler should be set")
	assert.Equal(t, time.Minute, srv.IdleTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadTimeout)
	assert.Equal(t, 30*time.Second, srv.WriteTimeout, "write timeout covers the query timeout")
}

func TestCreateServerHandlerResponds(t *testing.T) {
	srv, api := CreateServer(testApplication(t))
	defer api.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/api/backends", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRunStartsAndStopsCleanly(t *testing.T) {
	coreApp := testApplication(t)
	srv, api := CreateServer(coreApp)
	defer api.Shutdown()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, srv, ln, coreApp.Logger)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "Server should shutdown cleanly")
	case <-time.After(10 * time.Second):
		t.Fatal("Test timeout - server did not shutdown")
	}
}

func TestServeCommand_BadListenAddress(t *testing.T) {
	_, err := execute(t, "serve", "--listen", "256.0.0.1:-1")
	assert.Error(t, err)
}
