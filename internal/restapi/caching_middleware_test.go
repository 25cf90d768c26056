package restapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheControlFor(t *testing.T) {
	assert.Equal(t, "public, max-age=30", cacheControlFor(journeyQuery))
	assert.Equal(t, "public, max-age=30", cacheControlFor(departureQuery))
	assert.Equal(t, "public, max-age=300", cacheControlFor(locationQuery))
	assert.Equal(t, "public, max-age=300", cacheControlFor(backendsQuery))
	assert.Equal(t, noCache, cacheControlFor(queryKind("unknown")))
}

func TestWithCachePolicy(t *testing.T) {
	tests := []struct {
		name        string
		kind        queryKind
		status      int
		writeHeader bool
		uncacheable bool
		want        string
	}{
		{"implicit success", locationQuery, http.StatusOK, false, false, "public, max-age=300"},
		{"explicit success", departureQuery, http.StatusOK, true, false, "public, max-age=30"},
		{"marked uncacheable", departureQuery, http.StatusOK, false, true, noCache},
		{"provider failure", journeyQuery, http.StatusBadGateway, true, false, noCache},
		{"rate limited", locationQuery, http.StatusTooManyRequests, true, false, noCache},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := withCachePolicy(tt.kind, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.uncacheable {
					markUncacheable(w)
				}
				if tt.writeHeader {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte("{}"))
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/departures", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Cache-Control"))
		})
	}
}

func TestMarkUncacheable_OutsidePolicy(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() { markUncacheable(rec) })
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestCacheControlHeaders(t *testing.T) {
	api := createTestApiWith(t, map[string]fixture{
		"departures": {file: "departures.json"},
		"arrivals":   {body: `{"arrivals":[]}`},
		"places":     {file: "places.json"},
	}, nil)
	server := serveApi(t, api)

	tests := []struct {
		name     string
		endpoint string
		status   int
		want     string
	}{
		{"backends", "/api/backends", http.StatusOK, "public, max-age=300"},
		{"locations", "/api/locations?name=Gare+de+Lyon", http.StatusOK, "public, max-age=300"},
		{"departures", "/api/departures?lat=48.85856&lon=2.34748", http.StatusOK, "public, max-age=30"},
		{"empty arrival board", "/api/departures?lat=48.85856&lon=2.34748&arrival=1", http.StatusOK, noCache},
		{"bad request", "/api/locations", http.StatusBadRequest, noCache},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + tt.endpoint)
			require.NoError(t, err)
			_, err = io.ReadAll(resp.Body)
			require.NoError(t, err)
			_ = resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.want, resp.Header.Get("Cache-Control"))
		})
	}

	m := api.Metrics
	assert.Equal(t, float64(1), testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("/api/departures", "200", outcomeEmpty)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("/api/departures", "200", outcomeResults)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("/api/locations", "400", outcomeInvalid)))
}
