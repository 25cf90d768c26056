package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New()

	assert.NotNil(t, m.Registry)
	assert.NotNil(t, m.BackendRequestsTotal)
	assert.NotNil(t, m.BackendRequestDuration)
	assert.NotNil(t, m.RateLimitWaitSeconds)
	assert.NotNil(t, m.QueryDispatchTotal)
	assert.NotNil(t, m.ReplyDuration)
	assert.NotNil(t, m.CacheLookupsTotal)
	assert.NotNil(t, m.CacheExpiredFiles)
	assert.NotNil(t, m.CacheWriteFailures)
	assert.NotNil(t, m.APIRequestsTotal)
	assert.NotNil(t, m.APIRequestDuration)
}

func TestNewWithLogger(t *testing.T) {
	m := NewWithLogger(nil)
	assert.NotNil(t, m)
	assert.Nil(t, m.logger)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBackendRequest("db", "departure", "ok", time.Second)
		m.ObserveRateLimitWait("db", time.Second)
		m.IncDispatch("departure", "accepted")
		m.ObserveReply("departure", "NoError", time.Second)
		m.IncCacheLookup("miss")
		m.AddCacheExpired(2)
		m.IncCacheWriteFailure()
		m.ObserveAPIRequest("/api/departures", 200, "results", time.Second)
	})
}

func TestRecordingHelpers(t *testing.T) {
	m := New()

	m.ObserveBackendRequest("sncb", "departure", "ok", 200*time.Millisecond)
	m.ObserveBackendRequest("sncb", "departure", "ok", 100*time.Millisecond)
	m.ObserveBackendRequest("sncb", "departure", "network_error", time.Second)
	m.IncDispatch("journey", "accepted")
	m.IncDispatch("journey", "skipped_geo")
	m.IncCacheLookup("negative")
	m.AddCacheExpired(3)
	m.AddCacheExpired(0)
	m.ObserveRateLimitWait("sncb", 500*time.Millisecond)
	m.ObserveAPIRequest("/api/journeys", 404, "NotFoundError", 2*time.Second)
	m.ObserveAPIRequest("/api/journeys", 404, "NotFoundError", time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.BackendRequestsTotal.WithLabelValues("sncb", "departure", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BackendRequestsTotal.WithLabelValues("sncb", "departure", "network_error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QueryDispatchTotal.WithLabelValues("journey", "skipped_geo")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("negative")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.CacheExpiredFiles))
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.RateLimitWaitSeconds.WithLabelValues("sncb")), 1e-9)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("/api/journeys", "404", "NotFoundError")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.APIRequestDuration))
}

func TestRegistryGather(t *testing.T) {
	m := New()
	m.ObserveReply("location", "NoError", time.Millisecond)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "transitquery_reply_duration_seconds")
}
