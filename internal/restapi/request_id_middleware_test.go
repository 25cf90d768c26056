package restapi

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"transitquery/internal/logging"
	"transitquery/internal/manager"
)

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("should generate request ID if missing", func(t *testing.T) {
		nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID, ok := r.Context().Value(RequestIDKey).(string)
			assert.True(t, ok, "Context should contain request ID")
			assert.NotEmpty(t, reqID, "Request ID should not be empty")
		})

		handlerToTest := RequestIDMiddleware(nextHandler)

		req := httptest.NewRequest("GET", "http://example.com/foo", nil)
		rec := httptest.NewRecorder()

		handlerToTest.ServeHTTP(rec, req)

		respID := rec.Header().Get("X-Request-ID")
		assert.NotEmpty(t, respID, "Response header should contain X-Request-ID")
		assert.Regexp(t, `^[0-9a-f-]{36}$`, respID)
	})

	t.Run("should preserve existing valid request ID", func(t *testing.T) {
		existingID := "my-custom-trace-id-123"

		nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID, ok := r.Context().Value(RequestIDKey).(string)
			assert.True(t, ok)
			assert.Equal(t, existingID, reqID)
		})

		handlerToTest := RequestIDMiddleware(nextHandler)

		req := httptest.NewRequest("GET", "http://example.com/foo", nil)
		req.Header.Set("X-Request-ID", existingID)
		rec := httptest.NewRecorder()

		handlerToTest.ServeHTTP(rec, req)

		assert.Equal(t, existingID, rec.Header().Get("X-Request-ID"))
	})

	t.Run("should preserve exactly 128 character request ID (boundary)", func(t *testing.T) {
		existingID := strings.Repeat("a", 128)

		nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID, ok := r.Context().Value(RequestIDKey).(string)
			assert.True(t, ok)
			assert.Equal(t, existingID, reqID)
		})

		handlerToTest := RequestIDMiddleware(nextHandler)

		req := httptest.NewRequest("GET", "http://example.com/foo", nil)
		req.Header.Set("X-Request-ID", existingID)
		rec := httptest.NewRecorder()

		handlerToTest.ServeHTTP(rec, req)

		assert.Equal(t, existingID, rec.Header().Get("X-Request-ID"))
	})

	t.Run("should replace invalid request ID", func(t *testing.T) {
		testCases := []struct {
			name      string
			invalidID string
		}{
			{
				name:      "ID too long (>128 chars)",
				invalidID: strings.Repeat("a", 129),
			},
			{
				name:      "ID contains invalid characters",
				invalidID: "bad-id-<script>",
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					reqID, ok := r.Context().Value(RequestIDKey).(string)
					assert.True(t, ok)
					assert.NotEqual(t, tc.invalidID, reqID)
					assert.Regexp(t, `^[0-9a-f-]{36}$`, reqID)
				})

				handlerToTest := RequestIDMiddleware(nextHandler)

				req := httptest.NewRequest("GET", "http://example.com/foo", nil)
				req.Header.Set("X-Request-ID", tc.invalidID)
				rec := httptest.NewRecorder()

				handlerToTest.ServeHTTP(rec, req)
			})
		}
	})
}

func TestUsableRequestID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"trace-42", true},
		{"svc:journeys.7_a", true},
		{strings.Repeat("a", maxRequestIDLength), true},
		{"", false},
		{strings.Repeat("a", maxRequestIDLength+1), false},
		{"two words", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, usableRequestID(tt.id), tt.id)
	}
}

func TestRequestIDMiddleware_BecomesQueryID(t *testing.T) {
	var queryID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queryID, _ = manager.QueryID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/departures?name=Bern", nil)
	req.Header.Set("X-Request-ID", "board-bern-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "board-bern-1", queryID)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/departures?name=Bern", nil))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), queryID, "generated ids are used too")
}

func TestRequestIDLoggingIntegration(t *testing.T) {
	var logBuf bytes.Buffer

	testLogger := slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	finalHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	loggingMiddleware := NewRequestLoggingMiddleware(testLogger)(finalHandler)
	handlerToTest := RequestIDMiddleware(loggingMiddleware)

	expectedReqID := "integration-test-id-999"
	req := httptest.NewRequest("GET", "http://example.com/test", nil)
	req.Header.Set("X-Request-ID", expectedReqID)
	rec := httptest.NewRecorder()

	handlerToTest.ServeHTTP(rec, req)

	logOutput := logBuf.String()
	assert.Contains(t, logOutput, `"request_id":"`+expectedReqID+`"`)
	assert.Contains(t, logOutput, `"component":"http_server"`)
	assert.Contains(t, logOutput, `"status":200`)
}

func TestRequestLoggingMiddleware_ContextLogger(t *testing.T) {
	var logBuf bytes.Buffer
	testLogger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	finalHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})
	handlerToTest := RequestIDMiddleware(NewRequestLoggingMiddleware(testLogger)(finalHandler))

	req := httptest.NewRequest("GET", "http://example.com/api/locations", nil)
	req.Header.Set("X-Request-ID", "ctx-logger-1")
	rec := httptest.NewRecorder()
	handlerToTest.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, logBuf.String(), `"msg":"inside handler"`)
	assert.Contains(t, logBuf.String(), `"request_id":"ctx-logger-1"`)
}

func TestGetRequestID(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
	assert.Equal(t, "abc", GetRequestID(context.WithValue(context.Background(), RequestIDKey, "abc")))
}
