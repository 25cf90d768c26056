package restapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"transitquery/internal/metrics"
)

// Query outcomes beyond the reply error codes.
const (
	outcomeNone    = "none"
	outcomeResults = "results"
	outcomeEmpty   = "empty"
	outcomeTimeout = "timeout"
	outcomeInvalid = "invalid"
)

type outcomeKey struct{}

// setOutcome notes how the query behind r answered. It is a no-op outside
// MetricsHandler.
func setOutcome(r *http.Request, outcome string) {
	if slot, ok := r.Context().Value(outcomeKey{}).(*string); ok {
		*slot = outcome
	}
}

// routeLabel is the matched pattern without its method, or "unmatched".
func routeLabel(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

// MetricsHandler records every request by route, status and query outcome.
// It must wrap the ServeMux directly: the mux stores the matched pattern on
// the request it receives. A nil m disables it.
func MetricsHandler(m *metrics.Metrics) func(http.Handler) http.Handler {
	if m == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			outcome := outcomeNone
			r = r.WithContext(context.WithValue(r.Context(), outcomeKey{}, &outcome))
			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(recorder, r)

			m.ObserveAPIRequest(routeLabel(r.Pattern), recorder.statusCode, outcome, time.Since(start))
		})
	}
}
