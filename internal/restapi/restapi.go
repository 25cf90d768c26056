// Package restapi exposes the manager's queries as a JSON API over HTTP.
package restapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transitquery/internal/app"
)

// RestAPI serves queries against an Application.
type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

// NewRestAPI creates a RestAPI. Stop the rate limiter with Shutdown.
func NewRestAPI(app *app.Application) *RestAPI {
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(app.Config.RateLimit, time.Second, app.Config.RateLimitExempt, app.Clock),
	}
}

// SetRoutes registers every endpoint on mux. Query endpoints are rate
// limited per client; health and metrics are not.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	limited := api.rateLimiter.Handler()

	mux.Handle("GET /api/journeys", limited(withCachePolicy(journeyQuery, http.HandlerFunc(api.journeysHandler))))
	mux.Handle("GET /api/departures", limited(withCachePolicy(departureQuery, http.HandlerFunc(api.departuresHandler))))
	mux.Handle("GET /api/locations", limited(withCachePolicy(locationQuery, http.HandlerFunc(api.locationsHandler))))
	mux.Handle("GET /api/backends", withCachePolicy(backendsQuery, http.HandlerFunc(api.backendsHandler)))
	mux.HandleFunc("GET /healthz", api.healthHandler)
	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", api.sendNotFound)
}

// Handler returns the routes wrapped in request id, logging and metrics
// middleware.
func (api *RestAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	api.SetRoutes(mux)

	var handler http.Handler = mux
	handler = MetricsHandler(api.Metrics)(handler)
	handler = NewRequestLoggingMiddleware(api.Logger)(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}

// Shutdown stops background work owned by the API, not the Application.
func (api *RestAPI) Shutdown() {
	api.rateLimiter.Stop()
}
