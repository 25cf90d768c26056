package restapi

import (
	"fmt"
	"net/http"
	"time"
)

const noCache = "no-cache, no-store, must-revalidate"

// queryKind names what an endpoint answers, for the cache policy.
type queryKind string

const (
	journeyQuery   queryKind = "journey"
	departureQuery queryKind = "departure"
	locationQuery  queryKind = "location"
	backendsQuery  queryKind = "backends"
)

// cacheMaxAge is how long a client may reuse a successful answer. Journeys
// and departures carry realtime delays and platforms; stations and the
// backend list only change with a deployment.
var cacheMaxAge = map[queryKind]time.Duration{
	journeyQuery:   30 * time.Second,
	departureQuery: 30 * time.Second,
	locationQuery:  5 * time.Minute,
	backendsQuery:  5 * time.Minute,
}

func cacheControlFor(kind queryKind) string {
	maxAge := cacheMaxAge[kind]
	if maxAge <= 0 {
		return noCache
	}
	return fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
}

// withCachePolicy sets Cache-Control on the answer of next from the policy
// of kind. Anything but a 2xx, and any answer marked with
// markUncacheable, gets noCache.
func withCachePolicy(kind queryKind, next http.Handler) http.Handler {
	header := cacheControlFor(kind)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&cachePolicyWriter{ResponseWriter: w, header: header}, r)
	})
}

// markUncacheable keeps the answer about to be written to w out of client
// caches. It must be called before the first write.
func markUncacheable(w http.ResponseWriter) {
	if cw, ok := w.(*cachePolicyWriter); ok {
		cw.header = noCache
	}
}

type cachePolicyWriter struct {
	http.ResponseWriter
	header      string
	wroteHeader bool
}

func (w *cachePolicyWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		header := w.header
		if code < 200 || code >= 300 {
			header = noCache
		}
		w.ResponseWriter.Header().Set("Cache-Control", header)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cachePolicyWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
