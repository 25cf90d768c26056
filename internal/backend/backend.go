// Package backend defines the capability interface every provider client
// implements and the plumbing they share: geo filtering, HTTP access, rate
// limiting, the location cache and reporting into replies.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"transitquery/internal/cache"
	"transitquery/internal/clock"
	"transitquery/internal/logging"
	"transitquery/internal/metrics"
	"transitquery/internal/models"
	"transitquery/internal/reply"
	"transitquery/internal/utils"
)

// Dispatch is a backend's answer to being offered a query.
type Dispatch int

const (
	// NotSupported means the backend cannot serve this query and will not
	// report into the reply.
	NotSupported Dispatch = iota
	// Accepted means the backend started an attempt and will report into the
	// reply exactly once.
	Accepted
)

func (d Dispatch) String() string {
	if d == Accepted {
		return "accepted"
	}
	return "not_supported"
}

// Backend is one provider client.
type Backend interface {
	ID() string
	// IsSecure reports whether the provider is reached over an encrypted transport.
	IsSecure() bool
	// IsLocationExcluded reports whether the geo filter rules out loc.
	IsLocationExcluded(loc models.Location) bool

	QueryJourney(ctx context.Context, r *reply.JourneyReply) Dispatch
	QueryDeparture(ctx context.Context, r *reply.DepartureReply) Dispatch
	QueryLocation(ctx context.Context, r *reply.LocationReply) Dispatch
}

// Deps are the shared services handed to every backend.
type Deps struct {
	Cache      *cache.Cache
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Base carries what all backends have in common. Concrete backends embed it
// and override the capability methods they support.
type Base struct {
	id        string
	geoFilter utils.Polygon
	client    *http.Client
	limiter   *rate.Limiter
	cache     *cache.Cache
	metrics   *metrics.Metrics
	clock     clock.Clock
	logger    *slog.Logger
}

// NewBase builds the shared part of a backend with the given id.
func NewBase(id string, deps Deps) Base {
	b := Base{
		id:      id,
		client:  deps.HTTPClient,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		clock:   deps.Clock,
		logger:  deps.Logger,
	}
	if b.client == nil {
		b.client = defaultHTTPClient
	}
	if b.clock == nil {
		b.clock = clock.RealClock{}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With(slog.String("component", "backend"), slog.String("backend", id))
	return b
}

func (b *Base) ID() string {
	return b.id
}

// IsSecure is false unless a backend knows better.
func (b *Base) IsSecure() bool {
	return false
}

func (b *Base) SetGeoFilter(p utils.Polygon) {
	b.geoFilter = p
}

func (b *Base) GeoFilter() utils.Polygon {
	return b.geoFilter
}

// IsLocationExcluded is true if a geo filter is set, loc has a coordinate and
// the coordinate lies outside the filter polygon.
func (b *Base) IsLocationExcluded(loc models.Location) bool {
	if len(b.geoFilter) == 0 || !loc.HasCoordinate() {
		return false
	}
	return !b.geoFilter.Contains(loc.Latitude, loc.Longitude)
}

// SetRateLimit limits outbound requests to rps per second. Zero or less
// removes the limit.
func (b *Base) SetRateLimit(rps float64) {
	if rps <= 0 {
		b.limiter = nil
		return
	}
	b.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

func (b *Base) Cache() *cache.Cache {
	return b.cache
}

func (b *Base) Clock() clock.Clock {
	return b.clock
}

func (b *Base) Logger() *slog.Logger {
	return b.logger
}

func (b *Base) QueryJourney(context.Context, *reply.JourneyReply) Dispatch {
	return NotSupported
}

func (b *Base) QueryDeparture(context.Context, *reply.DepartureReply) Dispatch {
	return NotSupported
}

func (b *Base) QueryLocation(context.Context, *reply.LocationReply) Dispatch {
	return NotSupported
}

// Run performs one query attempt on its own goroutine and reports its
// outcome into sink exactly once. A panic inside fn is reported as an
// UnknownError.
func Run[T any](ctx context.Context, b *Base, kind string, sink reply.Sink[T], fn func(ctx context.Context) ([]T, error)) {
	logger := logging.FromContext(ctx).With(slog.String("backend", b.id), slog.String("kind", kind))
	go func() {
		start := time.Now()
		res, err := safeCall(ctx, fn)
		if err != nil {
			code := ErrorCodeFor(err)
			logger.Debug("backend query failed",
				slog.String("error_code", code.String()),
				slog.Any("error", err),
				slog.Duration("duration", time.Since(start)))
			sink.AddError(code, err.Error())
			return
		}
		logger.Debug("backend query finished",
			slog.Int("results", len(res)),
			slog.Duration("duration", time.Since(start)))
		sink.AddResult(res)
	}()
}

func safeCall[T any](ctx context.Context, fn func(ctx context.Context) ([]T, error)) (res []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}
