// Package manager loads the configured networks and fans every query out to
// the backends that can serve it.
package manager

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"transitquery/internal/backend"
	"transitquery/internal/cache"
	"transitquery/internal/clock"
	"transitquery/internal/logging"
	"transitquery/internal/metrics"
	"transitquery/internal/models"
	"transitquery/internal/reply"
	"transitquery/internal/utils"
)

//go:embed networks/*.json
var bundledNetworks embed.FS

// Options configure a Manager.
type Options struct {
	// NetworksDir is an optional directory of additional descriptors. A
	// descriptor there replaces a bundled one with the same id.
	NetworksDir string
	// SkipBundled leaves out the descriptors compiled into the binary.
	SkipBundled           bool
	AllowInsecureBackends bool

	Cache      *cache.Cache
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *slog.Logger
}

// BackendInfo describes a loaded backend.
type BackendInfo struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Secure      bool   `json:"secure"`
	GeoFiltered bool   `json:"geoFiltered"`
}

type registered struct {
	backend backend.Backend
	info    BackendInfo
}

// Manager owns the backends. Queries may be issued concurrently.
type Manager struct {
	backends      []registered
	coverage      coverageIndex
	allowInsecure bool

	cache   *cache.Cache
	metrics *metrics.Metrics
	clock   clock.Clock
	logger  *slog.Logger
}

func newManager(opts Options) *Manager {
	manager := &Manager{
		allowInsecure: opts.AllowInsecureBackends,
		cache:         opts.Cache,
		metrics:       opts.Metrics,
		clock:         opts.Clock,
		logger:        opts.Logger,
	}
	if manager.clock == nil {
		manager.clock = clock.RealClock{}
	}
	if manager.logger == nil {
		manager.logger = slog.Default()
	}
	manager.logger = manager.logger.With(slog.String("component", "manager"))
	return manager
}

// New loads the bundled descriptors plus those in opts.NetworksDir and
// builds one backend per descriptor. Broken descriptors are logged and
// skipped; only an unreadable NetworksDir is an error.
func New(opts Options) (*Manager, error) {
	manager := newManager(opts)

	var descriptors []Descriptor
	if !opts.SkipBundled {
		bundled, err := loadDescriptors(bundledNetworks, "networks", manager.logger)
		if err != nil {
			return nil, err
		}
		descriptors = bundled
	}
	if opts.NetworksDir != "" {
		info, err := os.Stat(opts.NetworksDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open networks directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("networks directory %s is not a directory", opts.NetworksDir)
		}
		extra, err := loadDescriptors(os.DirFS(opts.NetworksDir), ".", manager.logger)
		if err != nil {
			return nil, err
		}
		descriptors = mergeDescriptors(descriptors, extra)
	}

	deps := backend.Deps{
		Cache:      opts.Cache,
		Metrics:    opts.Metrics,
		HTTPClient: opts.HTTPClient,
		Clock:      manager.clock,
		Logger:     opts.Logger,
	}
	for _, d := range descriptors {
		b, err := newBackend(d, deps)
		if err != nil {
			logging.LogError(manager.logger, "failed to create backend", err, slog.String("backend", d.ID))
			continue
		}
		manager.register(b, d.Type, d.Polygon())
	}

	logging.LogOperation(manager.logger, "networks_loaded", slog.Int("count", len(manager.backends)))
	return manager, nil
}

// mergeDescriptors appends extra to base, replacing entries of base that
// share an id.
func mergeDescriptors(base, extra []Descriptor) []Descriptor {
	index := make(map[string]int, len(base))
	for i, d := range base {
		index[d.ID] = i
	}
	for _, d := range extra {
		if i, ok := index[d.ID]; ok {
			base[i] = d
			continue
		}
		index[d.ID] = len(base)
		base = append(base, d)
	}
	return base
}

func (manager *Manager) register(b backend.Backend, typ string, fence utils.Polygon) {
	idx := len(manager.backends)
	manager.backends = append(manager.backends, registered{
		backend: b,
		info: BackendInfo{
			ID:          b.ID(),
			Type:        typ,
			Secure:      b.IsSecure(),
			GeoFiltered: len(fence) > 0,
		},
	})
	manager.coverage.insert(idx, fence)
}

// Backends lists the loaded backends in registration order.
func (manager *Manager) Backends() []BackendInfo {
	out := make([]BackendInfo, len(manager.backends))
	for i, r := range manager.backends {
		out[i] = r.info
	}
	return out
}

// BackendsServing lists the backends a query about loc would be offered to
// by location: those without a geo filter and those whose filter contains
// loc. Without a coordinate every backend qualifies.
func (manager *Manager) BackendsServing(loc models.Location) []BackendInfo {
	covering := manager.coverage.covering(loc)
	out := make([]BackendInfo, 0, len(manager.backends))
	for i, r := range manager.backends {
		if covering != nil && r.info.GeoFiltered && !covering[i] {
			continue
		}
		out = append(out, r.info)
	}
	return out
}

// QueryJourney offers req to every eligible backend. A zero date/time means
// now.
func (manager *Manager) QueryJourney(ctx context.Context, req models.JourneyRequest) *reply.JourneyReply {
	if req.DateTime.IsZero() {
		req = req.WithDateTime(manager.clock.Now())
	}
	r := reply.NewJourneyReply(req)
	ctx, logger := manager.startQuery(ctx, "journey", r)

	locs := []models.Location{req.From, req.To}
	covering := manager.covering(locs)
	pending := 0
	for i, reg := range manager.backends {
		if !manager.admit(logger, "journey", i, locs, covering) {
			continue
		}
		pending += manager.dispatched(logger, "journey", reg, reg.backend.QueryJourney(ctx, r))
	}
	r.SetPendingOps(pending)
	return r
}

// QueryDeparture offers req to every eligible backend. A zero date/time
// means now.
func (manager *Manager) QueryDeparture(ctx context.Context, req models.DepartureRequest) *reply.DepartureReply {
	if req.DateTime.IsZero() {
		req = req.WithDateTime(manager.clock.Now())
	}
	r := reply.NewDepartureReply(req)
	ctx, logger := manager.startQuery(ctx, "departure", r)

	locs := []models.Location{req.Stop}
	covering := manager.covering(locs)
	pending := 0
	for i, reg := range manager.backends {
		if !manager.admit(logger, "departure", i, locs, covering) {
			continue
		}
		pending += manager.dispatched(logger, "departure", reg, reg.backend.QueryDeparture(ctx, r))
	}
	r.SetPendingOps(pending)
	return r
}

// QueryLocation serves req from the location cache where possible and
// offers it to the remaining eligible backends.
func (manager *Manager) QueryLocation(ctx context.Context, req models.LocationRequest) *reply.LocationReply {
	r := reply.NewLocationReply(req)
	ctx, logger := manager.startQuery(ctx, "location", r)

	var locs []models.Location
	if req.HasCoordinate() {
		locs = []models.Location{models.NewLocationAt(req.Name, req.Latitude, req.Longitude)}
	}
	covering := manager.covering(locs)
	key := req.CacheKey()

	pending := 0
	for i, reg := range manager.backends {
		if !manager.admit(logger, "location", i, locs, covering) {
			continue
		}
		if manager.cache != nil {
			entry := manager.cache.LookupLocation(reg.info.ID, key)
			switch entry.Type {
			case cache.Negative:
				logger.Debug("negative cache hit", slog.String("backend", reg.info.ID))
				manager.metrics.IncDispatch("location", "cache_negative")
				continue
			case cache.Positive:
				logger.Debug("positive cache hit", slog.String("backend", reg.info.ID), slog.Int("results", len(entry.Data)))
				manager.metrics.IncDispatch("location", "cache_positive")
				r.AddCachedResult(entry.Data)
				continue
			}
		}
		pending += manager.dispatched(logger, "location", reg, reg.backend.QueryLocation(ctx, r))
	}
	r.SetPendingOps(pending)
	return r
}

// finishable is the part of a reply the manager observes.
type finishable interface {
	OnFinished(fn func())
	ErrorCode() reply.ErrorCode
}

type queryIDKey struct{}

// WithQueryID makes queries started with ctx log under id instead of a
// freshly generated one.
func WithQueryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, queryIDKey{}, id)
}

// QueryID returns the id set by WithQueryID.
func QueryID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(queryIDKey{}).(string)
	return id, ok && id != ""
}

// startQuery assigns a query id, attaches a logger carrying it to ctx and
// records the reply latency once r finishes.
func (manager *Manager) startQuery(ctx context.Context, kind string, r finishable) (context.Context, *slog.Logger) {
	id, ok := QueryID(ctx)
	if !ok {
		id = uuid.NewString()
	}
	logger := manager.logger.With(slog.String("query_id", id), slog.String("kind", kind))
	start := time.Now()
	r.OnFinished(func() {
		code := r.ErrorCode()
		d := time.Since(start)
		manager.metrics.ObserveReply(kind, code.String(), d)
		logging.LogOperation(logger, "query_finished",
			slog.String("error_code", code.String()),
			slog.Duration("duration", d))
	})
	return logging.WithLogger(ctx, logger), logger
}

func (manager *Manager) covering(locs []models.Location) []map[int]bool {
	out := make([]map[int]bool, len(locs))
	for i, loc := range locs {
		out[i] = manager.coverage.covering(loc)
	}
	return out
}

// admit decides whether backend i is offered a query about locs. Insecure
// backends are skipped unless allowed. A geo filtered backend is skipped
// when it excludes every one of locs.
func (manager *Manager) admit(logger *slog.Logger, kind string, i int, locs []models.Location, covering []map[int]bool) bool {
	reg := manager.backends[i]
	if len(locs) > 0 && manager.excludesAll(i, locs, covering) {
		logger.Debug("skipping backend based on location filter", slog.String("backend", reg.info.ID))
		manager.metrics.IncDispatch(kind, "skipped_geo")
		return false
	}
	if !reg.info.Secure && !manager.allowInsecure {
		logger.Debug("skipping insecure backend", slog.String("backend", reg.info.ID))
		manager.metrics.IncDispatch(kind, "skipped_insecure")
		return false
	}
	return true
}

func (manager *Manager) excludesAll(i int, locs []models.Location, covering []map[int]bool) bool {
	reg := manager.backends[i]
	if !reg.info.GeoFiltered {
		return false
	}
	for j := range locs {
		// no coordinate, nothing to exclude
		if covering[j] == nil {
			return false
		}
		if covering[j][i] {
			return false
		}
	}
	return true
}

func (manager *Manager) dispatched(logger *slog.Logger, kind string, reg registered, d backend.Dispatch) int {
	manager.metrics.IncDispatch(kind, d.String())
	if d != backend.Accepted {
		return 0
	}
	logger.Debug("backend accepted query", slog.String("backend", reg.info.ID))
	return 1
}
