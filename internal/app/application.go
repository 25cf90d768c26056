// Package app wires the configuration into a ready-to-query manager.
package app

import (
	"fmt"
	"log/slog"
	"os"

	"transitquery/internal/appconf"
	"transitquery/internal/cache"
	"transitquery/internal/clock"
	"transitquery/internal/manager"
	"transitquery/internal/metrics"
)

// Application holds the long-lived dependencies of a process: the location
// cache, the metrics registry and the manager built on top of them.
type Application struct {
	Config  appconf.Config
	Logger  *slog.Logger
	Cache   *cache.Cache
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Manager *manager.Manager
}

// New builds an Application from cfg. A nil clk means the system clock.
func New(cfg appconf.Config, logger *slog.Logger, clk clock.Clock) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	m := metrics.NewWithLogger(logger)
	c := cache.New(cfg.CacheDir,
		cache.WithClock(clk),
		cache.WithMetrics(m),
		cache.WithLogger(logger.With(slog.String("component", "cache"))))

	mgr, err := manager.New(manager.Options{
		NetworksDir:           cfg.NetworksDir,
		SkipBundled:           cfg.SkipBundledNetworks,
		AllowInsecureBackends: cfg.AllowInsecureBackends,
		Cache:                 c,
		Metrics:               m,
		Clock:                 clk,
		Logger:                logger,
	})
	if err != nil {
		return nil, err
	}

	return &Application{
		Config:  cfg,
		Logger:  logger,
		Cache:   c,
		Clock:   clk,
		Metrics: m,
		Manager: mgr,
	}, nil
}

// StartMaintenance begins periodic cache expiry if an interval is configured.
func (app *Application) StartMaintenance() {
	if app.Config.CacheExpiryInterval > 0 {
		app.Cache.StartExpiry(app.Config.CacheExpiryInterval)
	}
}

// Shutdown stops background work.
func (app *Application) Shutdown() {
	app.Cache.Shutdown()
}
