// Package cache is the on-disk store for provider lookups.
//
// Entries live at <root>/<backendID>/<contentType>/<cacheKey>.json. A file
// holding a JSON array is a positive entry, a zero-length file is a negative
// entry ("looked up before, nothing found") and a missing file is a miss.
// The cache fails open: I/O and decode problems are logged and reported as
// misses, never returned to the caller.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"transitquery/internal/clock"
	"transitquery/internal/logging"
	"transitquery/internal/metrics"
	"transitquery/internal/models"
)

// MaxAge is the age after which Expire removes an entry.
const MaxAge = 30 * 24 * time.Hour

const locationContentType = "location"

// EntryType is the result class of a lookup.
type EntryType int

const (
	Miss EntryType = iota
	Positive
	Negative
)

func (t EntryType) String() string {
	switch t {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "miss"
	}
}

// Entry is the result of a lookup. Data is only set for Positive entries.
type Entry[T any] struct {
	Type EntryType
	Data []T
}

// Cache is safe for concurrent use. Writes replace entries atomically, so
// concurrent writes to the same key simply overwrite each other.
type Cache struct {
	root    string
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	expiryStarted atomic.Bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

type Option func(*Cache)

func WithClock(c clock.Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cache *Cache) { cache.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(cache *Cache) { cache.logger = l }
}

// New creates a cache rooted at root. The directory is created lazily.
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:   root,
		clock:  clock.RealClock{},
		logger: slog.Default().With(slog.String("component", "cache")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// AddLocationCacheEntry stores a positive location lookup result.
func (c *Cache) AddLocationCacheEntry(backendID, cacheKey string, locations []models.Location) {
	addEntry(c, backendID, locationContentType, cacheKey, locations)
}

// AddNegativeLocationCacheEntry records that a location lookup found nothing.
func (c *Cache) AddNegativeLocationCacheEntry(backendID, cacheKey string) {
	addNegativeEntry(c, backendID, locationContentType, cacheKey)
}

// LookupLocation returns the cached location lookup result for the key.
func (c *Cache) LookupLocation(backendID, cacheKey string) Entry[models.Location] {
	return lookup[models.Location](c, backendID, locationContentType, cacheKey)
}

func (c *Cache) path(backendID, contentType, cacheKey string) string {
	return filepath.Join(c.root, backendID, contentType, cacheKey+".json")
}

func addEntry[T any](c *Cache, backendID, contentType, cacheKey string, data []T) {
	if data == nil {
		data = []T{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		c.writeFailed(err, backendID, cacheKey)
		return
	}
	c.write(backendID, contentType, cacheKey, payload)
}

func addNegativeEntry(c *Cache, backendID, contentType, cacheKey string) {
	c.write(backendID, contentType, cacheKey, nil)
}

func (c *Cache) write(backendID, contentType, cacheKey string, payload []byte) {
	p := c.path(backendID, contentType, cacheKey)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		c.writeFailed(err, backendID, cacheKey)
		return
	}
	if err := writeFileAtomic(p, payload); err != nil {
		c.writeFailed(err, backendID, cacheKey)
	}
}

// writeFileAtomic replaces p in one step, so readers see either the old or
// the new content and never a truncated file.
func writeFileAtomic(p string, payload []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(payload); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (c *Cache) writeFailed(err error, backendID, cacheKey string) {
	c.metrics.IncCacheWriteFailure()
	logging.LogError(c.logger, "failed to write cache entry", err,
		slog.String("backend", backendID),
		slog.String("cache_key", cacheKey))
}

func lookup[T any](c *Cache, backendID, contentType, cacheKey string) Entry[T] {
	entry := readEntry[T](c, backendID, contentType, cacheKey)
	c.metrics.IncCacheLookup(entry.Type.String())
	return entry
}

func readEntry[T any](c *Cache, backendID, contentType, cacheKey string) Entry[T] {
	data, err := os.ReadFile(c.path(backendID, contentType, cacheKey))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("cache read failed, treating as miss",
				slog.String("backend", backendID),
				slog.String("cache_key", cacheKey),
				slog.Any("error", err))
		}
		return Entry[T]{Type: Miss}
	}
	if len(data) == 0 {
		return Entry[T]{Type: Negative}
	}

	var result []T
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Debug("corrupt cache entry, treating as miss",
			slog.String("backend", backendID),
			slog.String("cache_key", cacheKey),
			slog.Any("error", err))
		return Entry[T]{Type: Miss}
	}
	return Entry[T]{Type: Positive, Data: result}
}

// Expire removes entries older than MaxAge and then any directory below the
// root left empty. It returns the number of removed files.
func (c *Cache) Expire() int {
	threshold := c.clock.Now().Add(-MaxAge)
	removed := 0
	var dirs []string

	err := filepath.WalkDir(c.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			c.logger.Debug("cache walk error", slog.String("path", p), slog.Any("error", err))
			return nil
		}
		if d.IsDir() {
			if p != c.root {
				dirs = append(dirs, p)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(threshold) {
			if err := os.Remove(p); err != nil {
				c.logger.Debug("failed to remove expired cache file", slog.String("path", p), slog.Any("error", err))
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		logging.LogError(c.logger, "cache expiry walk failed", err)
	}

	// deepest directories first
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err == nil && len(entries) == 0 {
			_ = os.Remove(dirs[i])
		}
	}

	c.metrics.AddCacheExpired(removed)
	logging.LogOperation(c.logger, "cache_expired",
		slog.String("root", c.root),
		slog.Int("removed_files", removed))
	return removed
}

// StartExpiry runs Expire every interval in a background goroutine.
// Calling it more than once has no effect. Call Shutdown to stop it.
func (c *Cache) StartExpiry(interval time.Duration) {
	if interval <= 0 {
		return
	}
	if !c.expiryStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	c.wg.Add(1)
	c.cancel = cancel

	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("panic in cache expiry loop", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Expire()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the expiry goroutine and waits for it to exit.
// It is safe to call multiple times.
func (c *Cache) Shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
