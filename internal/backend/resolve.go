package backend

import (
	"context"
	"fmt"
	"log/slog"

	"transitquery/internal/cache"
	"transitquery/internal/models"
	"transitquery/internal/reply"
)

// LocationLookup asks a provider for locations matching a request.
type LocationLookup func(ctx context.Context, req models.LocationRequest) ([]models.Location, error)

// ResolveLocation turns loc into provider locations, consulting the cache
// first. On a miss it calls lookup and records the outcome: a positive entry
// for results, a negative entry when the provider found nothing. Transport
// failures are not cached.
func (b *Base) ResolveLocation(ctx context.Context, loc models.Location, lookup LocationLookup) ([]models.Location, error) {
	key := loc.CacheKey()

	if b.cache != nil {
		entry := b.cache.LookupLocation(b.id, key)
		switch entry.Type {
		case cache.Positive:
			if len(entry.Data) > 0 {
				return entry.Data, nil
			}
			return nil, fmt.Errorf("no location found for %q: %w", loc.Name, ErrNotFound)
		case cache.Negative:
			return nil, fmt.Errorf("no location found for %q (cached): %w", loc.Name, ErrNotFound)
		}
	}

	res, err := lookup(ctx, models.LocationRequestFor(loc))
	b.StoreLocationResult(key, res, err)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("no location found for %q: %w", loc.Name, ErrNotFound)
	}
	return res, nil
}

// LookupLocations runs lookup for req and records the outcome in the cache
// under the request's key.
func (b *Base) LookupLocations(ctx context.Context, req models.LocationRequest, lookup LocationLookup) ([]models.Location, error) {
	res, err := lookup(ctx, req)
	b.StoreLocationResult(req.CacheKey(), res, err)
	return res, err
}

// StoreLocationResult caches the outcome of a location lookup under key.
func (b *Base) StoreLocationResult(key string, res []models.Location, err error) {
	if b.cache == nil {
		return
	}
	if err != nil {
		if ErrorCodeFor(err) == reply.NetworkError {
			return
		}
		b.cache.AddNegativeLocationCacheEntry(b.id, key)
		return
	}
	if len(res) == 0 {
		b.cache.AddNegativeLocationCacheEntry(b.id, key)
		return
	}
	b.cache.AddLocationCacheEntry(b.id, key, res)
	b.logger.Debug("cached location lookup", slog.String("cache_key", key), slog.Int("results", len(res)))
}

// FirstIdentifier returns the first non-empty identifier of the given scheme.
func FirstIdentifier(locs []models.Location, scheme string) (models.Location, bool) {
	for _, l := range locs {
		if l.Identifier(scheme) != "" {
			return l, true
		}
	}
	return models.Location{}, false
}
