// Package hafasmgate is a client for the Hafas "mgate" JSON interface.
package hafasmgate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"transitquery/internal/backend"
	"transitquery/internal/models"
	"transitquery/internal/reply"
)

// Backend queries one mgate endpoint.
type Backend struct {
	backend.Base
	settings Settings
	compiled compiledSettings
	parser   *parser
}

// New builds an mgate backend. Settings are checked here so that broken
// descriptors fail at load time rather than on the first query.
func New(id string, settings Settings, deps backend.Deps) (*Backend, error) {
	compiled, err := settings.compile(id)
	if err != nil {
		return nil, fmt.Errorf("hafas_mgate backend %q: %w", id, err)
	}
	b := &Backend{
		Base:     backend.NewBase(id, deps),
		settings: settings,
		compiled: compiled,
	}
	b.parser = &parser{
		idType:    compiled.idType,
		lineModes: compiled.lineModes,
		location:  compiled.location,
		zoneKnown: compiled.zoneKnown,
		logger:    b.Logger(),
	}
	return b, nil
}

func (b *Backend) IsSecure() bool {
	return strings.EqualFold(b.compiled.endpoint.Scheme, "https")
}

// LocationIdentifierType is the identifier scheme station ids are stored under.
func (b *Backend) LocationIdentifierType() string {
	return b.compiled.idType
}

func (b *Backend) QueryDeparture(ctx context.Context, r *reply.DepartureReply) backend.Dispatch {
	req := r.Request()
	if !b.canResolve(req.Stop) {
		return backend.NotSupported
	}

	backend.Run(ctx, &b.Base, "departure", r, func(ctx context.Context) ([]models.Departure, error) {
		stationID, err := b.stationID(ctx, req.Stop)
		if err != nil {
			return nil, err
		}
		data, err := b.call(ctx, "departure", stationBoardRequest(stationID, b.localTime(req.DateTime), req.Mode))
		if err != nil {
			return nil, err
		}
		return b.parser.parseDepartures(data)
	})
	return backend.Accepted
}

func (b *Backend) QueryJourney(ctx context.Context, r *reply.JourneyReply) backend.Dispatch {
	req := r.Request()
	if !b.canResolve(req.From) || !b.canResolve(req.To) {
		return backend.NotSupported
	}

	backend.Run(ctx, &b.Base, "journey", r, func(ctx context.Context) ([]models.Journey, error) {
		fromID, err := b.stationID(ctx, req.From)
		if err != nil {
			return nil, fmt.Errorf("departure location: %w", err)
		}
		toID, err := b.stationID(ctx, req.To)
		if err != nil {
			return nil, fmt.Errorf("arrival location: %w", err)
		}
		data, err := b.call(ctx, "journey", tripSearchRequest(fromID, toID, b.localTime(req.DateTime), req.DateTimeMode))
		if err != nil {
			return nil, err
		}
		return b.parser.parseJourneys(data)
	})
	return backend.Accepted
}

func (b *Backend) QueryLocation(ctx context.Context, r *reply.LocationReply) backend.Dispatch {
	req := r.Request()
	if !req.IsValid() {
		return backend.NotSupported
	}

	backend.Run(ctx, &b.Base, "location", r, func(ctx context.Context) ([]models.Location, error) {
		return b.LookupLocations(ctx, req, b.lookupLocations)
	})
	return backend.Accepted
}

func (b *Backend) canResolve(loc models.Location) bool {
	return loc.Identifier(b.compiled.idType) != "" || loc.HasCoordinate() || strings.TrimSpace(loc.Name) != ""
}

// stationID returns the provider station id for loc, resolving it through
// the location cache and a location search if loc does not carry one.
func (b *Backend) stationID(ctx context.Context, loc models.Location) (string, error) {
	if id := loc.Identifier(b.compiled.idType); id != "" {
		return id, nil
	}
	locs, err := b.ResolveLocation(ctx, loc, b.lookupLocations)
	if err != nil {
		return "", err
	}
	first, ok := backend.FirstIdentifier(locs, b.compiled.idType)
	if !ok {
		return "", fmt.Errorf("no %s station id for %q: %w", b.compiled.idType, loc.Name, backend.ErrNotFound)
	}
	return first.Identifier(b.compiled.idType), nil
}

func (b *Backend) lookupLocations(ctx context.Context, req models.LocationRequest) ([]models.Location, error) {
	svc := locationRequest(req)
	data, err := b.call(ctx, "location", svc)
	if err != nil {
		return nil, err
	}
	return b.parser.parseLocationResult(data, svc.Meth)
}

func (b *Backend) call(ctx context.Context, kind string, svc serviceReq) ([]byte, error) {
	body, err := b.encode(svc)
	if err != nil {
		return nil, err
	}
	return b.PostJSON(ctx, kind, b.requestURL(body), body, nil)
}

// localTime converts t to the provider's zone. The zero time means now.
func (b *Backend) localTime(t time.Time) time.Time {
	if t.IsZero() {
		t = b.Clock().Now()
	}
	return t.In(b.compiled.location)
}
