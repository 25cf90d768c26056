// Package navitia is a client for the Navitia REST API.
package navitia

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"transitquery/internal/backend"
	"transitquery/internal/models"
	"transitquery/internal/reply"
)

const defaultHost = "api.navitia.io"

// Settings are the provider options of a Navitia descriptor.
type Settings struct {
	// Endpoint is the API host. A full base URL including the scheme is
	// accepted as well.
	Endpoint      string `json:"endpoint"`
	Coverage      string `json:"coverage"`
	Authorization string `json:"authorization"`
	// LocationIdentifierType is the scheme Navitia object ids are stored
	// under. Defaults to the backend id.
	LocationIdentifierType string `json:"locationIdentifierType"`
}

type Backend struct {
	backend.Base
	base     *url.URL
	coverage string
	header   http.Header
	parser   *parser
}

func New(id string, settings Settings, deps backend.Deps) (*Backend, error) {
	endpoint := strings.TrimSpace(settings.Endpoint)
	if endpoint == "" {
		endpoint = defaultHost
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("navitia backend %q: invalid endpoint: %w", id, err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	header := http.Header{}
	if settings.Authorization != "" {
		header.Set("Authorization", settings.Authorization)
	}

	idType := settings.LocationIdentifierType
	if idType == "" {
		idType = id
	}

	b := &Backend{
		Base:     backend.NewBase(id, deps),
		base:     u,
		coverage: settings.Coverage,
		header:   header,
	}
	b.parser = &parser{idType: idType, logger: b.Logger()}
	return b, nil
}

func (b *Backend) IsSecure() bool {
	return strings.EqualFold(b.base.Scheme, "https")
}

func (b *Backend) QueryJourney(ctx context.Context, r *reply.JourneyReply) backend.Dispatch {
	req := r.Request()
	if !req.From.HasCoordinate() || !req.To.HasCoordinate() {
		return backend.NotSupported
	}

	backend.Run(ctx, &b.Base, "journey", r, func(ctx context.Context) ([]models.Journey, error) {
		data, err := b.get(ctx, "journey", b.journeyURL(req))
		if err != nil {
			return nil, err
		}
		return b.parser.parseJourneys(data)
	})
	return backend.Accepted
}

func (b *Backend) QueryDeparture(ctx context.Context, r *reply.DepartureReply) backend.Dispatch {
	req := r.Request()
	if !req.Stop.HasCoordinate() && strings.TrimSpace(req.Stop.Name) == "" {
		return backend.NotSupported
	}

	backend.Run(ctx, &b.Base, "departure", r, func(ctx context.Context) ([]models.Departure, error) {
		stop, err := b.stopWithCoordinate(ctx, req.Stop)
		if err != nil {
			return nil, err
		}
		data, err := b.get(ctx, "departure", b.departureURL(stop, req))
		if err != nil {
			return nil, err
		}
		return b.parser.parseDepartures(data)
	})
	return backend.Accepted
}

func (b *Backend) QueryLocation(ctx context.Context, r *reply.LocationReply) backend.Dispatch {
	req := r.Request()
	if !req.IsValid() {
		return backend.NotSupported
	}

	backend.Run(ctx, &b.Base, "location", r, func(ctx context.Context) ([]models.Location, error) {
		return b.LookupLocations(ctx, req, b.lookupPlaces)
	})
	return backend.Accepted
}

// stopWithCoordinate returns stop if it has a coordinate, otherwise the first
// place with a coordinate a (cached) place search finds for it.
func (b *Backend) stopWithCoordinate(ctx context.Context, stop models.Location) (models.Location, error) {
	if stop.HasCoordinate() {
		return stop, nil
	}
	places, err := b.ResolveLocation(ctx, stop, b.lookupPlaces)
	if err != nil {
		return models.Location{}, err
	}
	for _, p := range places {
		if p.HasCoordinate() {
			return p, nil
		}
	}
	return models.Location{}, fmt.Errorf("no place with a coordinate for %q: %w", stop.Name, backend.ErrNotFound)
}

func (b *Backend) lookupPlaces(ctx context.Context, req models.LocationRequest) ([]models.Location, error) {
	var u string
	if req.HasCoordinate() {
		u = b.url(b.coordPath(req.Latitude, req.Longitude)+"/places_nearby", url.Values{
			"disable_geojson": {"true"},
			"depth":           {"0"},
		})
	} else {
		u = b.url(b.coveragePrefix()+"/places", url.Values{"q": {req.Name}})
	}
	data, err := b.get(ctx, "location", u)
	if err != nil {
		return nil, err
	}
	return b.parser.parsePlaces(data)
}

// get performs a GET and turns Navitia's 404 error envelope into the error
// message.
func (b *Backend) get(ctx context.Context, kind, u string) ([]byte, error) {
	data, err := b.Get(ctx, kind, u, b.header)
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		statusErr.Message = parseErrorMessage(statusErr.Body)
	}
	return data, err
}

func (b *Backend) journeyURL(req models.JourneyRequest) string {
	q := url.Values{
		"from":            {formatCoordinate(req.From)},
		"to":              {formatCoordinate(req.To)},
		"disable_geojson": {"true"},
		"depth":           {"0"},
	}
	if !req.DateTime.IsZero() {
		q.Set("datetime", req.DateTime.Format(dateTimeLayout))
		if req.DateTimeMode == models.ArriveBy {
			q.Set("datetime_represents", "arrival")
		} else {
			q.Set("datetime_represents", "departure")
		}
	}
	return b.url(b.coveragePrefix()+"/journeys", q)
}

func (b *Backend) departureURL(stop models.Location, req models.DepartureRequest) string {
	board := "/departures"
	if req.Mode == models.QueryArrival {
		board = "/arrivals"
	}
	at := req.DateTime
	if at.IsZero() {
		at = b.Clock().Now()
	}
	if stop.TimeZone != nil {
		at = at.In(stop.TimeZone)
	}
	return b.url(b.coordPath(stop.Latitude, stop.Longitude)+board, url.Values{
		"from_datetime":   {at.Format(dateTimeLayout)},
		"disable_geojson": {"true"},
		"depth":           {"0"},
	})
}

func (b *Backend) coveragePrefix() string {
	if b.coverage == "" {
		return "/v1"
	}
	return "/v1/coverage/" + b.coverage
}

// coordPath addresses a coordinate. Without a configured coverage the
// coordinate itself selects the region.
func (b *Backend) coordPath(lat, lon float64) string {
	coord := formatLonLat(lat, lon)
	coverage := b.coverage
	if coverage == "" {
		coverage = coord
	}
	return "/v1/coverage/" + coverage + "/coord/" + coord
}

func (b *Backend) url(path string, q url.Values) string {
	u := *b.base
	u.Path = b.base.Path + path
	u.RawQuery = q.Encode()
	return u.String()
}

// formatLonLat renders a coordinate the way Navitia expects it: longitude
// first.
func formatLonLat(lat, lon float64) string {
	return strconv.FormatFloat(lon, 'f', -1, 64) + ";" + strconv.FormatFloat(lat, 'f', -1, 64)
}

func formatCoordinate(loc models.Location) string {
	return formatLonLat(loc.Latitude, loc.Longitude)
}
