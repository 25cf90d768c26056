// Package hafasquery is a client for the legacy Hafas query.exe station
// board interface. It only serves departures and arrivals for stops that
// already carry an IBNR.
package hafasquery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"transitquery/internal/backend"
	"transitquery/internal/models"
	"transitquery/internal/reply"
)

const maxJourneys = "12"

// Settings are the provider options of a query.exe descriptor.
type Settings struct {
	Endpoint string `json:"endpoint"`
	// TimeZone is the IANA zone of the times in responses. Defaults to UTC.
	TimeZone string `json:"timeZone"`
}

type Backend struct {
	backend.Base
	endpoint *url.URL
	location *time.Location
	parser   *parser
}

func New(id string, settings Settings, deps backend.Deps) (*Backend, error) {
	if settings.Endpoint == "" {
		return nil, fmt.Errorf("hafas_query backend %q: endpoint is required", id)
	}
	u, err := url.Parse(settings.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("hafas_query backend %q: invalid endpoint: %w", id, err)
	}
	loc := time.UTC
	if settings.TimeZone != "" {
		if loc, err = time.LoadLocation(settings.TimeZone); err != nil {
			return nil, fmt.Errorf("hafas_query backend %q: invalid timeZone: %w", id, err)
		}
	}

	b := &Backend{
		Base:     backend.NewBase(id, deps),
		endpoint: u,
		location: loc,
	}
	b.parser = &parser{location: loc, logger: b.Logger()}
	return b, nil
}

func (b *Backend) IsSecure() bool {
	return strings.EqualFold(b.endpoint.Scheme, "https")
}

func (b *Backend) QueryDeparture(ctx context.Context, r *reply.DepartureReply) backend.Dispatch {
	req := r.Request()
	stationID := req.Stop.Identifier(IdentifierType)
	if stationID == "" {
		return backend.NotSupported
	}

	backend.Run(ctx, &b.Base, "departure", r, func(ctx context.Context) ([]models.Departure, error) {
		data, err := b.Get(ctx, "departure", b.stationBoardURL(stationID, req), nil)
		if err != nil {
			return nil, err
		}
		return b.parser.parseStationBoard(data, req.Mode == models.QueryArrival)
	})
	return backend.Accepted
}

func (b *Backend) stationBoardURL(stationID string, req models.DepartureRequest) string {
	at := req.DateTime
	if at.IsZero() {
		at = b.Clock().Now()
	}
	at = at.In(b.location)

	boardType := "dep"
	if req.Mode == models.QueryArrival {
		boardType = "arr"
	}

	u := *b.endpoint
	u.Path = strings.TrimSuffix(u.Path, "/") + "/stboard.exe/en"
	q := url.Values{}
	q.Set("boardType", boardType)
	q.Set("disableEquivs", "0")
	q.Set("maxJourneys", maxJourneys)
	q.Set("input", stationID)
	q.Set("date", at.Format("02.01.06"))
	q.Set("time", at.Format("15:04"))
	q.Set("L", "vs_java3")
	q.Set("start", "yes")
	u.RawQuery = q.Encode()
	return u.String()
}
