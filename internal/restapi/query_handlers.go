package restapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"transitquery/internal/backend/hafasquery"
	"transitquery/internal/clock"
	"transitquery/internal/models"
)

var validate = validator.New()

// coordinateParams is a pair of optional coordinate query parameters.
type coordinateParams struct {
	Lat string `validate:"omitempty,latitude"`
	Lon string `validate:"omitempty,longitude"`
}

func (p coordinateParams) set() bool {
	return p.Lat != "" && p.Lon != ""
}

func (p coordinateParams) incomplete() bool {
	return (p.Lat == "") != (p.Lon == "")
}

// values are validated before this is called
func (p coordinateParams) values() (float64, float64) {
	lat, _ := strconv.ParseFloat(p.Lat, 64)
	lon, _ := strconv.ParseFloat(p.Lon, 64)
	return lat, lon
}

type journeyParams struct {
	FromName string
	From     coordinateParams
	ToName   string
	To       coordinateParams
	At       string
	Arrival  bool
}

type departureParams struct {
	Name    string
	Coord   coordinateParams
	IBNR    string `validate:"omitempty,numeric"`
	At      string
	Arrival bool
}

type locationParams struct {
	Name  string
	Coord coordinateParams
}

func boolParam(q url.Values, key string) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
	return b, nil
}

// parseAt reads the optional "at" parameter. Times without an offset are
// taken in the server's zone.
func parseAt(at string) (time.Time, error) {
	if at == "" {
		return time.Time{}, nil
	}
	t, err := clock.ParseTime(at, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid at: %w", err)
	}
	return t, nil
}

// validationMessage turns validator errors into a short message naming the
// offending parameters.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Namespace()[strings.IndexByte(fe.Namespace(), '.')+1:]))
	}
	return "invalid parameters: " + strings.Join(fields, ", ")
}

// GET /api/journeys?fromLat=&fromLon=&toLat=&toLon=[&fromName=&toName=&at=&arrival=]
func (api *RestAPI) journeysHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	arrival, err := boolParam(q, "arrival")
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	params := journeyParams{
		FromName: q.Get("fromName"),
		From:     coordinateParams{Lat: q.Get("fromLat"), Lon: q.Get("fromLon")},
		ToName:   q.Get("toName"),
		To:       coordinateParams{Lat: q.Get("toLat"), Lon: q.Get("toLon")},
		At:       q.Get("at"),
		Arrival:  arrival,
	}
	if err := validate.Struct(params); err != nil {
		api.sendError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}
	if !params.From.set() || !params.To.set() {
		api.sendError(w, r, http.StatusBadRequest, "fromLat, fromLon, toLat and toLon are required")
		return
	}
	when, err := parseAt(params.At)
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	fromLat, fromLon := params.From.values()
	toLat, toLon := params.To.values()
	req := models.NewJourneyRequest(
		models.NewLocationAt(params.FromName, fromLat, fromLon),
		models.NewLocationAt(params.ToName, toLat, toLon),
	).WithDateTime(when)
	if params.Arrival {
		req = req.WithDateTimeMode(models.ArriveBy)
	}

	ctx, cancel := api.queryContext(r)
	defer cancel()
	sendReply(ctx, api, w, r, api.Manager.QueryJourney(ctx, req))
}

// GET /api/departures?name=|lat=&lon=|ibnr=[&at=&arrival=]
func (api *RestAPI) departuresHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	arrival, err := boolParam(q, "arrival")
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	params := departureParams{
		Name:    strings.TrimSpace(q.Get("name")),
		Coord:   coordinateParams{Lat: q.Get("lat"), Lon: q.Get("lon")},
		IBNR:    q.Get("ibnr"),
		At:      q.Get("at"),
		Arrival: arrival,
	}
	if err := validate.Struct(params); err != nil {
		api.sendError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}
	if params.Coord.incomplete() {
		api.sendError(w, r, http.StatusBadRequest, "lat and lon must be given together")
		return
	}
	if params.Name == "" && !params.Coord.set() && params.IBNR == "" {
		api.sendError(w, r, http.StatusBadRequest, "one of name, lat/lon or ibnr is required")
		return
	}
	when, err := parseAt(params.At)
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	stop := models.NewLocation(params.Name)
	if params.Coord.set() {
		stop = stop.WithCoordinate(params.Coord.values())
	}
	if params.IBNR != "" {
		stop = stop.WithIdentifier(hafasquery.IdentifierType, params.IBNR)
	}
	req := models.NewDepartureRequest(stop).WithDateTime(when)
	if params.Arrival {
		req = req.WithMode(models.QueryArrival)
	}

	ctx, cancel := api.queryContext(r)
	defer cancel()
	sendReply(ctx, api, w, r, api.Manager.QueryDeparture(ctx, req))
}

// GET /api/locations?name=|lat=&lon=
func (api *RestAPI) locationsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := locationParams{
		Name:  strings.TrimSpace(q.Get("name")),
		Coord: coordinateParams{Lat: q.Get("lat"), Lon: q.Get("lon")},
	}
	if err := validate.Struct(params); err != nil {
		api.sendError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}
	if params.Coord.incomplete() {
		api.sendError(w, r, http.StatusBadRequest, "lat and lon must be given together")
		return
	}

	req := models.NewLocationRequest().WithName(params.Name)
	if params.Coord.set() {
		req = req.WithCoordinate(params.Coord.values())
	}
	if !req.IsValid() {
		api.sendError(w, r, http.StatusBadRequest, "name or lat/lon is required")
		return
	}

	ctx, cancel := api.queryContext(r)
	defer cancel()
	sendReply(ctx, api, w, r, api.Manager.QueryLocation(ctx, req))
}

// GET /api/backends[?lat=&lon=]
func (api *RestAPI) backendsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	coord := coordinateParams{Lat: q.Get("lat"), Lon: q.Get("lon")}
	if err := validate.Struct(coord); err != nil {
		api.sendError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}
	if coord.incomplete() {
		api.sendError(w, r, http.StatusBadRequest, "lat and lon must be given together")
		return
	}

	infos := api.Manager.Backends()
	if coord.set() {
		lat, lon := coord.values()
		infos = api.Manager.BackendsServing(models.NewLocationAt("", lat, lon))
	}
	api.sendResponse(w, r, api.newResponse(http.StatusOK, "OK", infos))
}
