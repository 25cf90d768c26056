package navitia

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"transitquery/internal/models"
)

const dateTimeLayout = "20060102T150405"

type coordJSON struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

type placeJSON struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Label    string     `json:"label"`
	Coord    *coordJSON `json:"coord"`
	Timezone string     `json:"timezone"`
	StopArea *struct {
		Timezone string `json:"timezone"`
	} `json:"stop_area"`
}

type displayJSON struct {
	Label          string `json:"label"`
	Color          string `json:"color"`
	TextColor      string `json:"text_color"`
	CommercialMode string `json:"commercial_mode"`
	Direction      string `json:"direction"`
}

type linkJSON struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type sectionJSON struct {
	Type                  string                     `json:"type"`
	From                  map[string]json.RawMessage `json:"from"`
	To                    map[string]json.RawMessage `json:"to"`
	DisplayInformations   *displayJSON               `json:"display_informations"`
	Links                 []linkJSON                 `json:"links"`
	DepartureDateTime     string                     `json:"departure_date_time"`
	ArrivalDateTime       string                     `json:"arrival_date_time"`
	BaseDepartureDateTime string                     `json:"base_departure_date_time"`
	BaseArrivalDateTime   string                     `json:"base_arrival_date_time"`
	DataFreshness         string                     `json:"data_freshness"`
}

type stopDateTimeJSON struct {
	DepartureDateTime     string `json:"departure_date_time"`
	ArrivalDateTime       string `json:"arrival_date_time"`
	BaseDepartureDateTime string `json:"base_departure_date_time"`
	BaseArrivalDateTime   string `json:"base_arrival_date_time"`
	DataFreshness         string `json:"data_freshness"`
}

type departureJSON struct {
	DisplayInformations displayJSON      `json:"display_informations"`
	Links               []linkJSON       `json:"links"`
	StopPoint           placeJSON        `json:"stop_point"`
	StopDateTime        stopDateTimeJSON `json:"stop_date_time"`
}

type errorJSON struct {
	Error struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"error"`
}

type parser struct {
	idType string
	logger *slog.Logger
}

func (p *parser) parseJourneys(data []byte) ([]models.Journey, error) {
	var doc struct {
		Journeys []struct {
			Sections []sectionJSON `json:"sections"`
		} `json:"journeys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode journeys: %w", err)
	}

	journeys := make([]models.Journey, 0, len(doc.Journeys))
	for _, j := range doc.Journeys {
		journey := models.Journey{Sections: make([]models.JourneySection, 0, len(j.Sections))}
		for _, sec := range j.Sections {
			s, err := p.parseSection(sec)
			if err != nil {
				return nil, err
			}
			journey.Sections = append(journey.Sections, s)
		}
		journeys = append(journeys, journey)
	}
	return journeys, nil
}

func (p *parser) parseSection(sec sectionJSON) (models.JourneySection, error) {
	var s models.JourneySection
	switch sec.Type {
	case "public_transport":
		s.Mode = models.SectionPublicTransport
	case "transfer":
		s.Mode = models.SectionTransfer
	case "street_network", "crow_fly":
		s.Mode = models.SectionWalking
	case "waiting":
		s.Mode = models.SectionWaiting
	default:
		s.Mode = models.SectionInvalid
	}

	var err error
	if s.From, err = p.parseWrappedPlace(sec.From); err != nil {
		return s, err
	}
	if s.To, err = p.parseWrappedPlace(sec.To); err != nil {
		return s, err
	}
	if sec.DisplayInformations != nil {
		s.Route = p.parseRoute(*sec.DisplayInformations, sec.Links)
	}

	if s.ScheduledDepartureTime, s.ExpectedDepartureTime, err = scheduledAndExpected(sec.BaseDepartureDateTime, sec.DepartureDateTime, sec.DataFreshness, s.From.TimeZone); err != nil {
		return s, err
	}
	if s.ScheduledArrivalTime, s.ExpectedArrivalTime, err = scheduledAndExpected(sec.BaseArrivalDateTime, sec.ArrivalDateTime, sec.DataFreshness, s.To.TimeZone); err != nil {
		return s, err
	}
	return s, nil
}

// scheduledAndExpected picks the scheduled and expected instant from a base
// and a realtime timestamp. Without a base timestamp the realtime one is the
// schedule.
func scheduledAndExpected(base, actual, freshness string, tz *time.Location) (time.Time, time.Time, error) {
	if base == "" {
		scheduled, err := parseDateTime(actual, tz)
		return scheduled, time.Time{}, err
	}
	scheduled, err := parseDateTime(base, tz)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if freshness == "base_schedule" {
		return scheduled, time.Time{}, nil
	}
	expected, err := parseDateTime(actual, tz)
	return scheduled, expected, err
}

func (p *parser) parseDepartures(data []byte) ([]models.Departure, error) {
	var doc struct {
		Departures []departureJSON `json:"departures"`
		Arrivals   []departureJSON `json:"arrivals"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode departures: %w", err)
	}

	entries := doc.Departures
	if len(entries) == 0 {
		entries = doc.Arrivals
	}
	deps := make([]models.Departure, 0, len(entries))
	for _, d := range entries {
		dep := models.Departure{
			Route:     p.parseRoute(d.DisplayInformations, d.Links),
			StopPoint: p.parsePlace(d.StopPoint),
		}
		tz := dep.StopPoint.TimeZone
		sdt := d.StopDateTime
		var err error
		if dep.ScheduledDepartureTime, dep.ExpectedDepartureTime, err = scheduledAndExpected(sdt.BaseDepartureDateTime, sdt.DepartureDateTime, sdt.DataFreshness, tz); err != nil {
			return nil, err
		}
		if dep.ScheduledArrivalTime, dep.ExpectedArrivalTime, err = scheduledAndExpected(sdt.BaseArrivalDateTime, sdt.ArrivalDateTime, sdt.DataFreshness, tz); err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// parsePlaces reads a /places or /places_nearby response.
func (p *parser) parsePlaces(data []byte) ([]models.Location, error) {
	var doc struct {
		Places       []map[string]json.RawMessage `json:"places"`
		PlacesNearby []map[string]json.RawMessage `json:"places_nearby"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode places: %w", err)
	}

	places := doc.Places
	if len(places) == 0 {
		places = doc.PlacesNearby
	}
	locs := make([]models.Location, 0, len(places))
	for _, wrapped := range places {
		loc, err := p.parseWrappedPlace(wrapped)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// parseWrappedPlace reads a place object whose details live under the key
// named by its embedded_type. The outer name wins over the inner label.
func (p *parser) parseWrappedPlace(obj map[string]json.RawMessage) (models.Location, error) {
	if len(obj) == 0 {
		return models.NewLocation(""), nil
	}
	var embeddedType, name string
	if raw, ok := obj["embedded_type"]; ok {
		if err := json.Unmarshal(raw, &embeddedType); err != nil {
			return models.Location{}, fmt.Errorf("invalid embedded_type: %w", err)
		}
	}
	if raw, ok := obj["name"]; ok {
		if err := json.Unmarshal(raw, &name); err != nil {
			return models.Location{}, fmt.Errorf("invalid place name: %w", err)
		}
	}

	var inner placeJSON
	if raw, ok := obj[embeddedType]; ok && embeddedType != "" {
		if err := json.Unmarshal(raw, &inner); err != nil {
			return models.Location{}, fmt.Errorf("invalid %s: %w", embeddedType, err)
		}
	}
	loc := p.parsePlace(inner)
	if name != "" {
		loc.Name = name
	}
	return loc, nil
}

func (p *parser) parsePlace(obj placeJSON) models.Location {
	name := obj.Label
	if name == "" {
		name = obj.Name
	}
	loc := models.NewLocation(name)
	if obj.Coord != nil {
		loc = loc.WithCoordinate(parseCoordinate(obj.Coord.Lat), parseCoordinate(obj.Coord.Lon))
	}

	tz := obj.Timezone
	if tz == "" && obj.StopArea != nil {
		tz = obj.StopArea.Timezone
	}
	if tz != "" {
		zone, err := time.LoadLocation(tz)
		if err != nil {
			p.logger.Debug("unknown time zone", slog.String("timezone", tz))
		} else {
			loc.TimeZone = zone
		}
	}

	if obj.ID != "" && p.idType != "" {
		loc = loc.WithIdentifier(p.idType, obj.ID)
	}
	return loc
}

func (p *parser) parseRoute(info displayJSON, links []linkJSON) models.Route {
	line := models.Line{
		Name:       info.Label,
		Color:      models.NormalizeColor(info.Color),
		TextColor:  models.NormalizeColor(info.TextColor),
		ModeString: info.CommercialMode,
	}
	for _, link := range links {
		if link.Type != "physical_mode" {
			continue
		}
		line.Mode = parsePhysicalMode(link.ID)
		break
	}
	return models.Route{Line: line, Direction: info.Direction}
}

func parsePhysicalMode(id string) models.LineMode {
	name, ok := strings.CutPrefix(id, "physical_mode:")
	if !ok {
		return models.ModeUnknown
	}
	mode, ok := models.ParseLineMode(name)
	if !ok {
		return models.ModeUnknown
	}
	return mode
}

// parseErrorMessage extracts the message of a Navitia error envelope.
func parseErrorMessage(data []byte) string {
	var doc errorJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	return doc.Error.Message
}

func parseDateTime(s string, tz *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if tz == nil {
		tz = time.UTC
	}
	t, err := time.ParseInLocation(dateTimeLayout, s, tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q: %w", s, err)
	}
	return t, nil
}

func parseCoordinate(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
