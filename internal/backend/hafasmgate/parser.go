package hafasmgate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-polyline"

	"transitquery/internal/models"
	"transitquery/internal/reply"
)

// ServiceError is an error reported by the mgate service inside an
// otherwise successful HTTP response.
type ServiceError struct {
	Method string
	Code   string
	Text   string
}

func (e *ServiceError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("%s failed: %s (%s)", e.Method, e.Text, e.Code)
	}
	return fmt.Sprintf("%s failed: %s", e.Method, e.Code)
}

// ErrorCode maps vendor error codes onto reply error codes.
func (e *ServiceError) ErrorCode() reply.ErrorCode {
	switch e.Code {
	case "LOCATION", "H890", "H9380":
		return reply.NotFoundError
	default:
		return reply.UnknownError
	}
}

type response struct {
	Err     string       `json:"err"`
	ErrTxt  string       `json:"errTxt"`
	SvcResL []serviceRes `json:"svcResL"`
}

type serviceRes struct {
	Meth   string          `json:"meth"`
	Err    string          `json:"err"`
	ErrTxt string          `json:"errTxt"`
	Res    json.RawMessage `json:"res"`
}

type common struct {
	LocL  []locJSON  `json:"locL"`
	ProdL []prodJSON `json:"prodL"`
	IcoL  []icoJSON  `json:"icoL"`
	PolyL []polyJSON `json:"polyL"`
}

type locJSON struct {
	Name  string   `json:"name"`
	ExtID string   `json:"extId"`
	Crd   *crdJSON `json:"crd"`
}

type crdJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type prodJSON struct {
	Name    string `json:"name"`
	Cls     int    `json:"cls"`
	IcoX    *int   `json:"icoX"`
	ProdCtx struct {
		CatOut string `json:"catOut"`
	} `json:"prodCtx"`
}

type rgbJSON struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

type icoJSON struct {
	Bg *rgbJSON `json:"bg"`
	Fg *rgbJSON `json:"fg"`
}

type polyJSON struct {
	CrdEncYX string `json:"crdEncYX"`
}

type stopJSON struct {
	LocX    *int   `json:"locX"`
	DTimeS  string `json:"dTimeS"`
	DTimeR  string `json:"dTimeR"`
	ATimeS  string `json:"aTimeS"`
	ATimeR  string `json:"aTimeR"`
	DPlatfS string `json:"dPlatfS"`
	DPlatfR string `json:"dPlatfR"`
	APlatfS string `json:"aPlatfS"`
	APlatfR string `json:"aPlatfR"`
}

type stationBoardRes struct {
	Common common `json:"common"`
	JnyL   []struct {
		DirTxt  string   `json:"dirTxt"`
		Date    string   `json:"date"`
		ProdX   *int     `json:"prodX"`
		StbStop stopJSON `json:"stbStop"`
	} `json:"jnyL"`
}

type sectionJSON struct {
	Type string   `json:"type"`
	Dep  stopJSON `json:"dep"`
	Arr  stopJSON `json:"arr"`
	Jny  struct {
		ProdX  *int   `json:"prodX"`
		DirTxt string `json:"dirTxt"`
		PolyG  *struct {
			PolyXL []int `json:"polyXL"`
		} `json:"polyG"`
	} `json:"jny"`
}

type tripSearchRes struct {
	Common  common `json:"common"`
	OutConL []struct {
		Date string        `json:"date"`
		SecL []sectionJSON `json:"secL"`
	} `json:"outConL"`
}

type locationRes struct {
	Common common `json:"common"`
	Match  struct {
		LocL []locJSON `json:"locL"`
	} `json:"match"`
	LocL []locJSON `json:"locL"`
}

// parser turns mgate responses into domain values.
type parser struct {
	idType    string
	lineModes map[int]models.LineMode
	location  *time.Location
	zoneKnown bool
	logger    *slog.Logger
}

// result extracts the payload of the first service response with the given
// method. Service errors are returned as *ServiceError.
func (p *parser) result(data []byte, meth string) (json.RawMessage, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode mgate response: %w", err)
	}
	if resp.Err != "" && resp.Err != "OK" {
		return nil, &ServiceError{Method: meth, Code: resp.Err, Text: resp.ErrTxt}
	}
	for _, svc := range resp.SvcResL {
		if svc.Meth != meth {
			continue
		}
		if svc.Err != "" && svc.Err != "OK" {
			return nil, &ServiceError{Method: meth, Code: svc.Err, Text: svc.ErrTxt}
		}
		return svc.Res, nil
	}
	return nil, fmt.Errorf("mgate response has no %s result", meth)
}

func (p *parser) parseDepartures(data []byte) ([]models.Departure, error) {
	raw, err := p.result(data, "StationBoard")
	if err != nil {
		return nil, err
	}
	var res stationBoardRes
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode StationBoard result: %w", err)
	}

	locs := p.parseLocations(res.Common.LocL)
	lines := p.parseLines(res.Common)

	deps := make([]models.Departure, 0, len(res.JnyL))
	for _, jny := range res.JnyL {
		dep := models.Departure{
			Route: models.Route{Direction: jny.DirTxt},
		}
		if line, ok := at(lines, jny.ProdX); ok {
			dep.Route.Line = line
		}
		if loc, ok := at(locs, jny.StbStop.LocX); ok {
			dep.StopPoint = loc
		} else {
			dep.StopPoint = models.NewLocation("")
		}

		stop := jny.StbStop
		if dep.ScheduledDepartureTime, err = p.parseDateTime(jny.Date, stop.DTimeS); err != nil {
			return nil, err
		}
		if dep.ExpectedDepartureTime, err = p.parseDateTime(jny.Date, stop.DTimeR); err != nil {
			return nil, err
		}
		if dep.ScheduledArrivalTime, err = p.parseDateTime(jny.Date, stop.ATimeS); err != nil {
			return nil, err
		}
		if dep.ExpectedArrivalTime, err = p.parseDateTime(jny.Date, stop.ATimeR); err != nil {
			return nil, err
		}
		dep.ScheduledPlatform = firstNonEmpty(stop.DPlatfS, stop.APlatfS)
		dep.ExpectedPlatform = firstNonEmpty(stop.DPlatfR, stop.APlatfR)

		deps = append(deps, dep)
	}
	return deps, nil
}

func (p *parser) parseJourneys(data []byte) ([]models.Journey, error) {
	raw, err := p.result(data, "TripSearch")
	if err != nil {
		return nil, err
	}
	var res tripSearchRes
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode TripSearch result: %w", err)
	}

	locs := p.parseLocations(res.Common.LocL)
	lines := p.parseLines(res.Common)
	paths := p.parsePolylines(res.Common.PolyL)

	journeys := make([]models.Journey, 0, len(res.OutConL))
	for _, con := range res.OutConL {
		var journey models.Journey
		for _, sec := range con.SecL {
			section, ok, err := p.parseSection(con.Date, sec, locs, lines, paths)
			if err != nil {
				return nil, err
			}
			if ok {
				journey.Sections = append(journey.Sections, section)
			}
		}
		journeys = append(journeys, journey)
	}
	return journeys, nil
}

func (p *parser) parseSection(date string, sec sectionJSON, locs []models.Location, lines []models.Line, paths [][]models.Coordinate) (models.JourneySection, bool, error) {
	var s models.JourneySection
	switch sec.Type {
	case "JNY":
		s.Mode = models.SectionPublicTransport
	case "WALK":
		s.Mode = models.SectionWalking
	case "TRSF":
		s.Mode = models.SectionTransfer
	default:
		p.logger.Debug("skipping unsupported section type", slog.String("type", sec.Type))
		return s, false, nil
	}

	s.From = models.NewLocation("")
	if loc, ok := at(locs, sec.Dep.LocX); ok {
		s.From = loc
	}
	s.To = models.NewLocation("")
	if loc, ok := at(locs, sec.Arr.LocX); ok {
		s.To = loc
	}

	var err error
	if s.ScheduledDepartureTime, err = p.parseDateTime(date, sec.Dep.DTimeS); err != nil {
		return s, false, err
	}
	if s.ExpectedDepartureTime, err = p.parseDateTime(date, sec.Dep.DTimeR); err != nil {
		return s, false, err
	}
	if s.ScheduledArrivalTime, err = p.parseDateTime(date, sec.Arr.ATimeS); err != nil {
		return s, false, err
	}
	if s.ExpectedArrivalTime, err = p.parseDateTime(date, sec.Arr.ATimeR); err != nil {
		return s, false, err
	}
	s.ScheduledDeparturePlatform = sec.Dep.DPlatfS
	s.ExpectedDeparturePlatform = sec.Dep.DPlatfR
	s.ScheduledArrivalPlatform = sec.Arr.APlatfS
	s.ExpectedArrivalPlatform = sec.Arr.APlatfR

	if s.Mode == models.SectionPublicTransport {
		s.Route.Direction = sec.Jny.DirTxt
		if line, ok := at(lines, sec.Jny.ProdX); ok {
			s.Route.Line = line
		}
		if sec.Jny.PolyG != nil {
			for _, idx := range sec.Jny.PolyG.PolyXL {
				if path, ok := at(paths, &idx); ok {
					s.Path = append(s.Path, path...)
				}
			}
		}
	}
	return s, true, nil
}

func (p *parser) parseLocationResult(data []byte, meth string) ([]models.Location, error) {
	raw, err := p.result(data, meth)
	if err != nil {
		return nil, err
	}
	var res locationRes
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", meth, err)
	}
	if len(res.Match.LocL) > 0 {
		return p.parseLocations(res.Match.LocL), nil
	}
	return p.parseLocations(res.LocL), nil
}

func (p *parser) parseLocations(locL []locJSON) []models.Location {
	locs := make([]models.Location, 0, len(locL))
	for _, l := range locL {
		loc := models.NewLocation(l.Name)
		if l.Crd != nil {
			loc = loc.WithCoordinate(l.Crd.Y/coordinateFactor, l.Crd.X/coordinateFactor)
		}
		if l.ExtID != "" {
			loc = loc.WithIdentifier(p.idType, l.ExtID)
		}
		if p.zoneKnown {
			loc.TimeZone = p.location
		}
		locs = append(locs, loc)
	}
	return locs
}

func (p *parser) parseLines(c common) []models.Line {
	lines := make([]models.Line, 0, len(c.ProdL))
	for _, prod := range c.ProdL {
		line := models.Line{
			Name:       strings.TrimSpace(prod.Name),
			ModeString: prod.ProdCtx.CatOut,
		}
		if mode, ok := p.lineModes[prod.Cls]; ok {
			line.Mode = mode
		} else if prod.Cls != 0 {
			p.logger.Debug("unknown product class",
				slog.Int("class", prod.Cls),
				slog.String("line", line.Name))
		}
		if ico, ok := at(c.IcoL, prod.IcoX); ok {
			if ico.Bg != nil {
				line.Color = models.ColorFromRGB(ico.Bg.R, ico.Bg.G, ico.Bg.B)
			}
			if ico.Fg != nil {
				line.TextColor = models.ColorFromRGB(ico.Fg.R, ico.Fg.G, ico.Fg.B)
			}
		}
		lines = append(lines, line)
	}
	return lines
}

func (p *parser) parsePolylines(polyL []polyJSON) [][]models.Coordinate {
	paths := make([][]models.Coordinate, 0, len(polyL))
	for i, poly := range polyL {
		coords, _, err := polyline.DecodeCoords([]byte(poly.CrdEncYX))
		if err != nil {
			p.logger.Debug("failed to decode polyline", slog.Int("index", i), slog.Any("error", err))
			paths = append(paths, nil)
			continue
		}
		path := make([]models.Coordinate, 0, len(coords))
		for _, c := range coords {
			path = append(path, models.Coordinate{Lat: c[0], Lon: c[1]})
		}
		paths = append(paths, path)
	}
	return paths
}

// parseDateTime combines a yyyyMMdd date with an hhmmss time. An eight digit
// time carries a leading two digit day offset. Empty input yields the zero
// time.
func (p *parser) parseDateTime(date, clock string) (time.Time, error) {
	return parseDateTime(date, clock, p.location)
}

func parseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if date == "" || clock == "" {
		return time.Time{}, nil
	}
	days := 0
	if len(clock) == 8 {
		offset, err := strconv.Atoi(clock[:2])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day offset in %q: %w", clock, err)
		}
		days = offset
		clock = clock[2:]
	}
	t, err := time.ParseInLocation("20060102150405", date+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q: %w", date, clock, err)
	}
	return t.AddDate(0, 0, days), nil
}

func at[T any](s []T, idx *int) (T, bool) {
	var zero T
	if idx == nil || *idx < 0 || *idx >= len(s) {
		return zero, false
	}
	return s[*idx], true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
