package hafasquery

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"transitquery/internal/models"
)

// IdentifierType is the identifier scheme station ids are read from.
const IdentifierType = "ibnr"

type parser struct {
	location *time.Location
	logger   *slog.Logger
}

// parseStationBoard reads a stboard.exe response. Some installations reply
// with a bare sequence of Journey elements and no document root, so those
// payloads are wrapped before decoding.
func (p *parser) parseStationBoard(data []byte, arrivals bool) ([]models.Departure, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("<Journey")) {
		if !utf8.Valid(trimmed) {
			decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(trimmed)
			if err != nil {
				return nil, fmt.Errorf("failed to decode latin-1 payload: %w", err)
			}
			trimmed = decoded
		}
		wrapped := make([]byte, 0, len(trimmed)+32)
		wrapped = append(wrapped, "<stboardRoot>"...)
		wrapped = append(wrapped, trimmed...)
		wrapped = append(wrapped, "</stboardRoot>"...)
		trimmed = wrapped
	}

	dec := xml.NewDecoder(bytes.NewReader(trimmed))
	dec.CharsetReader = charsetReader
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	stop := models.NewLocation("")
	var deps []models.Departure
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse station board: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "St":
			stop = models.NewLocation(attr(start, "name"))
			if id := attr(start, "evaId"); id != "" {
				stop = stop.WithIdentifier(IdentifierType, id)
			}
		case "Journey":
			dep, err := p.parseJourney(start, arrivals)
			if err != nil {
				return nil, err
			}
			dep.StopPoint = stop
			deps = append(deps, dep)
		}
	}
	return deps, nil
}

func (p *parser) parseJourney(el xml.StartElement, arrivals bool) (models.Departure, error) {
	var dep models.Departure

	scheduled, err := parseDateTime(attr(el, "fpDate"), attr(el, "fpTime"), p.location)
	if err != nil {
		return dep, err
	}

	var expected time.Time
	if delay := strings.TrimSpace(attr(el, "e_delay")); delay != "" {
		minutes, err := strconv.Atoi(delay)
		if err != nil {
			p.logger.Debug("ignoring unparsable delay", slog.String("e_delay", delay))
		} else if !scheduled.IsZero() {
			expected = scheduled.Add(time.Duration(minutes) * time.Minute)
		}
	}

	if arrivals {
		dep.ScheduledArrivalTime = scheduled
		dep.ExpectedArrivalTime = expected
	} else {
		dep.ScheduledDepartureTime = scheduled
		dep.ExpectedDepartureTime = expected
	}
	dep.ScheduledPlatform = strings.TrimSpace(attr(el, "platform"))
	dep.ExpectedPlatform = strings.TrimSpace(attr(el, "newpl"))

	name := attr(el, "hafasname")
	if name == "" {
		prod := attr(el, "prod")
		if idx := strings.IndexByte(prod, '#'); idx >= 0 {
			prod = prod[:idx]
		}
		name = strings.Join(strings.Fields(prod), " ")
	}
	dep.Route = models.Route{
		Line:      models.Line{Name: name},
		Direction: attr(el, "targetLoc"),
	}
	return dep, nil
}

// parseDateTime reads dd.MM.yy and hh:mm. Two digit years are always in
// this century.
func parseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if date == "" || clock == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("02.01.06 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q: %w", date, clock, err)
	}
	if t.Year() < 2000 {
		t = t.AddDate(100, 0, 0)
	}
	return t, nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "utf-8", "utf8":
		return input, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", label)
}
