package models

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
)

// DateTimeMode says whether a journey request's time is the desired
// departure or the desired arrival.
type DateTimeMode int

const (
	DepartAt DateTimeMode = iota
	ArriveBy
)

// JourneyRequest asks for journeys between two locations.
// A zero DateTime means "now".
type JourneyRequest struct {
	From         Location
	To           Location
	DateTime     time.Time
	DateTimeMode DateTimeMode
}

func NewJourneyRequest(from, to Location) JourneyRequest {
	return JourneyRequest{From: from, To: to}
}

func (r JourneyRequest) WithDateTime(t time.Time) JourneyRequest {
	r.DateTime = t
	return r
}

func (r JourneyRequest) WithDateTimeMode(m DateTimeMode) JourneyRequest {
	r.DateTimeMode = m
	return r
}

// DepartureMode selects departures or arrivals at a stop.
type DepartureMode int

const (
	QueryDeparture DepartureMode = iota
	QueryArrival
)

func (m DepartureMode) String() string {
	if m == QueryArrival {
		return "arrival"
	}
	return "departure"
}

// DepartureRequest asks for departures (or arrivals) at a stop.
// A zero DateTime means "now".
type DepartureRequest struct {
	Stop     Location
	DateTime time.Time
	Mode     DepartureMode
}

func NewDepartureRequest(stop Location) DepartureRequest {
	return DepartureRequest{Stop: stop}
}

func (r DepartureRequest) WithDateTime(t time.Time) DepartureRequest {
	r.DateTime = t
	return r
}

func (r DepartureRequest) WithMode(m DepartureMode) DepartureRequest {
	r.Mode = m
	return r
}

// LocationRequest searches for locations by name and/or coordinate.
// Latitude and Longitude are NaN when not set.
type LocationRequest struct {
	Name      string
	Latitude  float64
	Longitude float64
}

func NewLocationRequest() LocationRequest {
	return LocationRequest{Latitude: math.NaN(), Longitude: math.NaN()}
}

// LocationRequestFor builds the location request that resolves loc.
func LocationRequestFor(loc Location) LocationRequest {
	r := NewLocationRequest().WithName(loc.Name)
	if loc.HasCoordinate() {
		r = r.WithCoordinate(loc.Latitude, loc.Longitude)
	}
	return r
}

func (r LocationRequest) WithName(name string) LocationRequest {
	r.Name = name
	return r
}

func (r LocationRequest) WithCoordinate(lat, lon float64) LocationRequest {
	r.Latitude = lat
	r.Longitude = lon
	return r
}

func (r LocationRequest) HasCoordinate() bool {
	return r.Location().HasCoordinate()
}

// Location returns the request as a Location, for geo filtering.
func (r LocationRequest) Location() Location {
	return Location{Name: r.Name, Latitude: r.Latitude, Longitude: r.Longitude}
}

// IsValid reports whether the request has anything to search for.
func (r LocationRequest) IsValid() bool {
	return r.HasCoordinate() || strings.TrimSpace(r.Name) != ""
}

// CacheKey derives a stable file-name-safe key: the coordinate bucketed to a
// tenth of a degree (or "nanxnan") followed by the name reduced to lower-case
// letters and digits.
func (r LocationRequest) CacheKey() string {
	var b strings.Builder
	if r.HasCoordinate() {
		fmt.Fprintf(&b, "%dx%d", int(r.Latitude*10), int(r.Longitude*10))
	} else {
		b.WriteString("nanxnan")
	}
	b.WriteByte('_')
	for _, c := range r.Name {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(unicode.ToLower(c))
		}
	}
	return b.String()
}
