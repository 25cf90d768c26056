package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strings"
	"time"
	_ "time/tzdata"

	"transitquery/internal/utils"
)

// Location is a stop, station or arbitrary place.
// Latitude and Longitude are NaN when unknown. The zero coordinate (0, 0) is
// also treated as unknown, so a zero Location has no coordinate.
// TimeZone is nil when unknown.
type Location struct {
	Name        string
	Latitude    float64
	Longitude   float64
	TimeZone    *time.Location
	Identifiers map[string]string
}

// NewLocation returns a location with the given name and no coordinate.
func NewLocation(name string) Location {
	return Location{Name: name, Latitude: math.NaN(), Longitude: math.NaN()}
}

// NewLocationAt returns a location at the given coordinate.
func NewLocationAt(name string, lat, lon float64) Location {
	return Location{Name: name, Latitude: lat, Longitude: lon}
}

func (l Location) HasCoordinate() bool {
	if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) {
		return false
	}
	return l.Latitude != 0 || l.Longitude != 0
}

// IsEmpty reports whether l carries neither a name, a coordinate nor an identifier.
func (l Location) IsEmpty() bool {
	return l.Name == "" && !l.HasCoordinate() && len(l.Identifiers) == 0
}

// Identifier returns the id of l in the given identifier scheme, or "".
func (l Location) Identifier(scheme string) string {
	return l.Identifiers[scheme]
}

// WithIdentifier returns a copy of l with the identifier set. The receiver's
// map is never modified.
func (l Location) WithIdentifier(scheme, id string) Location {
	ids := make(map[string]string, len(l.Identifiers)+1)
	maps.Copy(ids, l.Identifiers)
	ids[scheme] = id
	l.Identifiers = ids
	return l
}

// WithCoordinate returns a copy of l at the given coordinate.
func (l Location) WithCoordinate(lat, lon float64) Location {
	l.Latitude = lat
	l.Longitude = lon
	return l
}

// CacheKey is the key under which location lookups for l are cached.
func (l Location) CacheKey() string {
	return LocationRequestFor(l).CacheKey()
}

// sameCoordinateThreshold is the distance in meters below which two
// coordinates are considered the same place.
const sameCoordinateThreshold = 10.0

// IsSameLocation reports whether a and b refer to the same place: a shared
// non-empty identifier, a case-insensitively equal name, or (nearly) equal
// coordinates.
func IsSameLocation(a, b Location) bool {
	for scheme, id := range a.Identifiers {
		if id != "" && b.Identifiers[scheme] == id {
			return true
		}
	}

	if a.Name != "" && strings.EqualFold(a.Name, b.Name) {
		return true
	}

	if a.HasCoordinate() && b.HasCoordinate() {
		return Distance(a, b) < sameCoordinateThreshold
	}

	return false
}

// MergeLocation combines two locations for the same place. Fields set in a
// win; missing fields and identifiers are taken from b.
func MergeLocation(a, b Location) Location {
	l := a
	if l.Name == "" {
		l.Name = b.Name
	}
	if !l.HasCoordinate() && b.HasCoordinate() {
		l.Latitude, l.Longitude = b.Latitude, b.Longitude
	}
	if l.TimeZone == nil {
		l.TimeZone = b.TimeZone
	}
	if len(b.Identifiers) > 0 {
		ids := make(map[string]string, len(a.Identifiers)+len(b.Identifiers))
		maps.Copy(ids, a.Identifiers)
		for scheme, id := range b.Identifiers {
			if ids[scheme] == "" {
				ids[scheme] = id
			}
		}
		l.Identifiers = ids
	}
	return l
}

// Distance returns the great-circle distance between a and b in meters.
// The result is NaN if either has no coordinate.
func Distance(a, b Location) float64 {
	if !a.HasCoordinate() || !b.HasCoordinate() {
		return math.NaN()
	}
	return utils.Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

type locationJSON struct {
	Name        string            `json:"name,omitempty"`
	Latitude    *float64          `json:"latitude,omitempty"`
	Longitude   *float64          `json:"longitude,omitempty"`
	TimeZone    string            `json:"timezone,omitempty"`
	Identifiers map[string]string `json:"identifier,omitempty"`
}

func (l Location) MarshalJSON() ([]byte, error) {
	v := locationJSON{Name: l.Name, Identifiers: l.Identifiers}
	if l.HasCoordinate() {
		lat, lon := l.Latitude, l.Longitude
		v.Latitude, v.Longitude = &lat, &lon
	}
	if l.TimeZone != nil {
		v.TimeZone = l.TimeZone.String()
	}
	return json.Marshal(v)
}

func (l *Location) UnmarshalJSON(data []byte) error {
	var v locationJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*l = NewLocation(v.Name)
	if v.Latitude != nil && v.Longitude != nil {
		l.Latitude, l.Longitude = *v.Latitude, *v.Longitude
	}
	if v.TimeZone != "" {
		tz, err := time.LoadLocation(v.TimeZone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", v.TimeZone, err)
		}
		l.TimeZone = tz
	}
	if len(v.Identifiers) > 0 {
		l.Identifiers = v.Identifiers
	}
	return nil
}
