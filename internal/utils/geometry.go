package utils

import "math"

const (
	// EarthRadiusMeters is the mean earth radius used for great-circle distances.
	EarthRadiusMeters = 6371000.0
)

// CoordinateBounds represents a bounding box with min/max latitude and longitude
type CoordinateBounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Contains reports whether the point lies inside or on the edge of b.
func (b CoordinateBounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Distance returns the haversine distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180.0

	dLat := (lat1 - lat2) * degToRad
	dLon := (lon1 - lon2) * degToRad

	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Pow(math.Sin(dLon/2), 2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// IsOutOfBounds returns true only if the inner bounds have no overlap
// with the outer bounds.
func IsOutOfBounds(inner, outer CoordinateBounds) bool {
	return inner.MaxLat < outer.MinLat ||
		inner.MinLat > outer.MaxLat ||
		inner.MaxLon < outer.MinLon ||
		inner.MinLon > outer.MaxLon
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Polygon is a closed ring of points; the last point connects back to the first.
type Polygon []Point

// Bounds returns the bounding box of p. The result is meaningless for an empty polygon.
func (p Polygon) Bounds() CoordinateBounds {
	if len(p) == 0 {
		return CoordinateBounds{}
	}
	b := CoordinateBounds{MinLat: p[0].Lat, MaxLat: p[0].Lat, MinLon: p[0].Lon, MaxLon: p[0].Lon}
	for _, pt := range p[1:] {
		b.MinLat = math.Min(b.MinLat, pt.Lat)
		b.MaxLat = math.Max(b.MaxLat, pt.Lat)
		b.MinLon = math.Min(b.MinLon, pt.Lon)
		b.MaxLon = math.Max(b.MaxLon, pt.Lon)
	}
	return b
}

// Contains tests the point against p using the non-zero winding rule.
// Longitude is treated as x and latitude as y.
func (p Polygon) Contains(lat, lon float64) bool {
	if len(p) < 3 {
		return false
	}
	winding := 0
	for i := range p {
		a := p[i]
		b := p[(i+1)%len(p)]
		if a.Lat <= lat {
			if b.Lat > lat && isLeft(a, b, lat, lon) > 0 {
				winding++
			}
		} else if b.Lat <= lat && isLeft(a, b, lat, lon) < 0 {
			winding--
		}
	}
	return winding != 0
}

// isLeft is positive when the point is left of the directed edge a->b,
// negative when right and zero when on the line.
func isLeft(a, b Point, lat, lon float64) float64 {
	return (b.Lon-a.Lon)*(lat-a.Lat) - (lon-a.Lon)*(b.Lat-a.Lat)
}
