package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lon1      float64
		lat2      float64
		lon2      float64
		expected  float64
		tolerance float64
	}{
		{"same point", 52.5251, 13.3694, 52.5251, 13.3694, 0, 0.001},
		{"Berlin Hbf to Berlin Ostbahnhof", 52.5251, 13.3694, 52.5108, 13.4348, 4702, 20},
		{"Paris to London", 48.8566, 2.3522, 51.5074, -0.1278, 343500, 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.expected, got, tt.tolerance)
		})
	}
}

func TestIsOutOfBounds(t *testing.T) {
	outer := CoordinateBounds{MinLat: 45, MaxLat: 48, MinLon: 5, MaxLon: 11}

	assert.False(t, IsOutOfBounds(CoordinateBounds{MinLat: 46, MaxLat: 47, MinLon: 6, MaxLon: 7}, outer))
	assert.False(t, IsOutOfBounds(CoordinateBounds{MinLat: 47, MaxLat: 49, MinLon: 10, MaxLon: 12}, outer))
	assert.True(t, IsOutOfBounds(CoordinateBounds{MinLat: 50, MaxLat: 51, MinLon: 6, MaxLon: 7}, outer))
}

func TestPolygonContains(t *testing.T) {
	// rough box around Switzerland
	swiss := Polygon{
		{Lat: 45.8, Lon: 5.9},
		{Lat: 45.8, Lon: 10.5},
		{Lat: 47.8, Lon: 10.5},
		{Lat: 47.8, Lon: 5.9},
	}
	// a concave "L" shape
	ell := Polygon{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 4},
		{Lat: 1, Lon: 4},
		{Lat: 1, Lon: 1},
		{Lat: 4, Lon: 1},
		{Lat: 4, Lon: 0},
	}

	tests := []struct {
		name    string
		polygon Polygon
		lat     float64
		lon     float64
		want    bool
	}{
		{"Zurich inside", swiss, 47.3769, 8.5417, true},
		{"Randa inside", swiss, 46.0983, 7.7805, true},
		{"Paris outside", swiss, 48.8566, 2.3522, false},
		{"L arm", ell, 0.5, 3, true},
		{"L notch", ell, 2, 2, false},
		{"L stem", ell, 3, 0.5, true},
		{"degenerate", Polygon{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}}, 0.5, 0.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.polygon.Contains(tt.lat, tt.lon))
		})
	}
}

func TestPolygonBounds(t *testing.T) {
	p := Polygon{{Lat: 1, Lon: 5}, {Lat: -2, Lon: 7}, {Lat: 3, Lon: 6}}
	b := p.Bounds()
	assert.Equal(t, CoordinateBounds{MinLat: -2, MaxLat: 3, MinLon: 5, MaxLon: 7}, b)
	assert.True(t, b.Contains(0, 6))
	assert.False(t, b.Contains(4, 6))
	assert.Equal(t, CoordinateBounds{}, Polygon{}.Bounds())
}
