package manager

import (
	"github.com/tidwall/rtree"

	"transitquery/internal/models"
	"transitquery/internal/utils"
)

// coverageIndex answers which geo filtered backends serve a coordinate.
// The tree holds the bounding box of every fence, keyed by the backend's
// registration index; candidates found there are confirmed against the
// fence itself.
type coverageIndex struct {
	tree   rtree.RTreeG[int]
	fences map[int]utils.Polygon
}

func (c *coverageIndex) insert(idx int, poly utils.Polygon) {
	if len(poly) == 0 {
		return
	}
	if c.fences == nil {
		c.fences = make(map[int]utils.Polygon)
	}
	c.fences[idx] = poly
	b := poly.Bounds()
	c.tree.Insert([2]float64{b.MinLat, b.MinLon}, [2]float64{b.MaxLat, b.MaxLon}, idx)
}

// covering returns the indices of the fences containing loc, or nil if loc
// has no coordinate. Backends without a fence are never returned.
func (c *coverageIndex) covering(loc models.Location) map[int]bool {
	if !loc.HasCoordinate() {
		return nil
	}
	pt := [2]float64{loc.Latitude, loc.Longitude}
	hits := make(map[int]bool)
	c.tree.Search(pt, pt, func(_, _ [2]float64, idx int) bool {
		if c.fences[idx].Contains(loc.Latitude, loc.Longitude) {
			hits[idx] = true
		}
		return true
	})
	return hits
}
