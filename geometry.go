package gofootprint

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// PolygonFromBounds creates a polygon from a bounding box
func PolygonFromBounds(bound orb.Bound) orb.Polygon {
	if bound.IsEmpty() {
		return orb.Polygon{}
	}

	ring := orb.Ring{
		{bound.Min[0], bound.Min[1]}, // Bottom-left
		{bound.Max[0], bound.Min[1]}, // Bottom-right
		{bound.Max[0], bound.Max[1]}, // Top-right
		{bound.Min[0], bound.Max[1]}, // Top-left
		{bound.Min[0], bound.Min[1]}, // Close ring
	}

	return orb.Polygon{ring}
}

// latitudeBandPolygon builds the rectangle between seamLon and otherLon
// spanning all latitudes, with extra vertices every step degrees along the
// seamLon edge.
func latitudeBandPolygon(seamLon, other, step float64) orb.Polygon {
	ring := orb.Ring{{seamLon, 90}, {other, 90}, {other, -90}, {seamLon, -90}}
	if step > 0 {
		for lat := -90.0 + step; lat < 90.0; lat += step {
			ring = append(ring, orb.Point{seamLon, lat})
		}
	}
	ring = append(ring, orb.Point{seamLon, 90})

	return orb.Polygon{ring}
}

// area returns the planar area of a multipolygon.
func area(mp orb.MultiPolygon) float64 {
	if len(mp) == 0 {
		return 0
	}
	return math.Abs(planar.Area(mp))
}

// isEmpty reports whether a multipolygon holds no polygon with a shell.
func isEmpty(mp orb.MultiPolygon) bool {
	for _, p := range mp {
		if len(p) > 0 && len(p[0]) > 0 {
			return false
		}
	}
	return true
}

// closeRing returns r with its first vertex repeated at the end if needed.
func closeRing(r orb.Ring) orb.Ring {
	if len(r) == 0 || r.Closed() {
		return r
	}
	out := make(orb.Ring, len(r), len(r)+1)
	copy(out, r)
	return append(out, r[0])
}

func distanceSquared(a, b orb.Point) float64 {
	return planar.DistanceSquared(a, b)
}

// shiftLongitude moves every vertex of p by dlon degrees.
func shiftLongitude(p orb.Polygon, dlon float64) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		nr := make(orb.Ring, len(r))
		for j, pt := range r {
			nr[j] = orb.Point{pt[0] + dlon, pt[1]}
		}
		out[i] = nr
	}
	return out
}

// cloneMultiPolygon deep-copies mp so callers can never alias a record's
// coordinates.
func cloneMultiPolygon(mp orb.MultiPolygon) orb.MultiPolygon {
	if mp == nil {
		return nil
	}
	return mp.Clone()
}

// onBoundary reports whether p lies on any ring segment of mp.
func onBoundary(mp orb.MultiPolygon, p orb.Point) bool {
	for _, poly := range mp {
		for _, r := range poly {
			for i := 0; i+1 < len(r); i++ {
				if planar.DistanceFromSegmentSquared(r[i], r[i+1], p) == 0 {
					return true
				}
			}
		}
	}
	return false
}

// strictlyInside reports whether p is in the interior of mp.
func strictlyInside(mp orb.MultiPolygon, p orb.Point) bool {
	return planar.MultiPolygonContains(mp, p) && !onBoundary(mp, p)
}
