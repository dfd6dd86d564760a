package gofootprint

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// minSeamSpacing bounds the latitude spacing of vertices inserted along the
// 0/360 meridian.
const minSeamSpacing = 0.1

// SeamSplitter turns a closed raster-space ring into a footprint in
// longitude/latitude, splicing through a contained pole and splitting at
// the 0/360 meridian.
type SeamSplitter struct {
	proj   GroundProjector
	gate   viewGate
	repair *PolygonRepair
}

// NewSeamSplitter creates a splitter for rings walked on proj.
func NewSeamSplitter(proj GroundProjector, cfg *EngineConfig) *SeamSplitter {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	return &SeamSplitter{
		proj:   proj,
		gate:   newViewGate(proj, cfg),
		repair: NewPolygonRepair(cfg),
	}
}

// Split projects ring and returns the resulting footprint polygons.
func (s *SeamSplitter) Split(ring orb.Ring) (orb.MultiPolygon, error) {
	pts, crossings, err := s.project(ring)
	if err != nil {
		return nil, err
	}

	pts = trimSelfIntersection(pts)

	pts, err = s.fixPole(pts, crossings)
	if err != nil {
		return nil, err
	}

	mp, err := s.fix360(pts)
	if err != nil {
		return nil, err
	}

	despiked, err := s.repair.Despike(mp)
	if err != nil {
		if IsValid(mp) && !isEmpty(mp) {
			Diagf("seam: keeping undespiked footprint: %v", err)
			return mp, nil
		}
		return nil, err
	}
	return despiked, nil
}

// project converts ring to ground coordinates and returns the vertices
// that precede a jump of 180 degrees or more in longitude.
func (s *SeamSplitter) project(ring orb.Ring) ([]orb.Point, []orb.Point, error) {
	pts := make([]orb.Point, 0, len(ring))
	var crossings []orb.Point
	var prevLon, prevLat float64

	for i, v := range ring {
		lon, lat, ok := s.proj.Project(v[0], v[1])
		if !ok {
			return nil, nil, walkFailed(v[0], v[1], "boundary vertex does not project to the ground")
		}
		if i != 0 && math.Abs(lon-prevLon) >= 180 {
			crossings = append(crossings, orb.Point{prevLon, prevLat})
		}
		pts = append(pts, orb.Point{lon, lat})
		prevLon, prevLat = lon, lat
	}
	return pts, crossings, nil
}

// trimSelfIntersection drops the second to last vertex when it makes the
// ring cross itself near the start.
func trimSelfIntersection(pts []orb.Point) []orb.Point {
	n := len(pts)
	if n < 5 {
		return pts
	}
	probe := orb.Ring{pts[0], pts[1], pts[n-3], pts[n-2], pts[0]}
	if IsValid(orb.MultiPolygon{{probe}}) {
		return pts
	}
	out := make([]orb.Point, 0, n-1)
	out = append(out, pts[:n-2]...)
	return append(out, pts[n-1])
}

// poleInImage reports whether the pole at lat lies on the raster at a
// position that passes the viewing limits.
func (s *SeamSplitter) poleInImage(lat float64) bool {
	sample, line, ok := s.proj.Unproject(0, lat)
	if !ok {
		return false
	}
	return sample >= 0.5 && line >= 0.5 &&
		sample <= float64(s.proj.Samples())+0.5 &&
		line <= float64(s.proj.Lines())+0.5 &&
		s.gate.valid(sample, line)
}

// fixPole splices a path through the contained pole so the ring wraps
// around it instead of crossing the meridian.
func (s *SeamSplitter) fixPole(pts []orb.Point, crossings []orb.Point) ([]orb.Point, error) {
	hasNorth := s.poleInImage(90)
	hasSouth := s.poleInImage(-90)

	if hasNorth && hasSouth {
		return nil, ErrDualPole
	}
	if len(crossings) == 0 {
		return pts, nil
	}

	var pole orb.Point
	switch {
	case hasNorth:
		if !s.poleVisible(90) {
			return pts, nil
		}
		pole = orb.Point{0, 90}
	case hasSouth:
		if !s.poleVisible(-90) {
			return pts, nil
		}
		pole = orb.Point{0, -90}
	case len(crossings)%2 == 1:
		north, south := orb.Point{0, 90}, orb.Point{0, -90}
		nDist, sDist := math.MaxFloat64, math.MaxFloat64
		for _, p := range pts {
			nDist = math.Min(nDist, distanceSquared(north, p))
			sDist = math.Min(sDist, distanceSquared(south, p))
		}
		if sDist < nDist {
			pole = south
		} else {
			pole = north
		}
	default:
		return pts, nil
	}
	Diagf("seam: splicing ring through pole at latitude %g", pole[1])

	closest := crossings[0]
	closestDistance := math.MaxFloat64
	for _, c := range crossings {
		probe := c
		for probe[0] > 180 {
			probe[0] -= 360
		}
		if d := distanceSquared(probe, pole); d < closestDistance {
			closestDistance = d
			closest = c
		}
	}

	out := make([]orb.Point, 0, len(pts)+8)
	for i, p := range pts {
		out = append(out, p)
		if p != closest || i+1 == len(pts) {
			continue
		}
		spliced, err := poleSplice(p, pts[i+1], pole)
		if err != nil {
			return nil, err
		}
		out = append(out, spliced...)
	}
	return out, nil
}

// poleVisible re-projects the pole and applies the viewing limits there.
func (s *SeamSplitter) poleVisible(lat float64) bool {
	sample, line, ok := s.proj.Unproject(0, lat)
	if !ok {
		return false
	}
	if _, _, ok := s.proj.Project(sample, line); !ok {
		return false
	}
	return s.gate.anglesOK()
}

// poleSplice returns the vertices inserted between from and to, which lie on
// opposite sides of the meridian: down the seam to the pole on one side and
// back up on the other.
func poleSplice(from, to, pole orb.Point) ([]orb.Point, error) {
	fromLon, toLon := 360.0, 0.0
	if to[0]-from[0] > 0 {
		fromLon, toLon = 0.0, 360.0
	}

	var crossing orb.Point
	meridian := 0.0
	dist := math.MaxFloat64
	for num := 0; num < 2 && dist > 180; num++ {
		meridian = float64(num) * 360
		if from[0] > 0 && to[0] > 0 {
			crossing = orb.Point{to[0] - 360 + float64(num)*720, to[1]}
		} else if from[0] < 0 && to[0] < 0 {
			crossing = orb.Point{to[0] + 360 - float64(num)*720, to[1]}
		}
		dist = math.Sqrt(distanceSquared(from, crossing))
	}

	iy, ok := meridianIntersection(from, crossing, meridian)
	if !ok {
		return nil, walkFailed(from[0], from[1], "image contains a pole but could not determine a meridian crossing")
	}

	if pole[1] < iy {
		dist = -dist
	}
	if math.Abs(dist) < minSeamSpacing {
		dist = math.Copysign(minSeamSpacing, dist)
	}

	maxLat := math.Max(iy, pole[1])
	minLat := math.Min(iy, pole[1])
	var lats []float64
	for lat := iy + dist; lat < maxLat && lat > minLat; lat += dist {
		lats = append(lats, lat)
	}

	out := make([]orb.Point, 0, 2*len(lats)+4)
	out = append(out, orb.Point{fromLon, iy})
	for _, lat := range lats {
		out = append(out, orb.Point{fromLon, lat})
	}
	out = append(out, orb.Point{fromLon, pole[1]}, orb.Point{toLon, pole[1]})
	for i := len(lats) - 1; i >= 0; i-- {
		out = append(out, orb.Point{toLon, lats[i]})
	}
	out = append(out, orb.Point{toLon, iy})
	return out, nil
}

// meridianIntersection returns the latitude where segment a-b crosses the
// line of longitude lon.
func meridianIntersection(a, b orb.Point, lon float64) (float64, bool) {
	dx := b[0] - a[0]
	if dx == 0 {
		if a[0] == lon {
			return a[1], true
		}
		return 0, false
	}
	t := (lon - a[0]) / dx
	if t < 0 || t > 1 {
		return 0, false
	}
	lat := a[1] + t*(b[1]-a[1])
	if lat < -90 || lat > 90 {
		return 0, false
	}
	return lat, true
}

// fix360 unwraps longitudes across the meridian and cuts the unwrapped ring
// into pieces that each lie within [0, 360].
func (s *SeamSplitter) fix360(pts []orb.Point) (orb.MultiPolygon, error) {
	if len(pts) == 0 {
		return nil, walkFailed(0, 0, "no ground points to build a footprint from")
	}

	converted := make([]orb.Point, 0, len(pts))
	converted = append(converted, pts[0])

	convertLon, negAdjust, newCoords := false, false, false
	offset, dist := 0.0, 0.0
	prev := pts[0]
	for _, p := range pts[1:] {
		if math.Abs(p[0]-prev[0]) > 180 && prev[1] != 90 && prev[1] != -90 {
			newCoords = true
			if convertLon {
				convertLon = false
				offset = 0
			} else {
				if p[0]-prev[0] > 0 {
					offset = -360
					negAdjust = true
				} else if p[0]-prev[0] < 0 {
					offset = 360
					negAdjust = false
				}
				convertLon = true
			}
		}

		if newCoords && dist == 0 {
			dlon := p[0] + offset - prev[0]
			dlat := p[1] - prev[1]
			dist = math.Sqrt(dlon*dlon + dlat*dlat)
		}

		converted = append(converted, orb.Point{p[0] + offset, p[1]})
		prev = p
	}

	ring := closeRing(orb.Ring(converted))
	poly := orb.MultiPolygon{{ring}}
	if !newCoords {
		return poly, nil
	}

	if dist < minSeamSpacing {
		dist = minSeamSpacing
	}

	var shifted, inRange orb.Polygon
	shift := -360.0
	if negAdjust {
		shifted = latitudeBandPolygon(0, -360, dist)
		inRange = latitudeBandPolygon(0, 360, dist)
		shift = 360
	} else {
		shifted = latitudeBandPolygon(360, 720, dist)
		inRange = latitudeBandPolygon(360, 0, dist)
	}
	Diagf("seam: splitting footprint at the meridian, seam spacing %g", dist)

	outside, err := s.repair.Intersect(poly, orb.MultiPolygon{shifted})
	if err != nil {
		return nil, fmt.Errorf("unable to create image footprint at the meridian: %w", err)
	}
	inside, err := s.repair.Intersect(poly, orb.MultiPolygon{inRange})
	if err != nil {
		return nil, fmt.Errorf("unable to create image footprint at the meridian: %w", err)
	}

	out := make(orb.MultiPolygon, 0, len(outside)+len(inside))
	for _, p := range outside {
		out = append(out, shiftLongitude(p, shift))
	}
	out = append(out, inside...)
	return out, nil
}
