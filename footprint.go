package gofootprint

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Footprint is the ground coverage of an image: a valid multipolygon in
// (longitude, latitude) degrees with longitudes in [0, 360]. Footprints are
// immutable; accessors return copies.
type Footprint struct {
	polygons         orb.MultiPolygon
	sampleIncrement  int
	lineIncrement    int
	subpixelAccuracy int
}

// NewFootprint wraps an existing multipolygon. It fails when mp is empty,
// invalid or holds an empty polygon.
func NewFootprint(mp orb.MultiPolygon) (*Footprint, error) {
	if isEmpty(mp) {
		return nil, &RepairError{Kind: Unrepairable, Op: "footprint", Err: fmt.Errorf("footprint is empty")}
	}
	for i, p := range mp {
		if len(p) == 0 || len(p[0]) == 0 {
			return nil, &RepairError{Kind: Unrepairable, Op: "footprint", Err: fmt.Errorf("polygon %d is empty", i)}
		}
	}
	if !IsValid(mp) {
		return nil, &RepairError{Kind: Unrepairable, Op: "footprint", Err: fmt.Errorf("footprint is not a valid multipolygon")}
	}
	return &Footprint{polygons: cloneMultiPolygon(mp), sampleIncrement: 1, lineIncrement: 1}, nil
}

// MultiPolygon returns a copy of the footprint polygons.
func (f *Footprint) MultiPolygon() orb.MultiPolygon {
	return cloneMultiPolygon(f.polygons)
}

// Increments returns the sample and line increments the boundary walk
// finished with.
func (f *Footprint) Increments() (sinc, linc int) {
	return f.sampleIncrement, f.lineIncrement
}

// SubpixelAccuracy returns the bisection count used to refine vertices.
func (f *Footprint) SubpixelAccuracy() int {
	return f.subpixelAccuracy
}

// Area returns the planar area in square degrees.
func (f *Footprint) Area() float64 {
	return area(f.polygons)
}

// Bound returns the longitude/latitude bounding box.
func (f *Footprint) Bound() orb.Bound {
	return f.polygons.Bound()
}

// ToText serializes the footprint as WKT. Coordinates are written with the
// shortest representation that parses back to the same float64.
func (f *Footprint) ToText() string {
	return wkt.MarshalString(f.polygons)
}

// FootprintFromText parses a footprint written by ToText. A single POLYGON
// is accepted as well.
func FootprintFromText(text string) (*Footprint, error) {
	mp, err := parseMultiPolygonWKT(text)
	if err != nil {
		return nil, err
	}
	return NewFootprint(mp)
}

func parseMultiPolygonWKT(text string) (orb.MultiPolygon, error) {
	text = strings.TrimSpace(text)
	g, err := wkt.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse footprint WKT: %w", err)
	}
	switch v := g.(type) {
	case orb.MultiPolygon:
		return v, nil
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	default:
		return nil, fmt.Errorf("footprint WKT holds a %s, expected a multipolygon", g.GeoJSONType())
	}
}

// Equal reports whether two footprints cover the same polygons under the
// Equal tolerance.
func (f *Footprint) Equal(other *Footprint) bool {
	if f == nil || other == nil {
		return f == other
	}
	return Equal(f.polygons, other.polygons)
}

// To180 returns the footprint with longitudes in [-180, 180]. Parts east of
// 180 are shifted by -360 and pieces that meet at 0 are merged.
func (f *Footprint) To180() (orb.MultiPolygon, error) {
	east := orb.MultiPolygon{PolygonFromBounds(orb.Bound{Min: orb.Point{0, -90}, Max: orb.Point{180, 90}})}
	west := orb.MultiPolygon{PolygonFromBounds(orb.Bound{Min: orb.Point{180, -90}, Max: orb.Point{360, 90}})}

	low, err := defaultRepair.Intersect(f.polygons, east)
	if err != nil {
		return nil, fmt.Errorf("failed to convert footprint to 180 domain: %w", err)
	}
	high, err := defaultRepair.Intersect(f.polygons, west)
	if err != nil {
		return nil, fmt.Errorf("failed to convert footprint to 180 domain: %w", err)
	}

	shifted := make(orb.MultiPolygon, 0, len(high))
	for _, p := range high {
		shifted = append(shifted, shiftLongitude(p, -360))
	}

	switch {
	case isEmpty(low):
		return shifted, nil
	case isEmpty(shifted):
		return low, nil
	}
	return defaultRepair.Union(low, shifted)
}

// CreateFootprint walks the valid region of proj inside window and returns
// its ground footprint. When a walk fails and precision increase is enabled
// the increments shrink to two thirds and the walk is retried.
func CreateFootprint(proj GroundProjector, window RasterWindow, cfg *EngineConfig) (*Footprint, error) {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	sinc, linc := cfg.GetSampleIncrement(), cfg.GetLineIncrement()
	if sinc < 1 || linc < 1 {
		return nil, programmerError("sample and line increments must be 1 or greater, got %d and %d", sinc, linc)
	}

	var (
		walker *BoundaryWalker
		ring   orb.Ring
	)
	for {
		walker = NewBoundaryWalker(proj, window, cfg, sinc, linc)
		var err error
		ring, err = walker.Walk()
		if err == nil {
			break
		}

		sinc = sinc * 2 / 3
		linc = linc * 2 / 3
		if cfg.GetIncreasePrecision() && (sinc > 1 || linc > 1) {
			sinc, linc = max(sinc, 1), max(linc, 1)
			WalkRetries.Inc()
			Diagf("footprint: walk failed (%v), retrying with increments %d/%d", err, sinc, linc)
			continue
		}

		WalkFailures.Inc()
		reason := "the increment/step size might be too large"
		if cfg.GetIncreasePrecision() {
			reason = "cannot increase precision any further"
		}
		Opsf("footprint: giving up: %s: %v", reason, err)
		return nil, fmt.Errorf("cannot find polygon for image: %s: %w", reason, err)
	}

	refined := NewSubpixelRefiner(walker, cfg.GetSubpixelIterations()).Refine(ring)

	mp, err := NewSeamSplitter(proj, cfg).Split(refined)
	if err != nil {
		WalkFailures.Inc()
		return nil, err
	}

	fp, err := NewFootprint(mp)
	if err != nil {
		WalkFailures.Inc()
		return nil, err
	}
	fp.sampleIncrement, fp.lineIncrement = walker.Increments()
	fp.subpixelAccuracy = cfg.GetSubpixelIterations()

	FootprintsCreated.Inc()
	Tracef("footprint: %d polygons from a %d vertex ring", len(mp), len(ring))
	return fp, nil
}

// FootprintFromLonLat builds a footprint from a ring already in ground
// coordinates, splitting it at the 0/360 meridian when it wraps.
func FootprintFromLonLat(ring orb.Ring, cfg *EngineConfig) (*Footprint, error) {
	if len(ring) < 4 {
		return nil, programmerError("a footprint ring needs at least 4 vertices, got %d", len(ring))
	}
	s := &SeamSplitter{repair: NewPolygonRepair(cfg)}
	mp, err := s.fix360(closeRing(ring))
	if err != nil {
		return nil, err
	}
	if despiked, err := s.repair.Despike(mp); err == nil {
		mp = despiked
	}
	return NewFootprint(mp)
}
