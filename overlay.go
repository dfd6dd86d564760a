package gofootprint

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/peterstace/simplefeatures/geom"
	"gonum.org/v1/gonum/floats/scalar"
)

// The overlay engine works on simplefeatures geometries. Values cross the
// boundary as WKT, which both libraries print with shortest round-trip
// float formatting, so no precision is lost on the way.

// toEngine converts mp into an engine geometry. Parsing validates, so an
// error here means mp is not a valid multipolygon.
func toEngine(mp orb.MultiPolygon) (geom.Geometry, error) {
	if isEmpty(mp) {
		return geom.Geometry{}, nil
	}
	g, err := geom.UnmarshalWKT(wkt.MarshalString(mp))
	if err != nil {
		return geom.Geometry{}, err
	}
	return g, nil
}

// fromEngine keeps only the areal parts of an engine result. Points and
// lines produced by touching boundaries are dropped.
func fromEngine(g geom.Geometry) (orb.MultiPolygon, error) {
	if g.IsEmpty() {
		return orb.MultiPolygon{}, nil
	}

	var out orb.MultiPolygon
	switch g.Type() {
	case geom.TypePolygon:
		p, err := polygonFromEngine(g.MustAsPolygon())
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	case geom.TypeMultiPolygon:
		mp := g.MustAsMultiPolygon()
		for i := 0; i < mp.NumPolygons(); i++ {
			p, err := polygonFromEngine(mp.PolygonN(i))
			if err != nil {
				return nil, err
			}
			if p != nil {
				out = append(out, p)
			}
		}
	case geom.TypeGeometryCollection:
		gc := g.MustAsGeometryCollection()
		for i := 0; i < gc.NumGeometries(); i++ {
			sub, err := fromEngine(gc.GeometryN(i))
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}

	if out == nil {
		out = orb.MultiPolygon{}
	}
	return out, nil
}

func polygonFromEngine(p geom.Polygon) (orb.Polygon, error) {
	if p.IsEmpty() {
		return nil, nil
	}
	op, err := wkt.UnmarshalPolygon(p.AsText())
	if err != nil {
		return nil, fmt.Errorf("failed to read engine polygon: %w", err)
	}
	return op, nil
}

// IsValid reports whether mp is a topologically valid multipolygon.
// An empty multipolygon is valid.
func IsValid(mp orb.MultiPolygon) bool {
	_, err := toEngine(mp)
	return err == nil
}

type overlayOp int

const (
	opIntersection overlayOp = iota
	opDifference
	opUnion
)

func (op overlayOp) String() string {
	switch op {
	case opIntersection:
		return "intersection"
	case opDifference:
		return "difference"
	case opUnion:
		return "union"
	default:
		return fmt.Sprintf("overlayOp(%d)", int(op))
	}
}

// runOverlay performs a single engine operation at full precision.
func runOverlay(a, b orb.MultiPolygon, op overlayOp) (orb.MultiPolygon, error) {
	ga, err := toEngine(a)
	if err != nil {
		return nil, fmt.Errorf("first operand: %w", err)
	}
	gb, err := toEngine(b)
	if err != nil {
		return nil, fmt.Errorf("second operand: %w", err)
	}

	var result geom.Geometry
	switch op {
	case opIntersection:
		result, err = geom.Intersection(ga, gb)
	case opDifference:
		result, err = geom.Difference(ga, gb)
	case opUnion:
		result, err = geom.Union(ga, gb)
	default:
		return nil, fmt.Errorf("unknown overlay operation %d", int(op))
	}
	if err != nil {
		return nil, err
	}

	return fromEngine(result)
}

// decimalPlace returns the position of the leading digit of num relative to
// the decimal point: 123.4 -> 3, 0.05 -> -1.
func decimalPlace(num float64) int {
	if num == 0 || math.IsNaN(num) || math.IsInf(num, 0) {
		return 0
	}
	return int(math.Floor(math.Log10(math.Abs(num)))) + 1
}

// reduceNumber rounds num to the given count of significant digits.
func reduceNumber(num float64, digits int) float64 {
	if num == 0 {
		return 0
	}
	factor := math.Pow(10, float64(decimalPlace(num)))
	return scalar.Round(num/factor, digits) * factor
}

// reducePrecision returns a copy of mp with every coordinate rounded to
// digits significant digits. Consecutive vertices that collapse onto each
// other are merged.
func reducePrecision(mp orb.MultiPolygon, digits int) orb.MultiPolygon {
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		np := make(orb.Polygon, 0, len(poly))
		for _, r := range poly {
			nr := make(orb.Ring, 0, len(r))
			for _, pt := range r {
				q := orb.Point{reduceNumber(pt[0], digits), reduceNumber(pt[1], digits)}
				if len(nr) > 0 && nr[len(nr)-1] == q {
					continue
				}
				nr = append(nr, q)
			}
			np = append(np, nr)
		}
		out = append(out, np)
	}
	return out
}
