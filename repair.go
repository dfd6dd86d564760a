package gofootprint

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/floats/scalar"
)

const (
	// spikeRatio is the largest offset/length ratio a vertex may have before
	// it is treated as the tip of a spike.
	spikeRatio = 0.05
	// collinearArea is the triangle area under which three vertices are
	// considered to lie on a line.
	collinearArea = 1e-10
	// equalDigits is the significant-digit resolution used by Equal.
	equalDigits = 15
	// maxAreaChange bounds how much a repair may change a polygon's area.
	maxAreaChange = 0.50
)

// PolygonRepair wraps the overlay engine with the despike, precision
// reduction and fix-up steps needed to survive degenerate inputs.
type PolygonRepair struct {
	maxDigits int
	minDigits int
}

// NewPolygonRepair creates a PolygonRepair using the precision bounds in cfg.
func NewPolygonRepair(cfg *EngineConfig) *PolygonRepair {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	return &PolygonRepair{
		maxDigits: cfg.GetMaxPrecisionDigits(),
		minDigits: cfg.GetMinPrecisionDigits(),
	}
}

var defaultRepair = NewPolygonRepair(nil)

// Despike removes spikes with the default settings.
func Despike(mp orb.MultiPolygon) (orb.MultiPolygon, error) { return defaultRepair.Despike(mp) }

// Intersect intersects a and b with the default settings.
func Intersect(a, b orb.MultiPolygon) (orb.MultiPolygon, error) { return defaultRepair.Intersect(a, b) }

// Difference subtracts b from a with the default settings.
func Difference(a, b orb.MultiPolygon) (orb.MultiPolygon, error) { return defaultRepair.Difference(a, b) }

// Union merges a and b with the default settings.
func Union(a, b orb.MultiPolygon) (orb.MultiPolygon, error) { return defaultRepair.Union(a, b) }

// Despike returns a copy of mp with spike vertices removed from every ring.
// A polygon whose despiked form is invalid falls back to the original when
// that one is valid and is dropped otherwise.
func (r *PolygonRepair) Despike(mp orb.MultiPolygon) (orb.MultiPolygon, error) {
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}

		var holes []orb.Ring
		for _, h := range poly[1:] {
			ring := despikeRing(h)
			if ring != nil && !ringValid(ring) {
				if fixed, err := fixRing(ring); err == nil {
					ring = fixed
				}
			}
			if len(ring) > 0 {
				holes = append(holes, ring)
			}
		}

		shell := despikeRing(poly[0])
		if shell != nil && !ringValid(shell) {
			fixed, err := fixRing(shell)
			switch {
			case err == nil:
				shell = fixed
			case ringValid(poly[0]):
				shell = closeRing(poly[0]).Clone()
			default:
				return nil, &RepairError{Kind: Unrepairable, Op: "despike", Err: err}
			}
		}
		if len(shell) == 0 {
			continue
		}

		candidate := append(orb.Polygon{shell}, holes...)
		switch {
		case IsValid(orb.MultiPolygon{candidate}):
			out = append(out, candidate)
		case IsValid(orb.MultiPolygon{poly}):
			out = append(out, poly.Clone())
		default:
			Diagf("despike: discarding polygon with %d rings that could not be repaired", len(poly))
		}
	}

	if isEmpty(out) || !IsValid(out) {
		return nil, &RepairError{Kind: Unrepairable, Op: "despike", Err: errors.New("despike failed to correct the polygon")}
	}

	if before := area(mp); before > 0 {
		if math.Abs(area(out)/before-1) > maxAreaChange {
			return nil, &RepairError{
				Kind: Unrepairable,
				Op:   "despike",
				Err:  fmt.Errorf("area changed from %g to %g", before, area(out)),
			}
		}
	}

	return out, nil
}

// despikeRing removes spiked vertices from a closed ring. It returns nil
// when fewer than three distinct vertices survive.
func despikeRing(ring orb.Ring) orb.Ring {
	ring = closeRing(ring)
	if len(ring) < 4 {
		return nil
	}

	// The closing duplicate would hide spikes at the start vertex.
	v := make([]orb.Point, len(ring)-1)
	copy(v, ring[:len(ring)-1])

	for i := 0; i < len(v); i++ {
		if len(v) < 3 {
			break
		}
		n := len(v)
		prev, mid, next := wrapIndex(i-1, n), wrapIndex(i, n), wrapIndex(i+1, n)
		if isSpiked(v[prev], v[mid], v[next]) {
			v = append(v[:mid], v[mid+1:]...)
			i -= 2
		}
	}

	if len(v) < 3 {
		return nil
	}
	return append(orb.Ring(v), v[0])
}

func wrapIndex(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

func isSpiked(first, middle, last orb.Point) bool {
	return testSpiked(first, middle, last) || testSpiked(last, middle, first)
}

// testSpiked treats first-middle as the base of a triangle with last as its
// tip. A tip that sits almost on the base line marks middle as a spike.
func testSpiked(first, middle, last orb.Point) bool {
	tolerance := planar.Distance(first, middle) / 100.0

	distLastMiddle := planar.Distance(last, middle)
	if distLastMiddle == 0 {
		return true
	}
	distLastLine := planar.DistanceFromSegment(first, middle, last)

	spiked := true
	if distLastLine/distLastMiddle >= spikeRatio {
		spiked = false
	}
	if spiked && distLastLine > tolerance {
		spiked = false
	}

	if !spiked {
		tri := orb.Ring{first, middle, last, first}
		if math.Abs(planar.Area(tri)) < collinearArea {
			spiked = true
		}
	}
	return spiked
}

func ringValid(r orb.Ring) bool {
	if len(r) < 4 {
		return false
	}
	return IsValid(orb.MultiPolygon{{r}})
}

// fixRing drops vertices that sit too close to their predecessor for the
// engine to tell apart at double precision.
func fixRing(ring orb.Ring) (orb.Ring, error) {
	ring = closeRing(ring)
	if len(ring) < 4 {
		return nil, nil
	}

	out := orb.Ring{ring[0]}
	last := ring[0]
	for _, pt := range ring[1 : len(ring)-1] {
		dx, dy := last[0]-pt[0], last[1]-pt[1]

		minDiff := math.Min(
			math.Abs(float64(decimalPlace(pt[0])-decimalPlace(dx))),
			math.Abs(float64(decimalPlace(pt[1])-decimalPlace(dy))),
		)
		switch {
		case dx == 0 && dy != 0:
			minDiff = math.Abs(float64(decimalPlace(pt[1]) - decimalPlace(dy)))
		case dy == 0 && dx != 0:
			minDiff = math.Abs(float64(decimalPlace(pt[0]) - decimalPlace(dx)))
		case dx == 0 && dy == 0:
			minDiff = math.Inf(1)
		}

		if minDiff <= 15 {
			out = append(out, pt)
			last = pt
		}
	}
	out = append(out, out[0])

	var fixed orb.Ring
	if len(out) > 3 {
		fixed = out
	}

	if fixed != nil && !ringValid(fixed) && ringValid(ring) {
		return nil, errors.New("failed when attempting to fix linear ring")
	}
	if fixed == nil || !ringValid(fixed) {
		return ring.Clone(), nil
	}
	return fixed, nil
}

// fixGeometry applies fixRing to every ring and keeps the polygons that end
// up valid.
func fixGeometry(mp orb.MultiPolygon) (orb.MultiPolygon, error) {
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		fixed := make(orb.Polygon, 0, len(poly))
		for i, r := range poly {
			fr, err := fixRing(r)
			if err != nil {
				if i == 0 {
					return nil, fmt.Errorf("failed when attempting to fix exterior ring of polygon: %w", err)
				}
				return nil, fmt.Errorf("failed when attempting to fix interior ring of polygon: %w", err)
			}
			if len(fr) == 0 {
				if i == 0 {
					break
				}
				continue
			}
			fixed = append(fixed, fr)
		}
		if len(fixed) > 0 && IsValid(orb.MultiPolygon{fixed}) {
			out = append(out, fixed)
		}
	}
	return out, nil
}

// Intersect returns the intersection of a and b.
func (r *PolygonRepair) Intersect(a, b orb.MultiPolygon) (orb.MultiPolygon, error) {
	return r.operate(a, b, opIntersection)
}

// Difference returns a minus b.
func (r *PolygonRepair) Difference(a, b orb.MultiPolygon) (orb.MultiPolygon, error) {
	return r.operate(a, b, opDifference)
}

// Union returns the union of a and b.
func (r *PolygonRepair) Union(a, b orb.MultiPolygon) (orb.MultiPolygon, error) {
	return r.operate(a, b, opUnion)
}

// operate runs op at full precision and then at each precision level from
// maxDigits down to minDigits until the engine succeeds. Neither operand is
// modified.
func (r *PolygonRepair) operate(a, b orb.MultiPolygon, op overlayOp) (orb.MultiPolygon, error) {
	result, err := runOverlay(a, b, op)
	for digits := r.maxDigits; err != nil && digits >= r.minDigits; digits-- {
		Diagf("%s failed (%v), retrying at %d significant digits", op, err, digits)
		result, err = runOverlay(r.reduce(a, digits), r.reduce(b, digits), op)
	}
	if err != nil {
		return nil, &RepairError{Kind: EngineFailure, Op: op.String(), Err: err}
	}

	if !IsValid(result) {
		fixed, ferr := fixGeometry(result)
		if ferr != nil {
			return nil, &RepairError{Kind: EngineFailure, Op: op.String(), Err: ferr}
		}
		if ra := area(result); ra > 0 && math.Abs(area(fixed)/ra-1) > maxAreaChange {
			return nil, &RepairError{
				Kind: EngineFailure,
				Op:   op.String(),
				Err:  fmt.Errorf("fixing the result changed its area from %g to %g", ra, area(fixed)),
			}
		}
		result = fixed
	}

	return result, nil
}

func (r *PolygonRepair) reduce(mp orb.MultiPolygon, digits int) orb.MultiPolygon {
	reduced := reducePrecision(mp, digits)
	if despiked, err := r.Despike(reduced); err == nil {
		return despiked
	}
	return reduced
}

// Equal reports whether a and b hold the same polygons, allowing a different
// polygon order, a different ring start vertex and reversed orientation.
// Coordinates are compared at 15 significant digits.
func Equal(a, b orb.MultiPolygon) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
outer:
	for _, pa := range a {
		for j, pb := range b {
			if !used[j] && polygonsEqual(pa, pb) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

func polygonsEqual(a, b orb.Polygon) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	if !ringsEqual(a[0], b[0]) {
		return false
	}

	used := make([]bool, len(b))
outer:
	for _, ha := range a[1:] {
		for j := 1; j < len(b); j++ {
			if !used[j] && ringsEqual(ha, b[j]) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

func ringsEqual(a, b orb.Ring) bool {
	a, b = openRing(a), openRing(b)
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	if rotationEqual(a, b) {
		return true
	}
	rev := make([]orb.Point, len(b))
	for i, p := range b {
		rev[len(b)-1-i] = p
	}
	return rotationEqual(a, rev)
}

func openRing(r orb.Ring) []orb.Point {
	if len(r) > 1 && r.Closed() {
		return r[:len(r)-1]
	}
	return r
}

func rotationEqual(a, b []orb.Point) bool {
	n := len(a)
	for start := 0; start < n; start++ {
		if !pointsEqual(a[0], b[start]) {
			continue
		}
		match := true
		for k := 1; k < n; k++ {
			if !pointsEqual(a[k], b[(start+k)%n]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func pointsEqual(a, b orb.Point) bool {
	return coordEqual(a[0], b[0]) && coordEqual(a[1], b[1])
}

func coordEqual(x, y float64) bool {
	if decimalPlace(x) != decimalPlace(y) {
		return false
	}
	f := math.Pow(10, float64(decimalPlace(x)))
	return scalar.Round(x/f, equalDigits) == scalar.Round(y/f, equalDigits)
}

// Thickness returns area / max(width, height)^2 of the bounding box. Long
// thin slivers score close to zero.
func Thickness(mp orb.MultiPolygon) float64 {
	if isEmpty(mp) {
		return 0
	}
	b := mp.Bound()
	extent := math.Max(math.Abs(b.Max[0]-b.Min[0]), math.Abs(b.Max[1]-b.Min[1]))
	if extent == 0 {
		return 0
	}
	return area(mp) / (extent * extent)
}
