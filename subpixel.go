package gofootprint

import (
	"github.com/paulmach/orb"
)

// SubpixelRefiner moves boundary vertices off the pixel grid toward the true
// edge of the valid region by bisection.
type SubpixelRefiner struct {
	gate       viewGate
	walker     *BoundaryWalker
	iterations int
}

// NewSubpixelRefiner creates a refiner that validates positions against the
// same window and viewing limits as w.
func NewSubpixelRefiner(w *BoundaryWalker, iterations int) *SubpixelRefiner {
	return &SubpixelRefiner{gate: w.gate, walker: w, iterations: iterations}
}

// Refine returns a copy of the closed ring with every vertex moved outward
// along the perpendicular of its neighbouring chord. The closing vertex is
// set to the refined first vertex. An iteration count of zero or less
// returns the ring unchanged.
func (r *SubpixelRefiner) Refine(ring orb.Ring) orb.Ring {
	out := make(orb.Ring, len(ring))
	copy(out, ring)
	if r.iterations <= 0 || len(out) < 3 {
		return out
	}

	sinc, linc := r.walker.Increments()
	maxStep := float64(sinc)
	if float64(linc) > maxStep {
		maxStep = float64(linc)
	}

	old := out[0]
	done := false
	for pt := 1; !done; pt++ {
		if pt >= len(out)-1 {
			pt = 0
			done = true
		}

		next := out[pt+1]
		stepX := (next[1] - old[1]) / maxStep
		stepY := (old[0] - next[0]) / maxStep

		valid := out[pt]
		invalid := orb.Point{valid[0] + stepX, valid[1] + stepY}
		for i := 0; i < r.iterations; i++ {
			half := orb.Point{(valid[0] + invalid[0]) / 2, (valid[1] + invalid[1]) / 2}
			if r.gate.valid(half[0], half[1]) && r.walker.insideImage(half[0], half[1]) {
				valid = half
			} else {
				invalid = half
			}
		}

		old = out[pt]
		out[pt] = valid
	}

	out[len(out)-1] = out[0]
	return out
}
