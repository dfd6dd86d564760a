package gofootprint

import (
	"github.com/paulmach/orb"
)

// WalkState is the state of a BoundaryWalker.
type WalkState int

const (
	StateSeeking WalkState = iota
	StateWalking
	StateClosed
	StateFailed
)

func (s WalkState) String() string {
	switch s {
	case StateSeeking:
		return "seeking"
	case StateWalking:
		return "walking"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OutcomeKind tags the result of a single walk step.
type OutcomeKind int

const (
	// OutcomeAdvance means a vertex was appended to the ring.
	OutcomeAdvance OutcomeKind = iota
	// OutcomeBacktrack means the step had to drop the previous vertex
	// before it could append a new one.
	OutcomeBacktrack
	// OutcomeClosed means the ring returned to its first vertex.
	OutcomeClosed
	// OutcomeFailed means the walk gave up. Err holds the reason.
	OutcomeFailed
)

// WalkOutcome is returned by BoundaryWalker.Step.
type WalkOutcome struct {
	Kind  OutcomeKind
	Point orb.Point
	Err   error
}

// BoundaryWalker traces the outline of the valid region of a raster with a
// left-hand wall-following rule. Positions are (sample, line) pixel centres.
type BoundaryWalker struct {
	gate viewGate

	startSample, startLine float64
	endSample, endLine     float64

	sinc, linc     int
	maxDepth       int
	cycleThreshold int
	maxSteps       int

	state   WalkState
	points  []orb.Point
	first   orb.Point
	current orb.Point
	last    orb.Point
	steps   int
	err     error
}

// NewBoundaryWalker creates a walker over window of proj stepping sinc
// samples and linc lines at a time.
func NewBoundaryWalker(proj GroundProjector, window RasterWindow, cfg *EngineConfig, sinc, linc int) *BoundaryWalker {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if sinc < 1 {
		sinc = 1
	}
	if linc < 1 {
		linc = 1
	}

	ss, sl, es, el := window.bounds(proj)
	w := &BoundaryWalker{
		gate:           newViewGate(proj, cfg),
		startSample:    ss,
		startLine:      sl,
		endSample:      es,
		endLine:        el,
		sinc:           sinc,
		linc:           linc,
		maxDepth:       cfg.GetMaxRecursionDepth(),
		cycleThreshold: cfg.GetCycleCheckThreshold(),
	}

	// Every pixel can be visited from each of its eight neighbours at most
	// once on a simple boundary.
	w.maxSteps = 8*int((es-ss+1)*(el-sl+1)) + 16
	return w
}

// State returns the current walk state.
func (w *BoundaryWalker) State() WalkState { return w.state }

// Err returns the failure reason once the walker is in StateFailed.
func (w *BoundaryWalker) Err() error { return w.err }

// Increments returns the sample and line increments currently in use. Both
// shrink when a triangle cycle is removed.
func (w *BoundaryWalker) Increments() (int, int) { return w.sinc, w.linc }

// Ring returns a copy of the vertices accepted so far.
func (w *BoundaryWalker) Ring() orb.Ring {
	out := make(orb.Ring, len(w.points))
	copy(out, w.points)
	return out
}

// Walk steps until the walker reaches a terminal state and returns the
// closed ring.
func (w *BoundaryWalker) Walk() (orb.Ring, error) {
	for {
		out := w.Step()
		switch out.Kind {
		case OutcomeClosed:
			return w.Ring(), nil
		case OutcomeFailed:
			return nil, out.Err
		}
	}
}

// Step advances the walk by one vertex.
func (w *BoundaryWalker) Step() WalkOutcome {
	switch w.state {
	case StateSeeking:
		first, err := w.findFirstPoint()
		if err != nil {
			return w.fail(err)
		}
		w.first, w.current, w.last = first, first, first
		w.points = append(w.points[:0], first)
		w.state = StateWalking
		Tracef("walk: first point (%g, %g)", first[0], first[1])
		return WalkOutcome{Kind: OutcomeAdvance, Point: first}
	case StateWalking:
		return w.advance()
	case StateClosed:
		return WalkOutcome{Kind: OutcomeClosed}
	default:
		return WalkOutcome{Kind: OutcomeFailed, Err: w.err}
	}
}

func (w *BoundaryWalker) fail(err error) WalkOutcome {
	w.state = StateFailed
	w.err = err
	Tracef("walk: %v", err)
	return WalkOutcome{Kind: OutcomeFailed, Err: err}
}

func (w *BoundaryWalker) finish() WalkOutcome {
	if len(w.points) <= 3 {
		return w.fail(walkFailed(w.current[0], w.current[1], "failed to find enough points on the image"))
	}
	w.state = StateClosed
	return WalkOutcome{Kind: OutcomeClosed, Point: w.points[len(w.points)-1]}
}

func (w *BoundaryWalker) advance() WalkOutcome {
	w.steps++
	if w.steps > w.maxSteps {
		return w.fail(walkFailed(w.current[0], w.current[1], "walk did not close after %d steps", w.maxSteps))
	}

	temp, err := w.nextPoint(w.current, w.last, 0)
	if err != nil {
		return w.fail(err)
	}

	if w.shouldSnap() {
		temp = w.first
	} else if float64(w.sinc) > w.endSample || float64(w.linc) > w.endLine {
		// Steps wider than the raster can loop without ever landing on
		// the first vertex.
		for _, p := range w.points {
			if p == temp {
				temp = w.first
				break
			}
		}
	}

	backtracked := false
	if temp == w.current {
		duplicate := temp
		w.current, w.last = w.last, w.current

		if len(w.points) < 3 {
			return w.fail(walkFailed(w.current[0], w.current[1], "failed to find next point in the image"))
		}
		w.points = w.points[:len(w.points)-1]

		temp, err = w.nextPoint(w.current, w.last, 1)
		if err != nil {
			return w.fail(err)
		}
		if temp == w.current || temp == duplicate {
			return w.fail(walkFailed(w.current[0], w.current[1], "failed to find next valid point in the image"))
		}
		backtracked = true
		Tracef("walk: backtracked to (%g, %g)", w.current[0], w.current[1])
	}

	if (w.sinc > 1 || w.linc > 1) && len(w.points) >= 3 {
		n := len(w.points)
		if w.points[n-3] == temp {
			w.points = w.points[:n-3]
			if len(w.points) == 0 {
				return w.fail(walkFailed(temp[0], temp[1], "triangle cycle consumed the ring"))
			}
			w.current = w.points[len(w.points)-1]
			if w.sinc > 1 {
				w.sinc--
			}
			if w.linc > 1 {
				w.linc--
			}
			Diagf("walk: removed triangle cycle at (%g, %g), increments now %d/%d", temp[0], temp[1], w.sinc, w.linc)
		}

		if len(w.points) > w.cycleThreshold {
			if cycle := firstCycle(w.points); cycle != nil {
				Diagf("walk: truncated %d vertex ring to a %d vertex cycle", len(w.points), len(cycle))
				w.points = cycle
				return w.finish()
			}
		}
	}

	w.last = w.current
	w.current = temp
	w.points = append(w.points, temp)

	if temp == w.first {
		return w.finish()
	}
	if backtracked {
		return WalkOutcome{Kind: OutcomeBacktrack, Point: temp}
	}
	return WalkOutcome{Kind: OutcomeAdvance, Point: temp}
}

// shouldSnap reports whether the walk is close enough to its first vertex,
// under a step larger than one pixel, to close the ring. A large step can
// overshoot the first vertex. The distance test is strict.
func (w *BoundaryWalker) shouldSnap() bool {
	if w.sinc == 1 || w.linc == 1 || len(w.points) <= 2 {
		return false
	}
	if float64(w.sinc) >= w.endSample || float64(w.linc) >= w.endLine {
		return false
	}
	minStep := min(w.sinc, w.linc)
	return distanceSquared(w.current, w.first) < float64(minStep*minStep)
}

// firstCycle returns the vertices between the first repeated pair,
// ignoring the first vertex, or nil when no vertex repeats.
func firstCycle(points []orb.Point) []orb.Point {
	for start := 1; start < len(points); start++ {
		for end := start + 1; end < len(points); end++ {
			if points[start] == points[end] {
				cycle := make([]orb.Point, end-start+1)
				copy(cycle, points[start:end+1])
				return cycle
			}
		}
	}
	return nil
}

// insideImage reports whether (s, l) is on the raster window, pixel edges
// included.
func (w *BoundaryWalker) insideImage(s, l float64) bool {
	return s >= w.startSample-0.5 &&
		l > w.startLine-0.5 &&
		s <= w.endSample+0.5 &&
		l <= w.endLine+0.5
}

func (w *BoundaryWalker) valid(s, l float64) bool {
	return w.gate.valid(s, l)
}

// findFirstPoint scans sample-major for a valid pixel whose successor under
// the walk rule is a different pixel.
func (w *BoundaryWalker) findFirstPoint() (orb.Point, error) {
	for s := w.startSample; s <= w.endSample; s++ {
		for l := w.startLine; l <= w.endLine; l++ {
			if !w.valid(s, l) {
				continue
			}
			p := orb.Point{s, l}
			next, err := w.nextPoint(p, p, 0)
			if err != nil {
				return orb.Point{}, err
			}
			if next != p {
				return p, nil
			}
		}
	}
	return orb.Point{}, walkFailed(w.startSample, w.startLine, "no lat/lon data found for image")
}

// nextPoint finds the successor of current given the previous vertex last.
// Passing last == current starts a walk. A result equal to current means no
// successor was found within the depth cap.
func (w *BoundaryWalker) nextPoint(current, last orb.Point, depth int) (orb.Point, error) {
	if depth > w.maxDepth {
		return current, nil
	}

	x := last[0] - current[0]
	y := last[1] - current[1]
	s := float64(w.sinc)
	l := float64(w.linc)

	switch {
	case x == 0 && y == 0:
		for dl := -w.linc; dl <= w.linc; dl += w.linc {
			for ds := -w.sinc; ds <= w.sinc; ds += w.sinc {
				ns := current[0] + float64(ds)
				nl := current[1] + float64(dl)
				if !w.insideImage(ns, nl) || !w.valid(ns, nl) {
					return w.nextPoint(current, orb.Point{ns, nl}, 0)
				}
			}
		}
		return current, walkFailed(current[0], current[1], "starting point is not on the edge of the image")
	case x < 0 && y < 0: // top left
		return w.probe(current, last, 0, -l, depth)
	case x == 0 && y < 0: // top
		return w.probe(current, last, s, -l, depth)
	case x > 0 && y < 0: // top right
		return w.probe(current, last, s, 0, depth)
	case x > 0 && y == 0: // right
		return w.probe(current, last, s, l, depth)
	case x > 0 && y > 0: // bottom right
		return w.probe(current, last, 0, l, depth)
	case x == 0 && y > 0: // bottom
		return w.probe(current, last, -s, l, depth)
	case x < 0 && y > 0: // bottom left
		return w.probe(current, last, -s, 0, depth)
	case x < 0 && y == 0: // left
		return w.probe(current, last, -s, -l, depth)
	default:
		return current, walkFailed(current[0], current[1], "error walking image")
	}
}

// probe tries the candidate at current+(ds, dl). Depth zero always rotates
// to the next heading.
func (w *BoundaryWalker) probe(current, last orb.Point, ds, dl float64, depth int) (orb.Point, error) {
	next := w.moveBackInside(orb.Point{current[0] + ds, current[1] + dl}, ds, dl)
	if depth == 0 || !w.insideImage(next[0], next[1]) || !w.valid(next[0], next[1]) {
		return w.nextPoint(current, next, depth+1)
	}
	return w.findBestPoint(current, next, last), nil
}

// moveBackInside snaps a candidate that stepped off the window back to the
// edge pixel, unless the step started on that edge.
func (w *BoundaryWalker) moveBackInside(p orb.Point, ds, dl float64) orb.Point {
	sample, line := p[0], p[1]
	origSample := sample - ds
	origLine := line - dl

	if sample < w.startSample && ds < 0 {
		if origSample == w.startSample {
			return orb.Point{sample, line}
		}
		sample = w.startSample
	}
	if sample > w.endSample && ds > 0 {
		if origSample == w.endSample {
			return orb.Point{sample, line}
		}
		sample = w.endSample
	}
	if line < w.startLine && dl < 0 {
		if origLine == w.startLine {
			return orb.Point{sample, line}
		}
		line = w.startLine
	}
	if line > w.endLine && dl > 0 {
		if origLine-w.endLine < 0.5 && w.endLine-origLine < 0.5 {
			return orb.Point{sample, line}
		}
		line = w.endLine
	}
	return orb.Point{sample, line}
}

// findBestPoint pulls the last rejected candidate toward the accepted one a
// pixel at a time until it is valid, then recovers any corner the large
// step skipped. It only applies when an increment exceeds one.
func (w *BoundaryWalker) findBestPoint(current, newPoint, lastPoint orb.Point) orb.Point {
	if w.sinc <= 1 && w.linc <= 1 {
		return newPoint
	}

	x, y := lastPoint[0], lastPoint[1]
	if x < w.startSample {
		x = w.startSample
	} else if x > w.endSample {
		x = w.endSample
	}
	if y < w.startLine {
		y = w.startLine
	} else if y > w.endLine {
		y = w.endLine
	}

	invalid := orb.Point{x, y}
	valid := newPoint
	limit := w.sinc + w.linc + 2
	for i := 0; !w.valid(invalid[0], invalid[1]); i++ {
		if i > limit {
			invalid = valid
			break
		}
		invalid = orb.Point{stepToward(invalid[0], valid[0]), stepToward(invalid[1], valid[1])}
	}

	return w.fixCornerSkip(current, invalid)
}

func stepToward(from, to float64) float64 {
	switch {
	case from > to:
		return float64(int(from) - 1)
	case from < to:
		return float64(int(from) + 1)
	default:
		return float64(int(from))
	}
}

// fixCornerSkip slides newPoint back along the corner direction while it
// stays valid.
func (w *BoundaryWalker) fixCornerSkip(current, newPoint orb.Point) orb.Point {
	original := newPoint
	mod := newPoint

	if float64(w.sinc) > w.endSample || float64(w.linc) > w.endLine {
		return newPoint
	}

	switch {
	case current[0] < newPoint[0] && current[1] > newPoint[1]: // upper left
		for newPoint[0] >= current[0] && w.valid(newPoint[0], newPoint[1]) {
			mod = newPoint
			newPoint[0]--
		}
	case current[1] < newPoint[1] && current[0] < newPoint[0]: // upper right
		for newPoint[1] >= current[1] && w.valid(newPoint[0], newPoint[1]) {
			mod = newPoint
			newPoint[1]--
		}
	case current[0] > newPoint[0] && current[1] < newPoint[1]: // lower right
		for newPoint[0] <= current[0] && w.valid(newPoint[0], newPoint[1]) {
			mod = newPoint
			newPoint[0]++
		}
	case current[1] > newPoint[1] && current[0] > newPoint[0]: // lower left
		for newPoint[1] <= current[1] && w.valid(newPoint[0], newPoint[1]) {
			mod = newPoint
			newPoint[1]++
		}
	}

	if mod == current {
		return original
	}
	return mod
}
