package gofootprint

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// maxSubGridPrecision caps the refinement depth of a sub-grid search. A
// depth of 6 checks points on a 127x127 lattice inside the cell.
const maxSubGridPrecision = 6

// GridSeeder lays a regular grid of candidate points inside a polygon given
// in planar (projected) coordinates.
type GridSeeder struct {
	xSpacing         float64
	ySpacing         float64
	subGrid          bool
	minimumThickness float64
	minimumArea      float64
}

// NewGridSeeder creates a seeder from the grid settings in cfg.
func NewGridSeeder(cfg *EngineConfig) (*GridSeeder, error) {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	s := &GridSeeder{
		xSpacing:         cfg.GetXSpacing(),
		ySpacing:         cfg.GetYSpacing(),
		subGrid:          cfg.GetSubGrid(),
		minimumThickness: cfg.GetMinimumThickness(),
		minimumArea:      cfg.GetMinimumArea(),
	}
	if s.xSpacing <= 0 {
		return nil, programmerError("x spacing must be greater than 0.0, got %g", s.xSpacing)
	}
	if s.ySpacing <= 0 {
		return nil, programmerError("y spacing must be greater than 0.0, got %g", s.ySpacing)
	}
	return s, nil
}

// Seed returns points strictly inside mp. Polygons that fail the thickness
// or area tests yield no points.
func (s *GridSeeder) Seed(mp orb.MultiPolygon) []orb.Point {
	if reason := s.standardTests(mp); reason != "" {
		Diagf("seeder: not seeding polygon: %s", reason)
		return nil
	}

	var points []orb.Point
	if s.subGrid {
		points = s.seedSubGrid(mp)
	} else {
		points = s.seedGrid(mp)
	}
	SeedPoints.Add(float64(len(points)))
	return points
}

func (s *GridSeeder) standardTests(mp orb.MultiPolygon) string {
	if isEmpty(mp) {
		return "polygon is empty"
	}
	if t := Thickness(mp); t < s.minimumThickness {
		return "polygon thickness is below the minimum"
	}
	if a := area(mp); a < s.minimumArea {
		return "polygon area is below the minimum"
	}
	return ""
}

// origin returns the lattice corner aligned so that a lattice point falls
// on the centroid of mp.
func (s *GridSeeder) origin(mp orb.MultiPolygon, b orb.Bound) (float64, float64) {
	centroid, _ := planar.CentroidArea(mp)
	xSteps := int((centroid[0]-b.Min[0])/s.xSpacing + 0.5)
	ySteps := int((centroid[1]-b.Min[1])/s.ySpacing + 0.5)
	return centroid[0] - float64(xSteps)*s.xSpacing, centroid[1] - float64(ySteps)*s.ySpacing
}

func (s *GridSeeder) seedGrid(mp orb.MultiPolygon) []orb.Point {
	b := mp.Bound()
	minX, minY := s.origin(mp, b)

	var points []orb.Point
	for y := minY; y <= b.Max[1]; y += s.ySpacing {
		for x := minX; x <= b.Max[0]; x += s.xSpacing {
			if p := (orb.Point{x, y}); strictlyInside(mp, p) {
				points = append(points, p)
			}
		}
	}
	return points
}

type cellState int

const (
	cellShouldCheck cellState = iota
	cellShouldSubGridCheck
	cellFound
	cellNotFound
	cellCantFind
)

// seedSubGrid seeds like seedGrid but searches the cells around every found
// point in depth, so narrow parts of the polygon still get a point.
func (s *GridSeeder) seedSubGrid(mp orb.MultiPolygon) []orb.Point {
	b := mp.Bound()
	minX, minY := s.origin(mp, b)

	xSteps := int((b.Max[0]-b.Min[0])/s.xSpacing + 1.5)
	ySteps := int((b.Max[1]-b.Min[1])/s.ySpacing + 1.5)
	cells := make([][]cellState, xSteps)
	for x := range cells {
		cells[x] = make([]cellState, ySteps)
	}

	precision := maxSubGridPrecision
	if s.minimumThickness > 0 {
		precision = min(int(math.Sqrt(0.5/s.minimumThickness))*2, maxSubGridPrecision)
	}

	var points []orb.Point
	for cleared := false; !cleared; {
		cleared = true

		for y := 0; y < ySteps; y++ {
			cy := minY + s.ySpacing*float64(y)
			for x := 0; x < xSteps; x++ {
				cx := minX + s.xSpacing*float64(x)

				var (
					p     orb.Point
					found bool
				)
				switch cells[x][y] {
				case cellShouldCheck:
					p, found = s.checkSubGrid(mp, cx, cy, 0)
				case cellShouldSubGridCheck:
					p, found = s.checkSubGrid(mp, cx, cy, precision)
				default:
					continue
				}

				switch {
				case found:
					points = append(points, p)
					cells[x][y] = cellFound
					cleared = false
				case cells[x][y] == cellShouldCheck:
					cells[x][y] = cellNotFound
				default:
					cells[x][y] = cellCantFind
				}
			}
		}

		for y := 0; y < ySteps; y++ {
			for x := 0; x < xSteps; x++ {
				if cells[x][y] != cellFound {
					continue
				}
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := x+dx, y+dy
						if nx < 0 || nx >= xSteps || ny < 0 || ny >= ySteps {
							continue
						}
						if cells[nx][ny] == cellNotFound {
							cells[nx][ny] = cellShouldSubGridCheck
							cleared = false
						}
					}
				}
			}
		}
	}
	return points
}

type subGridPoint int

const (
	subGridEmpty subGridPoint = iota
	subGridNewCheck
	subGridCheck
)

// checkSubGrid returns the first point inside mp from a search pattern over
// the cell centred on (cx, cy). Precision 0 checks only the centre; each
// further level adds points halfway between the ones already checked.
func (s *GridSeeder) checkSubGrid(mp orb.MultiPolygon, cx, cy float64, precision int) (orb.Point, bool) {
	size := 1
	for prec := 0; prec < precision && prec < maxSubGridPrecision; prec++ {
		size = size*2 + 1
	}

	grid := make([][]subGridPoint, size)
	for x := range grid {
		grid[x] = make([]subGridPoint, size)
	}
	grid[size/2][size/2] = subGridCheck

	for prec := 0; prec < precision; prec++ {
		dist := (size + 1) / int(4*math.Pow(2, float64(prec))+0.5)
		if dist == 0 {
			break
		}
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				if grid[x][y] != subGridCheck {
					continue
				}
				if x-dist > 0 {
					grid[x-dist][y] = subGridNewCheck
				}
				if y-dist > 0 {
					grid[x][y-dist] = subGridNewCheck
				}
				if x+dist < size {
					grid[x+dist][y] = subGridNewCheck
				}
				if y+dist < size {
					grid[x][y+dist] = subGridNewCheck
				}
			}
		}
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				if grid[x][y] == subGridNewCheck {
					grid[x][y] = subGridCheck
				}
			}
		}
	}

	dx := s.xSpacing / float64(size+1)
	dy := s.ySpacing / float64(size+1)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if grid[x][y] != subGridCheck {
				continue
			}
			p := orb.Point{cx + float64(x-size/2)*dx, cy + float64(y-size/2)*dy}
			if strictlyInside(mp, p) {
				return p, true
			}
		}
	}
	return orb.Point{}, false
}
