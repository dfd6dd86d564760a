package gofootprint

// GroundProjector maps raster positions to ground coordinates and back.
// Raster positions are 1-based pixel centres: pixel (1, 1) covers
// [0.5, 1.5] x [0.5, 1.5]. Longitudes are in degrees east, latitudes in
// degrees north.
type GroundProjector interface {
	// Project returns the ground point under (sample, line). ok is false
	// when the position is off the body or the pixel holds no data.
	Project(sample, line float64) (lon, lat float64, ok bool)

	// Unproject returns the raster position of (lon, lat). ok is false when
	// the point cannot be mapped into raster space.
	Unproject(lon, lat float64) (sample, line float64, ok bool)

	// EmissionAngle and IncidenceAngle describe the last successful
	// Project call. Projectors without viewing geometry return 0.
	EmissionAngle() float64
	IncidenceAngle() float64

	// Samples and Lines give the raster dimensions.
	Samples() int
	Lines() int
}

// RasterWindow restricts footprint creation to part of a raster. Values are
// 1-based; a zero Samples or Lines count extends the window to the raster
// edge.
type RasterWindow struct {
	StartSample int
	StartLine   int
	Samples     int
	Lines       int
}

// bounds returns the first and last pixel numbers of the window clipped to
// the raster.
func (w RasterWindow) bounds(p GroundProjector) (ss, sl, es, el float64) {
	startSample, startLine := w.StartSample, w.StartLine
	if startSample < 1 {
		startSample = 1
	}
	if startLine < 1 {
		startLine = 1
	}

	endSample, endLine := p.Samples(), p.Lines()
	if w.Samples > 0 && startSample+w.Samples-1 < endSample {
		endSample = startSample + w.Samples - 1
	}
	if w.Lines > 0 && startLine+w.Lines-1 < endLine {
		endLine = startLine + w.Lines - 1
	}

	return float64(startSample), float64(startLine), float64(endSample), float64(endLine)
}

// viewGate applies the emission and incidence limits to a projector.
type viewGate struct {
	proj         GroundProjector
	maxEmission  float64
	maxIncidence float64
}

func newViewGate(proj GroundProjector, cfg *EngineConfig) viewGate {
	return viewGate{
		proj:         proj,
		maxEmission:  cfg.GetMaxEmission(),
		maxIncidence: cfg.GetMaxIncidence(),
	}
}

// valid reports whether (sample, line) projects and is seen within the
// configured viewing limits.
func (g viewGate) valid(sample, line float64) bool {
	if _, _, ok := g.proj.Project(sample, line); !ok {
		return false
	}
	return g.anglesOK()
}

func (g viewGate) anglesOK() bool {
	if g.proj.EmissionAngle() > g.maxEmission {
		return false
	}
	if g.proj.IncidenceAngle() > g.maxIncidence {
		return false
	}
	return true
}
