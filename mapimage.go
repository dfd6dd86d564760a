package gofootprint

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/valyala/fasthttp"
)

// MapImage is a GroundProjector over a map-projected GeoTIFF. Pixels whose
// band 1 value is the GDAL nodata value (or NaN) do not project. Map
// products carry no viewing geometry, so both angles are zero.
type MapImage struct {
	geo    *GeoTIFFReader
	mask   []bool
	width  int
	height int

	projected   bool
	radius      float64
	centerLon   float64
	cosParallel float64
	falseE      float64
	falseN      float64

	closer io.Closer
}

var _ GroundProjector = (*MapImage)(nil)

// Open opens a GeoTIFF from a file path or an http(s) URL. Remote files are
// read with range requests through client, or a default client when nil.
func Open(pathOrURL string, client *fasthttp.Client) (*MapImage, error) {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		rr, err := NewHTTPRangeReader(pathOrURL, client)
		if err != nil {
			return nil, err
		}
		m, err := ReadMapImage(rr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pathOrURL, err)
		}
		Diagf("mapimage: read %s with %d range requests", pathOrURL, rr.Requests())
		return m, nil
	}

	file, err := os.Open(pathOrURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	m, err := ReadMapImage(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", pathOrURL, err)
	}
	m.closer = file
	return m, nil
}

// ReadMapImage reads the georeferencing and validity mask from r.
func ReadMapImage(r io.ReadSeeker) (*MapImage, error) {
	tr, err := NewTIFFReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create TIFF reader: %w", err)
	}
	geo, err := NewGeoTIFFReader(tr)
	if err != nil {
		return nil, err
	}
	meta := geo.GetMetadata()

	m := &MapImage{
		geo:    geo,
		width:  meta.Width,
		height: meta.Height,
	}

	switch model := meta.GeoKeys[GTModelTypeGeoKey]; model {
	case 0, GTModelTypeGeographic:
	case GTModelTypeProjected:
		if err := m.readEquirectangular(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported GeoTIFF model type %g", model)
	}

	m.mask, err = readValidityMask(tr, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to read validity mask: %w", err)
	}
	return m, nil
}

func (m *MapImage) readEquirectangular() error {
	if ct := m.geo.geoKey(0, ProjCoordTransGeoKey); ct != CTEquirectangular {
		return fmt.Errorf("unsupported projected coordinate transformation %g", ct)
	}
	m.projected = true
	m.radius = m.geo.geoKey(0, GeogSemiMajorAxisGeoKey)
	if m.radius <= 0 {
		return fmt.Errorf("equirectangular GeoTIFF has no semi-major axis")
	}
	m.centerLon = m.geo.geoKey(0, ProjCenterLongGeoKey, ProjNatOriginLongGeoKey)
	m.cosParallel = math.Cos(m.geo.geoKey(0, ProjStdParallel1GeoKey) * math.Pi / 180)
	if m.cosParallel <= 0 {
		return fmt.Errorf("equirectangular standard parallel must be inside (-90, 90)")
	}
	m.falseE = m.geo.geoKey(0, ProjFalseEastingGeoKey)
	m.falseN = m.geo.geoKey(0, ProjFalseNorthingGeoKey)
	return nil
}

// Close releases the underlying file, if any.
func (m *MapImage) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

func (m *MapImage) Samples() int { return m.width }

func (m *MapImage) Lines() int { return m.height }

func (m *MapImage) EmissionAngle() float64 { return 0 }

func (m *MapImage) IncidenceAngle() float64 { return 0 }

// valid reports whether the pixel containing (sample, line) holds data.
func (m *MapImage) valid(sample, line float64) bool {
	if sample < 0.5 || line < 0.5 || sample > float64(m.width)+0.5 || line > float64(m.height)+0.5 {
		return false
	}
	col := min(int(math.Floor(sample+0.5))-1, m.width-1)
	row := min(int(math.Floor(line+0.5))-1, m.height-1)
	return m.mask[row*m.width+col]
}

// Project maps a 1-based pixel-centre position to longitude and latitude.
// Longitudes are in [0, 360).
func (m *MapImage) Project(sample, line float64) (float64, float64, bool) {
	if !m.valid(sample, line) {
		return 0, 0, false
	}
	x, y := m.geo.pixelToModel(sample-0.5, line-0.5)
	lon, lat := x, y
	if m.projected {
		lon = m.centerLon + (x-m.falseE)/(m.radius*m.cosParallel)*180/math.Pi
		lat = (y - m.falseN) / m.radius * 180 / math.Pi
	}
	if lat < -90 || lat > 90 {
		return 0, 0, false
	}
	return normalizeLon(lon), lat, true
}

// Unproject maps longitude and latitude back to a 1-based pixel-centre
// position. It fails when the position is off the raster.
func (m *MapImage) Unproject(lon, lat float64) (float64, float64, bool) {
	for _, shift := range []float64{0, -360, 360} {
		l := lon + shift
		x, y := l, lat
		if m.projected {
			x = m.falseE + (l-m.centerLon)*math.Pi/180*m.radius*m.cosParallel
			y = m.falseN + lat*math.Pi/180*m.radius
		}
		px, py := m.geo.modelToPixel(x, y)
		sample, line := px+0.5, py+0.5
		if sample >= 0.5 && line >= 0.5 && sample <= float64(m.width)+0.5 && line <= float64(m.height)+0.5 {
			return sample, line, true
		}
	}
	return 0, 0, false
}

func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}
