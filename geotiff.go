package gofootprint

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// GeoTIFF tag IDs
const (
	TagModelPixelScale     = 33550
	TagModelTiepoint       = 33922
	TagModelTransformation = 34264
	TagGeoKeyDirectory     = 34735
	TagGeoDoubleParams     = 34736
	TagGeoAsciiParams      = 34737
	TagGDALNoData          = 42113
)

// GeoKeys
const (
	GTModelTypeGeoKey     = 1024
	GTModelTypeProjected  = 1
	GTModelTypeGeographic = 2

	GTRasterTypeGeoKey       = 1025
	GTRasterTypePixelIsArea  = 1
	GTRasterTypePixelIsPoint = 2

	GeographicTypeGeoKey    = 2048
	GeogSemiMajorAxisGeoKey = 2057

	ProjectedCSTypeGeoKey   = 3072
	ProjCoordTransGeoKey    = 3075
	ProjStdParallel1GeoKey  = 3078
	ProjNatOriginLongGeoKey = 3080
	ProjFalseEastingGeoKey  = 3082
	ProjFalseNorthingGeoKey = 3083
	ProjCenterLongGeoKey    = 3088

	CTEquirectangular = 17
)

// GeoTIFFMetadata is the georeferencing of the main image of a GeoTIFF.
type GeoTIFFMetadata struct {
	Width          int
	Height         int
	PixelScale     [3]float64
	TiePoints      []TiePoint
	Transformation [16]float64
	GeoKeys        map[uint16]float64
	GeoAscii       map[uint16]string
	NoData         *float64
	CRS            string
}

// TiePoint represents a georeferencing tie point
type TiePoint struct {
	PixelX, PixelY, PixelZ float64
	GeoX, GeoY, GeoZ       float64
}

// GeoTIFFReader reads GeoTIFF metadata and maps raster to model space.
type GeoTIFFReader struct {
	tr       *TIFFReader
	metadata *GeoTIFFMetadata

	// affine raster to model transform: x = a*px + b*py + c, y = d*px + e*py + f
	a, b, c, d, e, f float64
}

// NewGeoTIFFReader reads the georeferencing of the first IFD of tr.
func NewGeoTIFFReader(tr *TIFFReader) (*GeoTIFFReader, error) {
	gtr := &GeoTIFFReader{
		tr: tr,
		metadata: &GeoTIFFMetadata{
			GeoKeys:  make(map[uint16]float64),
			GeoAscii: make(map[uint16]string),
		},
	}
	if err := gtr.readMetadata(tr.GetIFD(0)); err != nil {
		return nil, err
	}
	if err := gtr.buildTransform(); err != nil {
		return nil, err
	}
	return gtr, nil
}

func (gtr *GeoTIFFReader) readMetadata(ifd *IFD) error {
	if ifd == nil {
		return fmt.Errorf("GeoTIFF has no image directory")
	}
	m := gtr.metadata
	m.Width = int(ifd.Int(TagImageWidth, 0))
	m.Height = int(ifd.Int(TagImageLength, 0))
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", m.Width, m.Height)
	}

	if tag := ifd.Tags[TagModelPixelScale]; tag != nil {
		copy(m.PixelScale[:], tag.Floats())
	}
	if tag := ifd.Tags[TagModelTiepoint]; tag != nil {
		m.TiePoints = parseTiePoints(tag.Floats())
	}
	if tag := ifd.Tags[TagModelTransformation]; tag != nil {
		copy(m.Transformation[:], tag.Floats())
	}

	if tag := ifd.Tags[TagGDALNoData]; tag != nil {
		text := strings.TrimSpace(tag.Text())
		v, err := strconv.ParseFloat(text, 64)
		if err != nil && !strings.EqualFold(text, "nan") {
			return fmt.Errorf("invalid GDAL_NODATA value %q: %w", text, err)
		}
		if err != nil {
			v = math.NaN()
		}
		m.NoData = &v
	}

	if err := gtr.readGeoKeys(ifd); err != nil {
		return fmt.Errorf("failed to read GeoKeys: %w", err)
	}
	m.CRS = gtr.determineCRS()
	return nil
}

// parseTiePoints parses tie point values
func parseTiePoints(values []float64) []TiePoint {
	tiePoints := make([]TiePoint, 0, len(values)/6)
	for i := 0; i+5 < len(values); i += 6 {
		tiePoints = append(tiePoints, TiePoint{
			PixelX: values[i],
			PixelY: values[i+1],
			PixelZ: values[i+2],
			GeoX:   values[i+3],
			GeoY:   values[i+4],
			GeoZ:   values[i+5],
		})
	}
	return tiePoints
}

// readGeoKeys reads the GeoKey directory. Short and double keys land in
// GeoKeys, ASCII keys in GeoAscii.
func (gtr *GeoTIFFReader) readGeoKeys(ifd *IFD) error {
	dirTag := ifd.Tags[TagGeoKeyDirectory]
	if dirTag == nil {
		return nil
	}
	dir := dirTag.Ints()
	if len(dir) < 4 {
		return fmt.Errorf("GeoKeyDirectory too short")
	}

	var doubles []float64
	if tag := ifd.Tags[TagGeoDoubleParams]; tag != nil {
		doubles = tag.Floats()
	}
	var ascii string
	if tag := ifd.Tags[TagGeoAsciiParams]; tag != nil {
		ascii = tag.Text()
	}

	// Header: version, revision, minor revision, number of keys. Each key
	// is keyID, location, count, value/offset.
	numKeys := int(dir[3])
	for i := 4; i+3 < len(dir) && (i-4)/4 < numKeys; i += 4 {
		keyID := uint16(dir[i])
		location := dir[i+1]
		count := int(dir[i+2])
		value := int(dir[i+3])

		switch location {
		case 0:
			gtr.metadata.GeoKeys[keyID] = float64(value)
		case TagGeoDoubleParams:
			if value < len(doubles) {
				gtr.metadata.GeoKeys[keyID] = doubles[value]
			}
		case TagGeoAsciiParams:
			if value < len(ascii) {
				end := min(value+count, len(ascii))
				gtr.metadata.GeoAscii[keyID] = strings.TrimRight(ascii[value:end], "|\x00")
			}
		}
	}
	return nil
}

// determineCRS determines the CRS from GeoKeys
func (gtr *GeoTIFFReader) determineCRS() string {
	keys := gtr.metadata.GeoKeys
	if code, ok := keys[ProjectedCSTypeGeoKey]; ok && code != 0 && code != 32767 {
		return fmt.Sprintf("EPSG:%d", int(code))
	}
	if code, ok := keys[GeographicTypeGeoKey]; ok && code != 0 && code != 32767 {
		return fmt.Sprintf("EPSG:%d", int(code))
	}
	return ""
}

// buildTransform derives the raster to model affine transform from either
// ModelTransformation or the first tie point and the pixel scale.
func (gtr *GeoTIFFReader) buildTransform() error {
	m := gtr.metadata
	switch {
	case gtr.hasTransformation():
		t := m.Transformation
		gtr.a, gtr.b, gtr.c = t[0], t[1], t[3]
		gtr.d, gtr.e, gtr.f = t[4], t[5], t[7]
	case len(m.TiePoints) > 0 && m.PixelScale[0] != 0 && m.PixelScale[1] != 0:
		tp := m.TiePoints[0]
		gtr.a, gtr.b = m.PixelScale[0], 0
		gtr.d, gtr.e = 0, -m.PixelScale[1]
		gtr.c = tp.GeoX - tp.PixelX*m.PixelScale[0]
		gtr.f = tp.GeoY + tp.PixelY*m.PixelScale[1]
	default:
		return fmt.Errorf("GeoTIFF has no georeferencing")
	}

	// PixelIsPoint anchors the model coordinates on pixel centres.
	if gtr.metadata.GeoKeys[GTRasterTypeGeoKey] == GTRasterTypePixelIsPoint {
		gtr.c -= 0.5 * (gtr.a + gtr.b)
		gtr.f -= 0.5 * (gtr.d + gtr.e)
	}

	if gtr.a*gtr.e-gtr.b*gtr.d == 0 {
		return fmt.Errorf("GeoTIFF raster transform is singular")
	}
	return nil
}

// hasTransformation checks if ModelTransformation is available
func (gtr *GeoTIFFReader) hasTransformation() bool {
	for _, v := range gtr.metadata.Transformation {
		if v != 0 {
			return true
		}
	}
	return false
}

// pixelToModel maps raster space (pixel corner at 0,0) to model space.
func (gtr *GeoTIFFReader) pixelToModel(px, py float64) (float64, float64) {
	return gtr.a*px + gtr.b*py + gtr.c, gtr.d*px + gtr.e*py + gtr.f
}

// modelToPixel inverts pixelToModel.
func (gtr *GeoTIFFReader) modelToPixel(x, y float64) (float64, float64) {
	det := gtr.a*gtr.e - gtr.b*gtr.d
	dx, dy := x-gtr.c, y-gtr.f
	return (gtr.e*dx - gtr.b*dy) / det, (gtr.a*dy - gtr.d*dx) / det
}

// GetMetadata returns the GeoTIFF metadata
func (gtr *GeoTIFFReader) GetMetadata() *GeoTIFFMetadata {
	return gtr.metadata
}

// geoKey returns the first of ids present in the key directory.
func (gtr *GeoTIFFReader) geoKey(def float64, ids ...uint16) float64 {
	for _, id := range ids {
		if v, ok := gtr.metadata.GeoKeys[id]; ok {
			return v
		}
	}
	return def
}

// ParseEPSGCode extracts EPSG code from CRS string
func ParseEPSGCode(crs string) (int, error) {
	if code, ok := strings.CutPrefix(crs, "EPSG:"); ok {
		return strconv.Atoi(code)
	}
	return 0, fmt.Errorf("invalid CRS format: %s", crs)
}
