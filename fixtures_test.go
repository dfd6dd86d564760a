package gofootprint

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// maskProjector is a flat projector over a boolean raster. Ground
// coordinates are lon = lon0 + scale*s and lat = lat0 - scale*l.
type maskProjector struct {
	mask       [][]bool // [line][sample]
	lon0, lat0 float64
	scale      float64
	emission   float64
}

func newMaskProjector(rows ...string) *maskProjector {
	mask := make([][]bool, len(rows))
	for i, row := range rows {
		mask[i] = make([]bool, len(row))
		for j, c := range row {
			mask[i][j] = c == '#'
		}
	}
	return &maskProjector{mask: mask, lon0: 10, lat0: 0, scale: 0.1}
}

func fullMask(samples, lines int) *maskProjector {
	rows := make([]string, lines)
	for i := range rows {
		rows[i] = string(bytes.Repeat([]byte{'#'}, samples))
	}
	return newMaskProjector(rows...)
}

func (m *maskProjector) Samples() int { return len(m.mask[0]) }
func (m *maskProjector) Lines() int   { return len(m.mask) }

func (m *maskProjector) pixel(s, l float64) bool {
	ns, nl := m.Samples(), m.Lines()
	if s < 0.5 || l < 0.5 || s > float64(ns)+0.5 || l > float64(nl)+0.5 {
		return false
	}
	col := min(int(math.Floor(s+0.5))-1, ns-1)
	row := min(int(math.Floor(l+0.5))-1, nl-1)
	return m.mask[row][col]
}

func (m *maskProjector) Project(s, l float64) (float64, float64, bool) {
	if !m.pixel(s, l) {
		return 0, 0, false
	}
	return m.lon0 + m.scale*s, m.lat0 - m.scale*l, true
}

func (m *maskProjector) Unproject(lon, lat float64) (float64, float64, bool) {
	s, l := (lon-m.lon0)/m.scale, (m.lat0-lat)/m.scale
	if !m.pixel(s, l) {
		return 0, 0, false
	}
	return s, l, true
}

func (m *maskProjector) EmissionAngle() float64  { return m.emission }
func (m *maskProjector) IncidenceAngle() float64 { return 0 }

// polarProjector looks straight down on the north pole, which sits at the
// centre of an n x n raster. Longitude is the azimuth around the centre.
type polarProjector struct {
	n int
}

func (p polarProjector) Samples() int { return p.n }
func (p polarProjector) Lines() int   { return p.n }

func (p polarProjector) onRaster(s, l float64) bool {
	edge := float64(p.n) + 0.5
	return s >= 0.5 && l >= 0.5 && s <= edge && l <= edge
}

func (p polarProjector) Project(s, l float64) (float64, float64, bool) {
	if !p.onRaster(s, l) {
		return 0, 0, false
	}
	c := float64(p.n)/2 + 0.5
	lon := math.Atan2(l-c, s-c) * 180 / math.Pi
	if lon < 0 {
		lon += 360
	}
	return lon, 90 - 0.001*math.Hypot(s-c, l-c), true
}

func (p polarProjector) Unproject(lon, lat float64) (float64, float64, bool) {
	c := float64(p.n)/2 + 0.5
	r := (90 - lat) / 0.001
	s := c + r*math.Cos(lon*math.Pi/180)
	l := c + r*math.Sin(lon*math.Pi/180)
	if !p.onRaster(s, l) {
		return 0, 0, false
	}
	return s, l, true
}

func (p polarProjector) EmissionAngle() float64  { return 0 }
func (p polarProjector) IncidenceAngle() float64 { return 0 }

// globalProjector is a simple cylindrical map of the whole body, so both
// poles are on the raster.
type globalProjector struct {
	samples, lines int
}

func (g globalProjector) Samples() int { return g.samples }
func (g globalProjector) Lines() int   { return g.lines }

func (g globalProjector) onRaster(s, l float64) bool {
	return s >= 0.5 && l >= 0.5 && s <= float64(g.samples)+0.5 && l <= float64(g.lines)+0.5
}

func (g globalProjector) Project(s, l float64) (float64, float64, bool) {
	if !g.onRaster(s, l) {
		return 0, 0, false
	}
	return (s - 0.5) * 360 / float64(g.samples), 90 - (l-0.5)*180/float64(g.lines), true
}

func (g globalProjector) Unproject(lon, lat float64) (float64, float64, bool) {
	s := 0.5 + lon*float64(g.samples)/360
	l := 0.5 + (90-lat)*float64(g.lines)/180
	if !g.onRaster(s, l) {
		return 0, 0, false
	}
	return s, l, true
}

func (g globalProjector) EmissionAngle() float64  { return 0 }
func (g globalProjector) IncidenceAngle() float64 { return 0 }

func rect(minX, minY, maxX, maxY float64) orb.MultiPolygon {
	return orb.MultiPolygon{PolygonFromBounds(orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}})}
}

// testTag is a TIFF directory entry with its raw value bytes.
type testTag struct {
	id    uint16
	typ   FieldType
	count uint32
	data  []byte
}

func shortTag(bo binary.ByteOrder, id uint16, vals ...uint16) testTag {
	var buf bytes.Buffer
	for _, v := range vals {
		binary.Write(&buf, bo, v)
	}
	return testTag{id: id, typ: FTShort, count: uint32(len(vals)), data: buf.Bytes()}
}

func longTag(bo binary.ByteOrder, id uint16, vals ...uint32) testTag {
	var buf bytes.Buffer
	for _, v := range vals {
		binary.Write(&buf, bo, v)
	}
	return testTag{id: id, typ: FTLong, count: uint32(len(vals)), data: buf.Bytes()}
}

func doubleTag(bo binary.ByteOrder, id uint16, vals ...float64) testTag {
	var buf bytes.Buffer
	for _, v := range vals {
		binary.Write(&buf, bo, v)
	}
	return testTag{id: id, typ: FTDouble, count: uint32(len(vals)), data: buf.Bytes()}
}

func asciiTag(id uint16, s string) testTag {
	data := append([]byte(s), 0)
	return testTag{id: id, typ: FTASCII, count: uint32(len(data)), data: data}
}

// buildTIFF writes a single-directory TIFF. The image data is placed right
// after the header, at offset 8, so strip offsets can point there.
func buildTIFF(bo binary.ByteOrder, image []byte, tags ...testTag) []byte {
	var buf bytes.Buffer
	if bo == binary.BigEndian {
		buf.WriteString("MM")
	} else {
		buf.WriteString("II")
	}
	binary.Write(&buf, bo, uint16(42))

	ifdOffset := 8 + len(image) + len(image)%2
	binary.Write(&buf, bo, uint32(ifdOffset))
	buf.Write(image)
	if len(image)%2 == 1 {
		buf.WriteByte(0)
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].id < tags[j].id })

	extraOffset := ifdOffset + 2 + 12*len(tags) + 4
	var extra bytes.Buffer
	binary.Write(&buf, bo, uint16(len(tags)))
	for _, t := range tags {
		binary.Write(&buf, bo, t.id)
		binary.Write(&buf, bo, uint16(t.typ))
		binary.Write(&buf, bo, t.count)
		if len(t.data) <= 4 {
			field := make([]byte, 4)
			copy(field, t.data)
			buf.Write(field)
			continue
		}
		binary.Write(&buf, bo, uint32(extraOffset+extra.Len()))
		extra.Write(t.data)
		if extra.Len()%2 == 1 {
			extra.WriteByte(0)
		}
	}
	binary.Write(&buf, bo, uint32(0))
	buf.Write(extra.Bytes())
	return buf.Bytes()
}

// geographicTIFF builds a width x height float32 GeoTIFF in plate carree
// whose upper left corner is at (lon0, lat0) with 1 degree pixels. Pixels
// where valid returns false hold the nodata value -9999.
func geographicTIFF(width, height int, lon0, lat0 float64, valid func(col, row int) bool) []byte {
	bo := binary.LittleEndian
	var image bytes.Buffer
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			v := float32(1)
			if !valid(col, row) {
				v = -9999
			}
			binary.Write(&image, bo, v)
		}
	}

	return buildTIFF(bo, image.Bytes(),
		longTag(bo, TagImageWidth, uint32(width)),
		longTag(bo, TagImageLength, uint32(height)),
		shortTag(bo, TagBitsPerSample, 32),
		shortTag(bo, TagCompression, CompressionNone),
		shortTag(bo, TagPhotometricInterpretation, 1),
		longTag(bo, TagStripOffsets, 8),
		shortTag(bo, TagSamplesPerPixel, 1),
		longTag(bo, TagRowsPerStrip, uint32(height)),
		longTag(bo, TagStripByteCounts, uint32(image.Len())),
		shortTag(bo, TagSampleFormat, 3),
		doubleTag(bo, TagModelPixelScale, 1, 1, 0),
		doubleTag(bo, TagModelTiepoint, 0, 0, 0, lon0, lat0, 0),
		shortTag(bo, TagGeoKeyDirectory,
			1, 1, 0, 3,
			GTModelTypeGeoKey, 0, 1, GTModelTypeGeographic,
			GTRasterTypeGeoKey, 0, 1, GTRasterTypePixelIsArea,
			GeographicTypeGeoKey, 0, 1, 4326,
		),
		asciiTag(TagGDALNoData, "-9999"),
	)
}
