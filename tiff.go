package gofootprint

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// TIFF constants
const (
	tiffMagicLE = 0x4949 // "II" little-endian
	tiffMagicBE = 0x4D4D // "MM" big-endian
	tiffVersion = 42

	// maxIFDs bounds the directory chain so a looping file cannot hang the
	// reader.
	maxIFDs = 64
)

// Compression types
const (
	CompressionNone         = 1
	CompressionLZW          = 5
	CompressionDeflate      = 8
	CompressionAdobeDeflate = 32946
)

// Baseline tag IDs
const (
	TagImageWidth                = 256
	TagImageLength               = 257
	TagBitsPerSample             = 258
	TagCompression               = 259
	TagPhotometricInterpretation = 262
	TagStripOffsets              = 273
	TagSamplesPerPixel           = 277
	TagRowsPerStrip              = 278
	TagStripByteCounts           = 279
	TagPlanarConfiguration       = 284
	TagPredictor                 = 317
	TagTileWidth                 = 322
	TagTileLength                = 323
	TagTileOffsets               = 324
	TagTileByteCounts            = 325
	TagSampleFormat              = 339
)

// FieldType is the TIFF type of a tag's values.
type FieldType uint16

const (
	FTByte      FieldType = 1  // 8-bit unsigned integer
	FTASCII     FieldType = 2  // 8-bit ASCII
	FTShort     FieldType = 3  // 16-bit unsigned integer
	FTLong      FieldType = 4  // 32-bit unsigned integer
	FTRational  FieldType = 5  // Two longs: numerator, denominator
	FTSByte     FieldType = 6  // 8-bit signed integer
	FTUndefined FieldType = 7  // 8-bit undefined
	FTSShort    FieldType = 8  // 16-bit signed integer
	FTSLong     FieldType = 9  // 32-bit signed integer
	FTSRational FieldType = 10 // Two signed longs
	FTFloat     FieldType = 11 // 32-bit IEEE floating point
	FTDouble    FieldType = 12 // 64-bit IEEE floating point
)

// size returns the size in bytes of one value.
func (t FieldType) size() uint32 {
	switch t {
	case FTShort, FTSShort:
		return 2
	case FTLong, FTSLong, FTFloat:
		return 4
	case FTRational, FTSRational, FTDouble:
		return 8
	default:
		return 1
	}
}

// Tag is a decoded TIFF directory entry. Integer types decode into ints,
// floating point and rational types into floats, ASCII into text.
type Tag struct {
	ID     uint16
	Type   FieldType
	Count  uint32
	ints   []int64
	floats []float64
	text   string
}

// Ints returns the values as integers, truncating floating point values.
func (t *Tag) Ints() []int64 {
	if t.ints != nil || t.floats == nil {
		return t.ints
	}
	out := make([]int64, len(t.floats))
	for i, v := range t.floats {
		out[i] = int64(v)
	}
	return out
}

// Floats returns the values as float64.
func (t *Tag) Floats() []float64 {
	if t.floats != nil || t.ints == nil {
		return t.floats
	}
	out := make([]float64, len(t.ints))
	for i, v := range t.ints {
		out[i] = float64(v)
	}
	return out
}

// Text returns an ASCII value without its NUL terminator.
func (t *Tag) Text() string {
	return t.text
}

// IFD is an Image File Directory.
type IFD struct {
	Tags    map[uint16]*Tag
	NextIFD uint32
}

// Int returns the first integer value of tag id, or def when absent.
func (ifd *IFD) Int(id uint16, def int64) int64 {
	if t := ifd.Tags[id]; t != nil {
		if v := t.Ints(); len(v) > 0 {
			return v[0]
		}
	}
	return def
}

// TIFFReader reads the directory structure of a classic TIFF file.
type TIFFReader struct {
	r         io.ReadSeeker
	byteOrder binary.ByteOrder
	ifds      []*IFD
}

// NewTIFFReader reads the header and every directory of r.
func NewTIFFReader(r io.ReadSeeker) (*TIFFReader, error) {
	tr := &TIFFReader{r: r}

	header := make([]byte, 8)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to TIFF header: %w", err)
	}
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read TIFF header: %w", err)
	}

	switch binary.LittleEndian.Uint16(header[0:2]) {
	case tiffMagicLE:
		tr.byteOrder = binary.LittleEndian
	case tiffMagicBE:
		tr.byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("invalid TIFF magic: 0x%04x", binary.LittleEndian.Uint16(header[0:2]))
	}

	if version := tr.byteOrder.Uint16(header[2:4]); version != tiffVersion {
		return nil, fmt.Errorf("invalid TIFF version: %d", version)
	}

	seen := make(map[uint32]bool)
	for offset := tr.byteOrder.Uint32(header[4:8]); offset != 0; {
		if seen[offset] || len(tr.ifds) >= maxIFDs {
			return nil, fmt.Errorf("TIFF directory chain loops or is too long at offset %d", offset)
		}
		seen[offset] = true

		ifd, err := tr.readIFD(offset)
		if err != nil {
			return nil, fmt.Errorf("failed to read IFD at offset %d: %w", offset, err)
		}
		tr.ifds = append(tr.ifds, ifd)
		offset = ifd.NextIFD
	}
	if len(tr.ifds) == 0 {
		return nil, fmt.Errorf("TIFF has no image directories")
	}
	return tr, nil
}

// readIFD reads the directory at offset and decodes every tag value.
func (tr *TIFFReader) readIFD(offset uint32) (*IFD, error) {
	if _, err := tr.r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to IFD: %w", err)
	}

	var tagCount uint16
	if err := binary.Read(tr.r, tr.byteOrder, &tagCount); err != nil {
		return nil, fmt.Errorf("failed to read tag count: %w", err)
	}

	// Tag entries (12 bytes each) followed by the next IFD offset.
	buf := make([]byte, int(tagCount)*12+4)
	if _, err := io.ReadFull(tr.r, buf); err != nil {
		return nil, fmt.Errorf("failed to read IFD structure: %w", err)
	}

	ifd := &IFD{
		Tags:    make(map[uint16]*Tag, tagCount),
		NextIFD: tr.byteOrder.Uint32(buf[len(buf)-4:]),
	}

	for i := 0; i < int(tagCount); i++ {
		entry := buf[i*12 : i*12+12]
		tag := &Tag{
			ID:    tr.byteOrder.Uint16(entry[0:2]),
			Type:  FieldType(tr.byteOrder.Uint16(entry[2:4])),
			Count: tr.byteOrder.Uint32(entry[4:8]),
		}

		size := tag.Type.size() * tag.Count
		var data []byte
		if size <= 4 {
			data = entry[8 : 8+size]
		} else {
			valueOffset := tr.byteOrder.Uint32(entry[8:12])
			data = make([]byte, size)
			if _, err := tr.r.Seek(int64(valueOffset), io.SeekStart); err != nil {
				return nil, fmt.Errorf("failed to seek to value of tag %d: %w", tag.ID, err)
			}
			if _, err := io.ReadFull(tr.r, data); err != nil {
				return nil, fmt.Errorf("failed to read value of tag %d: %w", tag.ID, err)
			}
		}

		tr.decode(tag, data)
		ifd.Tags[tag.ID] = tag
	}

	return ifd, nil
}

// decode fills the typed values of tag from its raw bytes.
func (tr *TIFFReader) decode(tag *Tag, data []byte) {
	n := int(tag.Count)
	bo := tr.byteOrder

	switch tag.Type {
	case FTASCII:
		buf := data
		if len(buf) > 0 && buf[len(buf)-1] == 0 {
			buf = buf[:len(buf)-1]
		}
		tag.text = string(buf)
	case FTByte, FTUndefined:
		tag.ints = make([]int64, n)
		for i := range tag.ints {
			tag.ints[i] = int64(data[i])
		}
	case FTSByte:
		tag.ints = make([]int64, n)
		for i := range tag.ints {
			tag.ints[i] = int64(int8(data[i]))
		}
	case FTShort:
		tag.ints = make([]int64, n)
		for i := range tag.ints {
			tag.ints[i] = int64(bo.Uint16(data[i*2:]))
		}
	case FTSShort:
		tag.ints = make([]int64, n)
		for i := range tag.ints {
			tag.ints[i] = int64(int16(bo.Uint16(data[i*2:])))
		}
	case FTLong:
		tag.ints = make([]int64, n)
		for i := range tag.ints {
			tag.ints[i] = int64(bo.Uint32(data[i*4:]))
		}
	case FTSLong:
		tag.ints = make([]int64, n)
		for i := range tag.ints {
			tag.ints[i] = int64(int32(bo.Uint32(data[i*4:])))
		}
	case FTFloat:
		tag.floats = make([]float64, n)
		for i := range tag.floats {
			tag.floats[i] = float64(math.Float32frombits(bo.Uint32(data[i*4:])))
		}
	case FTDouble:
		tag.floats = make([]float64, n)
		for i := range tag.floats {
			tag.floats[i] = math.Float64frombits(bo.Uint64(data[i*8:]))
		}
	case FTRational:
		tag.floats = make([]float64, n)
		for i := range tag.floats {
			num, den := bo.Uint32(data[i*8:]), bo.Uint32(data[i*8+4:])
			if den != 0 {
				tag.floats[i] = float64(num) / float64(den)
			}
		}
	case FTSRational:
		tag.floats = make([]float64, n)
		for i := range tag.floats {
			num, den := int32(bo.Uint32(data[i*8:])), int32(bo.Uint32(data[i*8+4:]))
			if den != 0 {
				tag.floats[i] = float64(num) / float64(den)
			}
		}
	}
}

// readAt reads size bytes at offset.
func (tr *TIFFReader) readAt(offset, size int64) ([]byte, error) {
	if _, err := tr.r.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to offset %d: %w", offset, err)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(tr.r, buf); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes at offset %d: %w", size, offset, err)
	}
	return buf, nil
}

// GetIFD returns the IFD at the specified index (0 = main image)
func (tr *TIFFReader) GetIFD(index int) *IFD {
	if index < 0 || index >= len(tr.ifds) {
		return nil
	}
	return tr.ifds[index]
}

// IFDCount returns the number of IFDs (main image + overviews)
func (tr *TIFFReader) IFDCount() int {
	return len(tr.ifds)
}

// ByteOrder returns the byte order of the file.
func (tr *TIFFReader) ByteOrder() binary.ByteOrder {
	return tr.byteOrder
}
