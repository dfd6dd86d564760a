package gofootprint

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"runtime"
	"sync"

	"golang.org/x/image/tiff/lzw"
)

// Predictor values
const (
	PredictorNone       = 1
	PredictorHorizontal = 2
)

// sampleLayout describes how band 1 is stored in the main image.
type sampleLayout struct {
	width, height  int
	bitsPerSample  int
	sampleFormat   int
	samplesPerPix  int
	planar         bool
	compression    int
	predictor      int
	blockWidth     int
	blockHeight    int
	blocksAcross   int
	blocksDown     int
	offsets        []int64
	byteCounts     []int64
	byteOrder      binary.ByteOrder
	bytesPerSample int
}

func newSampleLayout(tr *TIFFReader, meta *GeoTIFFMetadata) (*sampleLayout, error) {
	ifd := tr.GetIFD(0)
	l := &sampleLayout{
		width:         meta.Width,
		height:        meta.Height,
		bitsPerSample: int(ifd.Int(TagBitsPerSample, 1)),
		sampleFormat:  int(ifd.Int(TagSampleFormat, 1)),
		samplesPerPix: int(ifd.Int(TagSamplesPerPixel, 1)),
		planar:        ifd.Int(TagPlanarConfiguration, 1) == 2,
		compression:   int(ifd.Int(TagCompression, CompressionNone)),
		predictor:     int(ifd.Int(TagPredictor, PredictorNone)),
		byteOrder:     tr.ByteOrder(),
	}

	switch l.bitsPerSample {
	case 8, 16, 32, 64:
		l.bytesPerSample = l.bitsPerSample / 8
	default:
		return nil, fmt.Errorf("unsupported bits per sample: %d", l.bitsPerSample)
	}
	if l.sampleFormat == 3 && l.bitsPerSample < 32 {
		return nil, fmt.Errorf("unsupported %d-bit floating point samples", l.bitsPerSample)
	}
	if l.predictor != PredictorNone && l.predictor != PredictorHorizontal {
		return nil, fmt.Errorf("unsupported predictor: %d", l.predictor)
	}
	switch l.compression {
	case CompressionNone, CompressionLZW, CompressionDeflate, CompressionAdobeDeflate:
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", l.compression)
	}

	if tw := ifd.Tags[TagTileWidth]; tw != nil {
		l.blockWidth = int(ifd.Int(TagTileWidth, 256))
		l.blockHeight = int(ifd.Int(TagTileLength, 256))
		l.offsets = ifd.Tags[TagTileOffsets].Ints()
		l.byteCounts = ifd.Tags[TagTileByteCounts].Ints()
	} else {
		l.blockWidth = l.width
		l.blockHeight = int(ifd.Int(TagRowsPerStrip, int64(l.height)))
		if l.blockHeight <= 0 || l.blockHeight > l.height {
			l.blockHeight = l.height
		}
		if tag := ifd.Tags[TagStripOffsets]; tag != nil {
			l.offsets = tag.Ints()
		}
		if tag := ifd.Tags[TagStripByteCounts]; tag != nil {
			l.byteCounts = tag.Ints()
		}
	}
	if l.blockWidth <= 0 || l.blockHeight <= 0 {
		return nil, fmt.Errorf("invalid block size %dx%d", l.blockWidth, l.blockHeight)
	}

	l.blocksAcross = (l.width + l.blockWidth - 1) / l.blockWidth
	l.blocksDown = (l.height + l.blockHeight - 1) / l.blockHeight
	need := l.blocksAcross * l.blocksDown
	if len(l.offsets) < need || len(l.byteCounts) < need {
		return nil, fmt.Errorf("image has %d block offsets and %d byte counts, need %d", len(l.offsets), len(l.byteCounts), need)
	}
	return l, nil
}

// pixelStride is the byte distance between band 1 samples of adjacent
// pixels inside a decoded block.
func (l *sampleLayout) pixelStride() int {
	if l.planar {
		return l.bytesPerSample
	}
	return l.bytesPerSample * l.samplesPerPix
}

// sample decodes a band 1 sample at byte offset off.
func (l *sampleLayout) sample(data []byte, off int) float64 {
	bo := l.byteOrder
	switch l.sampleFormat {
	case 2:
		switch l.bytesPerSample {
		case 1:
			return float64(int8(data[off]))
		case 2:
			return float64(int16(bo.Uint16(data[off:])))
		case 4:
			return float64(int32(bo.Uint32(data[off:])))
		default:
			return float64(int64(bo.Uint64(data[off:])))
		}
	case 3:
		if l.bytesPerSample == 4 {
			return float64(math.Float32frombits(bo.Uint32(data[off:])))
		}
		return math.Float64frombits(bo.Uint64(data[off:]))
	default:
		switch l.bytesPerSample {
		case 1:
			return float64(data[off])
		case 2:
			return float64(bo.Uint16(data[off:]))
		case 4:
			return float64(bo.Uint32(data[off:]))
		default:
			return float64(bo.Uint64(data[off:]))
		}
	}
}

// decompress inflates one block.
func (l *sampleLayout) decompress(data []byte) ([]byte, error) {
	switch l.compression {
	case CompressionNone:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case CompressionLZW:
		r := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress LZW block: %w", err)
		}
		return out, nil
	default:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open Deflate block: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress Deflate block: %w", err)
		}
		return out, nil
	}
}

// undoPredictor reverses horizontal differencing in place.
func (l *sampleLayout) undoPredictor(block []byte) {
	if l.predictor != PredictorHorizontal || l.sampleFormat == 3 {
		return
	}
	spp := l.samplesPerPix
	if l.planar {
		spp = 1
	}
	rowBytes := l.blockWidth * spp * l.bytesPerSample
	bo := l.byteOrder

	for row := 0; (row+1)*rowBytes <= len(block); row++ {
		r := block[row*rowBytes : (row+1)*rowBytes]
		for i := spp; i < l.blockWidth*spp; i++ {
			off, prev := i*l.bytesPerSample, (i-spp)*l.bytesPerSample
			switch l.bytesPerSample {
			case 1:
				r[off] += r[prev]
			case 2:
				bo.PutUint16(r[off:], bo.Uint16(r[off:])+bo.Uint16(r[prev:]))
			case 4:
				bo.PutUint32(r[off:], bo.Uint32(r[off:])+bo.Uint32(r[prev:]))
			default:
				bo.PutUint64(r[off:], bo.Uint64(r[off:])+bo.Uint64(r[prev:]))
			}
		}
	}
}

type blockWork struct {
	index      int
	compressed []byte
	decoded    []byte
	err        error
}

// readValidityMask reads band 1 and returns, row-major, whether each pixel
// holds data. Pixels equal to noData or NaN are invalid.
func readValidityMask(tr *TIFFReader, meta *GeoTIFFMetadata) ([]bool, error) {
	l, err := newSampleLayout(tr, meta)
	if err != nil {
		return nil, err
	}

	blocks := make([]*blockWork, l.blocksAcross*l.blocksDown)

	// Reads are sequential, the reader may be a remote range reader.
	for i := range blocks {
		size := l.byteCounts[i]
		buf := GetBuffer(int(size))
		if _, err := tr.r.Seek(l.offsets[i], io.SeekStart); err != nil {
			PutBuffer(buf)
			releaseBlocks(blocks)
			return nil, fmt.Errorf("failed to seek to block %d: %w", i, err)
		}
		if _, err := io.ReadFull(tr.r, buf); err != nil {
			PutBuffer(buf)
			releaseBlocks(blocks)
			return nil, fmt.Errorf("failed to read block %d: %w", i, err)
		}
		blocks[i] = &blockWork{index: i, compressed: buf}
	}

	numWorkers := min(runtime.NumCPU(), len(blocks))
	work := make(chan *blockWork, len(blocks))
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range work {
				b.decoded, b.err = l.decompress(b.compressed)
				PutBuffer(b.compressed)
				b.compressed = nil
				if b.err == nil {
					l.undoPredictor(b.decoded)
				}
			}
		}()
	}
	for _, b := range blocks {
		work <- b
	}
	close(work)
	wg.Wait()

	var noData float64
	hasNoData := meta.NoData != nil
	if hasNoData {
		noData = *meta.NoData
	}

	mask := make([]bool, l.width*l.height)
	stride := l.pixelStride()
	rowBytes := l.blockWidth * stride
	if l.planar {
		rowBytes = l.blockWidth * l.bytesPerSample
	}

	for _, b := range blocks {
		if b.err != nil {
			return nil, fmt.Errorf("block %d: %w", b.index, b.err)
		}
		bx, by := b.index%l.blocksAcross, b.index/l.blocksAcross
		x0, y0 := bx*l.blockWidth, by*l.blockHeight

		for y := 0; y < l.blockHeight && y0+y < l.height; y++ {
			for x := 0; x < l.blockWidth && x0+x < l.width; x++ {
				off := y*rowBytes + x*stride
				if off+l.bytesPerSample > len(b.decoded) {
					continue
				}
				v := l.sample(b.decoded, off)
				valid := !math.IsNaN(v)
				if hasNoData && valid {
					valid = v != noData
				}
				mask[(y0+y)*l.width+x0+x] = valid
			}
		}
	}
	return mask, nil
}

func releaseBlocks(blocks []*blockWork) {
	for _, b := range blocks {
		if b != nil && b.compressed != nil {
			PutBuffer(b.compressed)
		}
	}
}
