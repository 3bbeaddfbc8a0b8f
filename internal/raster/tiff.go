package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"html"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfig        = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagExtraSamples        = 338
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoDoubleParams     = 34736
	tagGeoASCIIParams      = 34737
	tagGDALMetadata        = 42112
	tagGDALNoData          = 42113
)

const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
)

const (
	compressionNone        = 1
	compressionDeflate     = 8
	compressionDeflateOld  = 32946
	predictorNone          = 1
	predictorHorizontal    = 2
	planarChunky           = 1
	planarSeparate         = 2
	sampleFormatUint       = 1
	sampleFormatInt        = 2
	sampleFormatFloat      = 3
	photometricBlackIsZero = 1
)

// MaxPixels bounds width*height of a decoded raster. ECOSTRESS tiles are
// about 1.2 Mpx.
const MaxPixels = 64 << 20

const (
	maxSamplesPerPixel = 64
	// deflate cannot expand input by more than about 1032:1.
	maxDeflateRatio = 1032
)

var typeSizes = map[uint16]int{
	dtByte: 1, dtASCII: 1, dtShort: 2, dtLong: 4, dtRational: 8, dtSByte: 1,
	dtUndefined: 1, dtSShort: 2, dtSLong: 4, dtSRational: 8, dtFloat: 4, dtDouble: 8,
}

var bandDescriptionRe = regexp.MustCompile(`<Item name="DESCRIPTION" sample="(\d+)" role="description">([^<]*)</Item>`)

type ifdEntry struct {
	typ   uint16
	count uint32
	raw   []byte
}

type decoder struct {
	buf     []byte
	order   binary.ByteOrder
	entries map[uint16]ifdEntry
}

// Decode parses the first image of a TIFF file. Bands are named from the
// GDAL band descriptions when present, otherwise band_1, band_2, ...
func Decode(data []byte) (*Raster, error) {
	d := &decoder{buf: data, entries: make(map[uint16]ifdEntry)}
	if err := d.readHeader(); err != nil {
		return nil, err
	}
	return d.decode()
}

func (d *decoder) readHeader() error {
	if len(d.buf) < 8 {
		return fmt.Errorf("tiff: file too short (%d bytes)", len(d.buf))
	}
	switch string(d.buf[:2]) {
	case "II":
		d.order = binary.LittleEndian
	case "MM":
		d.order = binary.BigEndian
	default:
		return fmt.Errorf("tiff: bad byte order marker %q", d.buf[:2])
	}
	switch magic := d.order.Uint16(d.buf[2:4]); magic {
	case 42:
	case 43:
		return fmt.Errorf("tiff: BigTIFF is not supported")
	default:
		return fmt.Errorf("tiff: bad magic %d", magic)
	}

	off := int(d.order.Uint32(d.buf[4:8]))
	if off+2 > len(d.buf) {
		return fmt.Errorf("tiff: IFD offset %d out of range", off)
	}
	n := int(d.order.Uint16(d.buf[off : off+2]))
	if off+2+12*n > len(d.buf) {
		return fmt.Errorf("tiff: IFD with %d entries is truncated", n)
	}
	for i := 0; i < n; i++ {
		e := d.buf[off+2+12*i : off+2+12*(i+1)]
		tag := d.order.Uint16(e[0:2])
		typ := d.order.Uint16(e[2:4])
		count := d.order.Uint32(e[4:8])
		size, ok := typeSizes[typ]
		if !ok {
			continue
		}
		total := size * int(count)
		var raw []byte
		if total <= 4 {
			raw = e[8 : 8+total]
		} else {
			vo := int(d.order.Uint32(e[8:12]))
			if vo < 0 || vo+total > len(d.buf) {
				return fmt.Errorf("tiff: tag %d value out of range", tag)
			}
			raw = d.buf[vo : vo+total]
		}
		d.entries[tag] = ifdEntry{typ: typ, count: count, raw: raw}
	}
	return nil
}

func (d *decoder) uints(tag uint16) ([]uint64, bool) {
	e, ok := d.entries[tag]
	if !ok {
		return nil, false
	}
	out := make([]uint64, e.count)
	for i := range out {
		switch e.typ {
		case dtByte, dtUndefined:
			out[i] = uint64(e.raw[i])
		case dtShort:
			out[i] = uint64(d.order.Uint16(e.raw[2*i:]))
		case dtLong:
			out[i] = uint64(d.order.Uint32(e.raw[4*i:]))
		default:
			return nil, false
		}
	}
	return out, true
}

func (d *decoder) uint(tag uint16, def uint64) uint64 {
	v, ok := d.uints(tag)
	if !ok || len(v) == 0 {
		return def
	}
	return v[0]
}

func (d *decoder) floats(tag uint16) []float64 {
	e, ok := d.entries[tag]
	if !ok {
		return nil
	}
	out := make([]float64, e.count)
	for i := range out {
		switch e.typ {
		case dtDouble:
			out[i] = math.Float64frombits(d.order.Uint64(e.raw[8*i:]))
		case dtFloat:
			out[i] = float64(math.Float32frombits(d.order.Uint32(e.raw[4*i:])))
		case dtShort:
			out[i] = float64(d.order.Uint16(e.raw[2*i:]))
		case dtLong:
			out[i] = float64(d.order.Uint32(e.raw[4*i:]))
		default:
			return nil
		}
	}
	return out
}

func (d *decoder) ascii(tag uint16) string {
	e, ok := d.entries[tag]
	if !ok || e.typ != dtASCII {
		return ""
	}
	return strings.TrimRight(string(e.raw), "\x00")
}

// layout describes how samples are chunked in the file.
type layout struct {
	width, height int
	spp           int
	bits          int
	format        int
	compression   int
	predictor     int
	planar        int

	chunkW, chunkH int
	across, down   int
	tiled          bool
	offsets        []uint64
	counts         []uint64
}

func (d *decoder) layout() (*layout, error) {
	l := &layout{
		width:       int(d.uint(tagImageWidth, 0)),
		height:      int(d.uint(tagImageLength, 0)),
		spp:         int(d.uint(tagSamplesPerPixel, 1)),
		compression: int(d.uint(tagCompression, compressionNone)),
		predictor:   int(d.uint(tagPredictor, predictorNone)),
		planar:      int(d.uint(tagPlanarConfig, planarChunky)),
		format:      int(d.uint(tagSampleFormat, sampleFormatUint)),
	}
	if l.width <= 0 || l.height <= 0 {
		return nil, fmt.Errorf("tiff: missing image dimensions")
	}
	if l.width > MaxPixels || l.height > MaxPixels || l.width*l.height > MaxPixels {
		return nil, fmt.Errorf("tiff: %dx%d raster exceeds %d pixels", l.width, l.height, MaxPixels)
	}
	if l.spp < 1 || l.spp > maxSamplesPerPixel {
		return nil, fmt.Errorf("tiff: invalid samples per pixel %d", l.spp)
	}

	bps, ok := d.uints(tagBitsPerSample)
	if !ok || len(bps) == 0 {
		return nil, fmt.Errorf("tiff: missing BitsPerSample")
	}
	l.bits = int(bps[0])
	for _, b := range bps[1:] {
		if int(b) != l.bits {
			return nil, fmt.Errorf("tiff: mixed sample sizes are not supported")
		}
	}
	switch l.bits {
	case 8, 16, 32, 64:
	default:
		return nil, fmt.Errorf("tiff: unsupported BitsPerSample %d", l.bits)
	}
	switch l.format {
	case sampleFormatUint, sampleFormatInt:
	case sampleFormatFloat:
		if l.bits != 32 && l.bits != 64 {
			return nil, fmt.Errorf("tiff: unsupported float sample size %d", l.bits)
		}
	default:
		return nil, fmt.Errorf("tiff: unsupported SampleFormat %d", l.format)
	}
	switch l.compression {
	case compressionNone, compressionDeflate, compressionDeflateOld:
	default:
		return nil, fmt.Errorf("tiff: unsupported compression %d", l.compression)
	}
	if l.predictor != predictorNone && l.predictor != predictorHorizontal {
		return nil, fmt.Errorf("tiff: unsupported predictor %d", l.predictor)
	}
	if l.planar != planarChunky && l.planar != planarSeparate {
		return nil, fmt.Errorf("tiff: unsupported planar configuration %d", l.planar)
	}

	if _, ok := d.entries[tagTileWidth]; ok {
		l.tiled = true
		l.chunkW = int(d.uint(tagTileWidth, 0))
		l.chunkH = int(d.uint(tagTileLength, 0))
		l.offsets, _ = d.uints(tagTileOffsets)
		l.counts, _ = d.uints(tagTileByteCounts)
	} else {
		l.chunkW = l.width
		l.chunkH = int(d.uint(tagRowsPerStrip, uint64(l.height)))
		if l.chunkH <= 0 || l.chunkH > l.height {
			l.chunkH = l.height
		}
		l.offsets, _ = d.uints(tagStripOffsets)
		l.counts, _ = d.uints(tagStripByteCounts)
	}
	if l.chunkW <= 0 || l.chunkH <= 0 || l.chunkW > MaxPixels || l.chunkH > MaxPixels || l.chunkW*l.chunkH > MaxPixels {
		return nil, fmt.Errorf("tiff: invalid chunk size %dx%d", l.chunkW, l.chunkH)
	}
	l.across = (l.width + l.chunkW - 1) / l.chunkW
	l.down = (l.height + l.chunkH - 1) / l.chunkH

	want := l.across * l.down * l.planes()
	if len(l.offsets) != want || len(l.counts) != want {
		return nil, fmt.Errorf("tiff: expected %d chunks, found %d offsets and %d byte counts", want, len(l.offsets), len(l.counts))
	}

	size := uint64(len(d.buf))
	var stored uint64
	for i, off := range l.offsets {
		cnt := l.counts[i]
		if off > size || cnt > size-off {
			return nil, fmt.Errorf("tiff: chunk %d out of range", i)
		}
		stored += cnt
	}
	need := uint64(l.width) * uint64(l.height) * uint64(l.spp) * uint64(l.bits/8)
	capacity := stored
	if l.compression != compressionNone {
		capacity *= maxDeflateRatio
	}
	if capacity < need {
		return nil, fmt.Errorf("tiff: chunk data holds %d bytes, raster needs %d", stored, need)
	}
	return l, nil
}

func (l *layout) planes() int {
	if l.planar == planarSeparate {
		return l.spp
	}
	return 1
}

func (l *layout) chunkSamples() int {
	if l.planar == planarSeparate {
		return 1
	}
	return l.spp
}

func (d *decoder) decode() (*Raster, error) {
	l, err := d.layout()
	if err != nil {
		return nil, err
	}

	bands := make([]Band, l.spp)
	for i := range bands {
		bands[i] = Band{Name: fmt.Sprintf("band_%d", i+1), Data: make([]float64, l.width*l.height)}
	}

	perPlane := l.across * l.down
	bytesPer := l.bits / 8
	spc := l.chunkSamples()

	for p := 0; p < l.planes(); p++ {
		for k := 0; k < perPlane; k++ {
			idx := p*perPlane + k
			off, cnt := int(l.offsets[idx]), int(l.counts[idx])
			if off < 0 || off+cnt > len(d.buf) {
				return nil, fmt.Errorf("tiff: chunk %d out of range", idx)
			}
			raw, err := decompress(d.buf[off:off+cnt], l.compression, l.chunkH*l.chunkW*spc*bytesPer)
			if err != nil {
				return nil, fmt.Errorf("tiff: chunk %d: %w", idx, err)
			}

			x0 := (k % l.across) * l.chunkW
			y0 := (k / l.across) * l.chunkH
			rows := l.chunkH
			if !l.tiled && y0+rows > l.height {
				rows = l.height - y0
			}
			rowBytes := l.chunkW * spc * bytesPer
			if len(raw) < rows*rowBytes {
				return nil, fmt.Errorf("tiff: chunk %d truncated (%d of %d bytes)", idx, len(raw), rows*rowBytes)
			}

			for r := 0; r < rows; r++ {
				row := raw[r*rowBytes : (r+1)*rowBytes]
				if l.predictor == predictorHorizontal {
					undoHorizontal(row, spc, bytesPer, d.order)
				}
				y := y0 + r
				if y >= l.height {
					break
				}
				for c := 0; c < l.chunkW; c++ {
					x := x0 + c
					if x >= l.width {
						break
					}
					for s := 0; s < spc; s++ {
						band := s
						if l.planar == planarSeparate {
							band = p
						}
						si := (c*spc + s) * bytesPer
						bands[band].Data[y*l.width+x] = d.sample(row[si:si+bytesPer], l)
					}
				}
			}
		}
	}

	if nd, ok := d.noData(); ok {
		for _, b := range bands {
			for i, v := range b.Data {
				if v == nd {
					b.Data[i] = math.NaN()
				}
			}
		}
	}

	for _, m := range bandDescriptionRe.FindAllStringSubmatch(d.ascii(tagGDALMetadata), -1) {
		i, err := strconv.Atoi(m[1])
		if err == nil && i >= 0 && i < len(bands) && m[2] != "" {
			bands[i].Name = html.UnescapeString(m[2])
		}
	}

	return &Raster{Width: l.width, Height: l.height, Bands: bands, Geo: d.geoRef()}, nil
}

func (d *decoder) sample(b []byte, l *layout) float64 {
	switch l.format {
	case sampleFormatFloat:
		if l.bits == 32 {
			return float64(math.Float32frombits(d.order.Uint32(b)))
		}
		return math.Float64frombits(d.order.Uint64(b))
	case sampleFormatInt:
		switch l.bits {
		case 8:
			return float64(int8(b[0]))
		case 16:
			return float64(int16(d.order.Uint16(b)))
		case 32:
			return float64(int32(d.order.Uint32(b)))
		default:
			return float64(int64(d.order.Uint64(b)))
		}
	default:
		switch l.bits {
		case 8:
			return float64(b[0])
		case 16:
			return float64(d.order.Uint16(b))
		case 32:
			return float64(d.order.Uint32(b))
		default:
			return float64(d.order.Uint64(b))
		}
	}
}

// noData returns the GDAL_NODATA value unless it is NaN (already missing).
func (d *decoder) noData() (float64, bool) {
	s := strings.TrimSpace(d.ascii(tagGDALNoData))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func (d *decoder) geoRef() *GeoRef {
	g := &GeoRef{
		PixelScale:     d.floats(tagModelPixelScale),
		Tiepoint:       d.floats(tagModelTiepoint),
		Transformation: d.floats(tagModelTransformation),
		GeoDoubles:     d.floats(tagGeoDoubleParams),
		GeoASCII:       d.ascii(tagGeoASCIIParams),
	}
	if keys, ok := d.uints(tagGeoKeyDirectory); ok {
		g.GeoKeys = make([]uint16, len(keys))
		for i, k := range keys {
			g.GeoKeys[i] = uint16(k)
		}
	}
	if g.PixelScale == nil && g.Tiepoint == nil && g.Transformation == nil && g.GeoKeys == nil {
		return nil
	}
	return g
}

// decompress inflates one chunk, reading at most limit bytes.
func decompress(b []byte, compression int, limit int) ([]byte, error) {
	switch compression {
	case compressionNone:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	default:
		zr, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(io.LimitReader(zr, int64(limit)))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		return out, nil
	}
}

// undoHorizontal reverses horizontal differencing in place for one row.
func undoHorizontal(row []byte, spc, bytesPer int, order binary.ByteOrder) {
	n := len(row) / bytesPer
	for i := spc; i < n; i++ {
		cur, prev := i*bytesPer, (i-spc)*bytesPer
		switch bytesPer {
		case 1:
			row[cur] += row[prev]
		case 2:
			order.PutUint16(row[cur:], order.Uint16(row[cur:])+order.Uint16(row[prev:]))
		case 4:
			order.PutUint32(row[cur:], order.Uint32(row[cur:])+order.Uint32(row[prev:]))
		case 8:
			order.PutUint64(row[cur:], order.Uint64(row[cur:])+order.Uint64(row[prev:]))
		}
	}
}
