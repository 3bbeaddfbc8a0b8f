package raster

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	tag  uint16
	typ  uint16
	n    uint32
	data []byte
}

// writeTIFF lays out a single-IFD TIFF: header, payload, IFD, then
// out-of-line tag values.
func writeTIFF(order binary.ByteOrder, payload []byte, entries []testEntry) []byte {
	var buf bytes.Buffer
	if order == binary.ByteOrder(binary.BigEndian) {
		buf.WriteString("MM")
	} else {
		buf.WriteString("II")
	}
	ifdOff := uint32(8 + len(payload))
	_ = binary.Write(&buf, order, uint16(42))
	_ = binary.Write(&buf, order, ifdOff)
	buf.Write(payload)

	extra := ifdOff + 2 + 12*uint32(len(entries)) + 4
	var tail bytes.Buffer
	_ = binary.Write(&buf, order, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&buf, order, e.tag)
		_ = binary.Write(&buf, order, e.typ)
		_ = binary.Write(&buf, order, e.n)
		if len(e.data) <= 4 {
			var inline [4]byte
			copy(inline[:], e.data)
			buf.Write(inline[:])
			continue
		}
		_ = binary.Write(&buf, order, extra+uint32(tail.Len()))
		tail.Write(e.data)
	}
	_ = binary.Write(&buf, order, uint32(0))
	buf.Write(tail.Bytes())
	return buf.Bytes()
}

func u16(order binary.ByteOrder, tag uint16, vs ...uint16) testEntry {
	data := make([]byte, 2*len(vs))
	for i, v := range vs {
		order.PutUint16(data[2*i:], v)
	}
	return testEntry{tag, dtShort, uint32(len(vs)), data}
}

func u32(order binary.ByteOrder, tag uint16, vs ...uint32) testEntry {
	data := make([]byte, 4*len(vs))
	for i, v := range vs {
		order.PutUint32(data[4*i:], v)
	}
	return testEntry{tag, dtLong, uint32(len(vs)), data}
}

func TestDecodeBigEndianStripsWithPredictor(t *testing.T) {
	be := binary.BigEndian
	payload := []byte{
		0x00, 0x0A, 0x00, 0x0A, // row 0: 10, 20 differenced
		0xFF, 0xFF, 0x00, 0x06, // row 1: 65535, 5 differenced
	}
	nodata := append([]byte("65535"), 0)
	data := writeTIFF(be, payload, []testEntry{
		u16(be, tagImageWidth, 2),
		u16(be, tagImageLength, 2),
		u16(be, tagBitsPerSample, 16),
		u16(be, tagCompression, compressionNone),
		u32(be, tagStripOffsets, 8, 12),
		u16(be, tagSamplesPerPixel, 1),
		u16(be, tagRowsPerStrip, 1),
		u32(be, tagStripByteCounts, 4, 4),
		u16(be, tagPredictor, predictorHorizontal),
		u16(be, tagSampleFormat, sampleFormatUint),
		{tagGDALNoData, dtASCII, uint32(len(nodata)), nodata},
	})

	r, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, r.Bands, 1)
	assert.Equal(t, "band_1", r.Bands[0].Name)
	assert.Equal(t, 10.0, r.Bands[0].Data[0])
	assert.Equal(t, 20.0, r.Bands[0].Data[1])
	assert.True(t, math.IsNaN(r.Bands[0].Data[2]))
	assert.Equal(t, 5.0, r.Bands[0].Data[3])
	assert.Nil(t, r.Geo)
}

func TestDecodeChunkyTilesCropsEdges(t *testing.T) {
	le := binary.LittleEndian
	payload := []byte{
		1, 7, 2, 8, 0, 0, 0, 0, // tile 0
		3, 9, 0, 0, 0, 0, 0, 0, // tile 1
	}
	data := writeTIFF(le, payload, []testEntry{
		u16(le, tagImageWidth, 3),
		u16(le, tagImageLength, 1),
		u16(le, tagBitsPerSample, 8, 8),
		u16(le, tagSamplesPerPixel, 2),
		u16(le, tagPlanarConfig, planarChunky),
		u16(le, tagTileWidth, 2),
		u16(le, tagTileLength, 2),
		u32(le, tagTileOffsets, 8, 16),
		u32(le, tagTileByteCounts, 8, 8),
	})

	r, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, r.Bands, 2)
	assert.Equal(t, []float64{1, 2, 3}, r.Bands[0].Data)
	assert.Equal(t, []float64{7, 8, 9}, r.Bands[1].Data)
}

func TestDecodeRejectsUnsupported(t *testing.T) {
	_, err := Decode([]byte("II"))
	require.Error(t, err)

	_, err = Decode([]byte{'I', 'I', 43, 0, 8, 0, 0, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BigTIFF")

	le := binary.LittleEndian
	data := writeTIFF(le, []byte{0, 0}, []testEntry{
		u16(le, tagImageWidth, 1),
		u16(le, tagImageLength, 1),
		u16(le, tagBitsPerSample, 16),
		u16(le, tagCompression, 5),
		u32(le, tagStripOffsets, 8),
		u32(le, tagStripByteCounts, 2),
	})
	_, err = Decode(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compression")
}

func TestDecodeRejectsOversizedOrShortHeaders(t *testing.T) {
	le := binary.LittleEndian
	tests := []struct {
		name    string
		entries []testEntry
		want    string
	}{
		{
			name: "dimensions over the pixel limit",
			entries: []testEntry{
				u32(le, tagImageWidth, 100000),
				u32(le, tagImageLength, 100000),
				u16(le, tagBitsPerSample, 64),
				u16(le, tagSampleFormat, sampleFormatFloat),
				u32(le, tagStripOffsets, 8),
				u32(le, tagStripByteCounts, 2),
			},
			want: "exceeds",
		},
		{
			name: "uncompressed strips shorter than the raster",
			entries: []testEntry{
				u16(le, tagImageWidth, 1024),
				u16(le, tagImageLength, 1024),
				u16(le, tagBitsPerSample, 16),
				u32(le, tagStripOffsets, 8),
				u32(le, tagStripByteCounts, 2),
			},
			want: "raster needs",
		},
		{
			name: "deflate strips too small to inflate to the raster",
			entries: []testEntry{
				u16(le, tagImageWidth, 8192),
				u16(le, tagImageLength, 8192),
				u16(le, tagBitsPerSample, 32),
				u16(le, tagSampleFormat, sampleFormatFloat),
				u16(le, tagCompression, compressionDeflate),
				u32(le, tagStripOffsets, 8),
				u32(le, tagStripByteCounts, 2),
			},
			want: "raster needs",
		},
		{
			name: "byte count past end of file",
			entries: []testEntry{
				u16(le, tagImageWidth, 1),
				u16(le, tagImageLength, 1),
				u16(le, tagBitsPerSample, 16),
				u32(le, tagStripOffsets, 8),
				u32(le, tagStripByteCounts, 1<<20),
			},
			want: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(writeTIFF(le, []byte{0, 0}, tt.entries))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func sampleRaster() *Raster {
	nan := math.NaN()
	return &Raster{
		Width:  3,
		Height: 2,
		Bands: []Band{
			{Name: "LST", Data: []float64{290.5, 291, nan, 289.25, 300, 301.5}},
			{Name: "QC", Data: []float64{0, 1, 65535, 2501, 3, 15}},
		},
		Geo: &GeoRef{
			PixelScale: []float64{0.5, 0.25, 0},
			Tiepoint:   []float64{0, 0, 0, 10, 50, 0},
			GeoKeys:    []uint16{1, 1, 0, 1, 1024, 0, 1, 2},
			GeoASCII:   "WGS 84|",
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, deflate := range []bool{false, true} {
		src := sampleRaster()
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, src, EncodeOptions{Deflate: deflate}))

		got, err := Decode(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, src.Width, got.Width)
		assert.Equal(t, src.Height, got.Height)
		require.Len(t, got.Bands, 2)
		for b := range src.Bands {
			assert.Equal(t, src.Bands[b].Name, got.Bands[b].Name)
			for i, want := range src.Bands[b].Data {
				if math.IsNaN(want) {
					assert.True(t, math.IsNaN(got.Bands[b].Data[i]))
					continue
				}
				assert.Equal(t, want, got.Bands[b].Data[i], "band %d sample %d deflate=%v", b, i, deflate)
			}
		}
		require.NotNil(t, got.Geo)
		assert.Equal(t, src.Geo.PixelScale, got.Geo.PixelScale)
		assert.Equal(t, src.Geo.Tiepoint, got.Geo.Tiepoint)
		assert.Equal(t, src.Geo.GeoKeys, got.Geo.GeoKeys)
		assert.Equal(t, src.Geo.GeoASCII, got.Geo.GeoASCII)
	}
}

func TestPixelCenter(t *testing.T) {
	g := sampleRaster().Geo
	x, y := g.PixelCenter(0, 0)
	assert.InDelta(t, 10.25, x, 1e-12)
	assert.InDelta(t, 49.875, y, 1e-12)

	x, y = g.PixelCenter(2, 1)
	assert.InDelta(t, 11.25, x, 1e-12)
	assert.InDelta(t, 49.625, y, 1e-12)

	var none *GeoRef
	x, y = none.PixelCenter(3, 4)
	assert.Equal(t, 3.0, x)
	assert.Equal(t, 4.0, y)
}

func TestStackAndMasked(t *testing.T) {
	_, err := Stack(2, 1, nil, Band{Name: "a", Data: []float64{1}})
	require.Error(t, err)

	r, err := Stack(2, 1, sampleRaster().Geo, Band{Name: "a", Data: []float64{1, 2}})
	require.NoError(t, err)
	b, ok := r.Band("a")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, b.Data)

	m := Masked([]float64{1, 2}, []bool{true, false})
	assert.Equal(t, 1.0, m[0])
	assert.True(t, math.IsNaN(m[1]))
}

func TestJetEndpoints(t *testing.T) {
	assert.Equal(t, color.NRGBA{R: 0, G: 0, B: 128, A: 255}, Jet[0])
	assert.Equal(t, color.NRGBA{R: 128, G: 0, B: 0, A: 255}, Jet[255])
}

func TestPreviewRelative(t *testing.T) {
	img, err := Preview([]float64{math.NaN(), 280, 290, -9999}, 2, 2, PreviewRelative)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).A)
	assert.Equal(t, Jet[0], img.NRGBAAt(1, 0))
	assert.Equal(t, Jet[255], img.NRGBAAt(0, 1))
	assert.Equal(t, uint8(0), img.NRGBAAt(1, 1).A)
}

func TestPreviewConstantIsTransparent(t *testing.T) {
	img, err := Preview([]float64{290, 290}, 2, 1, PreviewRelative)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(1, 0))
}

func TestPreviewFixed(t *testing.T) {
	img, err := Preview([]float64{270, FixedMax, 400, math.NaN()}, 4, 1, PreviewFixed)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).A)
	assert.Equal(t, Jet[255], img.NRGBAAt(1, 0))
	assert.Equal(t, Jet[255], img.NRGBAAt(2, 0))
	assert.Equal(t, uint8(0), img.NRGBAAt(3, 0).A)
}

func TestPreviewGrayAndPNG(t *testing.T) {
	img, err := Preview([]float64{0, 10}, 2, 1, PreviewGray)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0, G: 0, B: 0, A: 255}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, img.NRGBAAt(1, 0))

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, []float64{0, 10}, 2, 1, PreviewGray))
	assert.Equal(t, "\x89PNG", buf.String()[:4])

	_, err = Preview([]float64{1}, 2, 2, PreviewGray)
	require.Error(t, err)
}
