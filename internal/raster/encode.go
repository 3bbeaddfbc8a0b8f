package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"html"
	"io"
	"math"
	"sort"
	"strings"
)

// EncodeOptions controls GeoTIFF output.
type EncodeOptions struct {
	Deflate bool
}

type outEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Encode writes r as a little-endian, band-interleaved float32 GeoTIFF with
// one strip per band. Missing samples are NaN and tagged as GDAL nodata.
func Encode(w io.Writer, r *Raster, opts EncodeOptions) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if len(r.Bands) == 0 {
		return fmt.Errorf("raster has no bands")
	}
	le := binary.LittleEndian
	spp := len(r.Bands)

	strips := make([][]byte, spp)
	for i, b := range r.Bands {
		buf := make([]byte, 4*len(b.Data))
		for j, v := range b.Data {
			le.PutUint32(buf[4*j:], math.Float32bits(float32(v)))
		}
		if opts.Deflate {
			var zb bytes.Buffer
			zw := zlib.NewWriter(&zb)
			if _, err := zw.Write(buf); err != nil {
				return fmt.Errorf("compress band %q: %w", b.Name, err)
			}
			if err := zw.Close(); err != nil {
				return fmt.Errorf("compress band %q: %w", b.Name, err)
			}
			buf = zb.Bytes()
		}
		strips[i] = buf
	}

	offsets := make([]uint32, spp)
	counts := make([]uint32, spp)
	cur := uint32(8)
	for i, s := range strips {
		offsets[i] = cur
		counts[i] = uint32(len(s))
		cur += uint32(len(s))
		cur += cur & 1
	}
	ifdOff := cur

	compression := uint16(compressionNone)
	if opts.Deflate {
		compression = compressionDeflate
	}

	entries := []outEntry{
		longs(tagImageWidth, uint32(r.Width)),
		longs(tagImageLength, uint32(r.Height)),
		shorts(tagBitsPerSample, repeat(32, spp)...),
		shorts(tagCompression, compression),
		shorts(tagPhotometric, photometricBlackIsZero),
		longs(tagStripOffsets, offsets...),
		shorts(tagSamplesPerPixel, uint16(spp)),
		longs(tagRowsPerStrip, uint32(r.Height)),
		longs(tagStripByteCounts, counts...),
		shorts(tagPlanarConfig, planarSeparate),
		shorts(tagSampleFormat, repeat(sampleFormatFloat, spp)...),
		asciiEntry(tagGDALMetadata, gdalMetadata(r.Bands)),
		asciiEntry(tagGDALNoData, "nan"),
	}
	if spp > 1 {
		entries = append(entries, shorts(tagExtraSamples, repeat(0, spp-1)...))
	}
	if g := r.Geo; g != nil {
		if len(g.PixelScale) > 0 {
			entries = append(entries, doubles(tagModelPixelScale, g.PixelScale))
		}
		if len(g.Tiepoint) > 0 {
			entries = append(entries, doubles(tagModelTiepoint, g.Tiepoint))
		}
		if len(g.Transformation) > 0 {
			entries = append(entries, doubles(tagModelTransformation, g.Transformation))
		}
		if len(g.GeoKeys) > 0 {
			entries = append(entries, shorts(tagGeoKeyDirectory, g.GeoKeys...))
		}
		if len(g.GeoDoubles) > 0 {
			entries = append(entries, doubles(tagGeoDoubleParams, g.GeoDoubles))
		}
		if g.GeoASCII != "" {
			entries = append(entries, asciiEntry(tagGeoASCIIParams, g.GeoASCII))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	extraOff := ifdOff + 2 + 12*uint32(len(entries)) + 4
	valueOffsets := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.data) > 4 {
			valueOffsets[i] = extraOff
			extraOff += uint32(len(e.data))
			extraOff += extraOff & 1
		}
	}

	var out bytes.Buffer
	out.WriteString("II")
	_ = binary.Write(&out, le, uint16(42))
	_ = binary.Write(&out, le, ifdOff)
	for _, s := range strips {
		out.Write(s)
		if out.Len()&1 == 1 {
			out.WriteByte(0)
		}
	}

	_ = binary.Write(&out, le, uint16(len(entries)))
	for i, e := range entries {
		_ = binary.Write(&out, le, e.tag)
		_ = binary.Write(&out, le, e.typ)
		_ = binary.Write(&out, le, e.count)
		if len(e.data) > 4 {
			_ = binary.Write(&out, le, valueOffsets[i])
		} else {
			var inline [4]byte
			copy(inline[:], e.data)
			out.Write(inline[:])
		}
	}
	_ = binary.Write(&out, le, uint32(0))

	for _, e := range entries {
		if len(e.data) > 4 {
			out.Write(e.data)
			if out.Len()&1 == 1 {
				out.WriteByte(0)
			}
		}
	}

	_, err := w.Write(out.Bytes())
	return err
}

func gdalMetadata(bands []Band) string {
	var sb strings.Builder
	sb.WriteString("<GDALMetadata>")
	for i, b := range bands {
		if b.Name == "" {
			continue
		}
		fmt.Fprintf(&sb, `<Item name="DESCRIPTION" sample="%d" role="description">%s</Item>`, i, html.EscapeString(b.Name))
	}
	sb.WriteString("</GDALMetadata>")
	return sb.String()
}

func repeat(v uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func shorts(tag uint16, vs ...uint16) outEntry {
	data := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(data[2*i:], v)
	}
	return outEntry{tag: tag, typ: dtShort, count: uint32(len(vs)), data: data}
}

func longs(tag uint16, vs ...uint32) outEntry {
	data := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(data[4*i:], v)
	}
	return outEntry{tag: tag, typ: dtLong, count: uint32(len(vs)), data: data}
}

func doubles(tag uint16, vs []float64) outEntry {
	data := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return outEntry{tag: tag, typ: dtDouble, count: uint32(len(vs)), data: data}
}

func asciiEntry(tag uint16, s string) outEntry {
	data := append([]byte(s), 0)
	return outEntry{tag: tag, typ: dtASCII, count: uint32(len(data)), data: data}
}
