// Package raster reads and writes the GeoTIFF subset produced by the
// extraction provider and renders preview images.
//
// Supported input: classic (non-Big) TIFF, little or big endian, strips or
// tiles, chunky or planar layout, uncompressed or deflate, horizontal
// differencing predictor for integer samples, 8/16/32/64-bit unsigned,
// signed and floating point samples. GDAL_NODATA values decode to NaN.
package raster

import (
	"fmt"
	"math"
)

// Raster is a decoded multi-band grid. Band data is row-major.
type Raster struct {
	Width  int
	Height int
	Bands  []Band
	Geo    *GeoRef
}

// Band is one named layer of a raster.
type Band struct {
	Name string
	Data []float64
}

// GeoRef carries the GeoTIFF georeferencing tags through decode and encode
// unchanged.
type GeoRef struct {
	PixelScale     []float64
	Tiepoint       []float64
	GeoKeys        []uint16
	GeoDoubles     []float64
	GeoASCII       string
	Transformation []float64
}

// Band returns the band with the given name.
func (r *Raster) Band(name string) (*Band, bool) {
	for i := range r.Bands {
		if r.Bands[i].Name == name {
			return &r.Bands[i], true
		}
	}
	return nil, false
}

// Validate checks that every band matches the raster dimensions.
func (r *Raster) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid raster size %dx%d", r.Width, r.Height)
	}
	n := r.Width * r.Height
	for _, b := range r.Bands {
		if len(b.Data) != n {
			return fmt.Errorf("band %q has %d samples, want %d", b.Name, len(b.Data), n)
		}
	}
	return nil
}

// PixelCenter returns the geographic coordinate of the centre of pixel
// (col, row). Without georeferencing it returns the pixel indices.
func (g *GeoRef) PixelCenter(col, row int) (x, y float64) {
	if g == nil {
		return float64(col), float64(row)
	}
	if len(g.Transformation) == 16 {
		t := g.Transformation
		px, py := float64(col)+0.5, float64(row)+0.5
		return t[0]*px + t[1]*py + t[3], t[4]*px + t[5]*py + t[7]
	}
	if len(g.PixelScale) < 2 || len(g.Tiepoint) < 6 {
		return float64(col), float64(row)
	}
	i, j := g.Tiepoint[0], g.Tiepoint[1]
	ox, oy := g.Tiepoint[3], g.Tiepoint[4]
	sx, sy := g.PixelScale[0], g.PixelScale[1]
	x = ox + (float64(col)+0.5-i)*sx
	y = oy - (float64(row)+0.5-j)*sy
	return x, y
}

func (g *GeoRef) clone() *GeoRef {
	if g == nil {
		return nil
	}
	c := &GeoRef{GeoASCII: g.GeoASCII}
	c.PixelScale = append([]float64(nil), g.PixelScale...)
	c.Tiepoint = append([]float64(nil), g.Tiepoint...)
	c.GeoKeys = append([]uint16(nil), g.GeoKeys...)
	c.GeoDoubles = append([]float64(nil), g.GeoDoubles...)
	c.Transformation = append([]float64(nil), g.Transformation...)
	return c
}

// Stack builds a multi-band raster from single-band sources sharing a grid.
// The georeference of the first band is kept.
func Stack(width, height int, geo *GeoRef, bands ...Band) (*Raster, error) {
	r := &Raster{Width: width, Height: height, Geo: geo.clone(), Bands: bands}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Masked returns a copy of data with NaN wherever keep is false.
func Masked(data []float64, keep []bool) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		if keep[i] {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
