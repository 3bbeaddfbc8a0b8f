package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
)

// Fixed preview scale in kelvin.
const (
	FixedMin = 273.15
	FixedMax = 308.15
)

// missingBelow marks sentinel temperatures written by upstream tools.
const missingBelow = -1000

// PreviewMode selects how temperatures map to colours.
type PreviewMode string

const (
	// PreviewRelative stretches the scene's own range over the jet colormap.
	PreviewRelative PreviewMode = "relative"
	// PreviewFixed maps FixedMin..FixedMax onto the jet colormap.
	PreviewFixed PreviewMode = "fixed"
	// PreviewGray stretches the scene's range over grey levels.
	PreviewGray PreviewMode = "gray"
)

// Preview renders a single band as an RGBA image.
func Preview(data []float64, width, height int, mode PreviewMode) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return nil, fmt.Errorf("preview: %d samples for %dx%d grid", len(data), width, height)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	switch mode {
	case PreviewRelative, PreviewGray:
		lo, hi, ok := validRange(data)
		if !ok || lo == hi {
			return img, nil
		}
		for i, v := range data {
			if missing(v) {
				continue
			}
			idx := uint8(math.Round((v - lo) / (hi - lo) * 255))
			c := Jet[idx]
			if mode == PreviewGray {
				c = color.NRGBA{R: idx, G: idx, B: idx, A: 255}
			}
			img.SetNRGBA(i%width, i/width, c)
		}
	case PreviewFixed:
		for i, v := range data {
			if math.IsNaN(v) || v <= FixedMin {
				continue
			}
			if v > FixedMax {
				v = FixedMax
			}
			idx := uint8(math.Round((v - FixedMin) / (FixedMax - FixedMin) * 255))
			img.SetNRGBA(i%width, i/width, Jet[idx])
		}
	default:
		return nil, fmt.Errorf("preview: unknown mode %q", mode)
	}
	return img, nil
}

// WritePNG renders a preview and encodes it as PNG.
func WritePNG(w io.Writer, data []float64, width, height int, mode PreviewMode) error {
	img, err := Preview(data, width, height, mode)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func missing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v < missingBelow
}

func validRange(data []float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if missing(v) {
			continue
		}
		ok = true
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, ok
}
