package raster

import "image/color"

type anchor struct{ x, y float64 }

var (
	jetRed   = []anchor{{0, 0}, {0.35, 0}, {0.66, 1}, {0.89, 1}, {1, 0.5}}
	jetGreen = []anchor{{0, 0}, {0.125, 0}, {0.375, 1}, {0.64, 1}, {0.91, 0}, {1, 0}}
	jetBlue  = []anchor{{0, 0.5}, {0.11, 1}, {0.34, 1}, {0.65, 0}, {1, 0}}
)

// Jet is the 256-entry jet lookup table.
var Jet = buildLUT(jetRed, jetGreen, jetBlue)

func buildLUT(r, g, b []anchor) [256]color.NRGBA {
	var lut [256]color.NRGBA
	for i := range lut {
		x := float64(i) / 255
		lut[i] = color.NRGBA{
			R: channel(interp(r, x)),
			G: channel(interp(g, x)),
			B: channel(interp(b, x)),
			A: 255,
		}
	}
	return lut
}

func interp(points []anchor, x float64) float64 {
	if x <= points[0].x {
		return points[0].y
	}
	for i := 1; i < len(points); i++ {
		if x <= points[i].x {
			a, b := points[i-1], points[i]
			return a.y + (x-a.x)*(b.y-a.y)/(b.x-a.x)
		}
	}
	return points[len(points)-1].y
}

func channel(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}
