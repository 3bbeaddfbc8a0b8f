package filter

import (
	"fmt"
	"math"
)

// Layers holds one scene's co-registered per-pixel samples in row-major order.
type Layers struct {
	Width  int
	Height int

	LST       []float64
	LSTErr    []float64
	QC        []float64
	Water     []float64
	Cloud     []float64
	EmisWB    []float64
	Elevation []float64
}

// Len returns the number of pixels in the scene.
func (l *Layers) Len() int {
	return l.Width * l.Height
}

func (l *Layers) validate() error {
	n := l.Len()
	if n <= 0 {
		return fmt.Errorf("empty scene (%dx%d)", l.Width, l.Height)
	}
	for name, data := range map[string][]float64{
		"LST": l.LST, "LST_err": l.LSTErr, "QC": l.QC, "water": l.Water,
		"cloud": l.Cloud, "EmisWB": l.EmisWB, "height": l.Elevation,
	} {
		if len(data) != n {
			return fmt.Errorf("layer %s has %d pixels, want %d", name, len(data), n)
		}
	}
	return nil
}

// Result is the outcome of filtering one scene.
type Result struct {
	// Kept marks pixels that passed the quality, cloud and water filters.
	Kept []bool
	// WaterOff is set when the scene has no water-flagged pixel and water
	// filtering was skipped.
	WaterOff bool

	Histogram   Histogram
	WaterPixels int
	LandPixels  int
	// RawInvalid counts pixels whose raw temperature is missing.
	RawInvalid int

	Stats Stats
}

// Retained reports whether pixel i contributes to statistics and exports.
func (r *Result) Retained(i int, lst []float64) bool {
	return r.Kept[i] && isFinite(lst[i])
}

// QualityMask returns, per pixel, whether the quality code passes.
func QualityMask(qc []float64) []bool {
	mask := make([]bool, len(qc))
	for i, v := range qc {
		mask[i] = !QualityInvalid(v)
	}
	return mask
}

// ApplyCloud clears mask entries for cloudy pixels.
func ApplyCloud(mask []bool, cloud []float64) {
	for i, v := range cloud {
		if IsCloud(v) {
			mask[i] = false
		}
	}
}

// ApplyWater restricts mask to water pixels when the scene has any. When no
// pixel is water-flagged the mask is left untouched and waterOff is true.
func ApplyWater(mask []bool, water []float64) (waterOff bool) {
	anyWater := false
	for _, v := range water {
		if IsWater(v) {
			anyWater = true
			break
		}
	}
	if !anyWater {
		return true
	}
	for i, v := range water {
		if !IsWater(v) {
			mask[i] = false
		}
	}
	return false
}

// Apply runs the quality, cloud and water filters over a scene and computes
// the histogram and statistics.
func Apply(l *Layers) (*Result, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}

	mask := QualityMask(l.QC)
	ApplyCloud(mask, l.Cloud)
	waterOff := ApplyWater(mask, l.Water)

	res := &Result{
		Kept:     mask,
		WaterOff: waterOff,
	}

	values := make([]float64, 0, len(mask))
	for i := range mask {
		water := IsWater(l.Water[i])
		res.Histogram.Add(QualityInvalid(l.QC[i]), IsCloud(l.Cloud[i]), !water)
		if water {
			res.WaterPixels++
		} else {
			res.LandPixels++
		}
		if !isFinite(l.LST[i]) {
			res.RawInvalid++
		}
		if res.Retained(i, l.LST) {
			values = append(values, l.LST[i])
		}
	}

	res.Stats = Summarize(values, l.Len())
	return res, nil
}

// RawInvalidRatio is the share of pixels whose raw temperature is missing.
func (r *Result) RawInvalidRatio() float64 {
	if r.Stats.Total == 0 {
		return 0
	}
	return float64(r.RawInvalid) / float64(r.Stats.Total)
}

// FilteredInvalidRatio is the share of pixels not retained after filtering.
func (r *Result) FilteredInvalidRatio() float64 {
	if r.Stats.Total == 0 {
		return 0
	}
	return float64(r.Stats.Total-r.Stats.Valid) / float64(r.Stats.Total)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
