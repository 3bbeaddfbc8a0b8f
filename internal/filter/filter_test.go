package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualityInvalidCode(t *testing.T) {
	tests := []struct {
		name    string
		code    uint16
		invalid bool
	}{
		{"perfect", 0b00, false},
		{"nominal", 0b01, false},
		{"cloud detected", 0b10, true},
		{"not produced", 0b11, true},
		{"fill sentinel", 65535, true},
		{"nominal with high bits (2501)", 2501, false},
		{"nominal with high bits (3525)", 3525, false},
		{"not produced with high bits (15)", 15, true},
		{"perfect with unrelated bits", 0b1000000, false},
		{"cloud with unrelated bits", 0b1000010, true},
		{"cloud with many high bits", 0xFFFE, true},
		{"nominal just below fill", 0xFFFD, false},
		{"perfect with all other bits", 0xFFFC, false},
		{"cloud in upper byte pattern", 0x4002, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.invalid, QualityInvalidCode(tt.code))
			assert.Equal(t, tt.invalid, QualityInvalid(float64(tt.code)))
		})
	}
}

func TestQualityInvalidIgnoresUnrelatedBits(t *testing.T) {
	for low := uint16(0); low < 4; low++ {
		want := low > 1
		for high := uint16(0); high < 1<<14; high += 37 {
			code := high<<2 | low
			if code == FillValue {
				continue
			}
			require.Equal(t, want, QualityInvalidCode(code), "code %d", code)
		}
	}
}

func TestQualityInvalidMissingSample(t *testing.T) {
	assert.True(t, QualityInvalid(math.NaN()))
	assert.True(t, QualityInvalid(-1))
	assert.True(t, QualityInvalid(70000))
}

// scene builds a 1-row scene from per-pixel tuples.
func scene(pixels ...[4]float64) *Layers {
	n := len(pixels)
	l := &Layers{
		Width: n, Height: 1,
		LST: make([]float64, n), LSTErr: make([]float64, n), QC: make([]float64, n),
		Water: make([]float64, n), Cloud: make([]float64, n),
		EmisWB: make([]float64, n), Elevation: make([]float64, n),
	}
	for i, p := range pixels {
		l.LST[i], l.QC[i], l.Cloud[i], l.Water[i] = p[0], p[1], p[2], p[3]
		l.LSTErr[i] = 0.5
		l.EmisWB[i] = 0.98
		l.Elevation[i] = 120
	}
	return l
}

func TestApplyWaterPresentKeepsOnlyWater(t *testing.T) {
	l := scene(
		[4]float64{290, 0, 0, 1},
		[4]float64{291, 0, 0, 0},
		[4]float64{292, 1, 0, 1},
		[4]float64{293, 1, 0, 0},
	)

	res, err := Apply(l)
	require.NoError(t, err)

	assert.False(t, res.WaterOff)
	assert.Equal(t, []bool{true, false, true, false}, res.Kept)
	for i := range l.Water {
		if !IsWater(l.Water[i]) {
			assert.False(t, res.Kept[i], "non-water pixel %d must be excluded", i)
		}
	}
	assert.Equal(t, 2, res.Stats.Valid)
	assert.Equal(t, 2, res.WaterPixels)
	assert.Equal(t, 2, res.LandPixels)
}

func TestApplyNoWaterKeepsQualityCloudFilteredSet(t *testing.T) {
	l := scene(
		[4]float64{290, 0, 0, 0},
		[4]float64{291, 2, 0, 0},
		[4]float64{292, 1, 1, 0},
		[4]float64{293, 5, 0, 0},
	)

	expected := QualityMask(l.QC)
	ApplyCloud(expected, l.Cloud)

	res, err := Apply(l)
	require.NoError(t, err)

	assert.True(t, res.WaterOff)
	assert.Equal(t, expected, res.Kept)
	assert.Equal(t, []bool{true, false, false, true}, res.Kept)
	assert.Equal(t, 2, res.Stats.Valid, "water-off scene must not come out empty")
}

func TestApplyWaterDirect(t *testing.T) {
	mask := []bool{true, true, true}
	assert.True(t, ApplyWater(mask, []float64{0, 0, math.NaN()}))
	assert.Equal(t, []bool{true, true, true}, mask)

	mask = []bool{true, true, false}
	assert.False(t, ApplyWater(mask, []float64{0, 1, 1}))
	assert.Equal(t, []bool{false, true, false}, mask)
}

func TestHistogramSumsToTotal(t *testing.T) {
	var pixels [][4]float64
	qcs := []float64{0, 1, 2, 3, 65535, 2501, math.NaN()}
	for i := 0; i < 97; i++ {
		pixels = append(pixels, [4]float64{
			280 + float64(i%13),
			qcs[i%len(qcs)],
			float64(i % 2),
			float64((i / 3) % 2),
		})
	}
	l := scene(pixels...)

	res, err := Apply(l)
	require.NoError(t, err)

	assert.Equal(t, l.Len(), res.Histogram.Total())
	assert.Equal(t, l.Len(), res.Stats.Total)
	assert.Equal(t, l.Len(), res.WaterPixels+res.LandPixels)
}

func TestHistogramBuckets(t *testing.T) {
	l := scene(
		[4]float64{290, 0, 0, 1},     // clear
		[4]float64{290, 3, 0, 1},     // qc
		[4]float64{290, 0, 1, 1},     // cloud
		[4]float64{290, 0, 0, 0},     // nonwater
		[4]float64{290, 65535, 1, 0}, // qc+cloud+nonwater
	)

	res, err := Apply(l)
	require.NoError(t, err)

	assert.Equal(t, Histogram{1, 1, 1, 0, 1, 0, 0, 1}, res.Histogram)
	labeled := res.Histogram.Labeled()
	assert.Equal(t, 1, labeled["clear"])
	assert.Equal(t, 1, labeled["qc+cloud+nonwater"])
	assert.Len(t, labeled, 8)
}

func TestApplySkipsMissingTemperatures(t *testing.T) {
	l := scene(
		[4]float64{math.NaN(), 0, 0, 0},
		[4]float64{300, 0, 0, 0},
	)

	res, err := Apply(l)
	require.NoError(t, err)

	assert.Equal(t, 1, res.RawInvalid)
	assert.Equal(t, 1, res.Stats.Valid)
	assert.InDelta(t, 0.5, res.RawInvalidRatio(), 1e-9)
	assert.InDelta(t, 0.5, res.FilteredInvalidRatio(), 1e-9)
	assert.True(t, res.Kept[0])
	assert.False(t, res.Retained(0, l.LST))
}

func TestApplyRejectsMismatchedLayers(t *testing.T) {
	l := scene([4]float64{290, 0, 0, 0}, [4]float64{291, 0, 0, 0})
	l.QC = l.QC[:1]

	_, err := Apply(l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QC")
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 1, 3, 2}, 10)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 2.5, s.Mean)
	assert.Equal(t, 2.5, s.Median)
	assert.InDelta(t, 1.2909944, s.StdDev, 1e-6)
	assert.Equal(t, 4, s.Valid)
	assert.Equal(t, 10, s.Total)

	odd := Summarize([]float64{5, 1, 3}, 3)
	assert.Equal(t, 3.0, odd.Median)

	single := Summarize([]float64{7}, 1)
	assert.Equal(t, 0.0, single.StdDev)

	empty := Summarize(nil, 5)
	assert.True(t, math.IsNaN(empty.Mean))
	assert.Equal(t, 0, empty.Valid)
}

func TestApplyIsDeterministic(t *testing.T) {
	l := scene(
		[4]float64{290.25, 0, 0, 1},
		[4]float64{291.5, 1, 0, 1},
		[4]float64{289.75, 0, 0, 1},
	)

	first, err := Apply(l)
	require.NoError(t, err)
	second, err := Apply(l)
	require.NoError(t, err)

	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Histogram, second.Histogram)
}
