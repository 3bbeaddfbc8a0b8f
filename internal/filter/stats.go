package filter

import (
	"math"
	"sort"
)

// Histogram counts pixels per 3-bit filter combination. The bucket index is
// qualityInvalid | cloud<<1 | nonWater<<2.
type Histogram [8]int

// Bucket returns the histogram index for a flag combination.
func Bucket(qualityInvalid, cloud, nonWater bool) int {
	idx := 0
	if qualityInvalid {
		idx |= 1
	}
	if cloud {
		idx |= 2
	}
	if nonWater {
		idx |= 4
	}
	return idx
}

// Add counts one pixel.
func (h *Histogram) Add(qualityInvalid, cloud, nonWater bool) {
	h[Bucket(qualityInvalid, cloud, nonWater)]++
}

// Total returns the sum of all buckets.
func (h Histogram) Total() int {
	total := 0
	for _, n := range h {
		total += n
	}
	return total
}

// Labeled returns the histogram keyed by flag names, for ledger metadata.
func (h Histogram) Labeled() map[string]int {
	out := make(map[string]int, len(h))
	for i, n := range h {
		out[bucketLabel(i)] = n
	}
	return out
}

func bucketLabel(i int) string {
	label := ""
	for _, part := range []struct {
		bit  int
		name string
	}{{1, "qc"}, {2, "cloud"}, {4, "nonwater"}} {
		if i&part.bit != 0 {
			if label != "" {
				label += "+"
			}
			label += part.name
		}
	}
	if label == "" {
		return "clear"
	}
	return label
}

// Stats summarizes the retained temperatures of a scene.
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
	Valid  int     `json:"validPixels"`
	Total  int     `json:"totalPixels"`
}

// Summarize computes statistics over values. total is the scene pixel count.
// StdDev is the sample standard deviation (n-1), 0 for fewer than two values.
// With no values every moment is NaN.
func Summarize(values []float64, total int) Stats {
	s := Stats{Valid: len(values), Total: total}
	if len(values) == 0 {
		nan := math.NaN()
		s.Min, s.Max, s.Mean, s.Median, s.StdDev = nan, nan, nan, nan, nan
		return s
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	s.Mean = sum / float64(len(sorted))

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		s.Median = sorted[mid]
	}

	if len(sorted) > 1 {
		sq := 0.0
		for _, v := range sorted {
			d := v - s.Mean
			sq += d * d
		}
		s.StdDev = math.Sqrt(sq / float64(len(sorted)-1))
	}
	return s
}
