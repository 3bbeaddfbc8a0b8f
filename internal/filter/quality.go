// Package filter implements per-pixel quality, cloud and water filtering for
// land surface temperature scenes, plus the summary statistics computed over
// the retained pixels.
package filter

import "math"

// FillValue is the quality layer fill sentinel (no data produced).
const FillValue = 65535

// mandatoryQAMask selects the two mandatory QA bits of the quality code:
// 0 = perfect, 1 = nominal, 2 = cloud detected, 3 = pixel not produced.
const mandatoryQAMask = 0b11

// QualityInvalidCode reports whether a quality code rejects the pixel.
// Acceptance depends only on the fill sentinel and the masked low two bits;
// every other bit of the code is ignored.
func QualityInvalidCode(code uint16) bool {
	if code == FillValue {
		return true
	}
	return code&mandatoryQAMask > 1
}

// QualityInvalid is QualityInvalidCode for a decoded raster sample.
// Missing (NaN) or out-of-range samples are invalid.
func QualityInvalid(v float64) bool {
	if math.IsNaN(v) || v < 0 || v > math.MaxUint16 {
		return true
	}
	return QualityInvalidCode(uint16(v))
}

// IsCloud reports whether a cloud mask sample flags the pixel as cloudy.
func IsCloud(v float64) bool {
	return v == 1
}

// IsWater reports whether a water mask sample flags the pixel as water.
func IsWater(v float64) bool {
	return v == 1
}
