// Package classify reduces index values to drought categories.
package classify

import (
	"fmt"
	"math"

	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/raster"
)

// Thresholds at or below which a value is classified as drought.
const (
	ThresholdSPI  = -1.0
	ThresholdSPEI = -1.0
	ThresholdMAI  = -1.0
	ThresholdVHI  = 0.3
)

// Threshold returns the drought threshold of a named index.
func Threshold(name string) (float64, error) {
	switch name {
	case "SPI":
		return ThresholdSPI, nil
	case "SPEI":
		return ThresholdSPEI, nil
	case "MAI":
		return ThresholdMAI, nil
	case "VHI":
		return ThresholdVHI, nil
	}
	return 0, fmt.Errorf("no drought threshold for index %q", name)
}

// Value classifies one value: NoData if NaN, NoDrought above thr, Drought at
// or below.
func Value(x, thr float64) domain.Category {
	switch {
	case math.IsNaN(x):
		return domain.NoData
	case x > thr:
		return domain.NoDrought
	default:
		return domain.Drought
	}
}

// Grid classifies every pixel of g.
func Grid(g raster.Grid, thr float64) []domain.Category {
	out := make([]domain.Category, g.Len())
	for i := range out {
		out[i] = Value(g.At(i), thr)
	}
	return out
}
