package classify_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/drought-monitor/internal/classify"
	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/raster"
)

func TestValue(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		thr  float64
		want domain.Category
	}{
		{"NaN is no data", math.NaN(), classify.ThresholdSPI, domain.NoData},
		{"above threshold", -0.5, classify.ThresholdSPI, domain.NoDrought},
		{"at threshold is drought", -1, classify.ThresholdSPI, domain.Drought},
		{"below threshold", -2.3, classify.ThresholdMAI, domain.Drought},
		{"VHI healthy", 0.31, classify.ThresholdVHI, domain.NoDrought},
		{"VHI stressed", 0.3, classify.ThresholdVHI, domain.Drought},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify.Value(tt.x, tt.thr))
		})
	}
}

func TestGrid(t *testing.T) {
	g := raster.MustGrid(4, 1, []float64{0.1, 0.5, math.NaN(), 0.3}, raster.GeoRef{})
	assert.Equal(t, []domain.Category{domain.Drought, domain.NoDrought, domain.NoData, domain.Drought},
		classify.Grid(g, classify.ThresholdVHI))
}

func TestThreshold(t *testing.T) {
	thr, err := classify.Threshold("VHI")
	require.NoError(t, err)
	assert.Equal(t, 0.3, thr)

	_, err = classify.Threshold("NDVI")
	assert.Error(t, err)
}
