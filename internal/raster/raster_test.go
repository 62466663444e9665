package raster_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/raster"
)

var nan = math.NaN()

func seq(w, h int) raster.Grid {
	return raster.Build(w, h, raster.GeoRef{Transform: [6]float64{100, 10, 0, 500, 0, -10}}, func(i int) float64 {
		return float64(i)
	})
}

func TestNewGridValidatesShape(t *testing.T) {
	_, err := raster.NewGrid(2, 2, []float64{1, 2, 3}, raster.GeoRef{})
	require.Error(t, err)

	data := []float64{1, 2, 3, 4}
	g, err := raster.NewGrid(2, 2, data, raster.GeoRef{})
	require.NoError(t, err)
	data[0] = 99
	assert.Equal(t, 1.0, g.At(0), "grid must not alias caller data")
}

func TestTiles(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		wins, err := raster.Tiles(5, 3, 1)
		require.NoError(t, err)
		assert.Equal(t, []raster.Window{{W: 5, H: 3}}, wins)
	})

	t.Run("quadrants odd size", func(t *testing.T) {
		wins, err := raster.Tiles(5, 3, 4)
		require.NoError(t, err)
		assert.Equal(t, []raster.Window{
			{X: 0, Y: 0, W: 2, H: 1},
			{X: 2, Y: 0, W: 3, H: 1},
			{X: 0, Y: 1, W: 2, H: 2},
			{X: 2, Y: 1, W: 3, H: 2},
		}, wins)
	})

	t.Run("degenerate width", func(t *testing.T) {
		wins, err := raster.Tiles(1, 4, 4)
		require.NoError(t, err)
		assert.Len(t, wins, 2)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := raster.Tiles(4, 4, 3)
		assert.Error(t, err)
	})
}

func TestWindowAndMosaicRoundTrip(t *testing.T) {
	g := seq(5, 3)
	wins, err := raster.Tiles(5, 3, 4)
	require.NoError(t, err)

	m := raster.NewMosaic(5, 3, g.Ref())
	for _, w := range wins {
		tile, err := g.Window(w)
		require.NoError(t, err)
		require.NoError(t, m.Paste(w, tile))
	}
	assert.True(t, g.Equal(m.Grid()))
}

func TestWindowShiftsGeoRef(t *testing.T) {
	g := seq(4, 4)
	sub, err := g.Window(raster.Window{X: 2, Y: 1, W: 2, H: 2})
	require.NoError(t, err)
	assert.Equal(t, 120.0, sub.Ref().Transform[0])
	assert.Equal(t, 490.0, sub.Ref().Transform[3])
	assert.Equal(t, 6.0, sub.AtXY(0, 0))
}

func TestFromSingleBand(t *testing.T) {
	v := raster.MustGrid(3, 1, []float64{0.2, nan, 0.7}, raster.GeoRef{})
	s := raster.FromSingleBand(v)
	assert.Equal(t, []float64{1, 0, 1}, s.Score.Values())
}

func TestMemStore(t *testing.T) {
	st := raster.NewMemStore()

	_, err := st.Load("archive/MAI/MONTH/MAI_202403M.tif")
	var missing *domain.MissingProductError
	require.True(t, errors.As(err, &missing))

	s := raster.FromSingleBand(seq(4, 2))
	require.NoError(t, st.Save("archive/MAI/MONTH/MAI_202403M.tif", s))
	require.NoError(t, st.Save("archive/MAI/MONTH/MAI_202303M.tif", s))
	require.NoError(t, st.Save("archive/VHI/MONTH/VHI_202403M.tif", s))

	paths, err := st.List("archive/MAI/MONTH/MAI_*03M.tif")
	require.NoError(t, err)
	assert.Equal(t, []string{"archive/MAI/MONTH/MAI_202303M.tif", "archive/MAI/MONTH/MAI_202403M.tif"}, paths)

	win, err := st.LoadWindow("archive/MAI/MONTH/MAI_202403M.tif", raster.Window{X: 1, Y: 1, W: 2, H: 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, win.Value.Values())
}
