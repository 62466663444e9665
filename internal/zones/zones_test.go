package zones_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/drought-monitor/internal/raster"
	"github.com/couchcryptid/drought-monitor/internal/zones"
)

// Two unit-square communes side by side on a 4x2 grid of 0.5 pixels.
const communes = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"nom": "Ouest"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
    {"type": "Feature", "properties": {"nom": "Est"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[1,0],[2,0],[2,1],[1,1],[1,0]]]]}},
    {"type": "Feature", "properties": {"nom": "Loin"},
     "geometry": {"type": "Polygon", "coordinates": [[[10,10],[11,10],[11,11],[10,11],[10,10]]]}}
  ]
}`

var grid = raster.Shape{W: 4, H: 2, Ref: raster.GeoRef{Transform: [6]float64{0, 0.5, 0, 1, 0, -0.5}}}

func TestLoadGeoJSONAssignsSortedIDs(t *testing.T) {
	areas, err := zones.LoadGeoJSON([]byte(communes), "")
	require.NoError(t, err)
	require.Len(t, areas, 3)
	assert.Equal(t, "Est", areas[0].Name)
	assert.Equal(t, 1, areas[0].ID)
	assert.Equal(t, "Loin", areas[1].Name)
	assert.Equal(t, "Ouest", areas[2].Name)
	assert.Equal(t, 3, areas[2].ID)

	b, err := areas[0].WKB()
	require.NoError(t, err)
	assert.NotEmpty(t, b)
}

func TestLoadGeoJSONErrors(t *testing.T) {
	_, err := zones.LoadGeoJSON([]byte(communes), "name")
	assert.Error(t, err, "missing key property")

	_, err = zones.LoadGeoJSON([]byte(`{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"nom":"P"},"geometry":{"type":"Point","coordinates":[0,0]}}]}`), "")
	assert.Error(t, err, "points are not sub-areas")
}

func TestPlanarRasterizer(t *testing.T) {
	areas, err := zones.LoadGeoJSON([]byte(communes), "nom")
	require.NoError(t, err)

	m, err := zones.PlanarRasterizer{}.Rasterize(areas, grid)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1, 1, 3, 3, 1, 1}, m.IDs)

	px := m.Pixels()
	assert.Len(t, px[1], 4)
	assert.Empty(t, px[2])

	back := zones.MaskFromGrid(m.Grid())
	assert.Equal(t, m.IDs, back.IDs)
}

func TestStats(t *testing.T) {
	areas, err := zones.LoadGeoJSON([]byte(communes), "nom")
	require.NoError(t, err)
	m, err := zones.PlanarRasterizer{}.Rasterize(areas, grid)
	require.NoError(t, err)

	nan := math.NaN()
	s := raster.Scored{
		Value: raster.MustGrid(4, 2, []float64{1, 3, nan, nan, 1, 3, nan, nan}, grid.Ref),
		Score: raster.MustGrid(4, 2, []float64{1, 1, 0, 0, 0.5, 0.5, 0, 0}, grid.Ref),
	}
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows, err := zones.Stats(s, m, areas, "Territoire", date)
	require.NoError(t, err)
	require.Len(t, rows, 3, "territory, Est, Ouest; Loin has no pixels")

	assert.Equal(t, "Territoire", rows[0].Location)
	assert.Equal(t, 2.0, rows[0].Mean)
	assert.Equal(t, 0.375, rows[0].QScore)

	assert.Equal(t, "Est", rows[1].Location)
	assert.True(t, math.IsNaN(rows[1].Mean), "all-NaN zone has undefined stats")
	assert.Equal(t, 0.0, rows[1].QScore)

	assert.Equal(t, "Ouest", rows[2].Location)
	assert.Equal(t, 1.0, rows[2].Min)
	assert.Equal(t, 3.0, rows[2].Max)
	assert.Equal(t, 1.0, rows[2].Std)
	assert.Equal(t, 0.75, rows[2].QScore)
	assert.Equal(t, date, rows[2].Date)
}
