package geotiff

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/drought-monitor/internal/raster"
	"github.com/couchcryptid/drought-monitor/internal/zones"
)

// Rasterizer burns sub-area polygons into an in-memory GDAL dataset aligned
// with the target grid. Later areas overwrite earlier ones.
type Rasterizer struct{}

// NewRasterizer registers the GDAL drivers once and returns a Rasterizer.
func NewRasterizer() Rasterizer {
	registerOnce.Do(godal.RegisterAll)
	return Rasterizer{}
}

func (Rasterizer) Rasterize(areas []zones.SubArea, shape raster.Shape) (zones.Mask, error) {
	ds, err := godal.Create(godal.Memory, "", 1, godal.Float64, shape.W, shape.H)
	if err != nil {
		return zones.Mask{}, fmt.Errorf("create mask dataset: %w", err)
	}
	defer ds.Close()
	if err := ds.SetGeoTransform(shape.Ref.Transform); err != nil {
		return zones.Mask{}, fmt.Errorf("set mask geotransform: %w", err)
	}

	for _, a := range areas {
		wkb, err := a.WKB()
		if err != nil {
			return zones.Mask{}, err
		}
		g, err := godal.NewGeometryFromWKB(wkb, nil)
		if err != nil {
			return zones.Mask{}, fmt.Errorf("sub-area %s geometry: %w", a.Name, err)
		}
		err = ds.RasterizeGeometry(g, godal.Values(float64(a.ID)))
		g.Close()
		if err != nil {
			return zones.Mask{}, fmt.Errorf("rasterize sub-area %s: %w", a.Name, err)
		}
	}

	buf := make([]float64, shape.W*shape.H)
	if err := ds.Bands()[0].Read(0, 0, buf, shape.W, shape.H); err != nil {
		return zones.Mask{}, fmt.Errorf("read mask: %w", err)
	}
	ids := make([]int, len(buf))
	for i, v := range buf {
		if !math.IsNaN(v) && v > 0 {
			ids[i] = int(v)
		}
	}
	return zones.NewMask(shape, ids)
}
