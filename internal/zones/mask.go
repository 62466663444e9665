package zones

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/couchcryptid/drought-monitor/internal/raster"
)

// Mask assigns each pixel of a grid the id of the sub-area containing its
// centre, or 0.
type Mask struct {
	Shape raster.Shape
	IDs   []int
}

// NewMask validates ids against shape.
func NewMask(shape raster.Shape, ids []int) (Mask, error) {
	if len(ids) != shape.W*shape.H {
		return Mask{}, fmt.Errorf("mask %dx%d needs %d ids, got %d", shape.W, shape.H, shape.W*shape.H, len(ids))
	}
	return Mask{Shape: shape, IDs: ids}, nil
}

// MaskFromGrid reads ids stored as a float grid. NaN and non-positive values
// map to 0.
func MaskFromGrid(g raster.Grid) Mask {
	ids := make([]int, g.Len())
	for i := range ids {
		if v := g.At(i); !math.IsNaN(v) && v > 0 {
			ids[i] = int(v)
		}
	}
	return Mask{Shape: raster.Shape{W: g.Width(), H: g.Height(), Ref: g.Ref()}, IDs: ids}
}

// Grid renders the mask as a float grid for storage.
func (m Mask) Grid() raster.Grid {
	return raster.Build(m.Shape.W, m.Shape.H, m.Shape.Ref, func(i int) float64 { return float64(m.IDs[i]) })
}

// Fits reports whether the mask is aligned with g's dimensions.
func (m Mask) Fits(g raster.Grid) bool {
	return m.Shape.W == g.Width() && m.Shape.H == g.Height()
}

// Pixels returns the pixel indices of each zone id.
func (m Mask) Pixels() map[int][]int {
	out := make(map[int][]int)
	for i, id := range m.IDs {
		if id != 0 {
			out[id] = append(out[id], i)
		}
	}
	return out
}

// Rasterizer burns sub-area ids into a grid of the given shape.
type Rasterizer interface {
	Rasterize(areas []SubArea, shape raster.Shape) (Mask, error)
}

// PlanarRasterizer tests each pixel centre against the polygons in map
// coordinates. Later areas overwrite earlier ones where they overlap.
type PlanarRasterizer struct{}

func (PlanarRasterizer) Rasterize(areas []SubArea, shape raster.Shape) (Mask, error) {
	ids := make([]int, shape.W*shape.H)
	for _, a := range areas {
		bound := a.Geometry.Bound()
		for y := 0; y < shape.H; y++ {
			for x := 0; x < shape.W; x++ {
				cx, cy := shape.Ref.PixelCenter(x, y)
				p := orb.Point{cx, cy}
				if !bound.Contains(p) {
					continue
				}
				if contains(a.Geometry, p) {
					ids[y*shape.W+x] = a.ID
				}
			}
		}
	}
	return NewMask(shape, ids)
}

func contains(g orb.Geometry, p orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, p)
	}
	return false
}
