// Package raster holds georeferenced float grids, their quality-scored pairs,
// pixel windows, and the store abstraction the index calculators read from.
package raster

import (
	"fmt"
	"math"
)

// GeoRef locates a grid: a GDAL-style affine transform and projection WKT.
type GeoRef struct {
	Transform  [6]float64
	Projection string
}

// Offset returns the georeference of the sub-grid starting at pixel (x, y).
func (g GeoRef) Offset(x, y int) GeoRef {
	t := g.Transform
	t[0] += float64(x)*t[1] + float64(y)*t[2]
	t[3] += float64(x)*t[4] + float64(y)*t[5]
	return GeoRef{Transform: t, Projection: g.Projection}
}

// PixelCenter returns the map coordinates of the centre of pixel (x, y).
func (g GeoRef) PixelCenter(x, y int) (float64, float64) {
	t := g.Transform
	px, py := float64(x)+0.5, float64(y)+0.5
	return t[0] + px*t[1] + py*t[2], t[3] + px*t[4] + py*t[5]
}

// Grid is an immutable 2D float64 raster. NaN marks nodata.
type Grid struct {
	w, h int
	data []float64
	ref  GeoRef
}

// NewGrid copies data (row-major, len w*h) into a new grid.
func NewGrid(w, h int, data []float64, ref GeoRef) (Grid, error) {
	if w <= 0 || h <= 0 {
		return Grid{}, fmt.Errorf("invalid grid size %dx%d", w, h)
	}
	if len(data) != w*h {
		return Grid{}, fmt.Errorf("grid %dx%d needs %d values, got %d", w, h, w*h, len(data))
	}
	cp := make([]float64, len(data))
	copy(cp, data)
	return Grid{w: w, h: h, data: cp, ref: ref}, nil
}

// MustGrid is NewGrid for literals known to be well formed.
func MustGrid(w, h int, data []float64, ref GeoRef) Grid {
	g, err := NewGrid(w, h, data, ref)
	if err != nil {
		panic(err)
	}
	return g
}

// Filled returns a w x h grid with every pixel set to v.
func Filled(w, h int, v float64, ref GeoRef) Grid {
	data := make([]float64, w*h)
	for i := range data {
		data[i] = v
	}
	return Grid{w: w, h: h, data: data, ref: ref}
}

// Build constructs a grid by evaluating fn at each index. It is the
// allocation path for derived grids and skips the defensive copy.
func Build(w, h int, ref GeoRef, fn func(i int) float64) Grid {
	data := make([]float64, w*h)
	for i := range data {
		data[i] = fn(i)
	}
	return Grid{w: w, h: h, data: data, ref: ref}
}

func (g Grid) Width() int { return g.w }
func (g Grid) Height() int { return g.h }
func (g Grid) Len() int { return len(g.data) }
func (g Grid) Ref() GeoRef { return g.ref }
func (g Grid) IsZero() bool { return g.data == nil }
func (g Grid) At(i int) float64 { return g.data[i] }

// AtXY returns the value at column x, row y.
func (g Grid) AtXY(x, y int) float64 { return g.data[y*g.w+x] }

// Values returns a copy of the pixel values.
func (g Grid) Values() []float64 {
	out := make([]float64, len(g.data))
	copy(out, g.data)
	return out
}

// SameShape reports whether g and o have identical dimensions.
func (g Grid) SameShape(o Grid) bool { return g.w == o.w && g.h == o.h }

// Window extracts the sub-grid covered by win.
func (g Grid) Window(win Window) (Grid, error) {
	if !win.Within(g.w, g.h) {
		return Grid{}, fmt.Errorf("window %v outside %dx%d grid", win, g.w, g.h)
	}
	data := make([]float64, win.W*win.H)
	for y := 0; y < win.H; y++ {
		copy(data[y*win.W:(y+1)*win.W], g.data[(win.Y+y)*g.w+win.X:(win.Y+y)*g.w+win.X+win.W])
	}
	return Grid{w: win.W, h: win.H, data: data, ref: g.ref.Offset(win.X, win.Y)}, nil
}

// ValidCount returns the number of non-NaN pixels.
func (g Grid) ValidCount() int {
	n := 0
	for _, v := range g.data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Equal reports whether g and o hold identical values, treating NaN as equal
// to NaN.
func (g Grid) Equal(o Grid) bool {
	if !g.SameShape(o) {
		return false
	}
	for i, v := range g.data {
		w := o.data[i]
		if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
			return false
		}
	}
	return true
}

// Mosaic pastes tiles into a w x h grid at their window offsets. Pixels not
// covered by any tile are NaN.
type Mosaic struct {
	w, h int
	data []float64
	ref  GeoRef
}

// NewMosaic returns an all-NaN canvas.
func NewMosaic(w, h int, ref GeoRef) *Mosaic {
	return &Mosaic{w: w, h: h, data: Filled(w, h, math.NaN(), ref).data, ref: ref}
}

// Paste copies tile into the canvas at win. Concurrent calls with disjoint
// windows are safe.
func (m *Mosaic) Paste(win Window, tile Grid) error {
	if tile.w != win.W || tile.h != win.H || !win.Within(m.w, m.h) {
		return fmt.Errorf("tile %dx%d does not fit window %v", tile.w, tile.h, win)
	}
	for y := 0; y < win.H; y++ {
		copy(m.data[(win.Y+y)*m.w+win.X:(win.Y+y)*m.w+win.X+win.W], tile.data[y*win.W:(y+1)*win.W])
	}
	return nil
}

// Grid freezes the canvas.
func (m *Mosaic) Grid() Grid {
	return Grid{w: m.w, h: m.h, data: m.data, ref: m.ref}
}
