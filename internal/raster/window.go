package raster

import "fmt"

// Window is a pixel rectangle: offset (X, Y), size (W, H).
type Window struct {
	X, Y, W, H int
}

// Full returns the window covering an entire w x h grid.
func Full(w, h int) Window { return Window{W: w, H: h} }

// Within reports whether the window lies inside a w x h grid and is non-empty.
func (win Window) Within(w, h int) bool {
	return win.X >= 0 && win.Y >= 0 && win.W > 0 && win.H > 0 &&
		win.X+win.W <= w && win.Y+win.H <= h
}

func (win Window) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", win.W, win.H, win.X, win.Y)
}

// Tiles splits a w x h grid into n windows. n is 1 (the full grid) or 4
// (quadrants split at floor(w/2), floor(h/2); the right and bottom quadrants
// take the odd remainder). Empty quadrants of degenerate grids are omitted.
func Tiles(w, h, n int) ([]Window, error) {
	switch n {
	case 1:
		return []Window{Full(w, h)}, nil
	case 4:
		w1, h1 := w/2, h/2
		cands := []Window{
			{X: 0, Y: 0, W: w1, H: h1},
			{X: w1, Y: 0, W: w - w1, H: h1},
			{X: 0, Y: h1, W: w1, H: h - h1},
			{X: w1, Y: h1, W: w - w1, H: h - h1},
		}
		out := make([]Window, 0, 4)
		for _, c := range cands {
			if c.W > 0 && c.H > 0 {
				out = append(out, c)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported tile count %d (want 1 or 4)", n)
	}
}
