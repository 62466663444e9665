package raster

import (
	"fmt"
	"math"
)

// Scored pairs a value grid with a same-shape second band. For derived
// indices the band is a quality score in [0, 1]; for input composites it is
// the number of valid observations behind each pixel.
type Scored struct {
	Value Grid
	Score Grid
}

// NewScored validates that both bands share a shape.
func NewScored(value, score Grid) (Scored, error) {
	if !value.SameShape(score) {
		return Scored{}, fmt.Errorf("band shape mismatch: %dx%d vs %dx%d",
			value.Width(), value.Height(), score.Width(), score.Height())
	}
	return Scored{Value: value, Score: score}, nil
}

// FromSingleBand synthesizes the second band for legacy single-band inputs:
// 1 where the value is defined, 0 elsewhere.
func FromSingleBand(value Grid) Scored {
	score := Build(value.Width(), value.Height(), value.Ref(), func(i int) float64 {
		if math.IsNaN(value.At(i)) {
			return 0
		}
		return 1
	})
	return Scored{Value: value, Score: score}
}

func (s Scored) Width() int  { return s.Value.Width() }
func (s Scored) Height() int { return s.Value.Height() }

// Window restricts both bands to win.
func (s Scored) Window(win Window) (Scored, error) {
	v, err := s.Value.Window(win)
	if err != nil {
		return Scored{}, err
	}
	q, err := s.Score.Window(win)
	if err != nil {
		return Scored{}, err
	}
	return Scored{Value: v, Score: q}, nil
}

// Equal compares both bands, NaN-aware.
func (s Scored) Equal(o Scored) bool {
	return s.Value.Equal(o.Value) && s.Score.Equal(o.Score)
}
