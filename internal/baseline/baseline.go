// Package baseline builds per-pixel historical statistics from the
// same-calendar-slot rasters of earlier years.
package baseline

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/raster"
)

// Kind selects which statistics a baseline holds.
type Kind int

const (
	MeanStd Kind = iota
	MinMax
)

func (k Kind) String() string {
	if k == MinMax {
		return "minmax"
	}
	return "meanstd"
}

// Baseline is the historical reference for one calendar slot. For MeanStd,
// A is the mean and B the population standard deviation; for MinMax, A is
// the minimum and B the maximum. Pixels with no valid history are NaN.
type Baseline struct {
	Kind        Kind
	A, B        raster.Grid
	QScoreHisto raster.Grid
	Years       int
}

// Mean returns the mean grid of a MeanStd baseline.
func (b Baseline) Mean() raster.Grid { return b.A }

// Std returns the standard deviation grid of a MeanStd baseline.
func (b Baseline) Std() raster.Grid { return b.B }

// Min returns the minimum grid of a MinMax baseline.
func (b Baseline) Min() raster.Grid { return b.A }

// Max returns the maximum grid of a MinMax baseline.
func (b Baseline) Max() raster.Grid { return b.B }

// CountScore maps a valid-observation count to [0, 1].
func CountScore(count, maxObs float64) float64 {
	if math.IsNaN(count) || count <= 0 {
		return 0
	}
	return math.Min(count/maxObs, 1)
}

// Build computes a baseline of kind from historical composites (value band
// plus valid-count band). maxObs is the count at which a composite is
// considered fully observed. An empty history returns domain.ErrSingleYear.
func Build(kind Kind, historical []raster.Scored, maxObs float64) (Baseline, error) {
	if len(historical) == 0 {
		return Baseline{}, domain.ErrSingleYear
	}
	first := historical[0].Value
	for i, h := range historical {
		if !h.Value.SameShape(first) || !h.Score.SameShape(first) {
			return Baseline{}, fmt.Errorf("historical raster %d: shape %dx%d differs from %dx%d",
				i, h.Value.Width(), h.Value.Height(), first.Width(), first.Height())
		}
	}

	n := first.Len()
	a := make([]float64, n)
	b := make([]float64, n)
	q := make([]float64, n)
	buf := make([]float64, 0, len(historical))
	for px := 0; px < n; px++ {
		buf = buf[:0]
		qsum := 0.0
		for _, h := range historical {
			if v := h.Value.At(px); !math.IsNaN(v) {
				buf = append(buf, v)
			}
			qsum += CountScore(h.Score.At(px), maxObs)
		}
		q[px] = qsum / float64(len(historical))
		if len(buf) == 0 {
			a[px], b[px] = math.NaN(), math.NaN()
			continue
		}
		switch kind {
		case MinMax:
			a[px], b[px] = floats.Min(buf), floats.Max(buf)
		default:
			a[px], b[px] = stat.PopMeanStdDev(buf, nil)
		}
	}

	ref := first.Ref()
	w, h := first.Width(), first.Height()
	return Baseline{
		Kind:        kind,
		A:           raster.MustGrid(w, h, a, ref),
		B:           raster.MustGrid(w, h, b, ref),
		QScoreHisto: raster.MustGrid(w, h, q, ref),
		Years:       len(historical),
	}, nil
}
