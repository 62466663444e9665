// Package index computes the anomaly and condition indices (MAI, TCI, VCI,
// VAI) from historical baselines, fuses them into VHI, and builds the
// composites they start from.
package index

import (
	"fmt"
	"math"

	"github.com/couchcryptid/drought-monitor/internal/baseline"
	"github.com/couchcryptid/drought-monitor/internal/raster"
)

// Observation ceilings used to turn valid counts into a quality score.
const (
	MaxObsMonth  = 30
	MaxObsDecade = 10
)

// DefaultAlpha weights VCI against TCI in VHI.
const DefaultAlpha = 0.5

// quality combines the historical qscore with the current composite count.
// Pixels with no current observation are forced to 0.
func quality(base baseline.Baseline, cur raster.Scored, maxObs float64) raster.Grid {
	return raster.Build(cur.Width(), cur.Height(), cur.Value.Ref(), func(i int) float64 {
		count := cur.Score.At(i)
		if math.IsNaN(count) || count <= 0 {
			return 0
		}
		return (base.QScoreHisto.At(i) + baseline.CountScore(count, maxObs)) / 2
	})
}

func checkShape(base baseline.Baseline, cur raster.Scored) error {
	if !base.A.SameShape(cur.Value) {
		return fmt.Errorf("baseline %dx%d does not match composite %dx%d",
			base.A.Width(), base.A.Height(), cur.Width(), cur.Height())
	}
	return nil
}

// ZScore computes (X - mean) / std. Pixels with zero or undefined std are NaN.
func ZScore(base baseline.Baseline, cur raster.Scored, maxObs float64) (raster.Scored, error) {
	if base.Kind != baseline.MeanStd {
		return raster.Scored{}, fmt.Errorf("z-score needs a %s baseline, got %s", baseline.MeanStd, base.Kind)
	}
	if err := checkShape(base, cur); err != nil {
		return raster.Scored{}, err
	}
	value := raster.Build(cur.Width(), cur.Height(), cur.Value.Ref(), func(i int) float64 {
		std := base.Std().At(i)
		if std == 0 || math.IsNaN(std) {
			return math.NaN()
		}
		return (cur.Value.At(i) - base.Mean().At(i)) / std
	})
	return raster.Scored{Value: value, Score: quality(base, cur, maxObs)}, nil
}

// Condition computes a min-max scaled index: (X - min)/(max - min), or
// (max - X)/(max - min) when inverted (TCI). Pixels where max == min are NaN.
func Condition(base baseline.Baseline, cur raster.Scored, maxObs float64, inverted bool) (raster.Scored, error) {
	if base.Kind != baseline.MinMax {
		return raster.Scored{}, fmt.Errorf("condition index needs a %s baseline, got %s", baseline.MinMax, base.Kind)
	}
	if err := checkShape(base, cur); err != nil {
		return raster.Scored{}, err
	}
	value := raster.Build(cur.Width(), cur.Height(), cur.Value.Ref(), func(i int) float64 {
		lo, hi := base.Min().At(i), base.Max().At(i)
		span := hi - lo
		if span == 0 || math.IsNaN(span) {
			return math.NaN()
		}
		if inverted {
			return (hi - cur.Value.At(i)) / span
		}
		return (cur.Value.At(i) - lo) / span
	})
	return raster.Scored{Value: value, Score: quality(base, cur, maxObs)}, nil
}

// ZeroUndefined forces the quality score to 0 wherever the value is NaN.
func ZeroUndefined(s raster.Scored) raster.Scored {
	score := raster.Build(s.Width(), s.Height(), s.Value.Ref(), func(i int) float64 {
		if math.IsNaN(s.Value.At(i)) {
			return 0
		}
		return s.Score.At(i)
	})
	return raster.Scored{Value: s.Value, Score: score}
}

// Fuse computes VHI = alpha*VCI + (1-alpha)*TCI with quality
// mean(Q_vci, Q_tci), forced to 0 where either input quality is 0.
func Fuse(vci, tci raster.Scored, alpha float64) (raster.Scored, error) {
	if !vci.Value.SameShape(tci.Value) {
		return raster.Scored{}, fmt.Errorf("VCI %dx%d and TCI %dx%d differ in shape",
			vci.Width(), vci.Height(), tci.Width(), tci.Height())
	}
	ref := vci.Value.Ref()
	value := raster.Build(vci.Width(), vci.Height(), ref, func(i int) float64 {
		return alpha*vci.Value.At(i) + (1-alpha)*tci.Value.At(i)
	})
	score := raster.Build(vci.Width(), vci.Height(), ref, func(i int) float64 {
		qv, qt := vci.Score.At(i), tci.Score.At(i)
		if qv == 0 || qt == 0 {
			return 0
		}
		return (qv + qt) / 2
	})
	return raster.Scored{Value: value, Score: score}, nil
}

// Composite reduces a stack of same-shape grids to their NaN-ignoring mean
// and the number of valid observations per pixel.
func Composite(stack []raster.Grid) (raster.Scored, error) {
	if len(stack) == 0 {
		return raster.Scored{}, fmt.Errorf("composite of empty stack")
	}
	first := stack[0]
	for i, g := range stack {
		if !g.SameShape(first) {
			return raster.Scored{}, fmt.Errorf("composite input %d: shape %dx%d differs from %dx%d",
				i, g.Width(), g.Height(), first.Width(), first.Height())
		}
	}
	counts := make([]float64, first.Len())
	value := raster.Build(first.Width(), first.Height(), first.Ref(), func(i int) float64 {
		sum, n := 0.0, 0
		for _, g := range stack {
			if v := g.At(i); !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		counts[i] = float64(n)
		if n == 0 {
			return math.NaN()
		}
		return sum / float64(n)
	})
	return raster.Scored{Value: value, Score: raster.MustGrid(first.Width(), first.Height(), counts, first.Ref())}, nil
}
