package alert

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/ledger"
)

// MaxLag bounds the monthly lags tried in both directions.
const MaxLag = 4

// StationMean averages, month by month, the values of the given stations,
// ignoring missing ones. Months where no station reports are NaN.
func StationMean(stations []string, series ledger.Series) map[domain.Slot]float64 {
	sums := make(map[domain.Slot]float64)
	counts := make(map[domain.Slot]int)
	for _, st := range stations {
		for m, v := range series[st] {
			if _, ok := counts[m]; !ok {
				counts[m] = 0
			}
			if math.IsNaN(v) {
				continue
			}
			sums[m] += v
			counts[m]++
		}
	}
	out := make(map[domain.Slot]float64, len(counts))
	for m, n := range counts {
		if n == 0 {
			out[m] = math.NaN()
			continue
		}
		out[m] = sums[m] / float64(n)
	}
	return out
}

// Correlate computes the lagged Pearson correlation between a sub-area's
// precipitation index and its VHI statistics. The VHI rows fix the months
// compared; the precipitation series must cover the last of them.
//
// Gaps are linearly interpolated and the leading ones back-filled. The
// shifted VHI series wraps around so every lag uses all months. RMax is the
// best correlation over lags -MaxLag..MaxLag, LagMax the lag where it occurs
// and PValue its two-sided significance.
func Correlate(location string, precip map[domain.Slot]float64, vhi []domain.StatRow) (domain.RScore, error) {
	out := domain.RScore{
		Location:  location,
		RMax:      math.NaN(),
		PValue:    math.NaN(),
		QScoreSPI: math.NaN(),
		QScoreVHI: math.NaN(),
	}
	if len(precip) == 0 || len(vhi) == 0 {
		return out, nil
	}
	rows := append([]domain.StatRow(nil), vhi...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	last := domain.SlotOf(rows[len(rows)-1].Date)
	if _, ok := precip[last]; !ok {
		return out, fmt.Errorf("correlate %s: precipitation series has no value for %s", location, last)
	}

	n := len(rows)
	x := make([]float64, n)
	y := make([]float64, n)
	missing := 0
	qsum := 0.0
	for i, r := range rows {
		v, ok := precip[domain.SlotOf(r.Date)]
		if !ok {
			v = math.NaN()
		}
		if math.IsNaN(v) {
			missing++
		}
		x[i] = v
		y[i] = r.Mean
		qsum += r.QScore
	}
	out.QScoreSPI = 1 - float64(missing)/float64(n)
	if !fill(y) {
		return out, nil
	}
	out.QScoreVHI = qsum / float64(n)
	if !fill(x) {
		return out, nil
	}

	best, bestLag := math.NaN(), 0
	for lag := -MaxLag; lag <= MaxLag; lag++ {
		r := stat.Correlation(x, roll(y, lag), nil)
		if math.IsNaN(r) {
			continue
		}
		if math.IsNaN(best) || r > best {
			best, bestLag = r, lag
		}
	}
	if math.IsNaN(best) {
		return out, nil
	}
	out.RMax = math.Round(best*100) / 100
	out.LagMax = bestLag
	out.PValue = pearsonP(best, n)
	return out, nil
}

// roll shifts y by lag positions, wrapping values pushed off one end back
// in at the other.
func roll(y []float64, lag int) []float64 {
	n := len(y)
	out := make([]float64, n)
	for i := range out {
		out[i] = y[((i-lag)%n+n)%n]
	}
	return out
}

// fill interpolates NaN gaps linearly between valid neighbours, repeats the
// last valid value forward and back-fills leading gaps. It reports false
// when v holds no valid value.
func fill(v []float64) bool {
	prev := -1
	for i, x := range v {
		if math.IsNaN(x) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (x - v[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				v[j] = v[prev] + step*float64(j-prev)
			}
		}
		if prev < 0 {
			for j := 0; j < i; j++ {
				v[j] = x
			}
		}
		prev = i
	}
	if prev < 0 {
		return false
	}
	for j := prev + 1; j < len(v); j++ {
		v[j] = v[prev]
	}
	return true
}

// pearsonP is the two-sided p-value of correlation r over n samples under
// the Student t distribution with n-2 degrees of freedom.
func pearsonP(r float64, n int) float64 {
	if n <= 2 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t))
}
