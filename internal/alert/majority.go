package alert

import "github.com/couchcryptid/drought-monitor/internal/domain"

// tally counts categories, indexed by category + 1.
type tally [3]int

func (t *tally) add(c domain.Category) { t[int(c)+1]++ }

func (t tally) n(c domain.Category) int { return t[int(c)+1] }

func (t tally) total() int { return t[0] + t[1] + t[2] }

func (t tally) plus(o tally) tally {
	return tally{t[0] + o[0], t[1] + o[1], t[2] + o[2]}
}

// StationMajority reduces the categories of the stations of one sub-area
// for one month.
//
// No stations is NoData. Missing data next to stations that all report no
// drought is NoData rather than NoDrought. Otherwise the most frequent
// category wins; a Drought/NoDrought tie is NoDrought and any tie involving
// NoData is NoData.
func StationMajority(cats []domain.Category) domain.Category {
	var t tally
	for _, c := range cats {
		t.add(c)
	}
	if t.total() == 0 {
		return domain.NoData
	}
	if t.n(domain.NoData) > 0 && t.n(domain.Drought) == 0 {
		return domain.NoData
	}
	nd, ok, dr := t.n(domain.NoData), t.n(domain.NoDrought), t.n(domain.Drought)
	top := max(nd, ok, dr)
	switch {
	case nd == top:
		return domain.NoData
	case ok == top:
		return domain.NoDrought
	default:
		return domain.Drought
	}
}

// pixelMajority returns the most frequent category. Ties resolve Drought,
// then NoDrought, then NoData. An empty tally is NoData.
func pixelMajority(t tally) domain.Category {
	if t.total() == 0 {
		return domain.NoData
	}
	best := domain.Drought
	for _, c := range []domain.Category{domain.NoDrought, domain.NoData} {
		if t.n(c) > t.n(best) {
			best = c
		}
	}
	return best
}

func tallyPixels(cats []domain.Category, px []int) tally {
	var t tally
	for _, i := range px {
		t.add(cats[i])
	}
	return t
}

// RasterCategory classifies a sub-area from per-pixel categories of the
// current month and, when available, of the previous month (prev may be
// nil). It returns the current-month majority and the effective category
// used for the alert.
//
// A current-month Drought majority stands. Otherwise the previous month's
// majority is used; if that is not Drought either but drought pixels appear
// in either month, the available months are pooled and Drought is forced
// when drought pixels exceed half the size of the pooled majority class.
// Without a previous month the pool is the current month alone.
func RasterCategory(px []int, cur, prev []domain.Category) (current, effective domain.Category) {
	now := tallyPixels(cur, px)
	current = pixelMajority(now)
	if current == domain.Drought {
		return current, current
	}
	effective = current
	var before tally
	if prev != nil {
		before = tallyPixels(prev, px)
		effective = pixelMajority(before)
		if effective == domain.Drought {
			return current, effective
		}
	}
	if now.n(domain.Drought) == 0 && before.n(domain.Drought) == 0 {
		return current, effective
	}
	pooled := now.plus(before)
	effective = pixelMajority(pooled)
	if effective != domain.Drought {
		p := float64(pooled.n(domain.Drought)) / float64(pooled.n(effective))
		if p > 0.5 {
			effective = domain.Drought
		}
	}
	return current, effective
}
