package period

import (
	"math"
	"sort"

	"github.com/couchcryptid/drought-monitor/internal/archive"
	"github.com/couchcryptid/drought-monitor/internal/domain"
)

// DailySource expects one product per day of the unit (ASCAT soil water).
type DailySource struct {
	Product string
	Archive archive.Archive
	Lister  archive.Lister
}

func (s DailySource) Name() string          { return s.Product }
func (s DailySource) Kind() domain.SlotKind { return domain.Monthly }

func (s DailySource) Count(unit domain.Slot) (int, int, error) {
	n, err := s.Archive.DailyCount(s.Lister, s.Product, unit)
	return n, unit.Days(), err
}

// CompositeSource expects one composite per tile per unit. An empty tile
// list means a single territory-wide product.
type CompositeSource struct {
	Product  string
	Tiles    []string
	UnitKind domain.SlotKind
	Archive  archive.Archive
	Lister   archive.Lister
}

func (s CompositeSource) Name() string          { return s.Product }
func (s CompositeSource) Kind() domain.SlotKind { return s.UnitKind }

func (s CompositeSource) Count(unit domain.Slot) (int, int, error) {
	tiles := s.Tiles
	if len(tiles) == 0 {
		tiles = []string{""}
	}
	avail := 0
	for _, t := range tiles {
		paths, err := s.Lister.List(s.Archive.Path(s.Product, t, unit))
		if err != nil {
			return 0, 0, err
		}
		if len(paths) > 0 {
			avail++
		}
	}
	return avail, len(tiles), nil
}

// StationSource expects a value from every listed station per month. Series
// maps station name to monthly values; NaN counts as missing.
type StationSource struct {
	Index    string
	Stations []string
	Series   map[string]map[domain.Slot]float64
}

func (s StationSource) Name() string          { return s.Index }
func (s StationSource) Kind() domain.SlotKind { return domain.Monthly }

// Count returns *domain.MissingProductError when a listed station never
// appears in the feed.
func (s StationSource) Count(unit domain.Slot) (int, int, error) {
	if missing := s.Missing(); len(missing) > 0 {
		return 0, 0, &domain.MissingProductError{Product: s.Index + " station " + missing[0]}
	}
	avail := 0
	for _, st := range s.Stations {
		if v, ok := s.Series[st][unit]; ok && !math.IsNaN(v) {
			avail++
		}
	}
	return avail, len(s.Stations), nil
}

// Missing lists expected stations absent from the feed, sorted.
func (s StationSource) Missing() []string {
	var out []string
	for _, st := range s.Stations {
		if _, ok := s.Series[st]; !ok {
			out = append(out, st)
		}
	}
	sort.Strings(out)
	return out
}
