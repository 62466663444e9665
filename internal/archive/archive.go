// Package archive maps products and slots to raster paths and lists the
// same-calendar-slot series baselines are built from.
//
// Layout:
//
//	{root}/{PRODUCT}/MONTH/{PRODUCT}_{YYYYMM}M.tif
//	{root}/{PRODUCT}/DECADE/{PRODUCT}_{TILE}_{YYYYMM}D{1-3}.tif
//	{root}/{PRODUCT}/DAILY/{PRODUCT}_{YYYYMMDD}.tif
//
// The tile token is omitted for territory-wide products.
package archive

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/raster"
)

// Lister is the subset of raster.Store the archive needs.
type Lister interface {
	List(pattern string) ([]string, error)
}

// Archive resolves paths under a root directory.
type Archive struct {
	root string
}

// New returns an Archive rooted at root.
func New(root string) Archive { return Archive{root: filepath.Clean(root)} }

// Root returns the archive root.
func (a Archive) Root() string { return a.root }

// Path returns the raster path of product (optionally per tile) for slot.
func (a Archive) Path(product, tile string, s domain.Slot) string {
	return filepath.Join(a.root, product, s.Kind().Suffix(), fileName(product, tile, s.Code()))
}

// DailyPath returns the path of a daily product.
func (a Archive) DailyPath(product string, day time.Time) string {
	return filepath.Join(a.root, product, "DAILY", fileName(product, "", day.Format("20060102")))
}

func fileName(product, tile, code string) string {
	if tile == "" {
		return product + "_" + code + ".tif"
	}
	return product + "_" + tile + "_" + code + ".tif"
}

// Entry is a parsed archive file name.
type Entry struct {
	Path    string
	Product string
	Tile    string
	Slot    domain.Slot
}

// Parse decodes an archive file name. It accepts monthly and decade codes.
func Parse(path string) (Entry, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return Entry{}, fmt.Errorf("parse archive name %q: want PRODUCT_[TILE_]CODE", base)
	}
	s, err := ParseCode(parts[len(parts)-1])
	if err != nil {
		return Entry{}, fmt.Errorf("parse archive name %q: %w", base, err)
	}
	return Entry{
		Path:    path,
		Product: parts[0],
		Tile:    strings.Join(parts[1:len(parts)-1], "_"),
		Slot:    s,
	}, nil
}

// ParseCode decodes 202403M or 202403D2.
func ParseCode(code string) (domain.Slot, error) {
	if len(code) < 7 {
		return domain.Slot{}, fmt.Errorf("invalid slot code %q", code)
	}
	year, err := strconv.Atoi(code[:4])
	if err != nil {
		return domain.Slot{}, fmt.Errorf("invalid slot year in %q", code)
	}
	month, err := strconv.Atoi(code[4:6])
	if err != nil || month < 1 || month > 12 {
		return domain.Slot{}, fmt.Errorf("invalid slot month in %q", code)
	}
	switch rest := code[6:]; {
	case rest == "M":
		return domain.MonthSlot(year, time.Month(month)), nil
	case len(rest) == 2 && rest[0] == 'D' && rest[1] >= '1' && rest[1] <= '3':
		return domain.DecadeSlot(year, time.Month(month), int(rest[1]-'0')), nil
	}
	return domain.Slot{}, fmt.Errorf("invalid slot suffix in %q", code)
}

// Series is the same-calendar-slot stack for one processing slot, split at
// the processing year.
type Series struct {
	Historical []Entry
	Current    []Entry
}

// Years returns the number of distinct years available.
func (s Series) Years() int { return len(s.Historical) + len(s.Current) }

// Series lists every archived raster of product/tile sharing slot's calendar
// position. Years after slot.Year are ignored.
func (a Archive) Series(l Lister, product, tile string, s domain.Slot) (Series, error) {
	suffix := s.Code()[6:]
	pattern := filepath.Join(a.root, product, s.Kind().Suffix(),
		fileName(product, tile, fmt.Sprintf("????%02d%s", int(s.Month), suffix)))
	paths, err := l.List(pattern)
	if err != nil {
		return Series{}, fmt.Errorf("list %s series: %w", product, err)
	}
	var out Series
	for _, p := range paths {
		e, err := Parse(p)
		if err != nil || e.Tile != tile {
			continue
		}
		switch {
		case e.Slot.Year < s.Year:
			out.Historical = append(out.Historical, e)
		case e.Slot.Year == s.Year:
			out.Current = append(out.Current, e)
		}
	}
	return out, nil
}

// Slots lists every slot archived for product/tile of the given kind, sorted.
func (a Archive) Slots(l Lister, product, tile string, kind domain.SlotKind) ([]domain.Slot, error) {
	pattern := filepath.Join(a.root, product, kind.Suffix(), fileName(product, tile, "*"))
	paths, err := l.List(pattern)
	if err != nil {
		return nil, fmt.Errorf("list %s slots: %w", product, err)
	}
	var out []domain.Slot
	for _, p := range paths {
		e, err := Parse(p)
		if err != nil || e.Tile != tile || e.Slot.Kind() != kind {
			continue
		}
		out = append(out, e.Slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// Last returns the most recent archived slot, or false if none.
func (a Archive) Last(l Lister, product, tile string, kind domain.SlotKind) (domain.Slot, bool, error) {
	slots, err := a.Slots(l, product, tile, kind)
	if err != nil || len(slots) == 0 {
		return domain.Slot{}, false, err
	}
	return slots[len(slots)-1], true, nil
}

// DailyCount returns the number of daily products archived within s.
func (a Archive) DailyCount(l Lister, product string, s domain.Slot) (int, error) {
	paths, err := a.Daily(l, product, s)
	return len(paths), err
}

// Daily lists the daily products of product within s, sorted by date.
func (a Archive) Daily(l Lister, product string, s domain.Slot) ([]string, error) {
	pattern := filepath.Join(a.root, product, "DAILY",
		fileName(product, "", fmt.Sprintf("%04d%02d??", s.Year, int(s.Month))))
	paths, err := l.List(pattern)
	if err != nil {
		return nil, fmt.Errorf("list %s daily: %w", product, err)
	}
	var out []string
	for _, p := range paths {
		day, err := time.Parse("20060102", strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), product+"_"), ".tif"))
		if err != nil {
			continue
		}
		if !day.Before(s.Start()) && day.Before(s.End()) {
			out = append(out, p)
		}
	}
	return out, nil
}

// LastDaily returns the date of the most recent daily product, or false.
func (a Archive) LastDaily(l Lister, product string) (time.Time, bool, error) {
	paths, err := l.List(filepath.Join(a.root, product, "DAILY", fileName(product, "", "????????")))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("list %s daily: %w", product, err)
	}
	for i := len(paths) - 1; i >= 0; i-- {
		day, err := time.Parse("20060102", strings.TrimSuffix(strings.TrimPrefix(filepath.Base(paths[i]), product+"_"), ".tif"))
		if err == nil {
			return day, true, nil
		}
	}
	return time.Time{}, false, nil
}

var _ Lister = (raster.Store)(nil)
