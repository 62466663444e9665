package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/zones"
)

// Station indices and their feed columns.
const (
	IndexSPI  = "SPI"
	IndexSPEI = "SPEI"
)

// FeedFile names the station feed of index.
func FeedFile(index string) string { return index + "_ref_1991_2020.csv" }

// StationTableFile names the sub-area to station table of index.
func StationTableFile(index string) string { return index + "_communes_stations.csv" }

type spiRow struct {
	Station string     `csv:"NOM"`
	Month   Month      `csv:"DATE"`
	Value   CommaFloat `csv:"SPI3_MENS"`
}

type speiRow struct {
	Station string     `csv:"NOM"`
	Month   Month      `csv:"DATE"`
	Value   CommaFloat `csv:"SPEI_3"`
}

// Series maps station name to monthly index values.
type Series map[string]map[domain.Slot]float64

// Value returns the value of station for slot, NaN when absent.
func (s Series) Value(station string, slot domain.Slot) float64 {
	if v, ok := s[station][slot]; ok {
		return v
	}
	return math.NaN()
}

// Last returns the latest month with any value.
func (s Series) Last() (domain.Slot, bool) {
	var last domain.Slot
	found := false
	for _, months := range s {
		for m := range months {
			if !found || last.Less(m) {
				last, found = m, true
			}
		}
	}
	return last, found
}

// ReadFeed loads the station feed of index from dir.
func ReadFeed(dir, index string) (Series, error) {
	path := filepath.Join(dir, FeedFile(index))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingProductError{Product: index + " feed", Path: path}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	out := make(Series)
	add := func(station string, m Month, v CommaFloat) {
		if out[station] == nil {
			out[station] = make(map[domain.Slot]float64)
		}
		out[station][m.Slot()] = float64(v)
	}
	switch index {
	case IndexSPI:
		var rows []spiRow
		if err := readRows(path, &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			add(r.Station, r.Month, r.Value)
		}
	case IndexSPEI:
		var rows []speiRow
		if err := readRows(path, &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			add(r.Station, r.Month, r.Value)
		}
	default:
		return nil, fmt.Errorf("no station feed for index %q", index)
	}
	return out, nil
}

// StationTable maps a sub-area name to the stations that represent it.
type StationTable map[string][]string

// All returns every distinct station, sorted.
func (t StationTable) All() []string {
	seen := make(map[string]bool)
	var out []string
	for _, sts := range t {
		for _, s := range sts {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// ReadStationTable loads the sub-area to station table of index from dir.
// Rows are ragged: the first column is the sub-area, every following
// non-empty column a station. The header row is skipped.
func ReadStationTable(dir, index string) (StationTable, error) {
	path := filepath.Join(dir, StationTableFile(index))
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingProductError{Product: index + " station table", Path: path}
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return parseStationTable(f)
}

func parseStationTable(r io.Reader) (StationTable, error) {
	cr := csv.NewReader(r)
	cr.Comma = Separator
	cr.FieldsPerRecord = -1
	out := make(StationTable)
	header := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode station table: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		area := strings.TrimSpace(rec[0])
		for _, s := range rec[1:] {
			if s = strings.TrimSpace(s); s != "" {
				out[area] = append(out[area], s)
			}
		}
	}
}

type lutRow struct {
	ID   int    `csv:"OBJECTID"`
	Name string `csv:"nom"`
}

// WriteLUT stores the sub-area id to name table under dir.
func WriteLUT(dir string, areas []zones.SubArea) error {
	rows := make([]lutRow, len(areas))
	for i, a := range areas {
		rows[i] = lutRow{ID: a.ID, Name: a.Name}
	}
	return writeRows(filepath.Join(dir, LUTFile), rows)
}

// ReadLUT returns the id to name table stored under dir.
func ReadLUT(dir string) (map[int]string, error) {
	var rows []lutRow
	path := filepath.Join(dir, LUTFile)
	if err := readRows(path, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.MissingProductError{Product: "zone look-up table", Path: path}
	}
	out := make(map[int]string, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Name
	}
	return out, nil
}

func sortSlots(s []domain.Slot) {
	sort.Slice(s, func(i, j int) bool { return s[i].Less(s[j]) })
}
