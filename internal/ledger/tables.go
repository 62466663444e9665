package ledger

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/drought-monitor/internal/domain"
)

// File names inside the work directory.
const (
	AlertFile    = "ALERT_DROUGHT.csv"
	RScoreFile   = "VHI_SPI_RSCORE_QSCORES.csv"
	ManifestFile = "RUN_MANIFEST.csv"
	LUTFile      = "ID_Name_Areas-lookup.csv"
)

// StatsFile names the statistics ledger of an index at a slot kind.
func StatsFile(index string, kind domain.SlotKind) string {
	suffix := "M"
	if kind == domain.Decadal {
		suffix = "D"
	}
	return fmt.Sprintf("%s_STATS_%s.csv", index, suffix)
}

type statRow struct {
	Location string `csv:"LOCATION"`
	Date     Date   `csv:"DATE"`
	Mean     Float2 `csv:"MEAN"`
	Min      Float2 `csv:"MIN"`
	Max      Float2 `csv:"MAX"`
	Std      Float2 `csv:"STD"`
	QScore   Float2 `csv:"QSCORE"`
}

func (r statRow) Key() domain.RecordKey {
	return domain.RecordKey{Location: r.Location, Date: r.Date.Time()}
}

// Stats is the zonal statistics ledger of one index.
type Stats struct {
	mu        sync.Mutex
	path      string
	territory string
}

// NewStats opens (lazily) the statistics ledger of index under dir.
func NewStats(dir, index string, kind domain.SlotKind) *Stats {
	return &Stats{path: filepath.Join(dir, StatsFile(index, kind))}
}

// WithTerritory keeps the rows of the territory-wide location at the top of
// the ledger on every upsert.
func (s *Stats) WithTerritory(name string) *Stats {
	s.territory = name
	return s
}

func (s *Stats) Path() string { return s.path }

// Read returns every row in file order.
func (s *Stats) Read() ([]domain.StatRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []statRow
	if err := readRows(s.path, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.StatRow, len(rows))
	for i, r := range rows {
		out[i] = domain.StatRow{
			Location: r.Location, Date: r.Date.Time(),
			Mean: float64(r.Mean), Min: float64(r.Min), Max: float64(r.Max),
			Std: float64(r.Std), QScore: float64(r.QScore),
		}
	}
	return out, nil
}

// Upsert merges rows into the ledger.
func (s *Stats) Upsert(rows []domain.StatRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing []statRow
	if err := readRows(s.path, &existing); err != nil {
		return err
	}
	incoming := make([]statRow, len(rows))
	for i, r := range rows {
		incoming[i] = statRow{
			Location: r.Location, Date: Date(r.Date),
			Mean: Float2(r.Mean), Min: Float2(r.Min), Max: Float2(r.Max),
			Std: Float2(r.Std), QScore: Float2(r.QScore),
		}
	}
	if s.territory == "" {
		return writeRows(s.path, Upsert(existing, incoming))
	}
	return writeRows(s.path, upsertOrdered(existing, incoming, locationFirst(s.territory)))
}

// Lookup returns the row for location and date.
func (s *Stats) Lookup(location string, date time.Time) (domain.StatRow, bool, error) {
	rows, err := s.Read()
	if err != nil {
		return domain.StatRow{}, false, err
	}
	want := normalize(domain.RecordKey{Location: location, Date: date})
	for _, r := range rows {
		if normalize(r.Key()) == want {
			return r, true, nil
		}
	}
	return domain.StatRow{}, false, nil
}

// Months lists the distinct dates present for location, ascending.
func (s *Stats) Months(location string) ([]domain.Slot, error) {
	rows, err := s.Read()
	if err != nil {
		return nil, err
	}
	seen := make(map[domain.Slot]bool)
	var out []domain.Slot
	for _, r := range rows {
		if r.Location != location {
			continue
		}
		sl := domain.SlotOf(r.Date)
		if !seen[sl] {
			seen[sl] = true
			out = append(out, sl)
		}
	}
	sortSlots(out)
	return out, nil
}

type alertRow struct {
	Location           string `csv:"LOCATION"`
	Date               Date   `csv:"DATE"`
	Alert              string `csv:"ALERT"`
	Vegetation         string `csv:"VEGETATION"`
	SoilMoisture       string `csv:"SOIL_MOISTURE"`
	Evapotranspiration string `csv:"EVAPOTRANSPIRATION"`
	Precipitation      string `csv:"PRECIPITATION"`
	VHIMean            Float2 `csv:"VHI_MEAN"`
	Confidence         Float2 `csv:"CONF_INDEX"`
}

func (r alertRow) Key() domain.RecordKey {
	return domain.RecordKey{Location: r.Location, Date: r.Date.Time()}
}

// Alerts is the drought alert ledger.
type Alerts struct {
	mu   sync.Mutex
	path string
}

// NewAlerts opens (lazily) the alert ledger under dir.
func NewAlerts(dir string) *Alerts {
	return &Alerts{path: filepath.Join(dir, AlertFile)}
}

func (a *Alerts) Path() string { return a.path }

// Read returns every record ordered by location then date.
func (a *Alerts) Read() ([]domain.AlertRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var rows []alertRow
	if err := readRows(a.path, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.AlertRecord, len(rows))
	for i, r := range rows {
		out[i] = domain.AlertRecord{
			Location:           r.Location,
			Date:               r.Date.Time(),
			Level:              domain.AlertLevel(r.Alert),
			Vegetation:         r.Vegetation,
			SoilMoisture:       r.SoilMoisture,
			Evapotranspiration: r.Evapotranspiration,
			Precipitation:      r.Precipitation,
			VHIMean:            float64(r.VHIMean),
			Confidence:         float64(r.Confidence),
		}
	}
	return out, nil
}

// Upsert merges records into the ledger keyed by (location, date).
func (a *Alerts) Upsert(records []domain.AlertRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var existing []alertRow
	if err := readRows(a.path, &existing); err != nil {
		return err
	}
	incoming := make([]alertRow, len(records))
	for i, r := range records {
		incoming[i] = alertRow{
			Location:           r.Location,
			Date:               Date(domain.SlotOf(r.Date).Start()),
			Alert:              string(r.Level),
			Vegetation:         r.Vegetation,
			SoilMoisture:       r.SoilMoisture,
			Evapotranspiration: r.Evapotranspiration,
			Precipitation:      r.Precipitation,
			VHIMean:            Float2(r.VHIMean),
			Confidence:         Float2(r.Confidence),
		}
	}
	return writeRows(a.path, Upsert(existing, incoming))
}

type rscoreRow struct {
	Location  string `csv:"LOCATION"`
	RMax      Float2 `csv:"RMAX"`
	LagMax    string `csv:"LAGMAX"`
	PValue    Float2 `csv:"PVMAX"`
	QScoreSPI Float2 `csv:"QSCORE SPI"`
	QScoreVHI Float2 `csv:"QSCORE VHI"`
}

// WriteRScores replaces the correlation table under dir. The lag is left
// empty when no correlation could be computed.
func WriteRScores(dir string, scores []domain.RScore) error {
	rows := make([]rscoreRow, len(scores))
	for i, s := range scores {
		rows[i] = rscoreRow{
			Location: s.Location, RMax: Float2(s.RMax),
			PValue: Float2(s.PValue), QScoreSPI: Float2(s.QScoreSPI), QScoreVHI: Float2(s.QScoreVHI),
		}
		if !math.IsNaN(s.RMax) {
			rows[i].LagMax = strconv.Itoa(s.LagMax)
		}
	}
	return writeRows(filepath.Join(dir, RScoreFile), rows)
}

// ManifestEntry records what one source contributed to a run.
type ManifestEntry struct {
	Run       string `csv:"RUN"`
	Product   string `csv:"PRODUCT"`
	Start     Date   `csv:"START"`
	End       Date   `csv:"END"`
	Available int    `csv:"AVAILABLE"`
	Expected  int    `csv:"EXPECTED"`
	State     string `csv:"STATE"`
}

// WriteManifest replaces the run manifest under dir.
func WriteManifest(dir string, entries []ManifestEntry) error {
	return writeRows(filepath.Join(dir, ManifestFile), entries)
}

// ReadManifest returns the manifest of the last run under dir.
func ReadManifest(dir string) ([]ManifestEntry, error) {
	var out []ManifestEntry
	err := readRows(filepath.Join(dir, ManifestFile), &out)
	return out, err
}
