package domain

import (
	"fmt"
	"strings"
	"time"
)

// AlertRecord is one row of the alert ledger: the fused drought state of a
// sub-area for one month. Category fields hold the current-month
// classification, Level is derived from the effective (fallback-adjusted)
// categories.
type AlertRecord struct {
	Location           string
	Date               time.Time
	Level              AlertLevel
	Vegetation         string
	SoilMoisture       string
	Evapotranspiration string
	Precipitation      string
	VHIMean            float64
	Confidence         float64
	RunID              string
}

// Key identifies the ledger row the record upserts into.
func (r AlertRecord) Key() RecordKey {
	return RecordKey{Location: r.Location, Date: r.Date}
}

// StatRow is one zonal-statistics row for an index slot.
type StatRow struct {
	Location string
	Date     time.Time
	Mean     float64
	Min      float64
	Max      float64
	Std      float64
	QScore   float64
}

// Key identifies the ledger row the statistics upsert into.
func (r StatRow) Key() RecordKey {
	return RecordKey{Location: r.Location, Date: r.Date}
}

// RecordKey is the (location, date) upsert key shared by all ledgers.
type RecordKey struct {
	Location string
	Date     time.Time
}

// Less orders keys by location then date.
func (k RecordKey) Less(o RecordKey) bool {
	if k.Location != o.Location {
		return k.Location < o.Location
	}
	return k.Date.Before(o.Date)
}

// RScore is the lagged correlation summary between the precipitation index
// and VHI for one sub-area.
type RScore struct {
	Location  string
	RMax      float64
	LagMax    int
	PValue    float64
	QScoreSPI float64
	QScoreVHI float64
}

// Mode selects which stages of a run execute and how its window is chosen.
type Mode string

const (
	ModeAuto    Mode = "AUTO"
	ModeManual  Mode = "MANUAL"
	ModeIndices Mode = "INDICES"
	ModeDrought Mode = "DROUGHT"
)

// ParseMode validates a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case ModeAuto, ModeManual, ModeIndices, ModeDrought:
		return m, nil
	}
	return "", fmt.Errorf("invalid DROUGHT_MODE %q", s)
}

// RunsIndices reports whether index computation is part of the mode.
func (m Mode) RunsIndices() bool { return m != ModeDrought }

// RunsAlerts reports whether alert fusion is part of the mode.
func (m Mode) RunsAlerts() bool { return m != ModeIndices }

// RunID identifies one processing run and its window [Start, End).
type RunID struct {
	Mode  Mode
	Start time.Time
	End   time.Time
}

func (r RunID) String() string {
	return fmt.Sprintf("RUN_%s_%s_%s", r.Mode, r.Start.Format("20060102"), r.End.Format("20060102"))
}

// Slots lists the reporting units of kind covered by the run.
func (r RunID) Slots(kind SlotKind) []Slot {
	return SlotsBetween(r.Start, r.End, kind)
}
