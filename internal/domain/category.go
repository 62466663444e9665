package domain

import "fmt"

// Category is the per-pixel or per-station drought classification.
type Category int

const (
	NoData    Category = -1
	NoDrought Category = 0
	Drought   Category = 1
)

func (c Category) String() string {
	switch c {
	case NoDrought:
		return "NoDrought"
	case Drought:
		return "Drought"
	default:
		return "NoData"
	}
}

// Indicator names one of the four drought dimensions fused into an alert.
type Indicator string

const (
	Precipitation      Indicator = "PRECIPITATION"
	Evapotranspiration Indicator = "EVAPOTRANSPIRATION"
	SoilMoisture       Indicator = "SOIL_MOISTURE"
	Vegetation         Indicator = "VEGETATION"
)

// NotProcessed is written when an indicator could not be evaluated at all.
const NotProcessed = "Not processed"

var categoryLabels = map[Indicator][3]string{
	Precipitation:      {"No precipitation data", "No precipitation deficit", "Precipitation deficit"},
	Evapotranspiration: {"No precip/temperature data", "No evapotranspiration deficit", "Evapotranspiration deficit"},
	SoilMoisture:       {"No soil moisture data", "No soil moisture deficit", "Soil moisture deficit"},
	Vegetation:         {"No vegetation data", "No vegetation stress", "Vegetation stress"},
}

// Label renders a category as the ledger text for the indicator.
func (i Indicator) Label(c Category) string {
	labels, ok := categoryLabels[i]
	if !ok {
		return NotProcessed
	}
	switch c {
	case NoData, NoDrought, Drought:
		return labels[int(c)+1]
	}
	return NotProcessed
}

// ParseLabel is the inverse of Label.
func (i Indicator) ParseLabel(s string) (Category, error) {
	labels, ok := categoryLabels[i]
	if !ok {
		return NoData, fmt.Errorf("unknown indicator %q", i)
	}
	for idx, l := range labels {
		if l == s {
			return Category(idx - 1), nil
		}
	}
	return NoData, fmt.Errorf("unknown %s label %q", i, s)
}

// AlertLevel is the fused drought alert for a sub-area and month.
type AlertLevel string

const (
	LevelNoData  AlertLevel = "No Data"
	LevelNone    AlertLevel = "No Alert"
	LevelWatch   AlertLevel = "Watch"
	LevelWarning AlertLevel = "Warning"
	LevelAlert   AlertLevel = "Alert"
)

// Severity orders levels for metrics and comparisons; NoData is lowest.
func (l AlertLevel) Severity() int {
	switch l {
	case LevelNone:
		return 1
	case LevelWatch:
		return 2
	case LevelWarning:
		return 3
	case LevelAlert:
		return 4
	default:
		return 0
	}
}

// Valid reports whether l is one of the known alert levels.
func (l AlertLevel) Valid() bool {
	switch l {
	case LevelNoData, LevelNone, LevelWatch, LevelWarning, LevelAlert:
		return true
	}
	return false
}
