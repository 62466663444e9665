// Package alert fuses per-indicator drought categories of each sub-area
// into a monthly alert level and confidence index.
//
// Categories come from four indicators: precipitation (SPI stations),
// evapotranspiration (SPEI stations), soil moisture (MAI raster) and
// vegetation (VHI raster). Vegetation stress dominates, soil moisture or
// evapotranspiration deficit escalates to Warning, and precipitation alone
// decides between Watch, No Alert and No Data.
package alert

import "github.com/couchcryptid/drought-monitor/internal/domain"

// Categories holds one category per indicator.
type Categories struct {
	Precipitation      domain.Category
	Evapotranspiration domain.Category
	SoilMoisture       domain.Category
	Vegetation         domain.Category
}

// Decide maps effective categories to an alert level. Rules are evaluated
// top to bottom and the first match wins.
func Decide(c Categories) domain.AlertLevel {
	switch {
	case c.Vegetation == domain.Drought:
		return domain.LevelAlert
	case c.Evapotranspiration == domain.Drought, c.SoilMoisture == domain.Drought:
		return domain.LevelWarning
	case c.Precipitation == domain.Drought:
		return domain.LevelWatch
	case c.Precipitation == domain.NoDrought:
		return domain.LevelNone
	default:
		return domain.LevelNoData
	}
}
