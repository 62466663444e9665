// Package domain models drought-monitoring data: reporting slots, drought
// categories, alert records and the typed errors shared by every stage.
//
// # Reporting Slots
//
// Satellite composites are produced per calendar month or per decade
// (ten-day period). Decades cover days 1-10, 11-20 and 21 to the end of the
// month, so the third decade is 8 to 11 days long. Slots render in archive
// file names as:
//
//	202403M    March 2024, monthly
//	202403D2   March 2024, second decade (days 11-20)
//
// Historical baselines pair a slot with the same calendar slot of every
// earlier year ([Slot.SameCalendarSlot]).
//
// # Drought Categories
//
// Every indicator is reduced to a three-valued category before fusion:
//
//	-1  NoData     the input was missing or NaN
//	 0  NoDrought  the index is above its threshold
//	 1  Drought    the index is at or below its threshold
//
// Thresholds: SPI, SPEI and MAI use -1 (one standard deviation below the
// 1991-2020 mean). VHI uses 0.3 on its 0..1 scale.
//
// # Indicators and Alert Levels
//
// Four indicators feed the alert for a sub-area:
//
//	PRECIPITATION       SPI, from meteorological stations
//	EVAPOTRANSPIRATION  SPEI, from meteorological stations
//	SOIL_MOISTURE       MAI, from ASCAT soil water index rasters
//	VEGETATION          VHI, from MODIS temperature and reflectance rasters
//
// The alert ladder escalates with how deep the deficit has propagated:
// precipitation alone is a Watch, soil moisture or evapotranspiration is a
// Warning, vegetation stress is an Alert. Ledgers carry human-readable
// category labels ([Indicator.Label]); the alert level is computed from the
// effective categories after previous-month fallback.
//
// # Run Identity
//
// A [RunID] pins the mode and window [Start, End) of one batch. It is built
// once and threaded through every stage instead of being reconstructed from
// folder names.
package domain
