package alert

import (
	"log/slog"
	"math"

	"github.com/couchcryptid/drought-monitor/internal/classify"
	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/ledger"
	"github.com/couchcryptid/drought-monitor/internal/zones"
)

// Stations is a station-based indicator: which stations represent each
// sub-area and their monthly values.
type Stations struct {
	Table     ledger.StationTable
	Series    ledger.Series
	Threshold float64
}

// Category returns the current-month majority of the sub-area's stations and
// the effective category. When the current month is not Drought and the
// previous month has station rows, the previous month's majority is
// effective.
func (s Stations) Category(area string, month domain.Slot) (current, effective domain.Category) {
	stations := s.Table[area]
	current = s.majority(stations, month)
	if current == domain.Drought {
		return current, current
	}
	prev := month.Prev()
	for _, st := range stations {
		if _, ok := s.Series[st][prev]; ok {
			return current, s.majority(stations, prev)
		}
	}
	return current, current
}

func (s Stations) majority(stations []string, month domain.Slot) domain.Category {
	cats := make([]domain.Category, len(stations))
	for i, st := range stations {
		cats[i] = classify.Value(s.Series.Value(st, month), s.Threshold)
	}
	return StationMajority(cats)
}

// Layer is a raster-based indicator classified per pixel for the processing
// month and, when archived, the month before.
type Layer struct {
	Mask     zones.Mask
	Current  []domain.Category
	Previous []domain.Category
}

// Category classifies one sub-area of the layer. A layer without a current
// raster yields NoData and reports ok=false.
func (l Layer) Category(px []int) (current, effective domain.Category, ok bool) {
	if l.Current == nil {
		return domain.NoData, domain.NoData, false
	}
	current, effective = RasterCategory(px, l.Current, l.Previous)
	return current, effective, true
}

// Month gathers everything needed to fuse the alerts of one month.
type Month struct {
	Slot     domain.Slot
	SPI      Stations
	SPEI     Stations
	MAI      Layer
	VHI      Layer
	VHIStats []domain.StatRow
	Scores   map[string]domain.RScore
}

// Evaluate produces one alert record per sub-area, in sub-area order.
func Evaluate(m Month, areas []zones.SubArea, run domain.RunID) []domain.AlertRecord {
	maiPx := m.MAI.Mask.Pixels()
	vhiPx := m.VHI.Mask.Pixels()
	vhiRows := make(map[string]domain.StatRow, len(m.VHIStats))
	for _, r := range m.VHIStats {
		if domain.SlotOf(r.Date) == m.Slot {
			vhiRows[r.Location] = r
		}
	}

	out := make([]domain.AlertRecord, 0, len(areas))
	for _, a := range areas {
		var now, eff Categories
		now.Precipitation, eff.Precipitation = m.SPI.Category(a.Name, m.Slot)
		now.Evapotranspiration, eff.Evapotranspiration = m.SPEI.Category(a.Name, m.Slot)
		var maiOK, vhiOK bool
		now.SoilMoisture, eff.SoilMoisture, maiOK = m.MAI.Category(maiPx[a.ID])
		now.Vegetation, eff.Vegetation, vhiOK = m.VHI.Category(vhiPx[a.ID])

		rec := domain.AlertRecord{
			Location:           a.Name,
			Date:               m.Slot.Start(),
			Level:              Decide(eff),
			Precipitation:      domain.Precipitation.Label(now.Precipitation),
			Evapotranspiration: domain.Evapotranspiration.Label(now.Evapotranspiration),
			SoilMoisture:       label(domain.SoilMoisture, now.SoilMoisture, maiOK),
			Vegetation:         label(domain.Vegetation, now.Vegetation, vhiOK),
			VHIMean:            math.NaN(),
			Confidence:         math.NaN(),
			RunID:              run.String(),
		}
		if row, ok := vhiRows[a.Name]; ok {
			rec.VHIMean = row.Mean
			if s, ok := m.Scores[a.Name]; ok {
				rec.Confidence = Confidence(row.QScore, s.RMax)
			}
		}
		out = append(out, rec)
	}
	return out
}

func label(ind domain.Indicator, c domain.Category, ok bool) string {
	if !ok {
		return domain.NotProcessed
	}
	return ind.Label(c)
}

// Confidence averages the vegetation quality score and the correlation
// strength, rounded to two decimals. Either being undefined makes it NaN.
func Confidence(qscore, rmax float64) float64 {
	return math.Round((qscore+rmax)/2*100) / 100
}

// Score computes the correlation summary of every sub-area from the full
// precipitation station feed and VHI statistics ledger. Failures are logged
// and leave an undefined row for the sub-area.
func Score(areas []zones.SubArea, spi Stations, vhi []domain.StatRow, logger *slog.Logger) []domain.RScore {
	byArea := make(map[string][]domain.StatRow)
	for _, r := range vhi {
		byArea[r.Location] = append(byArea[r.Location], r)
	}
	out := make([]domain.RScore, 0, len(areas))
	for _, a := range areas {
		precip := StationMean(spi.Table[a.Name], spi.Series)
		s, err := Correlate(a.Name, precip, byArea[a.Name])
		if err != nil {
			logger.Warn("correlation skipped", "location", a.Name, "error", err)
		}
		out = append(out, s)
	}
	return out
}
