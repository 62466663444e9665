package zones

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/raster"
)

// Stats summarizes an index raster over the territory (every pixel inside a
// sub-area) and then over each sub-area in name order. Sub-areas without
// pixels are skipped. The quality score averages every in-zone pixel,
// including undefined ones.
func Stats(s raster.Scored, m Mask, areas []SubArea, territory string, date time.Time) ([]domain.StatRow, error) {
	if !m.Fits(s.Value) {
		return nil, fmt.Errorf("mask %dx%d does not match raster %dx%d", m.Shape.W, m.Shape.H, s.Width(), s.Height())
	}
	pixels := m.Pixels()
	var all []int
	for i, id := range m.IDs {
		if id != 0 {
			all = append(all, i)
		}
	}
	var rows []domain.StatRow
	if len(all) > 0 {
		rows = append(rows, summarize(s, all, territory, date))
	}
	for _, a := range areas {
		px := pixels[a.ID]
		if len(px) == 0 {
			continue
		}
		rows = append(rows, summarize(s, px, a.Name, date))
	}
	return rows, nil
}

func summarize(s raster.Scored, px []int, location string, date time.Time) domain.StatRow {
	vals := make([]float64, 0, len(px))
	qsum := 0.0
	for _, i := range px {
		if v := s.Value.At(i); !math.IsNaN(v) {
			vals = append(vals, v)
		}
		qsum += s.Score.At(i)
	}
	row := domain.StatRow{
		Location: location,
		Date:     date,
		Mean:     math.NaN(),
		Min:      math.NaN(),
		Max:      math.NaN(),
		Std:      math.NaN(),
		QScore:   qsum / float64(len(px)),
	}
	if len(vals) > 0 {
		row.Mean, row.Std = stat.PopMeanStdDev(vals, nil)
		row.Min, row.Max = floats.Min(vals), floats.Max(vals)
	}
	return row
}
