package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/drought-monitor/internal/alert"
	"github.com/couchcryptid/drought-monitor/internal/classify"
	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/index"
	"github.com/couchcryptid/drought-monitor/internal/ledger"
	"github.com/couchcryptid/drought-monitor/internal/period"
	"github.com/couchcryptid/drought-monitor/internal/raster"
	"github.com/couchcryptid/drought-monitor/internal/zones"
)

type slotStep struct {
	name string
	fn   func(domain.Slot) (raster.Scored, error)
}

// computeIndices builds the monthly indices of every month in w, then VAI
// for every decade and satellite tile. A failed step only drops its slot.
func (r *Runner) computeIndices(w period.Window, res *Result) {
	monthly := []slotStep{
		{index.ProductSoilWater, func(s domain.Slot) (raster.Scored, error) { return r.calc.Monthly(index.ProductSoilWater, s) }},
		{index.ProductMAI, r.calc.MAI},
		{index.ProductTCI, r.calc.TCI},
		{index.ProductVCI, r.calc.VCI},
		{index.ProductVHI, r.calc.VHI},
	}
	for _, slot := range domain.SlotsBetween(w.Start, w.End, domain.Monthly) {
		for _, st := range monthly {
			_, err := st.fn(slot)
			r.record(res, st.name, slot, "", err)
		}
	}
	for _, slot := range domain.SlotsBetween(w.Start, w.End, domain.Decadal) {
		for _, tile := range r.cfg.SatelliteTiles {
			_, err := r.calc.VAI(slot, tile)
			r.record(res, index.ProductVAI, slot, tile, err)
		}
	}
}

func (r *Runner) record(res *Result, name string, slot domain.Slot, tile string, err error) {
	switch {
	case err == nil:
		res.Computed++
		r.metrics.SlotsTotal.WithLabelValues(name, "computed").Inc()
		r.logger.Info("index computed", "indicator", name, "slot", slot, "tile", tile)
	case domain.IsSkip(err):
		res.Skipped++
		r.metrics.SlotsTotal.WithLabelValues(name, "skipped").Inc()
		r.logger.Warn("pass", "indicator", name, "slot", slot, "tile", tile, "reason", err)
	default:
		res.Failed++
		r.metrics.SlotsTotal.WithLabelValues(name, "failed").Inc()
		r.logger.Error("index failed", "indicator", name, "slot", slot, "tile", tile, "error", err)
	}
}

// statIndices lists the indices whose zonal statistics the run maintains.
// VHI statistics feed alert confidence and correlation, so alert runs keep
// them even when DROUGHT_STATS is off.
func (r *Runner) statIndices() []string {
	if r.cfg.DroughtStats {
		return []string{index.ProductMAI, index.ProductVHI}
	}
	if r.cfg.Mode.RunsAlerts() {
		return []string{index.ProductVHI}
	}
	return nil
}

// updateStats upserts the zonal statistics of each month of w into the
// index statistics ledgers. Months without a raster are skipped.
func (r *Runner) updateStats(w period.Window, areas []zones.SubArea) error {
	for _, name := range r.statIndices() {
		var rows []domain.StatRow
		for _, slot := range domain.SlotsBetween(w.Start, w.End, domain.Monthly) {
			s, err := r.store.Load(r.arch.Path(name, "", slot))
			if err != nil {
				r.logger.Warn("statistics skipped", "indicator", name, "slot", slot, "error", err)
				continue
			}
			mask, err := r.masks.For(name, shapeOf(s), areas)
			if err != nil {
				return fmt.Errorf("%s zone mask: %w", name, err)
			}
			got, err := zones.Stats(s, mask, areas, r.cfg.Territory, slot.Start())
			if err != nil {
				r.logger.Error("statistics failed", "indicator", name, "slot", slot, "error", err)
				continue
			}
			rows = append(rows, got...)
		}
		if len(rows) == 0 {
			continue
		}
		if err := ledger.NewStats(r.cfg.WorkDir, name, domain.Monthly).WithTerritory(r.cfg.Territory).Upsert(rows); err != nil {
			return fmt.Errorf("write %s statistics: %w", name, err)
		}
		r.logger.Info("statistics updated", "indicator", name, "rows", len(rows))
	}
	return nil
}

// stationInput is a station indicator and where it came from.
type stationInput struct {
	Index string
	alert.Stations
}

// loadStations reads the feed and station table of a precipitation index.
// A missing input is logged and leaves the indicator without data.
func (r *Runner) loadStations(idx string) stationInput {
	thr, _ := classify.Threshold(idx)
	in := stationInput{Index: idx, Stations: alert.Stations{Threshold: thr}}
	series, err := ledger.ReadFeed(filepath.Join(r.cfg.ArchiveDir, "METEO"), idx)
	if err != nil {
		r.logger.Warn("station feed unavailable", "indicator", idx, "error", err)
		return in
	}
	table, err := ledger.ReadStationTable(filepath.Join(r.cfg.AnnexDir, "Stations"), idx)
	if err != nil {
		r.logger.Warn("station table unavailable", "indicator", idx, "error", err)
		return in
	}
	in.Series, in.Table = series, table
	return in
}

// evaluateAlerts scores the correlation of every sub-area once, fuses the
// alerts of every month of w, upserts them into the alert ledger and hands
// them to the sink.
func (r *Runner) evaluateAlerts(ctx context.Context, run domain.RunID, w period.Window, areas []zones.SubArea, spi, spei stationInput) ([]domain.AlertRecord, error) {
	vhiStats, err := ledger.NewStats(r.cfg.WorkDir, index.ProductVHI, domain.Monthly).Read()
	if err != nil {
		return nil, fmt.Errorf("read VHI statistics: %w", err)
	}
	scores := alert.Score(areas, spi.Stations, vhiStats, r.logger)
	if err := ledger.WriteRScores(r.cfg.WorkDir, scores); err != nil {
		return nil, fmt.Errorf("write correlation scores: %w", err)
	}
	byArea := make(map[string]domain.RScore, len(scores))
	for _, s := range scores {
		byArea[s.Location] = s
	}

	var out []domain.AlertRecord
	for _, slot := range domain.SlotsBetween(w.Start, w.End, domain.Monthly) {
		mai, err := r.layer(index.ProductMAI, slot, areas)
		if err != nil {
			return out, err
		}
		vhi, err := r.layer(index.ProductVHI, slot, areas)
		if err != nil {
			return out, err
		}
		recs := alert.Evaluate(alert.Month{
			Slot:     slot,
			SPI:      spi.Stations,
			SPEI:     spei.Stations,
			MAI:      mai,
			VHI:      vhi,
			VHIStats: vhiStats,
			Scores:   byArea,
		}, areas, run)
		r.setLevels(recs)
		r.logger.Info("alerts evaluated", "slot", slot, "areas", len(recs))
		out = append(out, recs...)
	}
	if len(out) == 0 {
		return nil, nil
	}

	if err := ledger.NewAlerts(r.cfg.WorkDir).Upsert(out); err != nil {
		return out, fmt.Errorf("write alert ledger: %w", err)
	}
	if r.sink != nil {
		if err := r.sink.Publish(ctx, out); err != nil {
			return out, fmt.Errorf("publish alerts: %w", err)
		}
	}
	return out, nil
}

// layer classifies the index raster of slot and of the month before. A
// missing or unreadable current raster yields an empty layer, which the
// aggregator reports as not processed.
func (r *Runner) layer(name string, slot domain.Slot, areas []zones.SubArea) (alert.Layer, error) {
	thr, err := classify.Threshold(name)
	if err != nil {
		return alert.Layer{}, err
	}
	cur, err := r.store.Load(r.arch.Path(name, "", slot))
	if err != nil {
		if !domain.IsSlotScoped(err) {
			return alert.Layer{}, err
		}
		r.logger.Warn("indicator not processed", "indicator", name, "slot", slot, "error", err)
		return alert.Layer{}, nil
	}
	mask, err := r.masks.For(name, shapeOf(cur), areas)
	if err != nil {
		return alert.Layer{}, fmt.Errorf("%s zone mask: %w", name, err)
	}
	l := alert.Layer{Mask: mask, Current: classify.Grid(cur.Value, thr)}

	prev, err := r.store.Load(r.arch.Path(name, "", slot.Prev()))
	var missing *domain.MissingProductError
	switch {
	case err == nil && mask.Fits(prev.Value):
		l.Previous = classify.Grid(prev.Value, thr)
	case err == nil:
		r.logger.Warn("previous month grid mismatch", "indicator", name, "slot", slot.Prev())
	case !errors.As(err, &missing):
		r.logger.Warn("previous month unreadable", "indicator", name, "slot", slot.Prev(), "error", err)
	}
	return l, nil
}

func (r *Runner) setLevels(recs []domain.AlertRecord) {
	counts := map[domain.AlertLevel]int{
		domain.LevelNoData: 0, domain.LevelNone: 0, domain.LevelWatch: 0,
		domain.LevelWarning: 0, domain.LevelAlert: 0,
	}
	for _, rec := range recs {
		counts[rec.Level]++
	}
	for lvl, n := range counts {
		r.metrics.AlertLevels.WithLabelValues(string(lvl)).Set(float64(n))
	}
}

func shapeOf(s raster.Scored) raster.Shape {
	return raster.Shape{W: s.Width(), H: s.Height(), Ref: s.Value.Ref()}
}
