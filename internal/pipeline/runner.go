// Package pipeline orchestrates one drought-monitoring run: window
// resolution, availability checks, index computation, zonal statistics and
// alert fusion. Scheduler repeats runs in service mode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/drought-monitor/internal/archive"
	"github.com/couchcryptid/drought-monitor/internal/baseline"
	"github.com/couchcryptid/drought-monitor/internal/config"
	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/index"
	"github.com/couchcryptid/drought-monitor/internal/ledger"
	"github.com/couchcryptid/drought-monitor/internal/observability"
	"github.com/couchcryptid/drought-monitor/internal/period"
	"github.com/couchcryptid/drought-monitor/internal/raster"
	"github.com/couchcryptid/drought-monitor/internal/zones"
)

// Run outcomes, used as the runs_total metric label.
const (
	OutcomeSuccess     = "success"
	OutcomeFailed      = "failed"
	OutcomeNothingToDo = "nothing_to_do"
	OutcomeNotReady    = "not_ready"
)

// baselineCacheSize bounds the number of baselines kept across slots.
const baselineCacheSize = 32

// AlertSink receives the alert records of a run after they are written to
// the ledger.
type AlertSink interface {
	Publish(ctx context.Context, records []domain.AlertRecord) error
}

// Deps are the collaborators of a Runner. Store and Rasterizer are required;
// a nil Sink disables publishing and a nil Clock uses the package clock.
type Deps struct {
	Store      raster.Store
	Rasterizer zones.Rasterizer
	Sink       AlertSink
	Clock      clockwork.Clock
}

// Result summarizes a run.
type Result struct {
	Run      domain.RunID
	Outcome  string
	Decision period.Decision
	Computed int
	Skipped  int
	Failed   int
	Alerts   []domain.AlertRecord
}

// Runner executes processing runs against the archive and work directory.
type Runner struct {
	cfg     *config.Config
	store   raster.Store
	arch    archive.Archive
	calc    *index.Calculator
	engine  *period.Engine
	masks   *Masks
	sink    AlertSink
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRunner wires a Runner from configuration and collaborators.
func NewRunner(cfg *config.Config, deps Deps, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	clock := deps.Clock
	if clock == nil {
		clock = domain.Clock()
	}
	arch := archive.New(cfg.ArchiveDir)
	builder := baseline.NewBuilder(deps.Store, arch, baseline.NewCache(baselineCacheSize), logger)
	return &Runner{
		cfg:     cfg,
		store:   deps.Store,
		arch:    arch,
		calc:    index.NewCalculator(deps.Store, arch, builder, logger, index.WithTiling(cfg.VAITiles, cfg.VAIWorkers)),
		engine:  period.NewEngine(clock, cfg.WaitThreshold, logger),
		masks:   NewMasks(deps.Store, deps.Rasterizer, cfg.WorkDir, logger),
		sink:    deps.Sink,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Masks exposes the zone mask cache, used by the masks command.
func (r *Runner) Masks() *Masks { return r.masks }

// Archive returns the archive the runner reads and writes.
func (r *Runner) Archive() archive.Archive { return r.arch }

// Run executes one run. Per-slot failures are logged and counted; only
// run-level failures (bad period configuration, unreadable sub-areas,
// ledger writes, publishing) are returned.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)

	res, err := r.run(ctx)
	if err != nil {
		res.Outcome = OutcomeFailed
	}
	r.metrics.RunsTotal.WithLabelValues(res.Outcome).Inc()
	r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if res.Outcome == OutcomeSuccess {
		r.metrics.LastSuccess.Set(float64(r.clock.Now().Unix()))
	}
	r.logger.Info("run finished",
		"run_id", res.Run.String(),
		"outcome", res.Outcome,
		"computed", res.Computed,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"alerts", len(res.Alerts),
		"duration", time.Since(start).String(),
	)
	return res, err
}

func (r *Runner) run(ctx context.Context) (Result, error) {
	var res Result

	w, err := r.window()
	if err != nil {
		return res, err
	}
	res.Run = domain.RunID{Mode: r.cfg.Mode, Start: w.Start, End: w.End}
	if w.Empty() {
		r.logger.Info("nothing to process", "mode", r.cfg.Mode, "window", w.String())
		res.Outcome = OutcomeNothingToDo
		return res, nil
	}
	r.logger.Info("run started", "run_id", res.Run.String(), "mode", r.cfg.Mode, "window", w.String())

	var spi, spei stationInput
	if r.cfg.Mode.RunsAlerts() {
		spi = r.loadStations(ledger.IndexSPI)
		spei = r.loadStations(ledger.IndexSPEI)
	}

	dec, err := r.checkAvailability(res.Run, w, spi, spei)
	if err != nil {
		return res, err
	}
	res.Decision = dec
	if r.cfg.Mode == domain.ModeAuto {
		if !dec.Proceed() {
			r.logger.Info("run deferred, data not ready", "source", dec.Source, "window", w.String())
			res.Outcome = OutcomeNotReady
			return res, nil
		}
		w = dec.Window
		res.Run.End = w.End
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if r.cfg.Mode.RunsIndices() {
		r.computeIndices(w, &res)
	}

	needStats := r.cfg.DroughtStats || r.cfg.Mode.RunsAlerts()
	if !needStats {
		res.Outcome = OutcomeSuccess
		return res, nil
	}
	areas, err := r.loadAreas()
	if err != nil {
		return res, err
	}
	if err := r.updateStats(w, areas); err != nil {
		return res, err
	}

	if r.cfg.Mode.RunsAlerts() {
		alerts, err := r.evaluateAlerts(ctx, res.Run, w, areas, spi, spei)
		res.Alerts = alerts
		if err != nil {
			return res, err
		}
	}
	res.Outcome = OutcomeSuccess
	return res, nil
}

// window resolves the processing window from the mode, the configured
// period and the months of VHI already archived.
func (r *Runner) window() (period.Window, error) {
	slots, err := r.arch.Slots(r.store, index.ProductVHI, "", domain.Monthly)
	if err != nil {
		return period.Window{}, fmt.Errorf("list processed months: %w", err)
	}
	return period.Resolve(period.Params{
		Mode:    r.cfg.Mode,
		Start:   r.cfg.PeriodStart,
		End:     r.cfg.PeriodEnd,
		History: period.HistoryOf(slots),
		Now:     r.clock.Now(),
	})
}

// checkAvailability evaluates every input source over w and records the
// decisions in the run manifest. Only AUTO runs act on the combined
// decision; explicit periods are processed with whatever data exists. A
// station listed in a station table but absent from its feed fails the run
// in every mode.
func (r *Runner) checkAvailability(run domain.RunID, w period.Window, spi, spei stationInput) (period.Decision, error) {
	sources := r.sources(spi, spei)
	decisions := make([]period.Decision, 0, len(sources))
	entries := make([]ledger.ManifestEntry, 0, len(sources))
	for _, src := range sources {
		d, err := r.engine.Evaluate(src, w)
		var missing *domain.MissingProductError
		if _, station := src.(period.StationSource); station && errors.As(err, &missing) {
			return period.Decision{}, fmt.Errorf("check %s stations: %w", src.Name(), err)
		}
		if err != nil {
			r.logger.Warn("availability check failed", "source", src.Name(), "error", err)
			d = period.Decision{Source: src.Name(), State: period.NotReady, Window: w}
		}
		r.metrics.Decisions.WithLabelValues(d.Source, d.State.String()).Inc()
		if d.Stale {
			r.metrics.StaleOverrides.Inc()
		}
		decisions = append(decisions, d)
		entries = append(entries, ledger.ManifestEntry{
			Run:       run.String(),
			Product:   d.Source,
			Start:     ledger.Date(d.Window.Start),
			End:       ledger.Date(d.Window.End),
			Available: d.Available,
			Expected:  d.Expected,
			State:     d.State.String(),
		})
	}
	if err := ledger.WriteManifest(r.cfg.WorkDir, entries); err != nil {
		return period.Decision{}, fmt.Errorf("write run manifest: %w", err)
	}
	return period.Combine(w, decisions...), nil
}

func (r *Runner) sources(spi, spei stationInput) []period.Source {
	var out []period.Source
	if r.cfg.Mode.RunsIndices() {
		out = append(out,
			period.DailySource{Product: index.ProductSoilWater, Archive: r.arch, Lister: r.store},
			period.CompositeSource{Product: index.ProductLST, UnitKind: domain.Monthly, Archive: r.arch, Lister: r.store},
			period.CompositeSource{Product: index.ProductNDVI, UnitKind: domain.Monthly, Archive: r.arch, Lister: r.store},
		)
		if len(r.cfg.SatelliteTiles) > 0 {
			out = append(out, period.CompositeSource{
				Product: index.ProductHighResVI, Tiles: r.cfg.SatelliteTiles,
				UnitKind: domain.Decadal, Archive: r.arch, Lister: r.store,
			})
		}
	} else {
		out = append(out, period.CompositeSource{Product: index.ProductVHI, UnitKind: domain.Monthly, Archive: r.arch, Lister: r.store})
	}
	for _, st := range []stationInput{spi, spei} {
		if st.Series == nil {
			continue
		}
		out = append(out, period.StationSource{Index: st.Index, Stations: st.Table.All(), Series: st.Series})
	}
	return out
}

// loadAreas reads the sub-area polygons from the first GeoJSON file of the
// annex Areas directory.
func (r *Runner) loadAreas() ([]zones.SubArea, error) {
	dir := filepath.Join(r.cfg.AnnexDir, "Areas")
	paths, err := filepath.Glob(filepath.Join(dir, "*.geojson"))
	if err != nil {
		return nil, fmt.Errorf("list sub-areas: %w", err)
	}
	if len(paths) == 0 {
		return nil, &domain.MissingProductError{Product: "sub-areas", Path: dir}
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		return nil, fmt.Errorf("read sub-areas: %w", err)
	}
	areas, err := zones.LoadGeoJSON(data, r.cfg.KeyStats)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", paths[0], err)
	}
	return areas, nil
}

// LoadAreas is loadAreas for callers outside a run.
func (r *Runner) LoadAreas() ([]zones.SubArea, error) { return r.loadAreas() }
