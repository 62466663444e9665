package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/drought-monitor/internal/archive"
	"github.com/couchcryptid/drought-monitor/internal/config"
	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/index"
	"github.com/couchcryptid/drought-monitor/internal/ledger"
	"github.com/couchcryptid/drought-monitor/internal/observability"
	"github.com/couchcryptid/drought-monitor/internal/pipeline"
	"github.com/couchcryptid/drought-monitor/internal/raster"
	"github.com/couchcryptid/drought-monitor/internal/zones"
)

const areasGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"nom":"Nord","OBJECTID":1},
  "geometry":{"type":"Polygon","coordinates":[[[160,-20],[162,-20],[162,-22],[160,-22],[160,-20]]]}}
]}`

var testRef = raster.GeoRef{Transform: [6]float64{160, 1, 0, -20, 0, -1}}

type recordingSink struct {
	records []domain.AlertRecord
	err     error
}

func (s *recordingSink) Publish(_ context.Context, recs []domain.AlertRecord) error {
	s.records = append(s.records, recs...)
	return s.err
}

type fixture struct {
	cfg     *config.Config
	store   *raster.MemStore
	arch    archive.Archive
	sink    *recordingSink
	metrics *observability.Metrics
	clock   *clockwork.FakeClock
}

func newFixture(t *testing.T, mode domain.Mode, now time.Time) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Mode:          mode,
		Territory:     "Nouvelle-Caledonie",
		ArchiveDir:    filepath.Join(root, "archive"),
		AnnexDir:      filepath.Join(root, "annex"),
		WorkDir:       filepath.Join(root, "work"),
		KeyStats:      zones.DefaultKey,
		DroughtStats:  true,
		WaitThreshold: 15 * 24 * time.Hour,
		VAITiles:      1,
		VAIWorkers:    1,
	}
	writeFile(t, filepath.Join(cfg.AnnexDir, "Areas", "areas.geojson"), areasGeoJSON)
	return &fixture{
		cfg:     cfg,
		store:   raster.NewMemStore(),
		arch:    archive.New(cfg.ArchiveDir),
		sink:    &recordingSink{},
		metrics: observability.NewMetricsForTesting(),
		clock:   clockwork.NewFakeClockAt(now),
	}
}

func (f *fixture) runner() *pipeline.Runner {
	return pipeline.NewRunner(f.cfg, pipeline.Deps{
		Store:      f.store,
		Rasterizer: zones.PlanarRasterizer{},
		Sink:       f.sink,
		Clock:      f.clock,
	}, slog.Default(), f.metrics)
}

func (f *fixture) putIndex(t *testing.T, product string, slot domain.Slot, v float64) {
	t.Helper()
	s := raster.Scored{
		Value: raster.Filled(2, 2, v, testRef),
		Score: raster.Filled(2, 2, 1, testRef),
	}
	require.NoError(t, f.store.Save(f.arch.Path(product, "", slot), s))
}

func (f *fixture) writeStations(t *testing.T, spi, spei string) {
	t.Helper()
	meteo := filepath.Join(f.cfg.ArchiveDir, "METEO")
	writeFile(t, filepath.Join(meteo, ledger.FeedFile(ledger.IndexSPI)), "NOM;DATE;SPI3_MENS\n"+spi)
	writeFile(t, filepath.Join(meteo, ledger.FeedFile(ledger.IndexSPEI)), "NOM;DATE;SPEI_3\n"+spei)
	stations := filepath.Join(f.cfg.AnnexDir, "Stations")
	for _, idx := range []string{ledger.IndexSPI, ledger.IndexSPEI} {
		writeFile(t, filepath.Join(stations, ledger.StationTableFile(idx)), "nom;station\nNord;Koumac\n")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func march2024() (time.Time, time.Time) {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
}

func TestRunner_DroughtMode_Watch(t *testing.T) {
	f := newFixture(t, domain.ModeDrought, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC))
	f.cfg.PeriodStart, f.cfg.PeriodEnd = march2024()
	march := domain.MonthSlot(2024, time.March)
	f.putIndex(t, index.ProductMAI, march, 0.5)
	f.putIndex(t, index.ProductVHI, march, 0.6)
	f.writeStations(t, "Koumac;202403;-1,5\n", "Koumac;202403;0,2\n")

	res, err := f.runner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "RUN_DROUGHT_20240301_20240401", res.Run.String())

	require.Len(t, res.Alerts, 1)
	got := res.Alerts[0]
	assert.Equal(t, "Nord", got.Location)
	assert.Equal(t, domain.LevelWatch, got.Level)
	assert.Equal(t, "Precipitation deficit", got.Precipitation)
	assert.Equal(t, "No evapotranspiration deficit", got.Evapotranspiration)
	assert.Equal(t, "No soil moisture deficit", got.SoilMoisture)
	assert.Equal(t, "No vegetation stress", got.Vegetation)
	assert.InDelta(t, 0.6, got.VHIMean, 1e-9)
	assert.True(t, math.IsNaN(got.Confidence))

	stored, err := ledger.NewAlerts(f.cfg.WorkDir).Read()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.LevelWatch, stored[0].Level)
	assert.Len(t, f.sink.records, 1)

	lut, err := ledger.ReadLUT(f.cfg.WorkDir)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "Nord"}, lut)
	_, err = f.store.Load(filepath.Join(f.cfg.WorkDir, pipeline.MaskFile(index.ProductVHI)))
	require.NoError(t, err)

	vhi, err := ledger.NewStats(f.cfg.WorkDir, index.ProductVHI, domain.Monthly).Read()
	require.NoError(t, err)
	locations := make([]string, len(vhi))
	for i, r := range vhi {
		locations[i] = r.Location
	}
	assert.Empty(t, cmp.Diff([]string{"Nouvelle-Caledonie", "Nord"}, locations))
	assert.FileExists(t, filepath.Join(f.cfg.WorkDir, ledger.RScoreFile))

	manifest, err := ledger.ReadManifest(f.cfg.WorkDir)
	require.NoError(t, err)
	products := make([]string, len(manifest))
	for i, e := range manifest {
		products[i] = e.Product
	}
	assert.Equal(t, []string{index.ProductVHI, ledger.IndexSPI, ledger.IndexSPEI}, products)
	assert.InDelta(t, 1, metricValue(t, f.metrics.AlertLevels.WithLabelValues(string(domain.LevelWatch))), 0)
}

func TestRunner_StationMissingFromFeedFailsRun(t *testing.T) {
	tests := []struct {
		name string
		mode domain.Mode
	}{
		{"drought", domain.ModeDrought},
		{"manual", domain.ModeManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mode, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC))
			f.cfg.PeriodStart, f.cfg.PeriodEnd = march2024()
			march := domain.MonthSlot(2024, time.March)
			f.putIndex(t, index.ProductMAI, march, 0.5)
			f.putIndex(t, index.ProductVHI, march, 0.6)
			f.writeStations(t, "Koumac;202403;-1,5\n", "Koumac;202403;0,2\n")
			writeFile(t, filepath.Join(f.cfg.AnnexDir, "Stations", ledger.StationTableFile(ledger.IndexSPI)), "nom;station;station\nNord;Koumac;Poum\n")

			res, err := f.runner().Run(context.Background())
			require.Error(t, err)
			var missing *domain.MissingProductError
			require.ErrorAs(t, err, &missing)
			assert.Contains(t, missing.Product, "Poum")
			assert.Equal(t, pipeline.OutcomeFailed, res.Outcome)
			assert.Empty(t, f.sink.records)
		})
	}
}

func TestRunner_RerunIsIdempotent(t *testing.T) {
	f := newFixture(t, domain.ModeDrought, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC))
	f.cfg.PeriodStart, f.cfg.PeriodEnd = march2024()
	march := domain.MonthSlot(2024, time.March)
	f.putIndex(t, index.ProductMAI, march, -2)
	f.putIndex(t, index.ProductVHI, march, 0.1)
	f.writeStations(t, "Koumac;202403;-1,5\n", "Koumac;202403;-1,2\n")

	r := f.runner()
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	first, err := ledger.NewAlerts(f.cfg.WorkDir).Read()
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	second, err := ledger.NewAlerts(f.cfg.WorkDir).Read()
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.Equal(t, domain.LevelAlert, second[0].Level)
	assert.Equal(t, first[0].Level, second[0].Level)
	assert.Equal(t, first[0].Key(), second[0].Key())
}

func TestRunner_MissingLayerNotProcessed(t *testing.T) {
	f := newFixture(t, domain.ModeDrought, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC))
	f.cfg.PeriodStart, f.cfg.PeriodEnd = march2024()
	f.putIndex(t, index.ProductVHI, domain.MonthSlot(2024, time.March), 0.6)
	f.writeStations(t, "Koumac;202403;0,5\n", "Koumac;202403;0,2\n")

	res, err := f.runner().Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, domain.NotProcessed, res.Alerts[0].SoilMoisture)
	assert.Equal(t, domain.LevelNone, res.Alerts[0].Level)
}

func TestRunner_AutoNotReady(t *testing.T) {
	f := newFixture(t, domain.ModeAuto, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))

	res, err := f.runner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeNotReady, res.Outcome)
	assert.Equal(t, "not_ready", manifestState(t, f, index.ProductSoilWater))
	assert.Empty(t, f.sink.records)
	assert.NoFileExists(t, filepath.Join(f.cfg.WorkDir, ledger.AlertFile))
	assert.InDelta(t, 1, metricValue(t, f.metrics.RunsTotal.WithLabelValues(pipeline.OutcomeNotReady)), 0)
}

func TestRunner_AutoStaleOverride(t *testing.T) {
	f := newFixture(t, domain.ModeAuto, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC))

	res, err := f.runner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeSuccess, res.Outcome)
	assert.True(t, res.Decision.Stale)
	assert.Equal(t, "RUN_AUTO_20240401_20240501", res.Run.String())
	assert.Positive(t, metricValue(t, f.metrics.StaleOverrides))

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, domain.LevelNoData, res.Alerts[0].Level)
	assert.Equal(t, domain.NotProcessed, res.Alerts[0].Vegetation)
}

func TestRunner_AutoNothingToDo(t *testing.T) {
	f := newFixture(t, domain.ModeAuto, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))
	f.putIndex(t, index.ProductVHI, domain.MonthSlot(2024, time.March), 0.6)

	res, err := f.runner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeNothingToDo, res.Outcome)
}

func TestRunner_IndicesModeCountsSlots(t *testing.T) {
	f := newFixture(t, domain.ModeIndices, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC))
	f.cfg.PeriodStart, f.cfg.PeriodEnd = march2024()

	res, err := f.runner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeSuccess, res.Outcome)
	assert.Zero(t, res.Computed)
	assert.Equal(t, 4, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, res.Alerts)
	assert.NoFileExists(t, filepath.Join(f.cfg.WorkDir, ledger.AlertFile))
}

func TestRunner_PeriodConfigError(t *testing.T) {
	f := newFixture(t, domain.ModeManual, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC))

	res, err := f.runner().Run(context.Background())
	require.Error(t, err)
	var pe *domain.PeriodConfigError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, pipeline.OutcomeFailed, res.Outcome)
}

func TestRunner_PublishFailureFailsRun(t *testing.T) {
	f := newFixture(t, domain.ModeDrought, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC))
	f.cfg.PeriodStart, f.cfg.PeriodEnd = march2024()
	f.putIndex(t, index.ProductVHI, domain.MonthSlot(2024, time.March), 0.6)
	f.sink.err = errors.New("broker down")

	_, err := f.runner().Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish alerts")

	stored, err := ledger.NewAlerts(f.cfg.WorkDir).Read()
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func manifestState(t *testing.T, f *fixture, product string) string {
	t.Helper()
	manifest, err := ledger.ReadManifest(f.cfg.WorkDir)
	require.NoError(t, err)
	for _, e := range manifest {
		if e.Product == product {
			return e.State
		}
	}
	t.Fatalf("no manifest entry for %s", product)
	return ""
}

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %s", m.Desc())
	return 0
}
