package index

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/gammazero/workerpool"

	"github.com/couchcryptid/drought-monitor/internal/archive"
	"github.com/couchcryptid/drought-monitor/internal/baseline"
	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/raster"
)

// Archive product names. Inputs are two-band composites (value, count);
// outputs are two-band indices (value, qscore).
const (
	ProductSoilWater = "SWI"    // ASCAT soil water index
	ProductLST       = "LST"    // MODIS land surface temperature
	ProductNDVI      = "NDVI"   // MODIS vegetation index
	ProductHighResVI = "HRNDVI" // Landsat / Sentinel-2 vegetation index, per satellite tile
	ProductMAI       = "MAI"
	ProductTCI       = "TCI"
	ProductVCI       = "VCI"
	ProductVHI       = "VHI"
	ProductVAI       = "VAI"
)

// Calculator computes and archives index rasters for one slot at a time.
type Calculator struct {
	store   raster.Store
	arch    archive.Archive
	builder *baseline.Builder
	logger  *slog.Logger
	tiles   int
	workers int
	alpha   float64
}

// Option customizes a Calculator.
type Option func(*Calculator)

// WithTiling sets the VAI tile count (1 or 4) and worker pool size.
func WithTiling(tiles, workers int) Option {
	return func(c *Calculator) {
		c.tiles = tiles
		c.workers = workers
	}
}

// WithAlpha overrides the VHI weighting.
func WithAlpha(alpha float64) Option {
	return func(c *Calculator) { c.alpha = alpha }
}

// NewCalculator wires a calculator over store and arch.
func NewCalculator(store raster.Store, arch archive.Archive, builder *baseline.Builder, logger *slog.Logger, opts ...Option) *Calculator {
	c := &Calculator{
		store:   store,
		arch:    arch,
		builder: builder,
		logger:  logger,
		tiles:   4,
		workers: 4,
		alpha:   DefaultAlpha,
	}
	for _, o := range opts {
		o(c)
	}
	if c.workers < 1 {
		c.workers = 1
	}
	return c
}

// Monthly composites daily products of source into a monthly composite in the
// archive.
func (c *Calculator) Monthly(source string, slot domain.Slot) (raster.Scored, error) {
	paths, err := c.arch.Daily(c.store, source, slot)
	if err != nil {
		return raster.Scored{}, err
	}
	if len(paths) == 0 {
		return raster.Scored{}, fmt.Errorf("%s %s composite: %w", source, slot, domain.ErrNoProducts)
	}
	stack := make([]raster.Grid, 0, len(paths))
	for _, p := range paths {
		s, err := c.store.Load(p)
		if err != nil {
			return raster.Scored{}, fmt.Errorf("load daily %s: %w", p, err)
		}
		stack = append(stack, s.Value)
	}
	comp, err := Composite(stack)
	if err != nil {
		return raster.Scored{}, fmt.Errorf("%s %s composite: %w", source, slot, err)
	}
	if err := c.store.Save(c.arch.Path(source, "", slot), comp); err != nil {
		return raster.Scored{}, fmt.Errorf("save %s composite: %w", source, err)
	}
	c.logger.Info("composite built", "product", source, "slot", slot, "days", len(paths))
	return comp, nil
}

// MAI computes the moisture anomaly index from soil water composites.
func (c *Calculator) MAI(slot domain.Slot) (raster.Scored, error) {
	base, cur, err := c.builder.Build(baseline.Request{
		Product: ProductSoilWater, Slot: slot, Kind: baseline.MeanStd, MaxObs: MaxObsMonth,
	})
	if err != nil {
		return raster.Scored{}, fmt.Errorf("MAI %s: %w", slot, err)
	}
	out, err := ZScore(base, cur, MaxObsMonth)
	if err != nil {
		return raster.Scored{}, fmt.Errorf("MAI %s: %w", slot, err)
	}
	return out, c.save(ProductMAI, "", slot, out)
}

// TCI computes the temperature condition index from LST composites.
func (c *Calculator) TCI(slot domain.Slot) (raster.Scored, error) {
	return c.condition(ProductTCI, ProductLST, slot, true)
}

// VCI computes the vegetation condition index from NDVI composites.
func (c *Calculator) VCI(slot domain.Slot) (raster.Scored, error) {
	return c.condition(ProductVCI, ProductNDVI, slot, false)
}

func (c *Calculator) condition(name, source string, slot domain.Slot, inverted bool) (raster.Scored, error) {
	base, cur, err := c.builder.Build(baseline.Request{
		Product: source, Slot: slot, Kind: baseline.MinMax, MaxObs: MaxObsMonth,
	})
	if err != nil {
		return raster.Scored{}, fmt.Errorf("%s %s: %w", name, slot, err)
	}
	out, err := Condition(base, cur, MaxObsMonth, inverted)
	if err != nil {
		return raster.Scored{}, fmt.Errorf("%s %s: %w", name, slot, err)
	}
	return out, c.save(name, "", slot, out)
}

// VHI fuses the archived VCI and TCI of slot.
func (c *Calculator) VHI(slot domain.Slot) (raster.Scored, error) {
	vci, err := c.component(ProductVCI, slot)
	if err != nil {
		return raster.Scored{}, err
	}
	tci, err := c.component(ProductTCI, slot)
	if err != nil {
		return raster.Scored{}, err
	}
	out, err := Fuse(vci, tci, c.alpha)
	if err != nil {
		return raster.Scored{}, fmt.Errorf("VHI %s: %w", slot, err)
	}
	return out, c.save(ProductVHI, "", slot, out)
}

func (c *Calculator) component(name string, slot domain.Slot) (raster.Scored, error) {
	s, err := c.store.Load(c.arch.Path(name, "", slot))
	var missing *domain.MissingProductError
	if errors.As(err, &missing) {
		return raster.Scored{}, &domain.MissingComponentError{Index: ProductVHI, Component: name, Slot: slot}
	}
	return s, err
}

// VAI computes the vegetation anomaly index of one satellite tile for a
// decade slot. Large rasters are split into pixel windows processed on a
// worker pool; every window is independent so the mosaic equals the untiled
// result.
func (c *Calculator) VAI(slot domain.Slot, tile string) (raster.Scored, error) {
	shape, err := c.store.Shape(c.arch.Path(ProductHighResVI, tile, slot))
	var missing *domain.MissingProductError
	if errors.As(err, &missing) {
		return raster.Scored{}, fmt.Errorf("VAI %s %s: %w", tile, slot, domain.ErrNoProducts)
	}
	if err != nil {
		return raster.Scored{}, fmt.Errorf("VAI %s %s: %w", tile, slot, err)
	}
	wins, err := raster.Tiles(shape.W, shape.H, c.tiles)
	if err != nil {
		return raster.Scored{}, err
	}

	value := raster.NewMosaic(shape.W, shape.H, shape.Ref)
	score := raster.NewMosaic(shape.W, shape.H, shape.Ref)
	errs := make([]error, len(wins))
	wp := workerpool.New(c.workers)
	for i, win := range wins {
		wp.Submit(func() {
			errs[i] = c.vaiWindow(slot, tile, win, value, score)
		})
	}
	wp.StopWait()
	if err := errors.Join(errs...); err != nil {
		return raster.Scored{}, fmt.Errorf("VAI %s %s: %w", tile, slot, err)
	}

	out := raster.Scored{Value: value.Grid(), Score: score.Grid()}
	return out, c.save(ProductVAI, tile, slot, out)
}

func (c *Calculator) vaiWindow(slot domain.Slot, tile string, win raster.Window, value, score *raster.Mosaic) error {
	base, cur, err := c.builder.Build(baseline.Request{
		Product: ProductHighResVI, Tile: tile, Slot: slot,
		Kind: baseline.MeanStd, MaxObs: MaxObsDecade, Window: &win,
	})
	if err != nil {
		return err
	}
	out, err := ZScore(base, cur, MaxObsDecade)
	if err != nil {
		return err
	}
	out = ZeroUndefined(out)
	if err := value.Paste(win, out.Value); err != nil {
		return err
	}
	c.logger.Debug("VAI window done", "tile", tile, "slot", slot, "window", win.String())
	return score.Paste(win, out.Score)
}

func (c *Calculator) save(name, tile string, slot domain.Slot, s raster.Scored) error {
	path := c.arch.Path(name, tile, slot)
	if err := c.store.Save(path, s); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	c.logger.Info("index computed", "index", name, "slot", slot, "tile", tile,
		"valid_pixels", s.Value.ValidCount(), "mean_qscore", meanScore(s.Score))
	return nil
}

func meanScore(g raster.Grid) float64 {
	if g.Len() == 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := 0; i < g.Len(); i++ {
		sum += g.At(i)
	}
	return sum / float64(g.Len())
}
