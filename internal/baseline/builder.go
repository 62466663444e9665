package baseline

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/drought-monitor/internal/archive"
	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/raster"
)

// Request names the composite series a baseline is built from.
type Request struct {
	Product string
	Tile    string
	Slot    domain.Slot
	Kind    Kind
	MaxObs  float64
	// Window restricts loading to a pixel window; nil loads full rasters.
	Window *raster.Window
}

// Builder loads same-calendar-slot series from the archive and builds
// baselines, reusing cached results while the input file set is unchanged.
type Builder struct {
	store  raster.Store
	arch   archive.Archive
	cache  *Cache
	logger *slog.Logger
}

// NewBuilder wires a builder. cache may be nil to disable caching.
func NewBuilder(store raster.Store, arch archive.Archive, cache *Cache, logger *slog.Logger) *Builder {
	return &Builder{store: store, arch: arch, cache: cache, logger: logger}
}

// Build returns the historical baseline for req together with the
// processing-year composite. It returns domain.ErrNoProducts when the slot
// itself has no composite and domain.ErrSingleYear when no earlier year
// exists.
func (b *Builder) Build(req Request) (Baseline, raster.Scored, error) {
	series, err := b.arch.Series(b.store, req.Product, req.Tile, req.Slot)
	if err != nil {
		return Baseline{}, raster.Scored{}, err
	}
	var current *archive.Entry
	for i := range series.Current {
		if series.Current[i].Slot == req.Slot {
			current = &series.Current[i]
		}
	}
	if current == nil {
		return Baseline{}, raster.Scored{}, fmt.Errorf("%s %s: %w", req.Product, req.Slot, domain.ErrNoProducts)
	}
	if len(series.Historical) == 0 {
		return Baseline{}, raster.Scored{}, fmt.Errorf("%s %s: %w", req.Product, req.Slot, domain.ErrSingleYear)
	}

	cur, err := b.load(current.Path, req.Window)
	if err != nil {
		return Baseline{}, raster.Scored{}, err
	}

	paths := make([]string, len(series.Historical))
	for i, e := range series.Historical {
		paths[i] = e.Path
	}
	win := "full"
	if req.Window != nil {
		win = req.Window.String()
	}
	key := keyOf(req.Product, req.Tile, win, Fingerprint(req.Kind, paths))
	if b.cache != nil {
		if base, ok := b.cache.Get(key); ok {
			b.logger.Debug("baseline cache hit", "product", req.Product, "slot", req.Slot, "years", base.Years)
			return base, cur, nil
		}
	}

	hist := make([]raster.Scored, 0, len(paths))
	for _, p := range paths {
		s, err := b.load(p, req.Window)
		if err != nil {
			return Baseline{}, raster.Scored{}, err
		}
		hist = append(hist, s)
	}
	base, err := Build(req.Kind, hist, req.MaxObs)
	if err != nil {
		return Baseline{}, raster.Scored{}, fmt.Errorf("build %s baseline for %s: %w", req.Product, req.Slot, err)
	}
	if b.cache != nil {
		b.cache.Put(key, base)
	}
	b.logger.Debug("baseline built", "product", req.Product, "slot", req.Slot, "kind", req.Kind, "years", base.Years)
	return base, cur, nil
}

func (b *Builder) load(path string, win *raster.Window) (raster.Scored, error) {
	if win == nil {
		return b.store.Load(path)
	}
	return b.store.LoadWindow(path, *win)
}
