package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/ledger"
	"github.com/couchcryptid/drought-monitor/internal/raster"
	"github.com/couchcryptid/drought-monitor/internal/zones"
)

// MaskFile names the stored zone mask of an indicator grid.
func MaskFile(indicator string) string { return "mask_Areas_" + indicator + ".tif" }

// Masks keeps one zone mask per indicator grid. Masks are read from the
// work directory when their shape matches and rasterized (and stored, with
// the id look-up table) otherwise.
type Masks struct {
	mu         sync.Mutex
	store      raster.Store
	rasterizer zones.Rasterizer
	dir        string
	logger     *slog.Logger
	cache      map[string]zones.Mask
}

// NewMasks returns a mask cache rooted at dir.
func NewMasks(store raster.Store, rasterizer zones.Rasterizer, dir string, logger *slog.Logger) *Masks {
	return &Masks{
		store:      store,
		rasterizer: rasterizer,
		dir:        dir,
		logger:     logger,
		cache:      make(map[string]zones.Mask),
	}
}

// Path returns where the mask of indicator is stored.
func (m *Masks) Path(indicator string) string {
	return filepath.Join(m.dir, MaskFile(indicator))
}

// For returns the mask of indicator aligned with shape.
func (m *Masks) For(indicator string, shape raster.Shape, areas []zones.SubArea) (zones.Mask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mask, ok := m.cache[indicator]; ok && sameGrid(mask.Shape, shape) {
		return mask, nil
	}
	stored, err := m.store.Load(m.Path(indicator))
	var missing *domain.MissingProductError
	switch {
	case err == nil:
		mask := zones.MaskFromGrid(stored.Value)
		if sameGrid(mask.Shape, shape) {
			m.cache[indicator] = mask
			return mask, nil
		}
		m.logger.Warn("stored zone mask does not match grid, rebuilding", "indicator", indicator)
	case errors.As(err, &missing):
	default:
		m.logger.Warn("stored zone mask unreadable, rebuilding", "indicator", indicator, "error", err)
	}
	return m.build(indicator, shape, areas)
}

// Build rasterizes and stores the mask of indicator unconditionally.
func (m *Masks) Build(indicator string, shape raster.Shape, areas []zones.SubArea) (zones.Mask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.build(indicator, shape, areas)
}

func (m *Masks) build(indicator string, shape raster.Shape, areas []zones.SubArea) (zones.Mask, error) {
	mask, err := m.rasterizer.Rasterize(areas, shape)
	if err != nil {
		return zones.Mask{}, fmt.Errorf("rasterize sub-areas: %w", err)
	}
	if err := m.store.Save(m.Path(indicator), raster.FromSingleBand(mask.Grid())); err != nil {
		return zones.Mask{}, fmt.Errorf("save zone mask: %w", err)
	}
	if err := ledger.WriteLUT(m.dir, areas); err != nil {
		return zones.Mask{}, fmt.Errorf("write zone look-up table: %w", err)
	}
	m.cache[indicator] = mask
	m.logger.Info("zone mask built", "indicator", indicator, "width", shape.W, "height", shape.H, "areas", len(areas))
	return mask, nil
}

func sameGrid(a, b raster.Shape) bool {
	return a.W == b.W && a.H == b.H && a.Ref.Transform == b.Ref.Transform
}
