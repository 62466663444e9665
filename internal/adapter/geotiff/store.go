// Package geotiff implements raster.Store and zones.Rasterizer on GDAL
// through godal. Rasters are two Float64 bands (value, score) with NaN
// nodata; single-band inputs get a synthesized score band.
package geotiff

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/raster"
)

var registerOnce sync.Once

// Store reads and writes GeoTIFF rasters on the local filesystem.
type Store struct {
	logger *slog.Logger
}

// NewStore registers the GDAL drivers once and returns a Store.
func NewStore(logger *slog.Logger) *Store {
	registerOnce.Do(godal.RegisterAll)
	return &Store{logger: logger}
}

func (s *Store) open(path string) (*godal.Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingProductError{Product: filepath.Base(path), Path: path}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	ds, err := godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			s.logger.Debug("gdal warning", "path", path, "code", code, "msg", msg)
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}))
	if err != nil {
		return nil, &domain.CorruptProductError{Path: path, Err: err}
	}
	return ds, nil
}

func ref(ds *godal.Dataset) raster.GeoRef {
	var r raster.GeoRef
	if gt, err := ds.GeoTransform(); err == nil {
		r.Transform = gt
	}
	if sr := ds.SpatialRef(); sr != nil {
		if wkt, err := sr.WKT(); err == nil {
			r.Projection = wkt
		}
		sr.Close()
	}
	return r
}

func (s *Store) Shape(path string) (raster.Shape, error) {
	ds, err := s.open(path)
	if err != nil {
		return raster.Shape{}, err
	}
	defer ds.Close()
	st := ds.Structure()
	return raster.Shape{W: st.SizeX, H: st.SizeY, Ref: ref(ds)}, nil
}

func (s *Store) Load(path string) (raster.Scored, error) {
	ds, err := s.open(path)
	if err != nil {
		return raster.Scored{}, err
	}
	defer ds.Close()
	st := ds.Structure()
	return s.read(ds, path, raster.Window{W: st.SizeX, H: st.SizeY})
}

func (s *Store) LoadWindow(path string, win raster.Window) (raster.Scored, error) {
	ds, err := s.open(path)
	if err != nil {
		return raster.Scored{}, err
	}
	defer ds.Close()
	st := ds.Structure()
	if !win.Within(st.SizeX, st.SizeY) {
		return raster.Scored{}, &domain.CorruptProductError{
			Path: path,
			Err:  fmt.Errorf("window %s outside %dx%d", win, st.SizeX, st.SizeY),
		}
	}
	return s.read(ds, path, win)
}

func (s *Store) read(ds *godal.Dataset, path string, win raster.Window) (raster.Scored, error) {
	bands := ds.Bands()
	if len(bands) == 0 {
		return raster.Scored{}, &domain.CorruptProductError{Path: path, Err: errors.New("no bands")}
	}
	r := ref(ds).Offset(win.X, win.Y)
	value, err := readBand(bands[0], win, r)
	if err != nil {
		return raster.Scored{}, &domain.CorruptProductError{Path: path, Err: err}
	}
	if len(bands) == 1 {
		return raster.FromSingleBand(value), nil
	}
	score, err := readBand(bands[1], win, r)
	if err != nil {
		return raster.Scored{}, &domain.CorruptProductError{Path: path, Err: err}
	}
	return raster.Scored{Value: value, Score: score}, nil
}

func readBand(b godal.Band, win raster.Window, r raster.GeoRef) (raster.Grid, error) {
	buf := make([]float64, win.W*win.H)
	if err := b.Read(win.X, win.Y, buf, win.W, win.H); err != nil {
		return raster.Grid{}, fmt.Errorf("read band: %w", err)
	}
	if nd, ok := b.NoData(); ok && !math.IsNaN(nd) {
		for i, v := range buf {
			if v == nd {
				buf[i] = math.NaN()
			}
		}
	}
	return raster.NewGrid(win.W, win.H, buf, r)
}

// Save writes s next to path and renames it into place.
func (s *Store) Save(path string, sc raster.Scored) error {
	if !sc.Value.SameShape(sc.Score) {
		return fmt.Errorf("save %s: band shape mismatch", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create raster dir: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := write(tmp, sc); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := replace(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func write(path string, sc raster.Scored) (err error) {
	w, h := sc.Width(), sc.Height()
	ds, err := godal.Create(godal.GTiff, path, 2, godal.Float64, w, h,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer func() {
		if cerr := ds.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()

	r := sc.Value.Ref()
	if err := ds.SetGeoTransform(r.Transform); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	if r.Projection != "" {
		sr, err := godal.NewSpatialRefFromWKT(r.Projection)
		if err != nil {
			return fmt.Errorf("parse projection: %w", err)
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return fmt.Errorf("set projection: %w", err)
		}
	}
	bands := ds.Bands()
	for i, g := range []raster.Grid{sc.Value, sc.Score} {
		if err := bands[i].SetNoData(math.NaN()); err != nil {
			return fmt.Errorf("set nodata: %w", err)
		}
		if err := bands[i].Write(0, 0, g.Values(), w, h); err != nil {
			return fmt.Errorf("write band %d: %w", i+1, err)
		}
	}
	return nil
}

// replace renames tmp onto path. A refused rename removes the target and
// retries once before reporting a *domain.ConcurrentWriteConflict.
func replace(tmp, path string) error {
	err := os.Rename(tmp, path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return &domain.ConcurrentWriteConflict{Path: path, Err: rmErr}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &domain.ConcurrentWriteConflict{Path: path, Err: err}
	}
	return nil
}

func (s *Store) List(pattern string) ([]string, error) {
	out, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", pattern, err)
	}
	sort.Strings(out)
	return out, nil
}
