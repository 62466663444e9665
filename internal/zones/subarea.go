// Package zones loads sub-area polygons, rasterizes them into zone masks
// aligned with index grids, and computes per-zone statistics.
package zones

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
)

// DefaultKey is the feature property holding the sub-area name.
const DefaultKey = "nom"

// SubArea is a named polygon with a stable integer id. Mask pixels carry the
// id; 0 is reserved for "outside every sub-area".
type SubArea struct {
	ID       int
	Name     string
	Geometry orb.Geometry
}

// LoadGeoJSON parses a FeatureCollection of polygons. Names are read from the
// key property. Features are sorted by name; when OBJECTID is absent, ids are
// assigned as position + 1 in that order.
func LoadGeoJSON(data []byte, key string) ([]SubArea, error) {
	if key == "" {
		key = DefaultKey
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode sub-areas: %w", err)
	}

	areas := make([]SubArea, 0, len(fc.Features))
	for i, f := range fc.Features {
		name, ok := f.Properties[key].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("sub-area feature %d: missing key %q", i, key)
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("sub-area %s: unsupported geometry %T", name, f.Geometry)
		}
		a := SubArea{Name: name, Geometry: f.Geometry}
		switch v := f.Properties["OBJECTID"].(type) {
		case float64:
			a.ID = int(v)
		case int:
			a.ID = v
		}
		areas = append(areas, a)
	}
	sort.SliceStable(areas, func(i, j int) bool { return areas[i].Name < areas[j].Name })
	seen := make(map[int]string, len(areas))
	for i := range areas {
		if areas[i].ID == 0 {
			areas[i].ID = i + 1
		}
		if prev, dup := seen[areas[i].ID]; dup {
			return nil, fmt.Errorf("sub-areas %s and %s share OBJECTID %d", prev, areas[i].Name, areas[i].ID)
		}
		seen[areas[i].ID] = areas[i].Name
	}
	return areas, nil
}

// ByName indexes sub-areas by name.
func ByName(areas []SubArea) map[string]SubArea {
	out := make(map[string]SubArea, len(areas))
	for _, a := range areas {
		out[a.Name] = a
	}
	return out
}

// WKB encodes the geometry for hand-off to GDAL.
func (a SubArea) WKB() ([]byte, error) {
	b, err := wkb.Marshal(a.Geometry)
	if err != nil {
		return nil, fmt.Errorf("encode sub-area %s: %w", a.Name, err)
	}
	return b, nil
}
