/*
Copyright © 2024 the NPPMap authors.
This file is part of NPPMap.

NPPMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

NPPMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with NPPMap.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package boundary reads the polygons used to clip rasters and
// reprojects them between coordinate reference systems.
package boundary

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
)

// Geographic is the CRS assumed for GeoJSON files and for
// shapefiles without a .prj file.
const Geographic = "EPSG:4326"

// Boundary is a set of polygons in a known coordinate reference system.
type Boundary struct {
	Polygons geom.MultiPolygon

	// CRS is the coordinate reference system of Polygons, either as
	// an "EPSG:code" string, WKT, or a proj4 string.
	CRS string
}

// New returns a boundary made from the given polygons in the given CRS.
func New(crs string, polygons ...geom.Polygon) (*Boundary, error) {
	sr, err := SpatialReference(crs)
	if err != nil {
		return nil, err
	}
	sr.Close()
	if len(polygons) == 0 {
		return nil, fmt.Errorf("boundary: no polygons")
	}
	return &Boundary{Polygons: geom.MultiPolygon(polygons), CRS: crs}, nil
}

// Load reads a boundary from a shapefile (.shp) or a GeoJSON file
// (.json or .geojson). All polygons in the file are kept.
func Load(path string) (*Boundary, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return loadShp(path)
	case ".json", ".geojson":
		return loadGeoJSON(path)
	default:
		return nil, fmt.Errorf("boundary: unsupported file type %q", path)
	}
}

func loadShp(path string) (*Boundary, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("boundary: opening shapefile %s: %v", path, err)
	}
	defer d.Close()

	crs := Geographic
	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	if b, err := ioutil.ReadFile(prj); err == nil {
		crs = strings.TrimSpace(string(b))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("boundary: reading %s: %v", prj, err)
	}

	var polys []geom.Polygon
	for {
		var rec struct {
			geom.Geom
		}
		if ok := d.DecodeRow(&rec); !ok {
			break
		}
		p, err := polygons(rec.Geom)
		if err != nil {
			return nil, fmt.Errorf("boundary: %s: %v", path, err)
		}
		polys = append(polys, p...)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("boundary: decoding %s: %v", path, err)
	}
	b, err := New(crs, polys...)
	if err != nil {
		return nil, fmt.Errorf("boundary: %s: %v", path, err)
	}
	return b, nil
}

// geoJSONObject holds the members of a GeoJSON object needed to find
// its geometries.
type geoJSONObject struct {
	Type     string            `json:"type"`
	Geometry json.RawMessage   `json:"geometry"`
	Features []json.RawMessage `json:"features"`
}

func loadGeoJSON(path string) (*Boundary, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("boundary: reading %s: %v", path, err)
	}
	var polys []geom.Polygon
	if err := decodeGeoJSON(b, &polys); err != nil {
		return nil, fmt.Errorf("boundary: decoding %s: %v", path, err)
	}
	bnd, err := New(Geographic, polys...)
	if err != nil {
		return nil, fmt.Errorf("boundary: %s: %v", path, err)
	}
	return bnd, nil
}

// decodeGeoJSON appends the polygons in a GeoJSON geometry, Feature or
// FeatureCollection to polys.
func decodeGeoJSON(b []byte, polys *[]geom.Polygon) error {
	var o geoJSONObject
	if err := json.Unmarshal(b, &o); err != nil {
		return err
	}
	switch o.Type {
	case "FeatureCollection":
		for _, f := range o.Features {
			if err := decodeGeoJSON(f, polys); err != nil {
				return err
			}
		}
		return nil
	case "Feature":
		if len(o.Geometry) == 0 || string(o.Geometry) == "null" {
			return nil
		}
		return decodeGeoJSON(o.Geometry, polys)
	default:
		g, err := geojson.Decode(b)
		if err != nil {
			return err
		}
		p, err := polygons(g)
		if err != nil {
			return err
		}
		*polys = append(*polys, p...)
		return nil
	}
}

func polygons(g geom.Geom) ([]geom.Polygon, error) {
	switch t := g.(type) {
	case geom.Polygon:
		return []geom.Polygon{t}, nil
	case geom.MultiPolygon:
		return []geom.Polygon(t), nil
	default:
		return nil, fmt.Errorf("invalid boundary geometry type %T", g)
	}
}

// Transform returns the boundary polygons in the given CRS, which may
// be anything GDAL accepts as a spatial reference.
func (b *Boundary) Transform(crs string) (geom.MultiPolygon, error) {
	if crs == b.CRS {
		return b.Polygons, nil
	}
	src, err := SpatialReference(b.CRS)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	dst, err := SpatialReference(crs)
	if err != nil {
		return nil, err
	}
	defer dst.Close()
	if src.IsSame(dst) {
		return b.Polygons, nil
	}
	t, err := godal.NewTransform(src, dst)
	if err != nil {
		return nil, fmt.Errorf("boundary: creating transform to %s: %v", crs, err)
	}
	defer t.Close()

	out := make(geom.MultiPolygon, len(b.Polygons))
	for i, p := range b.Polygons {
		out[i] = make(geom.Polygon, len(p))
		for j, ring := range p {
			if out[i][j], err = transformRing(t, ring); err != nil {
				return nil, fmt.Errorf("boundary: transforming to %s: %v", crs, err)
			}
		}
	}
	return out, nil
}

func transformRing(t *godal.Transform, ring geom.Path) (geom.Path, error) {
	if len(ring) == 0 {
		return nil, nil
	}
	x := make([]float64, len(ring))
	y := make([]float64, len(ring))
	for i, pt := range ring {
		x[i], y[i] = pt.X, pt.Y
	}
	if err := t.TransformEx(x, y, nil, nil); err != nil {
		return nil, err
	}
	o := make(geom.Path, len(ring))
	for i := range o {
		o[i] = geom.Point{X: x[i], Y: y[i]}
	}
	return o, nil
}

// Bounds returns the bounding box of the boundary in its own CRS.
func (b *Boundary) Bounds() *geom.Bounds { return b.Polygons.Bounds() }

// SpatialReference parses crs, which may be an "EPSG:code" string, WKT,
// a proj4 string or anything else GDAL accepts. Coordinates are in
// x/y (longitude/latitude) order. The caller must Close the result.
func SpatialReference(crs string) (*godal.SpatialRef, error) {
	if strings.TrimSpace(crs) == "" {
		return nil, fmt.Errorf("boundary: empty crs")
	}
	sr, err := godal.NewSpatialRef(crs)
	if err != nil {
		return nil, fmt.Errorf("boundary: parsing crs %q: %v", crs, err)
	}
	return sr, nil
}
