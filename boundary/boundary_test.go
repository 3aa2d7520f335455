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

package boundary

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

func writeFile(t *testing.T, name, contents string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadGeoJSON(t *testing.T) {
	tests := []struct {
		name, json string
		polygons   int
	}{
		{
			name:     "polygon",
			json:     `{"type": "Polygon","coordinates": [ [ [0, 0], [1, 0], [1, 1], [0, 0] ] ] }`,
			polygons: 1,
		},
		{
			name:     "multipolygon",
			json:     `{"type": "MultiPolygon","coordinates": [ [ [ [0, 0], [1, 0], [1, 1], [0, 0] ] ], [ [ [2, 2], [3, 2], [3, 3], [2, 2] ] ] ] }`,
			polygons: 2,
		},
		{
			name: "feature collection",
			json: `{"type": "FeatureCollection", "features": [
				{"type": "Feature", "properties": {}, "geometry": {"type": "Polygon","coordinates": [ [ [0, 0], [1, 0], [1, 1], [0, 0] ] ] }},
				{"type": "Feature", "properties": {}, "geometry": null}
			]}`,
			polygons: 1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b, err := Load(writeFile(t, "b.geojson", test.json))
			if err != nil {
				t.Fatal(err)
			}
			if len(b.Polygons) != test.polygons {
				t.Errorf("have %d polygons, want %d", len(b.Polygons), test.polygons)
			}
			if b.CRS != Geographic {
				t.Errorf("crs %q", b.CRS)
			}
		})
	}
	t.Run("point", func(t *testing.T) {
		_, err := Load(writeFile(t, "b.json", `{"type": "Point","coordinates": [0, 0]}`))
		if err == nil {
			t.Error("expected an error for a point geometry")
		}
	})
}

type shpRecord struct {
	geom.Polygon
	Name string
}

func TestLoadShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boundary.shp")
	e, err := shp.NewEncoder(path, shpRecord{})
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range []geom.Polygon{square(0, 0, 1, 1), square(2, 2, 3, 3)} {
		if err := e.Encode(shpRecord{Polygon: p, Name: string(rune('a' + i))}); err != nil {
			t.Fatal(err)
		}
	}
	e.Close()
	const prj = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "boundary.prj"), []byte(prj), 0644); err != nil {
		t.Fatal(err)
	}

	b, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Polygons) != 2 {
		t.Errorf("have %d polygons, want 2", len(b.Polygons))
	}
	if b.CRS != prj {
		t.Errorf("crs %q", b.CRS)
	}
	bounds := b.Bounds()
	if bounds.Min.X != 0 || bounds.Max.Y != 3 {
		t.Errorf("bounds %+v", bounds)
	}
}

func TestTransform(t *testing.T) {
	b, err := New("EPSG:4326", square(2.9, 0, 3.1, 1))
	if err != nil {
		t.Fatal(err)
	}
	p, err := b.Transform("EPSG:32631")
	if err != nil {
		t.Fatal(err)
	}
	bounds := p.Bounds()
	if !(bounds.Min.X < 500000 && bounds.Max.X > 500000) {
		t.Errorf("x range [%g, %g] should contain the central meridian", bounds.Min.X, bounds.Max.X)
	}
	if math.Abs(bounds.Min.Y) > 1 {
		t.Errorf("min y %g; want 0", bounds.Min.Y)
	}
	if bounds.Max.Y < 100000 || bounds.Max.Y > 120000 {
		t.Errorf("max y %g; want about 110 km", bounds.Max.Y)
	}

	same, err := b.Transform("EPSG:4326")
	if err != nil {
		t.Fatal(err)
	}
	if same.Bounds().Max.X != 3.1 {
		t.Error("transform to the same crs should not change coordinates")
	}
}

func TestTransformProjected(t *testing.T) {
	tests := []struct {
		crs       string
		lon, lat  float64
		x, y, tol float64
	}{
		{crs: "EPSG:3035", lon: 10, lat: 52, x: 4321000, y: 3210000, tol: 1},
		{crs: "EPSG:2154", lon: 3, lat: 46.5, x: 700000, y: 6600000, tol: 1},
		{crs: "EPSG:4258", lon: 4, lat: 51, x: 4, y: 51, tol: 1e-4},
		{crs: "EPSG:31370", lon: 4.3675, lat: 50.8, x: 150000, y: 165000, tol: 15000},
	}
	for _, test := range tests {
		t.Run(test.crs, func(t *testing.T) {
			const d = 0.001
			b, err := New("EPSG:4326", square(test.lon-d, test.lat-d, test.lon+d, test.lat+d))
			if err != nil {
				t.Fatal(err)
			}
			p, err := b.Transform(test.crs)
			if err != nil {
				t.Fatal(err)
			}
			bounds := p.Bounds()
			x := (bounds.Min.X + bounds.Max.X) / 2
			y := (bounds.Min.Y + bounds.Max.Y) / 2
			if math.Abs(x-test.x) > test.tol || math.Abs(y-test.y) > test.tol {
				t.Errorf("centre (%g, %g); want (%g, %g) within %g", x, y, test.x, test.y, test.tol)
			}
		})
	}
}

func TestSpatialReference(t *testing.T) {
	for _, crs := range []string{"EPSG:4326", "epsg:32631", "EPSG:32733", "EPSG:3857", "EPSG:31370", "EPSG:3035", "+proj=longlat +datum=WGS84"} {
		sr, err := SpatialReference(crs)
		if err != nil {
			t.Errorf("%s: %v", crs, err)
			continue
		}
		sr.Close()
	}
	for _, crs := range []string{"EPSG:99999", ""} {
		if _, err := SpatialReference(crs); err == nil {
			t.Errorf("%q: expected an error", crs)
		}
	}
}
