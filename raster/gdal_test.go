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

package raster

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nppmap/boundary"
)

func TestWriteRead(t *testing.T) {
	r := testRaster()
	path := filepath.Join(t.TempDir(), "sub", "r.tif")
	if err := Write(path, r); err != nil {
		t.Fatal(err)
	}
	r2, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if !r2.Grid.Equal(r.Grid) {
		t.Errorf("grid: have %v, want %v", r2.Grid, r.Grid)
	}
	for i, v := range r.Data {
		if math.IsNaN(v) != math.IsNaN(r2.Data[i]) || (!math.IsNaN(v) && v != r2.Data[i]) {
			t.Errorf("value %d: have %g, want %g", i, r2.Data[i], v)
		}
	}
}

func TestReprojectCRS(t *testing.T) {
	r := ones(2, 52, 4, 4)
	rp, err := r.Reproject("EPSG:32631", Nearest)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "utm.tif")
	if err := Write(path, rp); err != nil {
		t.Fatal(err)
	}
	r2, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if r2.CRS != "EPSG:32631" {
		t.Errorf("crs: have %q, want EPSG:32631", r2.CRS)
	}
	if r2.CountValid() == 0 {
		t.Error("reprojected raster has no data")
	}
}

func TestReprojectMatch(t *testing.T) {
	coarse := ones(0, 4, 4, 4)
	for i := range coarse.Data {
		coarse.Data[i] = float64(i)
	}
	fine := New(Grid{Rows: 8, Cols: 8, Transform: [6]float64{0, 0.5, 0, 4, 0, -0.5}, CRS: "EPSG:4326"})
	m, err := coarse.ReprojectMatch(fine.Grid, Nearest)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Grid.Equal(fine.Grid) {
		t.Fatalf("grid: have %v, want %v", m.Grid, fine.Grid)
	}
	if m.At(0, 0) != 0 || m.At(7, 7) != 15 || m.At(2, 3) != 5 {
		t.Errorf("unexpected values %v", m.Data)
	}
}

func TestReprojectMatchMisaligned(t *testing.T) {
	r := ones(0, 4, 4, 4)
	rotated := Grid{Rows: 4, Cols: 4, Transform: [6]float64{0, 1, 0.25, 4, 0, -1}, CRS: "EPSG:4326"}
	if _, err := r.ReprojectMatch(rotated, Nearest); err == nil {
		t.Error("expected an error when the warped grid cannot match a rotated grid")
	}
	m, err := r.Match(r.Grid, Nearest)
	if err != nil {
		t.Fatal(err)
	}
	if m != r {
		t.Error("Match on the same grid should return the raster unchanged")
	}
}

func TestGridAligned(t *testing.T) {
	g := Grid{Rows: 2, Cols: 2, Transform: [6]float64{0, 10, 0, 20, 0, -10}, CRS: "EPSG:4326"}
	near := g
	near.Transform[0] += 1e-8
	if err := near.aligned(g); err != nil {
		t.Errorf("sub-pixel noise: %v", err)
	}
	shifted := g
	shifted.Transform[0] += 1
	if err := shifted.aligned(g); err == nil {
		t.Error("expected an error for a shifted origin")
	}
	bigger := g
	bigger.Rows = 3
	if err := bigger.aligned(g); err == nil {
		t.Error("expected an error for a different shape")
	}
	utm := g
	utm.CRS = "EPSG:32631"
	if err := utm.aligned(g); err == nil {
		t.Error("expected an error for a different crs")
	}
}

func TestMergeTiles(t *testing.T) {
	dir := t.TempDir()
	west := filepath.Join(dir, "west.tif")
	east := filepath.Join(dir, "east.tif")
	far := filepath.Join(dir, "far.tif")
	if err := Write(west, ones(2, 52, 4, 2)); err != nil {
		t.Fatal(err)
	}
	if err := Write(east, ones(4, 52, 4, 2)); err != nil {
		t.Fatal(err)
	}
	if err := Write(far, ones(40, 10, 2, 2)); err != nil {
		t.Fatal(err)
	}
	b, err := boundary.New("EPSG:4326", square(2, 48, 6, 52))
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "merged.tif")
	m, err := MergeTiles([]string{west, east, far}, b, "EPSG:4326", 2, Nearest, out, logrus.StandardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if m.CountValid() != 16 {
		t.Errorf("merged valid pixels %d; want 16", m.CountValid())
	}
	if min, max, _ := m.MinMax(); min != 0.5 || max != 0.5 {
		t.Errorf("scaled range [%g, %g]; want [0.5, 0.5]", min, max)
	}
	if _, err := Read(out); err != nil {
		t.Error(err)
	}
}
