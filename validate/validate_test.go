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

package validate

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nppmap/raster"
)

func writeTestRaster(t *testing.T, crs string, v ...float64) string {
	t.Helper()
	r := raster.New(raster.Grid{Rows: 2, Cols: 2, Transform: [6]float64{2, 1, 0, 52, 0, -1}, CRS: crs})
	copy(r.Data, v)
	path := filepath.Join(t.TempDir(), "r.tif")
	if err := raster.Write(path, r); err != nil {
		t.Fatal(err)
	}
	return path
}

func float(f float64) *float64 { return &f }

func TestCRS(t *testing.T) {
	log := logrus.New()
	path := writeTestRaster(t, "EPSG:4326", 1, 2, 3, 4)
	if !CRS(path, "EPSG:4326", log) {
		t.Error("matching CRS failed")
	}
	if CRS(path, "EPSG:32631", log) {
		t.Error("mismatched CRS passed")
	}
	if CRS(filepath.Join(t.TempDir(), "missing.tif"), "EPSG:4326", log) {
		t.Error("missing file passed")
	}
}

func TestClasses(t *testing.T) {
	log := logrus.New()
	path := writeTestRaster(t, "EPSG:4326", 10, 20, 20, math.NaN())
	tests := []struct {
		expected []int
		want     bool
	}{
		{expected: []int{10, 20}, want: true},
		{expected: []int{10}, want: true},
		{expected: nil, want: true},
		{expected: []int{10, 30}, want: false},
	}
	for _, test := range tests {
		if have := Classes(path, test.expected, log); have != test.want {
			t.Errorf("Classes(%v) = %v, want %v", test.expected, have, test.want)
		}
	}
}

func TestRange(t *testing.T) {
	log := logrus.New()
	path := writeTestRaster(t, "EPSG:4326", 0, 0.5, 1, math.NaN())
	tests := []struct {
		name     string
		min, max *float64
		want     bool
	}{
		{name: "no limits", want: true},
		{name: "inclusive", min: float(0), max: float(1), want: true},
		{name: "below", min: float(0.1), want: false},
		{name: "above", max: float(0.9), want: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if have := Range(path, test.min, test.max, log); have != test.want {
				t.Errorf("have %v, want %v", have, test.want)
			}
		})
	}
	empty := writeTestRaster(t, "EPSG:4326", math.NaN(), math.NaN(), math.NaN(), math.NaN())
	if !Range(empty, float(0), float(1), log) {
		t.Error("raster without valid values should pass")
	}
}
