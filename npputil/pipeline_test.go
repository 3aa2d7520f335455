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

package npputil

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spatialmodel/nppmap"
	"github.com/spatialmodel/nppmap/raster"
	"gonum.org/v1/gonum/floats"
)

func TestVersion(t *testing.T) {
	var b bytes.Buffer
	Root.SetOut(&b)
	Root.SetErr(&b)
	defer Root.SetOut(nil)
	defer Root.SetErr(nil)
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "NPPMap v" + nppmap.Version; !strings.Contains(b.String(), want) {
		t.Errorf("have %q, want %q", b.String(), want)
	}
}

// writeProcessed writes processed input rasters on a 2x2 UTM grid and
// sets the configuration to use them.
func writeProcessed(t *testing.T, dir string) {
	t.Helper()
	g := raster.Grid{Rows: 2, Cols: 2, Transform: [6]float64{500000, 1000, 0, 5600000, 0, -1000}, CRS: "EPSG:32631"}
	for option, v := range map[string][]float64{
		"LAI.Output":                 {1, 2, 3, 4},
		"FAPAR.Output":               {0.5, 0.5, 0.5, 0.5},
		"Climate.Temperature.Output": {288.15, 288.15, 288.15, 288.15},
		"Climate.Radiation.Output":   {200, 200, 200, 200},
		"ESTK.Reprojected":           {10, 10, 20, math.NaN()},
	} {
		r := raster.New(g)
		copy(r.Data, v)
		path := filepath.Join(dir, strings.ToLower(option)+".tif")
		if err := raster.Write(path, r); err != nil {
			t.Fatal(err)
		}
		Cfg.Set(option, path)
	}
	table := filepath.Join(dir, "table.csv")
	if err := os.WriteFile(table, []byte("class,eps_max,T_min,T_max\n10,1.2,0,30\n"), 0644); err != nil {
		t.Fatal(err)
	}
	Cfg.Set("NPP.ConversionTable", table)
	Cfg.Set("NPP.Output", filepath.Join(dir, "output", "npp.tif"))
	Cfg.Set("LogFile", filepath.Join(dir, "log", "nppmap.log"))
	Cfg.Set("TargetCRS", "EPSG:32631")
}

func TestComputeAndValidate(t *testing.T) {
	dir := t.TempDir()
	writeProcessed(t, dir)
	Cfg.Set("Validate.ExpectedClasses", "[10,20]")
	Cfg.Set("Validate.Ranges", `{"FAPAR":{"min":0,"max":1},"NPP":{"min":0,"max":100}}`)

	Root.SetArgs([]string{"compute"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	npp, err := raster.Read(filepath.Join(dir, "output", "npp.tif"))
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{0, 1} {
		if !floats.EqualWithinAbsOrRel(npp.Data[i], 30, 1e-9, 1e-9) {
			t.Errorf("pixel %d: have %g, want 30", i, npp.Data[i])
		}
	}
	if !math.IsNaN(npp.Data[2]) || !math.IsNaN(npp.Data[3]) {
		t.Errorf("pixels without parameters: have %v, want NaN", npp.Data[2:])
	}
	if b, err := os.ReadFile(filepath.Join(dir, "log", "nppmap.log")); err != nil || !strings.Contains(string(b), "saving NPP raster") {
		t.Errorf("log file: %q, %v", b, err)
	}

	Root.SetArgs([]string{"validate"})
	if err := Root.Execute(); err != nil {
		t.Errorf("validation failed: %v", err)
	}

	Cfg.Set("Validate.Ranges", `{"NPP":{"max":10}}`)
	Root.SetArgs([]string{"validate"})
	if err := Root.Execute(); err == nil {
		t.Error("expected validation failure for NPP above maximum")
	}

	Cfg.Set("Validate.Ranges", `{}`)
	Cfg.Set("Validate.ExpectedClasses", "[10,30]")
	Root.SetArgs([]string{"validate"})
	if err := Root.Execute(); err == nil {
		t.Error("expected validation failure for missing class")
	}
	Cfg.Set("Validate.ExpectedClasses", "[]")
}

func TestComputeMissingTable(t *testing.T) {
	dir := t.TempDir()
	writeProcessed(t, dir)
	Cfg.Set("NPP.ConversionTable", filepath.Join(dir, "missing.csv"))
	Root.SetArgs([]string{"compute"})
	if err := Root.Execute(); err == nil {
		t.Error("expected error for missing conversion table")
	}
}
