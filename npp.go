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

package nppmap

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nppmap/raster"
)

// kelvinThreshold is the median temperature above which temperature
// values are taken to be in kelvin.
const kelvinThreshold = 100

// Inputs holds the paths of the rasters needed to compute NPP.
// All rasters are resampled onto the LAI grid.
type Inputs struct {
	LAI            string
	FAPAR          string
	Temperature    string
	Radiation      string
	Classification string
}

func (in Inputs) check() error {
	for _, f := range []struct{ name, path string }{
		{"LAI", in.LAI},
		{"FAPAR", in.FAPAR},
		{"temperature", in.Temperature},
		{"radiation", in.Radiation},
		{"classification", in.Classification},
	} {
		if f.path == "" {
			return fmt.Errorf("nppmap: no %s raster specified", f.name)
		}
		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("nppmap: %s raster not found: %v", f.name, err)
		}
	}
	return nil
}

// TempFactor returns the temperature limitation factor for temperature t
// given the class temperature limits. It is zero outside (tmin, tmax) and
// peaks at 0.25 halfway between them. NaN input yields NaN.
func TempFactor(t, tmin, tmax float64) float64 {
	tf := ((t - tmin) * (tmax - t)) / ((tmax - tmin) * (tmax - tmin))
	if tf < 0 {
		return 0
	}
	return tf
}

// ToCelsius converts r from kelvin to degrees Celsius in place if its
// median value is above 100, and reports whether it did so.
func ToCelsius(r *raster.Raster) bool {
	if !(r.NaNMedian() > kelvinThreshold) {
		return false
	}
	for i, v := range r.Data {
		r.Data[i] = v - 273.15
	}
	return true
}

// match puts r on grid, returning an error if it cannot be aligned.
func match(name string, r *raster.Raster, grid raster.Grid, resampling string) (*raster.Raster, error) {
	m, err := r.Match(grid, resampling)
	if err != nil {
		return nil, fmt.Errorf("nppmap: %s raster does not match LAI grid (%v): %v", name, grid, err)
	}
	return m, nil
}

// Compute calculates net primary productivity from the input rasters and
// the per-class parameters in table, writes it to output and returns it.
// The result is on the LAI grid and is NaN wherever the classification
// is missing or its class is not in table. resampling is the method used
// to match the other rasters to the LAI grid; it defaults to nearest
// neighbour.
func Compute(in Inputs, table ConversionTable, output, resampling string, log logrus.FieldLogger) (*raster.Raster, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	if resampling == "" {
		resampling = raster.Nearest
	}
	if err := raster.CheckResampling(resampling); err != nil {
		return nil, err
	}

	log.WithField("path", in.LAI).Info("loading LAI raster")
	lai, err := raster.Read(in.LAI)
	if err != nil {
		return nil, err
	}
	grid := lai.Grid

	// The unit check uses the temperature values as read, before they
	// are resampled onto the LAI grid.
	log.WithField("path", in.Temperature).Info("loading temperature raster")
	temp, err := raster.Read(in.Temperature)
	if err != nil {
		return nil, err
	}
	if ToCelsius(temp) {
		log.Info("converted temperature from kelvin to degrees Celsius")
	}
	if temp, err = match("temperature", temp, grid, resampling); err != nil {
		return nil, err
	}
	load := func(name, path string) (*raster.Raster, error) {
		log.WithField("path", path).Infof("loading %s raster", name)
		r, err := raster.Read(path)
		if err != nil {
			return nil, err
		}
		return match(name, r, grid, resampling)
	}
	rad, err := load("radiation", in.Radiation)
	if err != nil {
		return nil, err
	}
	fapar, err := load("FAPAR", in.FAPAR)
	if err != nil {
		return nil, err
	}
	class, err := load("classification", in.Classification)
	if err != nil {
		return nil, err
	}

	log.WithField("classes", table.Classes()).Info("loaded conversion table")
	npp := raster.New(grid)
	present := classes(class)
	var missing []int
	for _, c := range present {
		p, ok := table[c]
		if !ok {
			missing = append(missing, c)
			continue
		}
		clog := log.WithField("class", c)
		code := float64(c)
		n := 0
		for i, v := range class.Data {
			if v != code {
				continue
			}
			gpp := p.EpsMax * fapar.Data[i] * rad.Data[i]
			npp.Data[i] = gpp * TempFactor(temp.Data[i], p.TMin, p.TMax)
			n++
		}
		if n == 0 {
			clog.Warn("class present but masked out")
			continue
		}
		clog.WithField("pixels", n).Debug("computed NPP for class")
	}
	if len(missing) > 0 {
		log.WithField("classes", missing).Warn("classes in classification raster missing from conversion table")
	}

	log.WithField("path", output).Info("saving NPP raster")
	if err := raster.Write(output, npp); err != nil {
		return nil, err
	}
	return npp, nil
}

// classes returns the distinct class codes in r, truncating
// non-integer values.
func classes(r *raster.Raster) []int {
	seen := make(map[int]bool)
	for _, v := range r.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		seen[int(v)] = true
	}
	o := make([]int, 0, len(seen))
	for c := range seen {
		o = append(o, c)
	}
	sort.Ints(o)
	return o
}
