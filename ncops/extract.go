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

// Package ncops extracts temporal aggregates of climate variables from
// netCDF files and writes them as rasters in a projected CRS.
package ncops

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nppmap/raster"
)

// Extraction specifies a variable to extract from a netCDF file and
// where to write the result.
type Extraction struct {
	// File is the netCDF file to read.
	File string

	// Variable is the name of the variable to extract.
	Variable string

	// BBox is the geographic area to keep.
	BBox BBox

	// TimeSlice is the period to aggregate over.
	TimeSlice TimeSlice

	// CRS is the coordinate reference system of the output raster.
	CRS string

	// Resampling is the method used to reproject the output.
	// The default is nearest neighbour.
	Resampling string

	// Output is the path of the output raster.
	Output string
}

// ExtractMean writes the mean of e.Variable over e.TimeSlice, clipped to
// e.BBox and reprojected to e.CRS, to e.Output.
func ExtractMean(e Extraction, log logrus.FieldLogger) (*raster.Raster, error) {
	log = log.WithFields(logrus.Fields{"file": e.File, "variable": e.Variable})
	f, err := e.load(log)
	if err != nil {
		return nil, err
	}
	return e.write(f.mean(), log)
}

// ExtractSSRD processes accumulated surface solar radiation: it takes the
// difference between consecutive time steps, sums the differences over
// each day, averages the daily sums and writes the result, clipped to
// e.BBox and reprojected to e.CRS, to e.Output.
func ExtractSSRD(e Extraction, log logrus.FieldLogger) (*raster.Raster, error) {
	log = log.WithFields(logrus.Fields{"file": e.File, "variable": e.Variable})
	f, err := e.load(log)
	if err != nil {
		return nil, err
	}
	hourly, err := f.diff()
	if err != nil {
		return nil, err
	}
	daily := hourly.dailySum()
	log.WithField("days", len(daily.times)).Debug("computed daily sums")
	return e.write(daily.mean(), log)
}

func (e Extraction) load(log logrus.FieldLogger) (*field, error) {
	ds, err := open(e.File)
	if err != nil {
		return nil, err
	}
	defer ds.Close()
	f, err := loadField(ds, e.Variable)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"start": e.TimeSlice.Start, "end": e.TimeSlice.End}).Info("selecting time slice")
	f, err = f.selectTime(e.TimeSlice)
	if err != nil {
		return nil, fmt.Errorf("%v in %s", err, e.File)
	}
	log.WithField("steps", len(f.times)).Debug("selected time steps")
	return f, nil
}

func (e Extraction) write(s *slab, log logrus.FieldLogger) (*raster.Raster, error) {
	s, err := s.clip(e.BBox)
	if err != nil {
		return nil, err
	}
	r, err := s.raster()
	if err != nil {
		return nil, err
	}
	r, err = r.Reproject(e.CRS, e.Resampling)
	if err != nil {
		return nil, err
	}
	if err := raster.Write(e.Output, r); err != nil {
		return nil, err
	}
	log.WithField("path", e.Output).Info("wrote raster")
	return r, nil
}
