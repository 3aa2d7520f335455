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

// Package estk clips and reprojects the ecosystem classification raster.
package estk

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nppmap/boundary"
	"github.com/spatialmodel/nppmap/raster"
)

// DefaultCRS is the default target coordinate reference system.
const DefaultCRS = "EPSG:32631"

// ClipAndReproject clips the classification raster at path to b, writes
// the clipped raster to clipped, then reprojects it to crs with
// nearest-neighbour resampling, since the values are categories, and
// writes the result to reprojected. If crs is empty, DefaultCRS is used.
func ClipAndReproject(path string, b *boundary.Boundary, clipped, reprojected, crs string, log logrus.FieldLogger) (*raster.Raster, error) {
	if crs == "" {
		crs = DefaultCRS
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("estk: classification raster not found: %v", err)
	}
	log = log.WithField("estk", path)

	log.Info("opening classification raster")
	r, err := raster.Read(path)
	if err != nil {
		return nil, err
	}
	log.Info("masking classification raster with boundary")
	c, err := r.Clip(b)
	if err != nil {
		return nil, fmt.Errorf("estk: clipping %s: %w", path, err)
	}
	log.WithField("path", clipped).Info("saving clipped classification raster")
	if err := raster.Write(clipped, c); err != nil {
		return nil, err
	}

	c, err = raster.Read(clipped)
	if err != nil {
		return nil, err
	}
	log.WithField("crs", crs).Info("reprojecting clipped classification raster")
	rp, err := c.Reproject(crs, raster.Nearest)
	if err != nil {
		return nil, err
	}
	log.WithField("path", reprojected).Info("saving reprojected classification raster")
	if err := raster.Write(reprojected, rp); err != nil {
		return nil, err
	}
	return rp, nil
}
