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

// Package validate contains checks on output rasters. The checks log
// their findings and report whether they passed; they do not return
// errors.
package validate

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nppmap/raster"
)

// CRS checks whether the raster at path is in the expected coordinate
// reference system. Both are canonicalised before comparison so that,
// for example, a WKT definition of EPSG:32631 matches "EPSG:32631".
func CRS(path, expected string, log logrus.FieldLogger) bool {
	log = log.WithField("raster", filepath.Base(path))
	r, err := raster.Read(path)
	if err != nil {
		log.WithError(err).Error("failed to open raster for CRS check")
		return false
	}
	want, err := raster.CanonicalCRS(expected)
	if err != nil {
		log.WithError(err).Error("invalid expected CRS")
		return false
	}
	if r.CRS != want {
		log.WithFields(logrus.Fields{"found": r.CRS, "expected": expected}).Warn("CRS mismatch")
		return false
	}
	log.Info("CRS check passed")
	return true
}

// Classes checks whether every expected class code is present in the
// classification raster at path.
func Classes(path string, expected []int, log logrus.FieldLogger) bool {
	log = log.WithField("raster", filepath.Base(path))
	r, err := raster.Read(path)
	if err != nil {
		log.WithError(err).Error("failed to open raster for class check")
		return false
	}
	present := make(map[int]bool)
	for _, v := range r.Unique() {
		present[int(v)] = true
	}
	var missing []int
	for _, c := range expected {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		log.WithField("missing", missing).Warn("expected classes missing")
		return false
	}
	log.Info("all expected classes present")
	return true
}

// Bounds is an optional inclusive value range. A nil limit is not
// checked.
type Bounds struct {
	Min, Max *float64
}

// Range checks whether every non-NaN value of the raster at path is
// within [min, max]. A nil limit is not checked. A raster without valid
// values passes with a warning.
func Range(path string, min, max *float64, log logrus.FieldLogger) bool {
	log = log.WithField("raster", filepath.Base(path))
	r, err := raster.Read(path)
	if err != nil {
		log.WithError(err).Error("failed to open raster for range check")
		return false
	}
	lo, hi, ok := r.MinMax()
	if !ok {
		log.Warn("raster has no valid values")
		return true
	}
	if min != nil && lo < *min {
		log.WithFields(logrus.Fields{"min": lo, "expected": *min}).Warn("values below expected minimum")
		return false
	}
	if max != nil && hi > *max {
		log.WithFields(logrus.Fields{"max": hi, "expected": *max}).Warn("values above expected maximum")
		return false
	}
	log.Info("data range check passed")
	return true
}
