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
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nppmap/boundary"
)

// LoadClipReproject reads the raster at path, clips it to b, reprojects
// it to crs and divides it by scale. Masked values are NaN.
func LoadClipReproject(path string, b *boundary.Boundary, crs string, scale float64, resampling string, log logrus.FieldLogger) (*Raster, error) {
	log = log.WithField("raster", path)
	log.Info("loading raster")
	if n, err := NBands(path); err != nil {
		return nil, err
	} else if n > 1 {
		log.Warnf("raster has %d bands; only the first is used", n)
	}
	r, err := Read(path)
	if err != nil {
		return nil, err
	}
	if r.CRS != b.CRS {
		log.WithFields(logrus.Fields{"from": b.CRS, "to": r.CRS}).Debug("reprojecting boundary")
	}
	clipped, err := r.Clip(b)
	if err != nil {
		return nil, fmt.Errorf("raster: clipping %s: %w", path, err)
	}
	log.WithField("crs", crs).Info("reprojecting clipped raster")
	out, err := clipped.Reproject(crs, resampling)
	if err != nil {
		return nil, fmt.Errorf("raster: %s: %v", path, err)
	}
	return out.Scale(scale), nil
}

// Mosaic merges rasters so that each output pixel takes the first
// non-NaN value among the inputs, in order. The output covers the
// union of the input extents on the grid of the first raster. All
// inputs must share a CRS.
func Mosaic(rasters ...*Raster) (*Raster, error) {
	if len(rasters) == 0 {
		return nil, fmt.Errorf("raster: no rasters to merge")
	}
	first := rasters[0]
	if err := first.northUp(); err != nil {
		return nil, err
	}
	bounds := first.Bounds()
	for i, r := range rasters[1:] {
		if r.CRS != first.CRS {
			return nil, fmt.Errorf("raster: cannot merge raster %d with crs %q into crs %q", i+1, r.CRS, first.CRS)
		}
		if err := r.northUp(); err != nil {
			return nil, err
		}
		bounds.Extend(r.Bounds())
	}

	const eps = 1e-9
	pw, ph := first.Transform[1], -first.Transform[5]
	ox := first.Transform[0] - math.Ceil((first.Transform[0]-bounds.Min.X)/pw-eps)*pw
	oy := first.Transform[3] + math.Ceil((bounds.Max.Y-first.Transform[3])/ph-eps)*ph
	out := New(Grid{
		Rows:      int(math.Ceil((oy-bounds.Min.Y)/ph - eps)),
		Cols:      int(math.Ceil((bounds.Max.X-ox)/pw - eps)),
		Transform: [6]float64{ox, pw, 0, oy, 0, -ph},
		CRS:       first.CRS,
	})
	for _, r := range rasters {
		for i := 0; i < r.Rows; i++ {
			for j := 0; j < r.Cols; j++ {
				v := r.At(i, j)
				if math.IsNaN(v) {
					continue
				}
				c := r.Center(i, j)
				col := int(math.Floor((c.X - ox) / pw))
				row := int(math.Floor((oy - c.Y) / ph))
				if row < 0 || row >= out.Rows || col < 0 || col >= out.Cols {
					continue
				}
				if math.IsNaN(out.At(row, col)) {
					out.Set(row, col, v)
				}
			}
		}
	}
	return out, nil
}

// MergeTiles clips and reprojects each tile with LoadClipReproject and
// merges the results with Mosaic. Tiles that do not overlap the boundary
// are skipped. If out is not empty, the merged raster is written there.
func MergeTiles(paths []string, b *boundary.Boundary, crs string, scale float64, resampling, out string, log logrus.FieldLogger) (*Raster, error) {
	var tiles []*Raster
	for _, p := range paths {
		r, err := LoadClipReproject(p, b, crs, scale, resampling, log)
		if errors.Is(err, ErrNoOverlap) {
			log.WithField("raster", p).Warn("tile does not overlap boundary; skipping")
			continue
		} else if err != nil {
			return nil, err
		}
		tiles = append(tiles, r)
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("raster: none of the %d tiles overlap the boundary", len(paths))
	}
	merged, err := Mosaic(tiles...)
	if err != nil {
		return nil, err
	}
	if out != "" {
		log.WithField("path", out).Info("saving merged raster")
		if err := Write(out, merged); err != nil {
			return nil, err
		}
	}
	return merged, nil
}
