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

	"github.com/ctessum/geom"
	"github.com/spatialmodel/nppmap/boundary"
)

// ErrNoOverlap is returned when a clipping boundary does not cover any
// pixel centre of a raster.
var ErrNoOverlap = errors.New("raster: boundary does not overlap raster")

// Clip crops r to the bounding box of b and sets every pixel whose
// centre falls outside the boundary polygons to NaN. The boundary is
// reprojected to the CRS of r first.
func (r *Raster) Clip(b *boundary.Boundary) (*Raster, error) {
	if err := r.northUp(); err != nil {
		return nil, err
	}
	polys, err := b.Transform(r.CRS)
	if err != nil {
		return nil, fmt.Errorf("raster: clipping: %v", err)
	}
	bb := polys.Bounds()
	if !bb.Overlaps(r.Bounds()) {
		return nil, ErrNoOverlap
	}
	ox, oy := r.Transform[0], r.Transform[3]
	pw, ph := r.Transform[1], -r.Transform[5]
	c0 := clamp(int(math.Floor((bb.Min.X-ox)/pw)), 0, r.Cols)
	c1 := clamp(int(math.Ceil((bb.Max.X-ox)/pw)), 0, r.Cols)
	r0 := clamp(int(math.Floor((oy-bb.Max.Y)/ph)), 0, r.Rows)
	r1 := clamp(int(math.Ceil((oy-bb.Min.Y)/ph)), 0, r.Rows)
	if c1 <= c0 || r1 <= r0 {
		return nil, ErrNoOverlap
	}

	out := New(Grid{
		Rows:      r1 - r0,
		Cols:      c1 - c0,
		Transform: [6]float64{ox + float64(c0)*pw, pw, 0, oy - float64(r0)*ph, 0, -ph},
		CRS:       r.CRS,
	})
	inside := 0
	for i := 0; i < out.Rows; i++ {
		for j := 0; j < out.Cols; j++ {
			if out.Center(i, j).Within(polys) == geom.Outside {
				continue
			}
			inside++
			out.Set(i, j, r.At(r0+i, c0+j))
		}
	}
	if inside == 0 {
		return nil, ErrNoOverlap
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
