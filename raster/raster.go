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

// Package raster holds single-band gridded data and the operations
// used to load, clip, reproject, rescale and merge it.
package raster

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
)

// Raster is a single band of gridded data stored in row-major order,
// with row 0 at the northern edge. Missing values are NaN.
type Raster struct {
	Grid
	Data []float64
}

// Grid is the spatial layout of a Raster. Transform is a GDAL-style
// affine geotransform: {originX, pixelWidth, 0, originY, 0, -pixelHeight}.
type Grid struct {
	Rows, Cols int
	Transform  [6]float64
	CRS        string
}

// gridTolerance is the relative tolerance used when comparing
// geotransform coefficients.
const gridTolerance = 1e-9

// New returns a raster on the given grid with every value set to NaN.
func New(g Grid) *Raster {
	r := &Raster{Grid: g, Data: make([]float64, g.Rows*g.Cols)}
	for i := range r.Data {
		r.Data[i] = math.NaN()
	}
	return r
}

// At returns the value at the given row and column.
func (r *Raster) At(row, col int) float64 { return r.Data[row*r.Cols+col] }

// Set sets the value at the given row and column.
func (r *Raster) Set(row, col int, v float64) { r.Data[row*r.Cols+col] = v }

// Copy returns a deep copy of r.
func (r *Raster) Copy() *Raster {
	o := &Raster{Grid: r.Grid, Data: make([]float64, len(r.Data))}
	copy(o.Data, r.Data)
	return o
}

// Equal returns whether g and o describe the same grid.
func (g Grid) Equal(o Grid) bool {
	if g.Rows != o.Rows || g.Cols != o.Cols || g.CRS != o.CRS {
		return false
	}
	for i := range g.Transform {
		if !floats.EqualWithinAbsOrRel(g.Transform[i], o.Transform[i], gridTolerance, gridTolerance) {
			return false
		}
	}
	return true
}

// alignTolerance is the tolerance, as a fraction of a pixel, used when
// checking that a warped grid lines up with the grid it was warped onto.
const alignTolerance = 1e-6

// aligned returns an error describing how g differs from o, or nil if
// g has the same shape and CRS as o and its geotransform is within
// alignTolerance of a pixel of o's.
func (g Grid) aligned(o Grid) error {
	if g.Rows != o.Rows || g.Cols != o.Cols {
		return fmt.Errorf("have %dx%d pixels, want %dx%d", g.Rows, g.Cols, o.Rows, o.Cols)
	}
	if g.CRS != o.CRS {
		want, err := CanonicalCRS(o.CRS)
		if err != nil {
			return err
		}
		if g.CRS != want {
			return fmt.Errorf("have crs %q, want %q", g.CRS, o.CRS)
		}
	}
	pixel := math.Max(math.Abs(o.Transform[1]), math.Abs(o.Transform[5]))
	for i := range g.Transform {
		if math.Abs(g.Transform[i]-o.Transform[i]) > alignTolerance*pixel {
			return fmt.Errorf("have geotransform %v, want %v", g.Transform, o.Transform)
		}
	}
	return nil
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d grid, transform %v, crs %q", g.Rows, g.Cols, g.Transform, g.CRS)
}

// northUp returns an error if the grid is rotated or flipped.
func (g Grid) northUp() error {
	if g.Transform[2] != 0 || g.Transform[4] != 0 {
		return fmt.Errorf("raster: rotated grids are not supported (transform %v)", g.Transform)
	}
	if g.Transform[1] <= 0 || g.Transform[5] >= 0 {
		return fmt.Errorf("raster: grid is not north-up (transform %v)", g.Transform)
	}
	return nil
}

// Bounds returns the outer edges of the grid.
func (g Grid) Bounds() *geom.Bounds {
	x0, y0 := g.Transform[0], g.Transform[3]
	x1 := x0 + float64(g.Cols)*g.Transform[1] + float64(g.Rows)*g.Transform[2]
	y1 := y0 + float64(g.Cols)*g.Transform[4] + float64(g.Rows)*g.Transform[5]
	return &geom.Bounds{
		Min: geom.Point{X: math.Min(x0, x1), Y: math.Min(y0, y1)},
		Max: geom.Point{X: math.Max(x0, x1), Y: math.Max(y0, y1)},
	}
}

// Center returns the coordinates of the centre of the given cell.
func (g Grid) Center(row, col int) geom.Point {
	c, rr := float64(col)+0.5, float64(row)+0.5
	return geom.Point{
		X: g.Transform[0] + c*g.Transform[1] + rr*g.Transform[2],
		Y: g.Transform[3] + c*g.Transform[4] + rr*g.Transform[5],
	}
}

// Scale divides every value in r by f, unless f is 1 or 0.
// It returns r.
func (r *Raster) Scale(f float64) *Raster {
	if f == 1 || f == 0 {
		return r
	}
	floats.Scale(1/f, r.Data)
	return r
}

// Valid returns the values of r that are not NaN.
func (r *Raster) Valid() []float64 {
	o := make([]float64, 0, len(r.Data))
	for _, v := range r.Data {
		if !math.IsNaN(v) {
			o = append(o, v)
		}
	}
	return o
}

// Unique returns the sorted distinct values of r, ignoring NaN.
func (r *Raster) Unique() []float64 {
	v := r.Valid()
	sort.Float64s(v)
	o := v[:0]
	for i, x := range v {
		if i == 0 || x != v[i-1] {
			o = append(o, x)
		}
	}
	return o
}

// MinMax returns the minimum and maximum values of r, ignoring NaN.
// ok is false when r has no valid values.
func (r *Raster) MinMax() (min, max float64, ok bool) {
	v := r.Valid()
	if len(v) == 0 {
		return math.NaN(), math.NaN(), false
	}
	return floats.Min(v), floats.Max(v), true
}

// NaNMedian returns the median of r ignoring NaN values, or NaN if
// there are no valid values.
func (r *Raster) NaNMedian() float64 {
	v := r.Valid()
	if len(v) == 0 {
		return math.NaN()
	}
	sort.Float64s(v)
	n := len(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}

// CountValid returns the number of non-NaN values in r.
func (r *Raster) CountValid() int {
	n := 0
	for _, v := range r.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}
