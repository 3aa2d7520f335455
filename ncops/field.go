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

package ncops

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/spatialmodel/nppmap/raster"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Coordinate variable names, in order of preference.
var (
	timeNames = []string{"time", "valid_time"}
	latNames  = []string{"latitude", "lat"}
	lonNames  = []string{"longitude", "lon"}
)

// field is a variable on a (time, latitude, longitude) grid.
type field struct {
	times      []time.Time
	lats, lons []float64
	data       []float64
}

func (f *field) at(t, i, j int) float64 {
	return f.data[(t*len(f.lats)+i)*len(f.lons)+j]
}

// slab is a variable on a (latitude, longitude) grid.
type slab struct {
	lats, lons []float64
	data       []float64
}

func (s *slab) at(i, j int) float64 { return s.data[i*len(s.lons)+j] }

func findName(v *variable, names []string) (int, string) {
	for _, n := range names {
		for i, d := range v.dims {
			if d == n {
				return i, n
			}
		}
	}
	return -1, ""
}

// loadField reads varName from ds and reorders it to
// (time, latitude, longitude). A "valid_time" dimension is treated as
// "time". Any other dimensions must have length 1.
func loadField(ds dataset, varName string) (*field, error) {
	v, err := ds.variable(varName)
	if err != nil {
		return nil, err
	}
	v.unpack()
	ti, tname := findName(v, timeNames)
	yi, yname := findName(v, latNames)
	xi, xname := findName(v, lonNames)
	switch {
	case ti < 0:
		return nil, fmt.Errorf("ncops: variable %s has no time dimension (dimensions %v)", varName, v.dims)
	case yi < 0:
		return nil, fmt.Errorf("ncops: variable %s has no latitude dimension (dimensions %v)", varName, v.dims)
	case xi < 0:
		return nil, fmt.Errorf("ncops: variable %s has no longitude dimension (dimensions %v)", varName, v.dims)
	}
	for i, d := range v.dims {
		if i != ti && i != yi && i != xi && v.shape[i] != 1 {
			return nil, fmt.Errorf("ncops: variable %s has extra dimension %s of length %d", varName, d, v.shape[i])
		}
	}

	f := new(field)
	tv, err := ds.variable(tname)
	if err != nil {
		return nil, fmt.Errorf("ncops: reading time coordinate: %v", err)
	}
	f.times, err = decodeTimes(tv.data, attrString(tv.attrs, "units"), attrString(tv.attrs, "calendar"))
	if err != nil {
		return nil, err
	}
	if f.lats, err = coordinate(ds, yname); err != nil {
		return nil, err
	}
	if f.lons, err = coordinate(ds, xname); err != nil {
		return nil, err
	}
	nt, ny, nx := v.shape[ti], v.shape[yi], v.shape[xi]
	if len(f.times) != nt || len(f.lats) != ny || len(f.lons) != nx {
		return nil, fmt.Errorf("ncops: coordinate lengths (%d, %d, %d) do not match variable %s shape %v",
			len(f.times), len(f.lats), len(f.lons), varName, v.shape)
	}

	// Row-major strides of the source variable.
	strides := make([]int, len(v.shape))
	s := 1
	for i := len(v.shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= v.shape[i]
	}
	f.data = make([]float64, nt*ny*nx)
	for t := 0; t < nt; t++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				f.data[(t*ny+y)*nx+x] = v.data[t*strides[ti]+y*strides[yi]+x*strides[xi]]
			}
		}
	}
	return f, nil
}

func coordinate(ds dataset, name string) ([]float64, error) {
	if !ds.has(name) {
		return nil, fmt.Errorf("ncops: missing coordinate variable %s", name)
	}
	v, err := ds.variable(name)
	if err != nil {
		return nil, err
	}
	v.unpack()
	return v.data, nil
}

// selectTime returns the time steps of f within ts.
func (f *field) selectTime(ts TimeSlice) (*field, error) {
	from, to, err := ts.Interval()
	if err != nil {
		return nil, err
	}
	n := len(f.lats) * len(f.lons)
	o := &field{lats: f.lats, lons: f.lons}
	for t, tt := range f.times {
		if tt.Before(from) || !tt.Before(to) {
			continue
		}
		o.times = append(o.times, tt)
		o.data = append(o.data, f.data[t*n:(t+1)*n]...)
	}
	if len(o.times) == 0 {
		return nil, fmt.Errorf("ncops: no time steps between %s and %s", ts.Start, ts.End)
	}
	return o, nil
}

// mean returns the mean over time, ignoring NaN. Cells with no valid
// values are NaN.
func (f *field) mean() *slab {
	n := len(f.lats) * len(f.lons)
	o := &slab{lats: f.lats, lons: f.lons, data: make([]float64, n)}
	vals := make([]float64, 0, len(f.times))
	for c := 0; c < n; c++ {
		vals = vals[:0]
		for t := range f.times {
			if v := f.data[t*n+c]; !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			o.data[c] = math.NaN()
			continue
		}
		o.data[c] = stat.Mean(vals, nil)
	}
	return o
}

// diff returns the first difference along time. Each difference is
// labelled with the later of its two time steps.
func (f *field) diff() (*field, error) {
	if len(f.times) < 2 {
		return nil, fmt.Errorf("ncops: at least two time steps are needed to difference; have %d", len(f.times))
	}
	n := len(f.lats) * len(f.lons)
	o := &field{lats: f.lats, lons: f.lons, times: f.times[1:], data: make([]float64, (len(f.times)-1)*n)}
	for t := 1; t < len(f.times); t++ {
		floats.SubTo(o.data[(t-1)*n:t*n], f.data[t*n:(t+1)*n], f.data[(t-1)*n:t*n])
	}
	return o, nil
}

// dailySum sums f over each UTC calendar day present in f, ignoring NaN.
// A cell with no valid values on a day sums to 0.
func (f *field) dailySum() *field {
	n := len(f.lats) * len(f.lons)
	idx := make(map[time.Time]int)
	o := &field{lats: f.lats, lons: f.lons}
	for t, tt := range f.times {
		day := time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, time.UTC)
		d, ok := idx[day]
		if !ok {
			d = len(o.times)
			idx[day] = d
			o.times = append(o.times, day)
			o.data = append(o.data, make([]float64, n)...)
		}
		dst := o.data[d*n : (d+1)*n]
		for c, v := range f.data[t*n : (t+1)*n] {
			if !math.IsNaN(v) {
				dst[c] += v
			}
		}
	}
	return o
}

// BBox is a geographic bounding box in degrees.
type BBox struct {
	LonMin, LonMax, LatMin, LatMax float64
}

// clip returns the part of s within b, ordered north to south and west
// to east. Latitudes may be stored in either order. Longitudes in the
// range [0, 360) are shifted to [-180, 180) when b uses negative
// longitudes.
func (s *slab) clip(b BBox) (*slab, error) {
	if b.LatMin > b.LatMax || b.LonMin > b.LonMax {
		return nil, fmt.Errorf("ncops: invalid bounding box %+v", b)
	}
	lons := append([]float64(nil), s.lons...)
	if b.LonMin < 0 && floats.Max(lons) > 180 {
		for i, x := range lons {
			if x >= 180 {
				lons[i] = x - 360
			}
		}
	}
	var rows, cols []int
	for i, y := range s.lats {
		if y >= b.LatMin && y <= b.LatMax {
			rows = append(rows, i)
		}
	}
	for j, x := range lons {
		if x >= b.LonMin && x <= b.LonMax {
			cols = append(cols, j)
		}
	}
	if len(rows) == 0 || len(cols) == 0 {
		return nil, fmt.Errorf("ncops: bounding box %+v contains no grid points", b)
	}
	sort.Slice(rows, func(i, j int) bool { return s.lats[rows[i]] > s.lats[rows[j]] })
	sort.Slice(cols, func(i, j int) bool { return lons[cols[i]] < lons[cols[j]] })

	o := &slab{
		lats: make([]float64, len(rows)),
		lons: make([]float64, len(cols)),
		data: make([]float64, len(rows)*len(cols)),
	}
	for i, r := range rows {
		o.lats[i] = s.lats[r]
		for j, c := range cols {
			o.data[i*len(cols)+j] = s.at(r, c)
		}
	}
	for j, c := range cols {
		o.lons[j] = lons[c]
	}
	return o, nil
}

// raster converts s, which must be ordered north to south and west to
// east on a regular grid, to a geographic (EPSG:4326) raster whose
// cells are centred on the grid points.
func (s *slab) raster() (*raster.Raster, error) {
	ny, nx := len(s.lats), len(s.lons)
	if ny < 2 || nx < 2 {
		return nil, fmt.Errorf("ncops: at least two points are needed along each axis to determine the grid resolution; have %d latitudes and %d longitudes", ny, nx)
	}
	dx := (s.lons[nx-1] - s.lons[0]) / float64(nx-1)
	dy := (s.lats[0] - s.lats[ny-1]) / float64(ny-1)
	if err := regular(s.lons, dx); err != nil {
		return nil, fmt.Errorf("ncops: longitude: %v", err)
	}
	if err := regular(s.lats, -dy); err != nil {
		return nil, fmt.Errorf("ncops: latitude: %v", err)
	}
	r := raster.New(raster.Grid{
		Rows:      ny,
		Cols:      nx,
		Transform: [6]float64{s.lons[0] - dx/2, dx, 0, s.lats[0] + dy/2, 0, -dy},
		CRS:       "EPSG:4326",
	})
	copy(r.Data, s.data)
	return r, nil
}

// regular checks that the coordinates c are evenly spaced by step.
func regular(c []float64, step float64) error {
	const tol = 1e-4
	for i := 1; i < len(c); i++ {
		if math.Abs((c[i]-c[i-1])-step) > tol*math.Abs(step) {
			return fmt.Errorf("irregular spacing between %g and %g (expected step %g)", c[i-1], c[i], step)
		}
	}
	return nil
}
