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
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/cdf"
	"github.com/spf13/cast"
)

// variable holds the values of a netCDF variable as float64, along with
// its dimension names, shape and attributes.
type variable struct {
	name  string
	dims  []string
	shape []int
	data  []float64
	attrs map[string]interface{}
}

// dataset is an open netCDF file.
type dataset interface {
	variable(name string) (*variable, error)
	has(name string) bool
	Close() error
}

var (
	cdfMagic  = []byte("CDF")
	hdf5Magic = []byte("\x89HDF\r\n\x1a\n")
)

// open opens the netCDF file at path. NetCDF-3 classic and 64-bit
// offset files are read with the cdf package; netCDF-4 (HDF5) files
// are read with a pure-Go HDF5 reader.
func open(path string) (dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncops: opening %s: %v", path, err)
	}
	magic := make([]byte, len(hdf5Magic))
	if _, err := io.ReadFull(f, magic); err != nil {
		f.Close()
		return nil, fmt.Errorf("ncops: reading %s: %v", path, err)
	}
	switch {
	case bytes.HasPrefix(magic, cdfMagic):
		return openCDF(f)
	case bytes.Equal(magic, hdf5Magic):
		f.Close()
		g, err := netcdf.Open(path)
		if err != nil {
			return nil, fmt.Errorf("ncops: opening %s: %v", path, err)
		}
		return &hdfFile{g: g}, nil
	default:
		f.Close()
		return nil, fmt.Errorf("ncops: %s is not a netCDF file", path)
	}
}

type cdfFile struct {
	ff   *os.File
	f    *cdf.File
	size int64
}

func openCDF(ff *os.File) (*cdfFile, error) {
	f, err := cdf.Open(ff)
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("ncops: opening %s: %v", ff.Name(), err)
	}
	st, err := ff.Stat()
	if err != nil {
		ff.Close()
		return nil, err
	}
	return &cdfFile{ff: ff, f: f, size: st.Size()}, nil
}

func (c *cdfFile) Close() error { return c.ff.Close() }

func (c *cdfFile) has(name string) bool {
	for _, v := range c.f.Header.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

func (c *cdfFile) variable(name string) (*variable, error) {
	if !c.has(name) {
		return nil, fmt.Errorf("ncops: variable %q not in file", name)
	}
	h := c.f.Header
	v := &variable{
		name:  name,
		dims:  h.Dimensions(name),
		shape: append([]int(nil), h.Lengths(name)...),
		attrs: make(map[string]interface{}),
	}
	for _, a := range h.Attributes(name) {
		v.attrs[a] = h.GetAttribute(name, a)
	}
	if !h.IsRecordVariable(name) {
		r := c.f.Reader(name, nil, nil)
		buf := r.Zero(-1)
		if _, err := r.Read(buf); err != nil && err != io.EOF {
			return nil, fmt.Errorf("ncops: reading %s: %v", name, err)
		}
		v.data = flatten(buf, nil)
		return v, nil
	}

	// Record variables are read one record at a time.
	v.shape[0] = int(h.NumRecs(c.size))
	nread := 1
	for _, l := range v.shape[1:] {
		nread *= l
	}
	v.data = make([]float64, 0, nread*v.shape[0])
	for rec := 0; rec < v.shape[0]; rec++ {
		start, end := make([]int, len(v.shape)), make([]int, len(v.shape))
		start[0], end[0] = rec, rec+1
		r := c.f.Reader(name, start, end)
		buf := r.Zero(nread)
		if _, err := r.Read(buf); err != nil && err != io.EOF {
			return nil, fmt.Errorf("ncops: reading %s record %d: %v", name, rec, err)
		}
		v.data = flatten(buf, v.data)
	}
	return v, nil
}

type hdfFile struct {
	g api.Group
}

func (h *hdfFile) Close() error {
	h.g.Close()
	return nil
}

func (h *hdfFile) has(name string) bool {
	for _, v := range h.g.ListVariables() {
		if v == name {
			return true
		}
	}
	return false
}

func (h *hdfFile) variable(name string) (*variable, error) {
	if !h.has(name) {
		return nil, fmt.Errorf("ncops: variable %q not in file", name)
	}
	hv, err := h.g.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("ncops: reading %s: %v", name, err)
	}
	v := &variable{
		name:  name,
		dims:  hv.Dimensions,
		shape: shapeOf(hv.Values),
		data:  flatten(hv.Values, nil),
		attrs: make(map[string]interface{}),
	}
	if hv.Attributes != nil {
		for _, k := range hv.Attributes.Keys() {
			v.attrs[k], _ = hv.Attributes.Get(k)
		}
	}
	return v, nil
}

// shapeOf returns the lengths of the nested slices in values.
func shapeOf(values interface{}) []int {
	var shape []int
	rv := reflect.ValueOf(values)
	for rv.IsValid() && rv.Kind() == reflect.Slice {
		shape = append(shape, rv.Len())
		if rv.Len() == 0 {
			break
		}
		rv = rv.Index(0)
	}
	return shape
}

// flatten appends the numeric values in the (possibly nested) slice
// values to dst.
func flatten(values interface{}, dst []float64) []float64 {
	switch t := values.(type) {
	case []float32:
		for _, x := range t {
			dst = append(dst, float64(x))
		}
		return dst
	case []float64:
		return append(dst, t...)
	case []int16:
		for _, x := range t {
			dst = append(dst, float64(x))
		}
		return dst
	case []int32:
		for _, x := range t {
			dst = append(dst, float64(x))
		}
		return dst
	}
	rv := reflect.ValueOf(values)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			dst = flatten(rv.Index(i).Interface(), dst)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst = append(dst, float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst = append(dst, float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		dst = append(dst, rv.Float())
	default:
		dst = append(dst, math.NaN())
	}
	return dst
}

// attrFloat returns the first value of a numeric attribute.
func attrFloat(attrs map[string]interface{}, name string) (float64, bool) {
	a, ok := attrs[name]
	if !ok || a == nil {
		return 0, false
	}
	rv := reflect.ValueOf(a)
	if rv.Kind() == reflect.Slice {
		if rv.Len() == 0 {
			return 0, false
		}
		a = rv.Index(0).Interface()
	}
	f, err := cast.ToFloat64E(a)
	if err != nil {
		return 0, false
	}
	return f, true
}

// attrString returns a text attribute.
func attrString(attrs map[string]interface{}, name string) string {
	a, ok := attrs[name]
	if !ok || a == nil {
		return ""
	}
	if b, ok := a.([]byte); ok {
		return string(bytes.TrimRight(b, "\x00"))
	}
	return cast.ToString(a)
}

// unpack applies the CF packing attributes to v: fill and missing values
// become NaN, then scale_factor and add_offset are applied.
func (v *variable) unpack() {
	var missing []float64
	for _, a := range []string{"_FillValue", "missing_value"} {
		if f, ok := attrFloat(v.attrs, a); ok {
			missing = append(missing, f)
		}
	}
	scale, hasScale := attrFloat(v.attrs, "scale_factor")
	offset, hasOffset := attrFloat(v.attrs, "add_offset")
	for i, x := range v.data {
		for _, m := range missing {
			if x == m {
				x = math.NaN()
				break
			}
		}
		if hasScale {
			x *= scale
		}
		if hasOffset {
			x += offset
		}
		v.data[i] = x
	}
}
