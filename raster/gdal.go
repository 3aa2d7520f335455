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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerOnce sync.Once

// register loads the GDAL drivers the first time it is called.
func register() { registerOnce.Do(godal.RegisterAll) }

// gdalErrors ignores GDAL warnings and turns everything else into an error.
func gdalErrors(ec godal.ErrorCategory, code int, msg string) error {
	if ec == godal.CE_Warning {
		return nil
	}
	return fmt.Errorf("gdal error %d: %s", code, msg)
}

// Resampling methods accepted by Reproject and ReprojectMatch.
const (
	Nearest  = "near"
	Bilinear = "bilinear"
	Cubic    = "cubic"
	Average  = "average"
	Mode     = "mode"
)

// CheckResampling returns an error if method is not a supported
// resampling method.
func CheckResampling(method string) error {
	switch method {
	case Nearest, Bilinear, Cubic, Average, Mode:
		return nil
	default:
		return fmt.Errorf("raster: invalid resampling method %q; valid options are %s, %s, %s, %s and %s",
			method, Nearest, Bilinear, Cubic, Average, Mode)
	}
}

// Read reads the first band of the raster file at path. No-data values
// are converted to NaN. Additional bands are ignored.
func Read(path string) (*Raster, error) {
	register()
	ds, err := godal.Open(path, godal.ErrLogger(gdalErrors))
	if err != nil {
		return nil, fmt.Errorf("raster: opening %s: %v", path, err)
	}
	defer ds.Close()
	r, err := fromDataset(ds)
	if err != nil {
		return nil, fmt.Errorf("raster: reading %s: %v", path, err)
	}
	return r, nil
}

// NBands returns the number of bands in the raster file at path.
func NBands(path string) (int, error) {
	register()
	ds, err := godal.Open(path, godal.ErrLogger(gdalErrors))
	if err != nil {
		return 0, fmt.Errorf("raster: opening %s: %v", path, err)
	}
	defer ds.Close()
	return ds.Structure().NBands, nil
}

func fromDataset(ds *godal.Dataset) (*Raster, error) {
	st := ds.Structure()
	if st.NBands < 1 {
		return nil, fmt.Errorf("dataset has no bands")
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("geotransform: %v", err)
	}
	crs, err := CanonicalCRS(ds.Projection())
	if err != nil {
		return nil, err
	}
	r := &Raster{
		Grid: Grid{Rows: st.SizeY, Cols: st.SizeX, Transform: gt, CRS: crs},
		Data: make([]float64, st.SizeX*st.SizeY),
	}
	band := ds.Bands()[0]
	if err := band.Read(0, 0, r.Data, st.SizeX, st.SizeY); err != nil {
		return nil, err
	}
	if nd, ok := band.NoData(); ok && !math.IsNaN(nd) {
		for i, v := range r.Data {
			if v == nd {
				r.Data[i] = math.NaN()
			}
		}
	}
	return r, nil
}

// toDataset copies r into a new dataset created with the given driver.
// The caller is responsible for closing the returned dataset.
func toDataset(r *Raster, driver godal.DriverName, name string, opts ...godal.DatasetCreateOption) (*godal.Dataset, error) {
	register()
	ds, err := godal.Create(driver, name, 1, godal.Float64, r.Cols, r.Rows, opts...)
	if err != nil {
		return nil, err
	}
	if err := ds.SetGeoTransform(r.Transform); err != nil {
		ds.Close()
		return nil, err
	}
	if r.CRS != "" {
		sr, err := godal.NewSpatialRef(r.CRS)
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("parsing crs %q: %v", r.CRS, err)
		}
		err = ds.SetSpatialRef(sr)
		sr.Close()
		if err != nil {
			ds.Close()
			return nil, err
		}
	}
	band := ds.Bands()[0]
	if err := band.SetNoData(math.NaN()); err != nil {
		ds.Close()
		return nil, err
	}
	if err := band.Write(0, 0, r.Data, r.Cols, r.Rows); err != nil {
		ds.Close()
		return nil, err
	}
	return ds, nil
}

// Write writes r to path as a single-band Float64 GeoTIFF with NaN
// as the no-data value. The parent directory is created if needed.
func Write(path string, r *Raster) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("raster: creating output directory: %v", err)
	}
	ds, err := toDataset(r, godal.GTiff, path, godal.CreationOption("COMPRESS=LZW"))
	if err != nil {
		return fmt.Errorf("raster: writing %s: %v", path, err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("raster: closing %s: %v", path, err)
	}
	return nil
}

// Reproject warps r into the given CRS, letting GDAL choose the output
// resolution and extent. If r is already in that CRS, a copy of r is
// returned.
func (r *Raster) Reproject(crs, resampling string) (*Raster, error) {
	target, err := CanonicalCRS(crs)
	if err != nil {
		return nil, err
	}
	if target != "" && target == r.CRS {
		return r.Copy(), nil
	}
	return r.warp(crs, resampling)
}

// ReprojectMatch warps r onto exactly the grid of like.
func (r *Raster) ReprojectMatch(like Grid, resampling string) (*Raster, error) {
	b := like.Bounds()
	out, err := r.warp(like.CRS, resampling,
		"-te", ftoa(b.Min.X), ftoa(b.Min.Y), ftoa(b.Max.X), ftoa(b.Max.Y),
		"-ts", strconv.Itoa(like.Cols), strconv.Itoa(like.Rows))
	if err != nil {
		return nil, err
	}
	if err := out.Grid.aligned(like); err != nil {
		return nil, fmt.Errorf("raster: reprojection did not produce the requested grid: %v", err)
	}
	// Remove floating point noise introduced by the warper.
	out.Grid = like
	return out, nil
}

// Match returns r if it is already on the grid like, or r warped onto
// like otherwise.
func (r *Raster) Match(like Grid, resampling string) (*Raster, error) {
	if r.Grid.Equal(like) {
		return r, nil
	}
	return r.ReprojectMatch(like, resampling)
}

func (r *Raster) warp(crs, resampling string, extra ...string) (*Raster, error) {
	if crs == "" {
		return nil, fmt.Errorf("raster: reprojection target crs is empty")
	}
	if r.CRS == "" {
		return nil, fmt.Errorf("raster: cannot reproject a raster without a crs")
	}
	if resampling == "" {
		resampling = Nearest
	}
	if err := CheckResampling(resampling); err != nil {
		return nil, err
	}
	src, err := toDataset(r, godal.Memory, "")
	if err != nil {
		return nil, fmt.Errorf("raster: preparing reprojection: %v", err)
	}
	defer src.Close()
	switches := append([]string{
		"-of", "MEM",
		"-t_srs", crs,
		"-r", resampling,
		"-ot", "Float64",
		"-dstnodata", "nan",
	}, extra...)
	dst, err := src.Warp("", switches, godal.ErrLogger(gdalErrors))
	if err != nil {
		return nil, fmt.Errorf("raster: reprojecting to %s: %v", crs, err)
	}
	defer dst.Close()
	out, err := fromDataset(dst)
	if err != nil {
		return nil, fmt.Errorf("raster: reading reprojected data: %v", err)
	}
	return out, nil
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// CanonicalCRS returns crs in the form "AUTHORITY:CODE" when GDAL can
// identify it, or as WKT otherwise. An empty crs is returned unchanged.
func CanonicalCRS(crs string) (string, error) {
	if crs == "" {
		return "", nil
	}
	register()
	sr, err := godal.NewSpatialRef(crs)
	if err != nil {
		return "", fmt.Errorf("raster: parsing crs %q: %v", crs, err)
	}
	defer sr.Close()
	// Identification failure is not an error; the WKT is used instead.
	_ = sr.AutoIdentifyEPSG()
	if name, code := sr.AuthorityName(""), sr.AuthorityCode(""); name != "" && code != "" {
		return name + ":" + code, nil
	}
	wkt, err := sr.WKT()
	if err != nil {
		return "", fmt.Errorf("raster: exporting crs %q: %v", crs, err)
	}
	return wkt, nil
}

// ReadMatch reads the raster at path and warps it onto like.
func ReadMatch(path string, like Grid, resampling string) (*Raster, error) {
	r, err := Read(path)
	if err != nil {
		return nil, err
	}
	return r.Match(like, resampling)
}
