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

package npputil

import (
	"context"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nppmap"
	"github.com/spatialmodel/nppmap/boundary"
	"github.com/spatialmodel/nppmap/cloud"
	"github.com/spatialmodel/nppmap/download"
	"github.com/spatialmodel/nppmap/estk"
	"github.com/spatialmodel/nppmap/ncops"
	"github.com/spatialmodel/nppmap/raster"
	"github.com/spatialmodel/nppmap/validate"
	"github.com/spf13/cobra"
)

// pipeline holds the state shared by the processing steps of one
// command invocation.
type pipeline struct {
	ctx    context.Context
	cfg    *viper.Viper
	log    logrus.FieldLogger
	fetch  *cloud.Fetcher
	upload *cloud.Uploader

	// local holds the local paths of outputs written during this
	// invocation, by option name, so later steps read them before
	// they are uploaded.
	local map[string]string

	bound *boundary.Boundary
}

// runSteps runs the given processing steps in order with the
// configuration in Cfg, then uploads any outputs destined for blob
// storage.
func runSteps(cmd *cobra.Command, steps ...func(*pipeline) error) error {
	ctx := context.Background()
	upload := new(cloud.Uploader)
	log, closeLog, err := newLogger(cmd.OutOrStdout(), Cfg, upload)
	if err != nil {
		return err
	}
	upload.Log = log
	p := &pipeline{
		ctx:    ctx,
		cfg:    Cfg,
		log:    log,
		fetch:  &cloud.Fetcher{Log: log},
		upload: upload,
		local:  make(map[string]string),
	}
	defer func() {
		if err := p.fetch.Close(); err != nil {
			log.WithError(err).Warn("cleaning up downloaded inputs")
		}
	}()
	for _, step := range steps {
		if err = step(p); err != nil {
			log.WithError(err).Error("processing failed")
			break
		}
	}
	if cerr := closeLog(); err == nil && cerr != nil {
		err = fmt.Errorf("npputil: closing log file: %v", cerr)
	}
	if err != nil {
		return err
	}
	if err := upload.Upload(ctx); err != nil {
		return err
	}
	return upload.Close()
}

// input returns a local path for the file named by the given option.
func (p *pipeline) input(name string) (string, error) {
	if path, ok := p.local[name]; ok {
		return path, nil
	}
	if err := checkUsage(p.cfg, name); err != nil {
		return "", err
	}
	return p.fetch.Fetch(p.ctx, os.ExpandEnv(p.cfg.GetString(name)))
}

// output returns the local path to write the file named by the given
// option to.
func (p *pipeline) output(name string) (string, error) {
	if err := checkUsage(p.cfg, name); err != nil {
		return "", err
	}
	path, err := p.upload.MaybeUpload(os.ExpandEnv(p.cfg.GetString(name)))
	if err != nil {
		return "", err
	}
	p.local[name] = path
	return path, nil
}

func (p *pipeline) boundary() (*boundary.Boundary, error) {
	if p.bound != nil {
		return p.bound, nil
	}
	path, err := p.input("Boundary")
	if err != nil {
		return nil, err
	}
	p.log.WithField("path", path).Info("loading boundary")
	b, err := boundary.Load(path)
	if err != nil {
		return nil, err
	}
	p.bound = b
	return b, nil
}

func (p *pipeline) download() error {
	products, err := getProducts(p.cfg)
	if err != nil {
		return err
	}
	tiles, err := getTiles(p.cfg)
	if err != nil {
		return err
	}
	dates := p.cfg.GetStringSlice("Download.Dates")
	if len(products) == 0 || len(tiles) == 0 || len(dates) == 0 {
		return fmt.Errorf("npputil: Download.Products, Download.Tiles and Download.Dates must all be set")
	}
	savePath, err := EnsureDir(os.ExpandEnv(p.cfg.GetString("Download.SavePath")), p.log)
	if err != nil {
		return err
	}
	c, err := download.Connect(p.ctx, p.cfg.GetString("Download.BackendURL"), download.Auth{
		Provider:     p.cfg.GetString("Download.Provider"),
		ClientID:     p.cfg.GetString("Download.ClientID"),
		ClientSecret: p.cfg.GetString("Download.ClientSecret"),
		RefreshToken: p.cfg.GetString("Download.RefreshToken"),
	}, nil, p.log)
	if err != nil {
		return err
	}
	d := &download.ProductDownloader{
		Products:   products,
		Tiles:      tiles,
		Dates:      dates,
		SavePath:   savePath,
		Client:     c,
		MaxRetries: p.cfg.GetInt("Download.MaxRetries"),
		Log:        p.log,
	}
	s, err := d.DownloadAll(p.ctx)
	if err != nil {
		return err
	}
	p.log.WithFields(logrus.Fields{"saved": len(s.Saved), "failed": len(s.Failed)}).Info("download finished")
	if len(s.Saved) == 0 && len(s.Failed) > 0 {
		return fmt.Errorf("npputil: all %d downloads failed", len(s.Failed))
	}
	return nil
}

func (p *pipeline) merge() error {
	b, err := p.boundary()
	if err != nil {
		return err
	}
	crs := p.cfg.GetString("TargetCRS")
	for _, product := range []string{"LAI", "FAPAR"} {
		tiles := expandStringSlice(p.cfg.GetStringSlice(product + ".Tiles"))
		if len(tiles) == 0 {
			if tiles, err = tileFiles(os.ExpandEnv(p.cfg.GetString("Download.SavePath")), product); err != nil {
				return err
			}
		}
		if len(tiles) == 0 {
			return fmt.Errorf("npputil: no %s tiles to merge", product)
		}
		for i, t := range tiles {
			if tiles[i], err = p.fetch.Fetch(p.ctx, t); err != nil {
				return err
			}
		}
		out, err := p.output(product + ".Output")
		if err != nil {
			return err
		}
		log := p.log.WithField("product", product)
		log.WithField("tiles", len(tiles)).Info("merging tiles")
		_, err = raster.MergeTiles(tiles, b, crs, p.cfg.GetFloat64(product+".ScaleFactor"), raster.Nearest, out, log)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) climate() error {
	bbox, err := getBBox(p.cfg)
	if err != nil {
		return err
	}
	ts, err := getTimeSlice(p.cfg)
	if err != nil {
		return err
	}
	for _, v := range []struct {
		name    string
		extract func(ncops.Extraction, logrus.FieldLogger) (*raster.Raster, error)
	}{
		{"Climate.Temperature", ncops.ExtractMean},
		{"Climate.Radiation", ncops.ExtractSSRD},
	} {
		file, err := p.input(v.name + ".File")
		if err != nil {
			return err
		}
		out, err := p.output(v.name + ".Output")
		if err != nil {
			return err
		}
		e := ncops.Extraction{
			File:      file,
			Variable:  p.cfg.GetString(v.name + ".Variable"),
			BBox:      bbox,
			TimeSlice: ts,
			CRS:       p.cfg.GetString("TargetCRS"),
			Output:    out,
		}
		if _, err := v.extract(e, p.log); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) estk() error {
	b, err := p.boundary()
	if err != nil {
		return err
	}
	file, err := p.input("ESTK.File")
	if err != nil {
		return err
	}
	clipped, err := p.output("ESTK.Clipped")
	if err != nil {
		return err
	}
	reprojected, err := p.output("ESTK.Reprojected")
	if err != nil {
		return err
	}
	_, err = estk.ClipAndReproject(file, b, clipped, reprojected, p.cfg.GetString("TargetCRS"), p.log)
	return err
}

func (p *pipeline) compute() error {
	tablePath, err := p.input("NPP.ConversionTable")
	if err != nil {
		return err
	}
	table, err := nppmap.ReadConversionTable(tablePath)
	if err != nil {
		return err
	}
	var in nppmap.Inputs
	for _, f := range []struct {
		name string
		path *string
	}{
		{"LAI.Output", &in.LAI},
		{"FAPAR.Output", &in.FAPAR},
		{"Climate.Temperature.Output", &in.Temperature},
		{"Climate.Radiation.Output", &in.Radiation},
		{"ESTK.Reprojected", &in.Classification},
	} {
		if *f.path, err = p.input(f.name); err != nil {
			return err
		}
	}
	out, err := p.output("NPP.Output")
	if err != nil {
		return err
	}
	_, err = nppmap.Compute(in, table, out, p.cfg.GetString("Resampling"), p.log)
	return err
}

// validated lists the outputs that are checked by validate, by the
// lower-case name used in Validate.Ranges.
var validated = []struct{ name, option string }{
	{"lai", "LAI.Output"},
	{"fapar", "FAPAR.Output"},
	{"temperature", "Climate.Temperature.Output"},
	{"radiation", "Climate.Radiation.Output"},
	{"estk", "ESTK.Reprojected"},
	{"npp", "NPP.Output"},
}

func (p *pipeline) validate() error {
	ranges, err := getRanges(p.cfg)
	if err != nil {
		return err
	}
	classes, err := toIntSliceE(p.cfg.Get("Validate.ExpectedClasses"))
	if err != nil {
		return fmt.Errorf("npputil: Validate.ExpectedClasses: %v", err)
	}
	crs := p.cfg.GetString("TargetCRS")

	var checks, failed int
	check := func(ok bool) {
		checks++
		if !ok {
			failed++
		}
	}
	paths := make(map[string]string)
	for _, v := range validated {
		path, err := p.input(v.option)
		if err != nil {
			return err
		}
		paths[v.name] = path
		check(validate.CRS(path, crs, p.log))
	}
	if len(classes) > 0 {
		check(validate.Classes(paths["estk"], classes, p.log))
	}
	for name, b := range ranges {
		path, ok := paths[name]
		if !ok {
			return fmt.Errorf("npputil: Validate.Ranges: unknown output %q", name)
		}
		check(validate.Range(path, b.Min, b.Max, p.log))
	}
	if failed > 0 {
		return fmt.Errorf("npputil: %d of %d validation checks failed", failed, checks)
	}
	p.log.WithField("checks", checks).Info("validation passed")
	return nil
}
