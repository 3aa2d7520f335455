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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nppmap/download"
	"github.com/spatialmodel/nppmap/ncops"
	"github.com/spatialmodel/nppmap/validate"
	"github.com/spf13/cast"
)

// LoadConfig reads the YAML configuration file at path into cfg.
// An empty path means there is no configuration file, so only defaults,
// command-line flags and environment variables are used.
func LoadConfig(cfg *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	path = os.ExpandEnv(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("npputil: configuration file not found: %v", err)
	}
	cfg.SetConfigFile(path)
	if err := cfg.ReadInConfig(); err != nil {
		return fmt.Errorf("npputil: problem reading configuration file: %v", err)
	}
	return nil
}

// EnsureDir creates the directory at path, including any parents, if
// it does not already exist, and returns path.
func EnsureDir(path string, log logrus.FieldLogger) (string, error) {
	if fi, err := os.Stat(path); err == nil {
		if !fi.IsDir() {
			return "", fmt.Errorf("npputil: %s exists and is not a directory", path)
		}
		log.WithField("path", path).Debug("directory already exists")
		return path, nil
	}
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return "", fmt.Errorf("npputil: creating directory: %v", err)
	}
	log.WithField("path", path).Info("created directory")
	return path, nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	o := make([]string, len(s))
	for i, v := range s {
		o[i] = os.ExpandEnv(v)
	}
	return o
}

// getStringMap returns a map[string]interface{} from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument or environment variable.
func getStringMap(varName string, cfg *viper.Viper) (map[string]interface{}, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return v, nil
	case map[interface{}]interface{}:
		return cast.ToStringMapE(v)
	case map[string]string:
		o := make(map[string]interface{}, len(v))
		for k, s := range v {
			o[k] = s
		}
		return o, nil
	case string:
		o := make(map[string]interface{})
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		d.UseNumber()
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("npputil: parsing %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("npputil: invalid type for %s: %#v", varName, i)
	}
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	m, err := getStringMap(varName, cfg)
	if err != nil {
		return nil, err
	}
	o, err := cast.ToStringMapStringE(m)
	if err != nil {
		return nil, fmt.Errorf("npputil: %s: %v", varName, err)
	}
	return o, nil
}

// getFloatMap returns the map stored in varName with numeric values.
// Keys are compared case-insensitively.
func getFloatMap(varName string, cfg *viper.Viper, keys ...string) (map[string]float64, error) {
	m, err := getStringMap(varName, cfg)
	if err != nil {
		return nil, err
	}
	return toFloatMap(varName, m, keys...)
}

// toFloatMap converts the values of m to float64. If keys are given,
// each must be present.
func toFloatMap(name string, m map[string]interface{}, keys ...string) (map[string]float64, error) {
	o := make(map[string]float64, len(m))
	for k, v := range m {
		if n, ok := v.(json.Number); ok {
			v = string(n)
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("npputil: %s.%s: %v", name, k, err)
		}
		o[strings.ToLower(k)] = f
	}
	for _, k := range keys {
		if _, ok := o[k]; !ok {
			return nil, fmt.Errorf("npputil: %s is missing %q", name, k)
		}
	}
	return o, nil
}

// getBBox returns the Climate.BBox option.
func getBBox(cfg *viper.Viper) (ncops.BBox, error) {
	m, err := getFloatMap("Climate.BBox", cfg, "lon_min", "lon_max", "lat_min", "lat_max")
	if err != nil {
		return ncops.BBox{}, err
	}
	return ncops.BBox{LonMin: m["lon_min"], LonMax: m["lon_max"], LatMin: m["lat_min"], LatMax: m["lat_max"]}, nil
}

// getTimeSlice returns the Climate.TimeSlice option.
func getTimeSlice(cfg *viper.Viper) (ncops.TimeSlice, error) {
	m, err := GetStringMapString("Climate.TimeSlice", cfg)
	if err != nil {
		return ncops.TimeSlice{}, err
	}
	ts := ncops.TimeSlice{Start: m["start"], End: m["end"]}
	if ts.Start == "" || ts.End == "" {
		return ts, fmt.Errorf("npputil: Climate.TimeSlice must have a start and an end")
	}
	if _, _, err := ts.Interval(); err != nil {
		return ts, err
	}
	return ts, nil
}

// getProducts returns the Download.Products option.
func getProducts(cfg *viper.Viper) (map[string]download.Product, error) {
	m, err := getStringMap("Download.Products", cfg)
	if err != nil {
		return nil, err
	}
	o := make(map[string]download.Product, len(m))
	for name, v := range m {
		p, err := cast.ToStringMapStringE(v)
		if err != nil {
			return nil, fmt.Errorf("npputil: Download.Products.%s: %v", name, err)
		}
		lower := make(map[string]string, len(p))
		for k, v := range p {
			lower[strings.ToLower(k)] = v
		}
		if lower["collection"] == "" || lower["band"] == "" {
			return nil, fmt.Errorf("npputil: Download.Products.%s must have a collection and a band", name)
		}
		o[name] = download.Product{Collection: lower["collection"], Band: lower["band"]}
	}
	return o, nil
}

// getTiles returns the Download.Tiles option.
func getTiles(cfg *viper.Viper) (map[string]download.Extent, error) {
	m, err := getStringMap("Download.Tiles", cfg)
	if err != nil {
		return nil, err
	}
	o := make(map[string]download.Extent, len(m))
	for id, v := range m {
		tm, err := cast.ToStringMapE(v)
		if err != nil {
			return nil, fmt.Errorf("npputil: Download.Tiles.%s: %v", id, err)
		}
		var crs interface{}
		coords := make(map[string]interface{}, len(tm))
		for k, v := range tm {
			if strings.ToLower(k) == "crs" {
				crs = v
				continue
			}
			coords[k] = v
		}
		e, err := toFloatMap("Download.Tiles."+id, coords, "west", "south", "east", "north")
		if err != nil {
			return nil, err
		}
		o[id] = download.Extent{West: e["west"], South: e["south"], East: e["east"], North: e["north"], CRS: crs}
	}
	return o, nil
}

// getRanges returns the Validate.Ranges option, keyed by lower-case
// output name.
func getRanges(cfg *viper.Viper) (map[string]validate.Bounds, error) {
	m, err := getStringMap("Validate.Ranges", cfg)
	if err != nil {
		return nil, err
	}
	o := make(map[string]validate.Bounds, len(m))
	for name, v := range m {
		rm, err := cast.ToStringMapE(v)
		if err != nil {
			return nil, fmt.Errorf("npputil: Validate.Ranges.%s: %v", name, err)
		}
		r, err := toFloatMap("Validate.Ranges."+name, rm)
		if err != nil {
			return nil, err
		}
		var b validate.Bounds
		if v, ok := r["min"]; ok {
			b.Min = &v
		}
		if v, ok := r["max"]; ok {
			b.Max = &v
		}
		o[strings.ToLower(name)] = b
	}
	return o, nil
}

// toIntSliceE converts a configuration value to a slice of ints,
// accounting for the fact that it might be a json array or a
// comma-separated list if it was set from the command line.
func toIntSliceE(s interface{}) ([]int, error) {
	switch v := s.(type) {
	case nil:
		return nil, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" || v == "[]" {
			return nil, nil
		}
		var o []int
		if strings.HasPrefix(v, "[") {
			if err := json.Unmarshal([]byte(v), &o); err != nil {
				return nil, err
			}
			return o, nil
		}
		parts := strings.Split(v, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		return cast.ToIntSliceE(parts)
	default:
		return cast.ToIntSliceE(v)
	}
}

// tileFiles returns the files in dir whose names start with
// product + "_" and end in .tif or .tiff. Names are compared
// case-insensitively because configuration keys are not case sensitive.
func tileFiles(dir, product string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("npputil: listing %s tiles: %v", product, err)
	}
	prefix := strings.ToLower(product) + "_"
	var o []string
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		ext := filepath.Ext(name)
		if e.IsDir() || !strings.HasPrefix(name, prefix) || (ext != ".tif" && ext != ".tiff") {
			continue
		}
		o = append(o, filepath.Join(dir, e.Name()))
	}
	return o, nil
}
