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

// Package npputil provides the command-line interface and configuration
// handling for NPPMap.
package npputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/nppmap"
	"github.com/spatialmodel/nppmap/download"
	"github.com/spatialmodel/nppmap/estk"
	"github.com/spatialmodel/nppmap/raster"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

var options []option

func init() {
	processing := []*pflag.FlagSet{mergeCmd.Flags(), climateCmd.Flags(), estkCmd.Flags(),
		computeCmd.Flags(), validateCmd.Flags(), runCmd.Flags()}

	// Options are the configuration options available to NPPMap.
	options = []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum severity of log messages to print:
              debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to a file where log messages are written
              in addition to standard output. It can include environment
              variables and can be a blob storage location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "TargetCRS",
			usage: `
              TargetCRS is the coordinate reference system that all
              outputs are projected to.`,
			defaultVal: estk.DefaultCRS,
			flagsets:   processing,
		},
		{
			name: "Boundary",
			usage: `
              Boundary is the path to a shapefile or GeoJSON file with the
              study area boundary. It can include environment variables and
              can be a URL or blob storage location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{mergeCmd.Flags(), estkCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Resampling",
			usage: `
              Resampling is the method used to match rasters to the LAI grid
              when computing NPP: near, bilinear, cubic, average or mode.`,
			defaultVal: raster.Nearest,
			flagsets:   []*pflag.FlagSet{computeCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Download.BackendURL",
			usage: `
              Download.BackendURL is the root URL of the openEO API.`,
			defaultVal: download.DefaultBackendURL,
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags()},
		},
		{
			name: "Download.SavePath",
			usage: `
              Download.SavePath is the directory downloaded products are
              saved to, as <product>_<tile>_<date>.tiff.`,
			defaultVal: "data/raw",
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags(), mergeCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Download.Provider",
			usage: `
              Download.Provider is the identifier of the OpenID Connect
              provider to authenticate with. The default is the first
              provider offered by the back end.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags()},
		},
		{
			name: "Download.ClientID",
			usage: `
              Download.ClientID is the OpenID Connect client ID. The default
              is the provider's default client.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags()},
		},
		{
			name: "Download.ClientSecret",
			usage: `
              Download.ClientSecret, if set, selects the client credentials
              grant. It is best set with the NPPMAP_DOWNLOAD_CLIENTSECRET
              environment variable.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags()},
		},
		{
			name: "Download.RefreshToken",
			usage: `
              Download.RefreshToken, if set and no client secret is given,
              selects the refresh token grant. Otherwise the device
              authorization flow is used, which prints a URL to visit.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags()},
		},
		{
			name: "Download.MaxRetries",
			usage: `
              Download.MaxRetries is the number of times a download that
              failed with a temporary error is retried.`,
			defaultVal: 3,
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags()},
		},
		{
			name: "Download.Products",
			usage: `
              Download.Products maps product names to the openEO collection
              and band to download, e.g.
              {"LAI":{"collection":"CGLS_LAI300_V1_GLOBAL","band":"LAI"}}.`,
			defaultVal: map[string]interface{}{
				"LAI":   map[string]string{"collection": "CGLS_LAI300_V1_GLOBAL", "band": "LAI"},
				"FAPAR": map[string]string{"collection": "CGLS_FAPAR300_V1_GLOBAL", "band": "FAPAR"},
			},
			flagsets: []*pflag.FlagSet{downloadCmd.Flags()},
		},
		{
			name: "Download.Tiles",
			usage: `
              Download.Tiles maps tile identifiers to spatial extents, e.g.
              {"31UES":{"west":3,"south":50,"east":4,"north":51}}.`,
			defaultVal: map[string]interface{}{},
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags()},
		},
		{
			name: "Download.Dates",
			usage: `
              Download.Dates lists the dates to download, as YYYY-MM-DD.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags()},
		},
		{
			name: "LAI.Tiles",
			usage: `
              LAI.Tiles lists the LAI tiles to merge. The default is every
              LAI_*.tiff file in Download.SavePath.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{mergeCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "LAI.ScaleFactor",
			usage: `
              LAI.ScaleFactor is the number LAI values are divided by.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{mergeCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "LAI.Output",
			usage: `
              LAI.Output is the path of the merged LAI raster.`,
			defaultVal: "data/processed/lai.tif",
			flagsets:   processing,
		},
		{
			name: "FAPAR.Tiles",
			usage: `
              FAPAR.Tiles lists the FAPAR tiles to merge. The default is
              every FAPAR_*.tiff file in Download.SavePath.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{mergeCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "FAPAR.ScaleFactor",
			usage: `
              FAPAR.ScaleFactor is the number FAPAR values are divided by.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{mergeCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "FAPAR.Output",
			usage: `
              FAPAR.Output is the path of the merged FAPAR raster.`,
			defaultVal: "data/processed/fapar.tif",
			flagsets:   processing,
		},
		{
			name: "Climate.BBox",
			usage: `
              Climate.BBox is the geographic area to extract from the
              climate files, e.g.
              {"lon_min":2.5,"lon_max":6.5,"lat_min":49.5,"lat_max":51.5}.`,
			defaultVal: map[string]interface{}{},
			flagsets:   []*pflag.FlagSet{climateCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Climate.TimeSlice",
			usage: `
              Climate.TimeSlice is the inclusive period to average over,
              e.g. {"start":"2023-05-01","end":"2023-05-31"}.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{climateCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Climate.Temperature.File",
			usage: `
              Climate.Temperature.File is the netCDF file with air
              temperature.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{climateCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Climate.Temperature.Variable",
			usage: `
              Climate.Temperature.Variable is the temperature variable name.`,
			defaultVal: "t2m",
			flagsets:   []*pflag.FlagSet{climateCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Climate.Temperature.Output",
			usage: `
              Climate.Temperature.Output is the path of the mean
              temperature raster.`,
			defaultVal: "data/processed/t2m_mean.tif",
			flagsets:   processing,
		},
		{
			name: "Climate.Radiation.File",
			usage: `
              Climate.Radiation.File is the netCDF file with accumulated
              surface solar radiation downwards.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{climateCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Climate.Radiation.Variable",
			usage: `
              Climate.Radiation.Variable is the radiation variable name.`,
			defaultVal: "ssrd",
			flagsets:   []*pflag.FlagSet{climateCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Climate.Radiation.Output",
			usage: `
              Climate.Radiation.Output is the path of the mean daily
              radiation raster.`,
			defaultVal: "data/processed/ssrd_mean.tif",
			flagsets:   processing,
		},
		{
			name: "ESTK.File",
			usage: `
              ESTK.File is the ecosystem classification raster.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{estkCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "ESTK.Clipped",
			usage: `
              ESTK.Clipped is the path of the classification raster clipped
              to the boundary.`,
			defaultVal: "data/processed/estk_clipped.tif",
			flagsets:   []*pflag.FlagSet{estkCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "ESTK.Reprojected",
			usage: `
              ESTK.Reprojected is the path of the clipped classification
              raster in TargetCRS.`,
			defaultVal: "data/processed/estk_reprojected.tif",
			flagsets:   processing,
		},
		{
			name: "NPP.ConversionTable",
			usage: `
              NPP.ConversionTable is a CSV or XLSX file giving eps_max, T_min
              and T_max for each ecosystem class.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{computeCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "NPP.Output",
			usage: `
              NPP.Output is the path of the NPP raster.`,
			defaultVal: "data/output/npp.tif",
			flagsets:   []*pflag.FlagSet{computeCmd.Flags(), validateCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Validate.ExpectedClasses",
			usage: `
              Validate.ExpectedClasses lists the class codes that must be
              present in the classification raster.`,
			defaultVal: []int{},
			flagsets:   []*pflag.FlagSet{validateCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Validate.Ranges",
			usage: `
              Validate.Ranges maps outputs (LAI, FAPAR, Temperature,
              Radiation, NPP) to their allowed value range, e.g.
              {"FAPAR":{"min":0,"max":1}}. Either limit may be omitted.`,
			defaultVal: map[string]interface{}{
				"LAI":   map[string]float64{"min": 0, "max": 10},
				"FAPAR": map[string]float64{"min": 0, "max": 1},
			},
			flagsets: []*pflag.FlagSet{validateCmd.Flags(), runCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("NPPMAP")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case []int:
				if option.shorthand == "" {
					set.IntSlice(option.name, option.defaultVal.([]int), option.usage)
				} else {
					set.IntSliceP(option.name, option.shorthand, option.defaultVal.([]int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string, map[string]interface{}:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := strings.TrimSpace(b.String())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(downloadCmd)
	Root.AddCommand(mergeCmd)
	Root.AddCommand(climateCmd)
	Root.AddCommand(estkCmd)
	Root.AddCommand(computeCmd)
	Root.AddCommand(validateCmd)
	Root.AddCommand(runCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	return LoadConfig(Cfg, Cfg.GetString("config"))
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "nppmap",
	Short: "Net primary productivity maps from satellite and climate data.",
	Long: `NPPMap computes net primary productivity (NPP) maps from satellite
LAI and FAPAR products, reanalysis temperature and solar radiation, and an
ecosystem classification raster. Use the subcommands specified below to run
each processing step, or 'run' to run them all.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'NPPMAP_var' where 'var' is the
name of the variable to be set, with dots replaced by underscores. File paths
are additionally allowed to contain environment variables within them.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of NPPMap.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("NPPMap v%s\n", nppmap.Version)
	},
	DisableAutoGenTag: true,
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download LAI and FAPAR products.",
	Long: `download authenticates with an openEO back end and downloads every
configured product for every tile and date. Failed downloads are logged and
skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, (*pipeline).download)
	},
	DisableAutoGenTag: true,
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge LAI and FAPAR tiles.",
	Long: `merge clips each LAI and FAPAR tile to the boundary, reprojects it
to TargetCRS, divides it by the scale factor and merges the tiles of each
product into one raster.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, (*pipeline).merge)
	},
	DisableAutoGenTag: true,
}

var climateCmd = &cobra.Command{
	Use:   "climate",
	Short: "Extract temperature and radiation.",
	Long: `climate extracts the mean temperature and the mean daily solar
radiation over the configured time slice and bounding box from netCDF files
and reprojects them to TargetCRS.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, (*pipeline).climate)
	},
	DisableAutoGenTag: true,
}

var estkCmd = &cobra.Command{
	Use:   "estk",
	Short: "Clip and reproject the ecosystem classification.",
	Long: `estk clips the ecosystem classification raster to the boundary and
reprojects it to TargetCRS with nearest-neighbour resampling.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, (*pipeline).estk)
	},
	DisableAutoGenTag: true,
}

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Compute NPP.",
	Long: `compute calculates NPP on the LAI grid from the processed FAPAR,
temperature, radiation and classification rasters and the per-class
parameters in the conversion table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, (*pipeline).compute)
	},
	DisableAutoGenTag: true,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the processed rasters.",
	Long: `validate checks that the processed rasters are in TargetCRS, that
the classification contains the expected classes and that values are within
the configured ranges. It fails if any check fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, (*pipeline).validate)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all processing steps.",
	Long: `run merges the LAI and FAPAR tiles, extracts the climate variables,
processes the classification raster, computes NPP and validates the results.
Products must already have been downloaded with the download command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, (*pipeline).merge, (*pipeline).climate,
			(*pipeline).estk, (*pipeline).compute, (*pipeline).validate)
	},
	DisableAutoGenTag: true,
}

func init() {
	for _, c := range []*cobra.Command{downloadCmd, mergeCmd, climateCmd, estkCmd, computeCmd, validateCmd, runCmd} {
		c.Flags().SortFlags = false
	}
}

// checkUsage returns an error if a required option is empty.
func checkUsage(cfg *viper.Viper, names ...string) error {
	for _, n := range names {
		if cfg.GetString(n) == "" {
			return fmt.Errorf("npputil: the %s option must be set", n)
		}
	}
	return nil
}
