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

package nppmap

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"github.com/tealeg/xlsx"
)

// ClassParams holds the light-use efficiency and temperature-limitation
// parameters of one ecosystem class.
type ClassParams struct {
	EpsMax float64 // maximum light-use efficiency
	TMin   float64 // lower temperature limit, °C
	TMax   float64 // upper temperature limit, °C
}

// ConversionTable maps ecosystem class codes to their parameters.
type ConversionTable map[int]ClassParams

// Classes returns the class codes in the table in increasing order.
func (t ConversionTable) Classes() []int {
	o := make([]int, 0, len(t))
	for c := range t {
		o = append(o, c)
	}
	sort.Ints(o)
	return o
}

// classColumns are the accepted names for the class code column.
var classColumns = []string{"class", "estk", "code", "id"}

// ReadConversionTable reads a conversion table from a CSV or XLSX file.
// The file must have a header row. The class code is in the column named
// class, estk, code or id, or else in the first column; the parameters are
// in the columns named eps_max, T_min and T_max. Column names are not
// case sensitive.
func ReadConversionTable(path string) (ConversionTable, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("nppmap: unsupported conversion table format %q", path)
	}
	if err != nil {
		return nil, err
	}
	t, err := parseTable(rows)
	if err != nil {
		return nil, fmt.Errorf("nppmap: conversion table %s: %v", path, err)
	}
	return t, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nppmap: opening conversion table: %v", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("nppmap: reading conversion table: %v", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// readXLSX reads the first sheet of an Excel file.
func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("nppmap: opening xlsx file: %v", err)
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("nppmap: xlsx file %s has no sheets", path)
	}
	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		if row == nil {
			continue
		}
		rec := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			rec[i] = c.Value
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func parseTable(rows [][]string) (ConversionTable, error) {
	if len(rows) < 1 {
		return nil, fmt.Errorf("missing header row")
	}
	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	classCol := 0
	for _, n := range classColumns {
		if i, ok := col[n]; ok {
			classCol = i
			break
		}
	}
	var idx [3]int
	for i, n := range []string{"eps_max", "t_min", "t_max"} {
		j, ok := col[n]
		if !ok {
			return nil, fmt.Errorf("missing column %q", n)
		}
		idx[i] = j
	}

	t := make(ConversionTable)
	for i, rec := range rows[1:] {
		if blank(rec) {
			continue
		}
		line := i + 2
		var v [4]float64
		for k, j := range []int{classCol, idx[0], idx[1], idx[2]} {
			if j >= len(rec) {
				return nil, fmt.Errorf("row %d: missing value in column %d", line, j+1)
			}
			f, err := cast.ToFloat64E(strings.TrimSpace(rec[j]))
			if err != nil {
				return nil, fmt.Errorf("row %d: %v", line, err)
			}
			v[k] = f
		}
		class := int(v[0])
		if float64(class) != v[0] {
			return nil, fmt.Errorf("row %d: class code %v is not an integer", line, v[0])
		}
		p := ClassParams{EpsMax: v[1], TMin: v[2], TMax: v[3]}
		if p.TMax == p.TMin {
			return nil, fmt.Errorf("row %d: class %d has T_max equal to T_min", line, class)
		}
		if _, ok := t[class]; ok {
			return nil, fmt.Errorf("row %d: duplicate class %d", line, class)
		}
		t[class] = p
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, s := range rec {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}
