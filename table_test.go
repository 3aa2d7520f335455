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
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tealeg/xlsx"
)

func TestReadConversionTableCSV(t *testing.T) {
	tests := []struct {
		name, csv string
		want      ConversionTable
		err       bool
	}{
		{
			name: "first column",
			csv:  "ESTK_Code,Name,eps_max,T_min,T_max\n10,forest,1.2,0,30\n20,grass,0.8,-5,35\n",
			want: ConversionTable{10: {1.2, 0, 30}, 20: {0.8, -5, 35}},
		},
		{
			name: "named class column",
			csv:  "name,Class,EPS_MAX,t_min,t_max\nwater,30,0.1,0,25\n\n",
			want: ConversionTable{30: {0.1, 0, 25}},
		},
		{
			name: "missing column",
			csv:  "class,eps_max,T_min\n10,1.2,0\n",
			err:  true,
		},
		{
			name: "equal limits",
			csv:  "class,eps_max,T_min,T_max\n10,1.2,10,10\n",
			err:  true,
		},
		{
			name: "fractional class",
			csv:  "class,eps_max,T_min,T_max\n10.5,1.2,0,30\n",
			err:  true,
		},
		{
			name: "duplicate class",
			csv:  "class,eps_max,T_min,T_max\n10,1.2,0,30\n10,1,0,30\n",
			err:  true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "table.csv")
			if err := os.WriteFile(path, []byte(test.csv), 0644); err != nil {
				t.Fatal(err)
			}
			have, err := ReadConversionTable(path)
			if test.err {
				if err == nil {
					t.Errorf("expected error, got %v", have)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(have, test.want) {
				t.Errorf("have %v, want %v", have, test.want)
			}
		})
	}
}

func TestReadConversionTableXLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("table")
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range [][]string{
		{"code", "eps_max", "T_min", "T_max"},
		{"10", "1.2", "0", "30"},
		{"40", "0.5", "2", "28"},
	} {
		row := sheet.AddRow()
		for _, v := range rec {
			row.AddCell().Value = v
		}
	}
	path := filepath.Join(t.TempDir(), "table.xlsx")
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}
	have, err := ReadConversionTable(path)
	if err != nil {
		t.Fatal(err)
	}
	want := ConversionTable{10: {1.2, 0, 30}, 40: {0.5, 2, 28}}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
	if c := have.Classes(); !reflect.DeepEqual(c, []int{10, 40}) {
		t.Errorf("classes: have %v", c)
	}
}

func TestReadConversionTableFormat(t *testing.T) {
	if _, err := ReadConversionTable("table.txt"); err == nil {
		t.Error("expected error for unsupported format")
	}
}
