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
	"testing"
	"time"
)

func TestDecodeTimes(t *testing.T) {
	tests := []struct {
		units  string
		values []float64
		want   []time.Time
	}{
		{
			units:  "hours since 1900-01-01 00:00:00.0",
			values: []float64{1078584, 1078585.5},
			want: []time.Time{
				time.Date(2023, 1, 17, 0, 0, 0, 0, time.UTC),
				time.Date(2023, 1, 17, 1, 30, 0, 0, time.UTC),
			},
		},
		{
			units:  "seconds since 1970-01-01",
			values: []float64{1682899200},
			want:   []time.Time{time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		},
		{
			units:  "days since 2000-01-01T00:00:00Z",
			values: []float64{0.5, 366},
			want: []time.Time{
				time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
				time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
	}
	for _, test := range tests {
		t.Run(test.units, func(t *testing.T) {
			have, err := decodeTimes(test.values, test.units, "gregorian")
			if err != nil {
				t.Fatal(err)
			}
			for i, w := range test.want {
				if !have[i].Equal(w) {
					t.Errorf("%d: have %v, want %v", i, have[i], w)
				}
			}
		})
	}

	if _, err := decodeTimes([]float64{0}, "days since 2000-01-01", "360_day"); err == nil {
		t.Error("expected an error for a 360_day calendar")
	}
	if _, err := decodeTimes([]float64{0}, "fortnights since 2000-01-01", ""); err == nil {
		t.Error("expected an error for an invalid unit")
	}
}

func TestTimeSliceInterval(t *testing.T) {
	tests := []struct {
		ts       TimeSlice
		from, to time.Time
	}{
		{
			ts:   TimeSlice{Start: "2023-05-01", End: "2023-05-31"},
			from: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
			to:   time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ts:   TimeSlice{Start: "2023-05", End: "2023-06"},
			from: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
			to:   time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ts:   TimeSlice{Start: "2023-05-01T06:00", End: "2023-05-01 12:00:00"},
			from: time.Date(2023, 5, 1, 6, 0, 0, 0, time.UTC),
			to:   time.Date(2023, 5, 1, 12, 0, 1, 0, time.UTC),
		},
	}
	for _, test := range tests {
		from, to, err := test.ts.Interval()
		if err != nil {
			t.Fatal(err)
		}
		if !from.Equal(test.from) || !to.Equal(test.to) {
			t.Errorf("%+v: have [%v, %v), want [%v, %v)", test.ts, from, to, test.from, test.to)
		}
	}
	if _, _, err := (TimeSlice{Start: "2023-06-01", End: "2023-05-01"}).Interval(); err == nil {
		t.Error("expected an error for a reversed slice")
	}
	if _, _, err := (TimeSlice{Start: "May", End: "2023-05-01"}).Interval(); err == nil {
		t.Error("expected an error for an invalid date")
	}
}
