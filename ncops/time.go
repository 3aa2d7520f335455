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
	"strings"
	"time"
)

var unitSeconds = map[string]float64{
	"seconds": 1, "second": 1, "secs": 1, "sec": 1, "s": 1,
	"minutes": 60, "minute": 60, "mins": 60, "min": 60,
	"hours": 3600, "hour": 3600, "hrs": 3600, "hr": 3600, "h": 3600,
	"days": 86400, "day": 86400, "d": 86400,
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-1-2 15:4:5.999999999",
	"2006-01-02 15:04",
	"2006-1-2 15:4",
	"2006-01-02 15",
	"2006-01-02",
	"2006-1-2",
}

// decodeTimes converts CF time values, e.g. with units
// "hours since 1900-01-01 00:00:00.0", to UTC times. Only the standard
// (Gregorian) calendar is supported.
func decodeTimes(values []float64, units, calendar string) ([]time.Time, error) {
	switch strings.ToLower(calendar) {
	case "", "standard", "gregorian", "proleptic_gregorian":
	default:
		return nil, fmt.Errorf("ncops: unsupported calendar %q", calendar)
	}
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("ncops: invalid time units %q", units)
	}
	step, ok := unitSeconds[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return nil, fmt.Errorf("ncops: invalid time unit %q", parts[0])
	}
	ref, err := parseReference(parts[1])
	if err != nil {
		return nil, fmt.Errorf("ncops: invalid time units %q: %v", units, err)
	}
	o := make([]time.Time, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("ncops: missing time value at index %d", i)
		}
		s := v * step
		whole := math.Floor(s)
		nsec := int64(math.Round((s - whole) * 1e9))
		o[i] = time.Unix(ref.Unix()+int64(whole), int64(ref.Nanosecond())+nsec).UTC()
	}
	return o, nil
}

// parseReference parses the reference date of CF time units.
func parseReference(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "UTC")
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	s = strings.Replace(strings.TrimSpace(s), "T", " ", 1)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised reference date %q", s)
}

// TimeSlice is an inclusive range of ISO dates or timestamps. Partial
// dates cover their whole period: an End of "2023-05-31" includes every
// time on that day, and "2023-05" covers the whole month.
type TimeSlice struct {
	Start, End string
}

// Interval returns the half-open interval [from, to) covered by ts.
func (ts TimeSlice) Interval() (from, to time.Time, err error) {
	from, _, err = period(ts.Start)
	if err != nil {
		return from, to, fmt.Errorf("ncops: time slice start: %v", err)
	}
	_, to, err = period(ts.End)
	if err != nil {
		return from, to, fmt.Errorf("ncops: time slice end: %v", err)
	}
	if !to.After(from) {
		return from, to, fmt.Errorf("ncops: time slice end %s is before start %s", ts.End, ts.Start)
	}
	return from, to, nil
}

// period returns the half-open interval covered by a partial ISO
// timestamp.
func period(s string) (from, to time.Time, err error) {
	s = strings.TrimSpace(s)
	for _, p := range []struct {
		layout string
		next   func(time.Time) time.Time
	}{
		{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
		{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
		{"2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
		{"2006-01-02T15", func(t time.Time) time.Time { return t.Add(time.Hour) }},
		{"2006-01-02T15:04", func(t time.Time) time.Time { return t.Add(time.Minute) }},
		{"2006-01-02T15:04:05", func(t time.Time) time.Time { return t.Add(time.Second) }},
	} {
		for _, l := range []string{p.layout, strings.Replace(p.layout, "T", " ", 1)} {
			if t, err := time.Parse(l, s); err == nil {
				return t, p.next(t), nil
			}
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t = t.UTC()
		return t, t.Add(time.Nanosecond), nil
	}
	return from, to, fmt.Errorf("invalid date %q", s)
}
