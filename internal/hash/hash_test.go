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

package hash

import (
	"math"
	"testing"
)

func TestHash(t *testing.T) {
	a := Hash("https://example.com/estk.tif")
	if a != Hash("https://example.com/estk.tif") {
		t.Error("hash is not stable")
	}
	if a == Hash("https://example.com/lai.tif") {
		t.Error("different inputs have the same hash")
	}
	if len(a) != 32 {
		t.Errorf("hash %q has length %d, want 32", a, len(a))
	}
	type unexported struct{ v float64 }
	if Hash(unexported{1}) == Hash(unexported{math.NaN()}) {
		t.Error("values gob cannot encode have the same hash")
	}
}
