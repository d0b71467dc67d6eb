// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package bayer

import (
	"testing"

	"github.com/valyala/fastrand"
)

func TestDebayer(t *testing.T) {
	// 4x4 mosaic with distinct cell values
	mosaic := []float32{
		1, 2, 1, 2,
		3, 4, 3, 4,
		1, 2, 1, 2,
		3, 4, 3, 4,
	}
	r, g1, g2, b, pw, ph := Debayer(mosaic, 4, 4)
	if pw != 2 || ph != 2 {
		t.Fatalf("plane dims: got %dx%d want 2x2", pw, ph)
	}
	for i := 0; i < 4; i++ {
		if r[i] != 1 || g1[i] != 2 || g2[i] != 3 || b[i] != 4 {
			t.Fatalf("pixel %d: got r=%f g1=%f g2=%f b=%f", i, r[i], g1[i], g2[i], b[i])
		}
	}
}

func TestMergeGreen(t *testing.T) {
	g := MergeGreen([]float32{2, 4}, []float32{4, 8})
	if g[0] != 3 || g[1] != 6 {
		t.Errorf("got %v want [3 6]", g)
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	rng := fastrand.RNG{}
	width, height := int32(8), int32(6)
	mosaic := make([]float32, width*height)
	for i := range mosaic {
		mosaic[i] = float32(rng.Uint32n(65536))
	}
	r, g1, g2, b, pw, ph := Debayer(mosaic, width, height)
	back, w2, h2 := Flatten(r, g1, g2, b, pw, ph)
	if w2 != width || h2 != height {
		t.Fatalf("dims: got %dx%d want %dx%d", w2, h2, width, height)
	}
	for i := range mosaic {
		if back[i] != mosaic[i] {
			t.Fatalf("pixel %d: got %f want %f", i, back[i], mosaic[i])
		}
	}
}
