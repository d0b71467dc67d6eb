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

package radial

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/mlnoga/synthflat/internal/fits"
	"github.com/mlnoga/synthflat/internal/stats"
)

func almostEqual(a, b, epsilon float32) bool {
	return float32(math.Abs(float64(a-b))) <= epsilon
}

// builds a 4-channel image whose channel c pixel (i,j) is value(i,j,c)
func makeTestImage(height, width int32, value func(i, j, c int32) float32) *fits.Image {
	img := fits.NewImageFromNaxisn([]int32{width, height, 4}, nil)
	for c := int32(0); c < 4; c++ {
		plane := img.ChannelData(c)
		for i := int32(0); i < height; i++ {
			for j := int32(0); j < width; j++ {
				plane[i*width+j] = value(i, j, c)
			}
		}
	}
	return img
}

func TestDistSymmetry(t *testing.T) {
	d := NewDistCache()
	h, w := int32(101), int32(200)
	// pixels whose absolute center offsets are permutations of each other
	// must yield the identical distance
	for i := int32(0); i < h; i += 7 {
		for j := int32(0); j < w; j += 7 {
			dx := int32(math.Abs(float64(i) - float64(h)/2))
			dy := int32(math.Abs(float64(j) - float64(w)/2))
			swappedI := h/2 + dy
			swappedJ := w/2 + dx
			if swappedI >= h || swappedJ >= w {
				continue
			}
			a := d.Dist(i, j, h, w)
			b := d.Dist(swappedI, swappedJ, h, w)
			got := float64(a)
			ref := math.Sqrt(float64(dx*dx + dy*dy))
			if math.Abs(got-ref) > 1e-4 {
				t.Errorf("dist(%d,%d): got %f want %f", i, j, got, ref)
			}
			if a != b {
				t.Errorf("dist asymmetric: (%d,%d)=%f vs (%d,%d)=%f", i, j, a, swappedI, swappedJ, b)
			}
		}
	}
	if d.Len() == 0 {
		t.Errorf("cache is empty after lookups")
	}
	d.Clear()
	if d.Len() != 0 {
		t.Errorf("cache not empty after clear: %d entries", d.Len())
	}
}

func TestSavgolPreservesLinear(t *testing.T) {
	n := 101
	y := make([]float32, n)
	for i := range y {
		y[i] = 3 + 0.25*float32(i)
	}
	smoothed := savgolFilter(y, 11, 2)
	for i := range y {
		if !almostEqual(smoothed[i], y[i], 1e-3) {
			t.Fatalf("index %d: got %f want %f", i, smoothed[i], y[i])
		}
	}
}

func TestBuildProfileSampleConservation(t *testing.T) {
	height, width := int32(120), int32(100)
	img := makeTestImage(height, width, func(i, j, c int32) float32 { return 100 })
	stride := int32(2)

	binned, rawMean, err := BuildProfile(img, stats.Aggregator{Method: stats.MethodMean}, stride, 1, NewDistCache(), io.Discard)
	if err != nil {
		t.Fatalf("unexpected error %s", err.Error())
	}
	if rawMean.Len() != binned.Len() {
		t.Errorf("raw mean rows %d != binned rows %d", rawMean.Len(), binned.Len())
	}

	// count pixels passing the edge and stride filters
	expected := int32(0)
	for i := int32(0); i < height; i++ {
		if i < IgnoreEdge || i > height-IgnoreEdge || i%stride != 0 {
			continue
		}
		for j := int32(0); j < width; j++ {
			if j < IgnoreEdge || j > width-IgnoreEdge || j%stride != 0 {
				continue
			}
			expected++
		}
	}
	total := int32(0)
	for _, c := range binned.Counts {
		total += c
	}
	if total != expected {
		t.Errorf("samples: got %d want %d", total, expected)
	}
}

func TestBuildProfileParallelMatchesSequential(t *testing.T) {
	height, width := int32(150), int32(130)
	img := makeTestImage(height, width, func(i, j, c int32) float32 {
		return 1000 + float32(i%13) + float32(j%7) + float32(c)
	})
	agg := stats.Aggregator{Method: stats.MethodSigmaClip, Sigma: 2}
	seq, _, err := BuildProfile(img, agg, 1, 1, NewDistCache(), io.Discard)
	if err != nil {
		t.Fatalf("sequential: %s", err.Error())
	}
	par, _, err := BuildProfile(img, agg, 1, 4, NewDistCache(), io.Discard)
	if err != nil {
		t.Fatalf("parallel: %s", err.Error())
	}
	if seq.Len() != par.Len() {
		t.Fatalf("row count: sequential %d parallel %d", seq.Len(), par.Len())
	}
	for i := range seq.Radius {
		for ch := 0; ch < 3; ch++ {
			if !almostEqual(seq.Value[ch][i], par.Value[ch][i], 1e-3) {
				t.Fatalf("row %d ch %d: sequential %f parallel %f", i, ch, seq.Value[ch][i], par.Value[ch][i])
			}
		}
	}
}

func TestBuildProfileAllInvalid(t *testing.T) {
	img := makeTestImage(80, 80, func(i, j, c int32) float32 { return 0 })
	_, _, err := BuildProfile(img, stats.Aggregator{Method: stats.MethodMean}, 1, 1, NewDistCache(), io.Discard)
	if !errors.Is(err, ErrInsufficientRadialData) {
		t.Fatalf("got %v, want ErrInsufficientRadialData", err)
	}
}

func TestRefineNormalization(t *testing.T) {
	height, width := int32(200), int32(200)
	maxRad := math.Sqrt(float64(height/2*height/2 + width/2*width/2))
	d := NewDistCache()
	img := makeTestImage(height, width, func(i, j, c int32) float32 {
		return 1000 * (1 - 0.5*d.Dist(i, j, height, width)/float32(maxRad))
	})
	binned, rawMean, err := BuildProfile(img, stats.Aggregator{Method: stats.MethodMean}, 1, 1, NewDistCache(), io.Discard)
	if err != nil {
		t.Fatalf("profile: %s", err.Error())
	}
	set, err := Refine(binned, rawMean, true, io.Discard)
	if err != nil {
		t.Fatalf("refine: %s", err.Error())
	}
	for ch := 0; ch < 3; ch++ {
		max := float32(math.Inf(-1))
		for _, v := range set.Smoothed.Value[ch] {
			if v > max {
				max = v
			}
		}
		if max != 1.0 {
			t.Errorf("channel %d: smoothed maximum %f, want exactly 1.0", ch, max)
		}
	}
	if set.Smoothed.Len() != RadialResolution {
		t.Errorf("resampled length %d, want %d", set.Smoothed.Len(), RadialResolution)
	}

	// re-normalizing an already normalized profile must be a no-op
	again, err := Refine(set.Binned, set.RawMean, true, io.Discard)
	if err != nil {
		t.Fatalf("second refine: %s", err.Error())
	}
	for i := 0; i < set.Smoothed.Len(); i += 1000 {
		if !almostEqual(again.Smoothed.Value[0][i], set.Smoothed.Value[0][i], 1e-4) {
			t.Fatalf("renormalization changed sample %d: %f vs %f", i, again.Smoothed.Value[0][i], set.Smoothed.Value[0][i])
		}
	}
}

func TestGradientAndProfileRoundTrip(t *testing.T) {
	height, width := int32(200), int32(200)
	maxRad := float32(math.Sqrt(float64(height/2*height/2 + width/2*width/2)))
	slopeX, slopeY := float32(2), float32(-3)
	d := NewDistCache()
	img := makeTestImage(height, width, func(i, j, c int32) float32 {
		r := d.Dist(i, j, height, width) / maxRad
		gx := float32(j) / float32(width-1)
		gy := float32(i) / float32(height-1)
		// falloff f(r) = 1 - 0.5r plus a planar gradient centered at
		// the image midpoint
		return (1 - 0.5*r) + gx*slopeX + gy*slopeY - (slopeX+slopeY)/2
	})

	CorrectGradient(img, 1, io.Discard)
	residualX, residualY := CorrectGradient(img, 1, io.Discard)
	for c := 0; c < 4; c++ {
		if !almostEqual(residualX[c], 0, 0.05) || !almostEqual(residualY[c], 0, 0.05) {
			t.Errorf("channel %d: residual slopes x=%f y=%f, want approx 0", c, residualX[c], residualY[c])
		}
	}

	binned, rawMean, err := BuildProfile(img, stats.Aggregator{Method: stats.MethodSigmaClip, Sigma: 2}, 1, 1, NewDistCache(), io.Discard)
	if err != nil {
		t.Fatalf("profile: %s", err.Error())
	}
	set, err := Refine(binned, rawMean, true, io.Discard)
	if err != nil {
		t.Fatalf("refine: %s", err.Error())
	}
	// f(r) = 1 - 0.5r normalized by f(0) = 1 gives 0.75 at r = 0.5
	mid := set.Smoothed.Value[1][RadialResolution/2]
	if !almostEqual(mid, 0.75, 0.02) {
		t.Errorf("smoothed profile at r=0.5: got %f want approx 0.75", mid)
	}
}

func TestRenderFlatConstantProfile(t *testing.T) {
	profile := &Profile{MaxRadius: 1}
	profile.Radius = linspace(0, 1, RadialResolution)
	for ch := 0; ch < 3; ch++ {
		ones := make([]float32, RadialResolution)
		for i := range ones {
			ones[i] = 1
		}
		profile.Value[ch] = ones
	}

	height, width := int32(64), int32(64)
	flat, zeroFraction := RenderFlat(profile, false, height, width, NewDistCache(), io.Discard)

	zeros := 0
	for _, v := range flat.Data {
		switch v {
		case 0:
			zeros++
		case 65535:
			// written pixels of a constant profile scale to full range
		default:
			t.Fatalf("unexpected pixel value %f", v)
		}
	}
	if got := float64(zeros) / float64(len(flat.Data)); got != zeroFraction {
		t.Errorf("zero fraction: reported %f counted %f", zeroFraction, got)
	}
}

func TestRenderFlatGreyUsesGreenChannel(t *testing.T) {
	profile := &Profile{MaxRadius: 1}
	profile.Radius = linspace(0, 1, RadialResolution)
	for ch := 0; ch < 3; ch++ {
		vals := make([]float32, RadialResolution)
		for i := range vals {
			vals[i] = float32(ch + 1) // distinguishable constants per channel
		}
		profile.Value[ch] = vals
	}
	flat, _ := RenderFlat(profile, true, 32, 32, NewDistCache(), io.Discard)
	for _, v := range flat.Data {
		if v != 0 && v != 65535 {
			t.Fatalf("grey flat must be uniform where written, got %f", v)
		}
	}
}

func TestHistogramCircular(t *testing.T) {
	height, width := int32(100), int32(80)
	img := makeTestImage(height, width, func(i, j, c int32) float32 { return 1000 })
	d := NewDistCache()
	table, err := BuildHistograms(img, true, d)
	if err != nil {
		t.Fatalf("histograms: %s", err.Error())
	}

	inside := int32(0)
	for i := int32(0); i < height; i++ {
		for j := int32(0); j < width; j++ {
			dist := d.Dist(i, j, height, width)
			if dist > float32(height)/2 || dist > float32(width)/2 {
				continue
			}
			inside++
		}
	}
	for ch := 0; ch < 3; ch++ {
		total := int32(0)
		for _, c := range table.Counts[ch] {
			total += c
		}
		if total != inside {
			t.Errorf("channel %d: binned %d pixels, %d inside the circle", ch, total, inside)
		}
	}
}
