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

package stats

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

func almostEqual(a, b, epsilon float32) bool {
	return float32(math.Abs(float64(a-b))) <= epsilon
}

func TestParseAggregator(t *testing.T) {
	tests := []struct {
		in     string
		method Method
		sigma  float32
	}{
		{"mean", MethodMean, 0},
		{"median", MethodMedian, 0},
		{"min", MethodMin, 0},
		{"max", MethodMax, 0},
		{"sigma clip 2.0", MethodSigmaClip, 2.0},
		{"sigma clip 0.5", MethodSigmaClip, 0.5},
		{"Sigma Clip 8.0", MethodSigmaClip, 8.0},
	}
	for _, tc := range tests {
		a, err := ParseAggregator(tc.in)
		if err != nil {
			t.Errorf("%q: unexpected error %s", tc.in, err.Error())
			continue
		}
		if a.Method != tc.method || a.Sigma != tc.sigma {
			t.Errorf("%q: got %v sigma %f, want %v sigma %f", tc.in, a.Method, a.Sigma, tc.method, tc.sigma)
		}
	}
	if _, err := ParseAggregator("mode"); err == nil {
		t.Errorf("expected error for unknown method")
	}
	if _, err := ParseAggregator("sigma clip abc"); err == nil {
		t.Errorf("expected error for invalid sigma")
	}
}

func TestAggregatorApply(t *testing.T) {
	data := []float32{3, 1, 4, 1, 5, 9, 2, 6}
	if got := (Aggregator{Method: MethodMin}).Apply(data); got != 1 {
		t.Errorf("min: got %f want 1", got)
	}
	if got := (Aggregator{Method: MethodMax}).Apply(data); got != 9 {
		t.Errorf("max: got %f want 9", got)
	}
	if got := (Aggregator{Method: MethodMean}).Apply(data); !almostEqual(got, 3.875, 1e-6) {
		t.Errorf("mean: got %f want 3.875", got)
	}
	if got := (Aggregator{Method: MethodMedian}).Apply(data); !almostEqual(got, 3.5, 1e-6) {
		t.Errorf("median: got %f want 3.5", got)
	}
	empty := (Aggregator{Method: MethodMean}).Apply(nil)
	if !math.IsNaN(float64(empty)) {
		t.Errorf("empty: got %f want NaN", empty)
	}
}

func TestSigmaClippedMean(t *testing.T) {
	// an outlier far from the bulk must be rejected
	data := []float32{10, 10.1, 9.9, 10.05, 9.95, 10, 10.1, 9.9, 1000}
	got := SigmaClippedMean(data, 2, 2)
	if !almostEqual(got, 10, 0.1) {
		t.Errorf("got %f want approx 10", got)
	}
	// data must be unchanged
	if data[8] != 1000 {
		t.Errorf("input data was modified")
	}
	// uniform data converges immediately
	uniform := []float32{5, 5, 5, 5}
	if got := SigmaClippedMean(uniform, 2, 2); got != 5 {
		t.Errorf("uniform: got %f want 5", got)
	}
	// empty input yields NaN
	if got := SigmaClippedMean(nil, 2, 2); !math.IsNaN(float64(got)) {
		t.Errorf("empty: got %f want NaN", got)
	}
}

func TestFastApproxSigmaClippedMean(t *testing.T) {
	rng := fastrand.RNG{}
	data := make([]float32, 100000)
	for i := range data {
		data[i] = 100 + float32(rng.Uint32n(1000))/1000.0
	}
	got := FastApproxSigmaClippedMean(data, 2, 0.1)
	if !almostEqual(got, 100.5, 0.05) {
		t.Errorf("got %f want approx 100.5", got)
	}
}

func TestHistogramAndPeak(t *testing.T) {
	data := []float32{0.5, 1.5, 1.6, 1.7, 2.5, 3.5, 9.5, -1, 10, 11}
	bins := make([]int32, 10)
	Histogram(data, 0, 10, bins)
	total := int32(0)
	for _, b := range bins {
		total += b
	}
	if total != 7 {
		t.Errorf("in-range count: got %d want 7", total)
	}
	if bins[1] != 3 {
		t.Errorf("bin 1: got %d want 3", bins[1])
	}
	x, y := GetPeak(bins, 0, 10)
	if !almostEqual(x, 1.5, 1e-6) || y != 3 {
		t.Errorf("peak: got x=%f y=%f want x=1.5 y=3", x, y)
	}
}

func TestGetModeStdDevFromHistogram(t *testing.T) {
	// synthesize a gaussian-shaped histogram around 40 with sigma 5
	bins := make([]int32, 100)
	for i := range bins {
		x := float64(i) + 0.5
		bins[i] = int32(1000 * math.Exp(-0.5*(x-40)*(x-40)/25))
	}
	mode, stdDev, err := GetModeStdDevFromHistogram(bins, 0, 100)
	if err != nil {
		t.Fatalf("unexpected error %s", err.Error())
	}
	if !almostEqual(mode, 40, 1) {
		t.Errorf("mode: got %f want approx 40", mode)
	}
	if !almostEqual(stdDev, 5, 1) {
		t.Errorf("stdDev: got %f want approx 5", stdDev)
	}
}
