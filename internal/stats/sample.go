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

	"github.com/mlnoga/synthflat/internal/qsort"
	"github.com/valyala/fastrand"
)

// Returns the fast approximate median of the (presumably large) data by
// randomly sampling the given share and taking the median of that.
// Does not change the data.
func FastApproxMedian(data []float32, sampleShare float32) float32 {
	numSamples := int(float32(len(data)) * sampleShare)
	if numSamples < 1 {
		numSamples = 1
	}
	samples := make([]float32, numSamples)
	rng := fastrand.RNG{}
	for i := range samples {
		index := rng.Uint32n(uint32(len(data)))
		samples[i] = data[index]
	}
	return qsort.QSelectMedianFloat32(samples)
}

// Returns a fast approximate sigma-clipped mean of the (presumably large)
// data by randomly sampling the given share, then applying iterative sigma
// clipping with the given factor. Intended for dark level estimation from a
// bias frame, where a robust location estimate suffices and a full pass over
// tens of megapixels is wasteful. Does not change the data.
func FastApproxSigmaClippedMean(data []float32, sigma, sampleShare float32) float32 {
	numSamples := int(float32(len(data)) * sampleShare)
	if numSamples < 1 {
		numSamples = 1
	}
	samples := make([]float32, numSamples)
	rng := fastrand.RNG{}
	for i := range samples {
		index := rng.Uint32n(uint32(len(data)))
		samples[i] = data[index]
	}
	res := SigmaClippedMean(samples, sigma, sigma)
	if math.IsNaN(float64(res)) {
		mean, _ := MeanStdDev(samples)
		return mean
	}
	return res
}
