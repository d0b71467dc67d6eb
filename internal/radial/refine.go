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
	"fmt"
	"io"
	"math"
)

// The four refinement stages of a radial profile, all independently
// exportable. All variants share the normalization of the smoothed curve,
// so the brightest resampled value per channel is exactly 1.
type ProfileSet struct {
	RawMean  *Profile // arithmetic mean per bin, diagnostic
	Binned   *Profile // selected statistic per bin, full radius range
	Cut      *Profile // after edge cut and optional peak skip
	Smoothed *Profile // smoothed, extrapolated, resampled onto the uniform grid
}

// Refines a binned radial profile into a smooth curve on a uniform grid of
// RadialResolution radii spanning [0,1]:
//  1. rows within the radii margin of the center or the corner are cut;
//  2. when skipPeak is set, a two-pass Savitzky-Golay filter locates each
//     channel's brightness peak, and the rising-edge rows inside the
//     outermost peak are dropped (skipped when the peak sits past the
//     profile middle, which indicates an unreliable detection);
//  3. each channel is smoothed with the same two-pass filter;
//  4. a quadratic ramp with zero slope at radius 0 and matching value and
//     clamped non-positive slope at the join extends the curve inward;
//  5. the last four samples are dropped and the remaining end slope extends
//     the curve linearly out to radius 1;
//  6. the curve is resampled onto the uniform grid with local quadratic
//     interpolation;
//  7. all variants are normalized by the per-channel maximum of the
//     resampled curve.
//
// The input profiles are not modified.
func Refine(binned, rawMean *Profile, skipPeak bool, logWriter io.Writer) (*ProfileSet, error) {
	set := &ProfileSet{
		RawMean: rawMean.Clone(),
		Binned:  binned.Clone(),
	}

	// cut edge radii
	margin := float32(IgnoreRadiiMargin) / float32(binned.MaxRadius)
	cut := &Profile{MaxRadius: binned.MaxRadius}
	for i, rad := range binned.Radius {
		if rad > margin && rad < 1-margin {
			cut.Radius = append(cut.Radius, rad)
			for ch := 0; ch < 3; ch++ {
				cut.Value[ch] = append(cut.Value[ch], binned.Value[ch][i])
			}
			cut.Counts = append(cut.Counts, binned.Counts[i])
		}
	}
	if cut.Len() <= 2*IgnoreRadiiMargin {
		return nil, fmt.Errorf("%w: only %d radii after edge cut", ErrInsufficientRadialData, cut.Len())
	}

	// skip the unreliable rising edge inside the brightness peak
	if skipPeak {
		maxInd := 0
		for ch := 0; ch < 3; ch++ {
			filtered := savgolFilter(cut.Value[ch], oddInt(float64(cut.Len())/10), 2)
			filtered = savgolFilter(filtered, oddInt(float64(cut.Len())/5), 2)
			if mi := argmax(filtered); mi > maxInd {
				maxInd = mi
			}
		}
		if maxInd > cut.Len()/2 {
			fmt.Fprintf(logWriter, "peak index %d beyond profile middle, skipping peak cut\n", maxInd)
		} else {
			cut.Radius = cut.Radius[maxInd:]
			for ch := 0; ch < 3; ch++ {
				cut.Value[ch] = cut.Value[ch][maxInd:]
			}
			cut.Counts = cut.Counts[maxInd:]
		}
	}
	set.Cut = cut

	// smooth, extrapolate and resample each channel
	smoothed := &Profile{MaxRadius: binned.MaxRadius}
	smoothed.Radius = linspace(0, 1, RadialResolution)
	for ch := 0; ch < 3; ch++ {
		y := savgolFilter(cut.Value[ch], oddInt(float64(cut.Len())/10), 2)
		y = savgolFilter(y, oddInt(float64(cut.Len())/5), 2)

		x, y := extrapolateInner(cut.Radius, y)
		x, y = extrapolateOuter(x, y)
		smoothed.Value[ch] = resampleQuadratic(x, y, smoothed.Radius)
	}
	set.Smoothed = smoothed

	// normalize all variants by the smoothed per-channel maximum
	for ch := 0; ch < 3; ch++ {
		max := float32(math.Inf(-1))
		for _, v := range smoothed.Value[ch] {
			if v > max {
				max = v
			}
		}
		divideChannel(set.RawMean.Value[ch], max)
		divideChannel(set.Binned.Value[ch], max)
		divideChannel(set.Cut.Value[ch], max)
		divideChannel(smoothed.Value[ch], max)
	}

	return set, nil
}

// Extends the profile from its innermost sample down to radius zero with a
// quadratic ramp that has zero slope at the center and matches the value and
// the clamped non-positive start slope at the join.
func extrapolateInner(x, y []float32) (xOut, yOut []float32) {
	xdist := x[1] - x[0]
	xlast, ylast := x[0], y[0]
	slope := (y[1] - y[0]) / xdist
	if slope > 0 {
		slope = 0
	}
	xadd := arange(0, xlast-xdist, xdist)
	xOut = append(xadd, x...)
	yOut = make([]float32, 0, len(xadd)+len(y))
	for _, xa := range xadd {
		yOut = append(yOut, ylast+slope/2*(xa*xa/xlast-xlast))
	}
	yOut = append(yOut, y...)
	return xOut, yOut
}

// Drops the last four samples, which carry a smoothing edge artifact, and
// extends the profile linearly out to radius 1 with the remaining end slope.
func extrapolateOuter(x, y []float32) (xOut, yOut []float32) {
	x, y = x[:len(x)-4], y[:len(y)-4]
	n := len(x)
	xdist := x[n-1] - x[n-2]
	xlast, ylast := x[n-1], y[n-1]
	slope := (y[n-1] - y[n-2]) / xdist
	xadd := arange(xlast+xdist, 1, xdist)
	xOut = append(x, xadd...)
	yOut = y
	for _, xa := range xadd {
		yOut = append(yOut, ylast+slope*(xa-xlast))
	}
	return xOut, yOut
}

// Resamples the curve (x, y) with x strictly increasing onto the target
// radii using the quadratic through the three samples nearest each target,
// extrapolating beyond the first and last sample.
func resampleQuadratic(x, y, targets []float32) []float32 {
	n := len(x)
	out := make([]float32, len(targets))
	seg := 0
	for i, t := range targets {
		for seg < n-2 && x[seg+1] < t {
			seg++
		}
		// quadratic window around the segment, clamped to valid range
		w := seg - 1
		if w < 0 {
			w = 0
		}
		if w > n-3 {
			w = n - 3
		}
		out[i] = lagrange3(x[w:w+3], y[w:w+3], t)
	}
	return out
}

// Evaluates the quadratic through three points at t
func lagrange3(x, y []float32, t float32) float32 {
	x0, x1, x2 := float64(x[0]), float64(x[1]), float64(x[2])
	tt := float64(t)
	l0 := (tt - x1) * (tt - x2) / ((x0 - x1) * (x0 - x2))
	l1 := (tt - x0) * (tt - x2) / ((x1 - x0) * (x1 - x2))
	l2 := (tt - x0) * (tt - x1) / ((x2 - x0) * (x2 - x1))
	return float32(float64(y[0])*l0 + float64(y[1])*l1 + float64(y[2])*l2)
}

func argmax(xs []float32) int {
	maxIndex := 0
	for i, v := range xs {
		if v > xs[maxIndex] {
			maxIndex = i
		}
	}
	return maxIndex
}

// Divides every element by the divisor. Division keeps the maximum at
// exactly 1 after normalization, a multiplication by the reciprocal does not.
func divideChannel(xs []float32, divisor float32) {
	for i := range xs {
		xs[i] /= divisor
	}
}

// Evenly spaced values from start up to but excluding stop
func arange(start, stop, step float32) []float32 {
	n := int(math.Ceil(float64((stop - start) / step)))
	if n < 0 {
		n = 0
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)*step
	}
	return out
}

// n evenly spaced values from start to stop inclusive
func linspace(start, stop float32, n int) []float32 {
	out := make([]float32, n)
	step := (stop - start) / float32(n-1)
	for i := range out {
		out[i] = start + float32(i)*step
	}
	return out
}
