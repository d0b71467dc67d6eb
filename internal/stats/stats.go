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
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mlnoga/synthflat/internal/qsort"
)

// Basic statistics on data arrays
type BasicStats struct {
	Min    float32 // Minimum
	Max    float32 // Maximum
	Mean   float32 // Mean (average)
	StdDev float32 // Standard deviation (norm 2, sigma)
}

// Pretty print basic stats to string
func (s *BasicStats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g",
		s.Min, s.Max, s.Mean, s.StdDev)
}

// Calculate basic statistics for a data array.
func CalcBasicStats(data []float32) (s *BasicStats) {
	s = &BasicStats{}
	s.Min, s.Mean, s.Max = calcMinMeanMax(data)

	variance := calcVariance(data, s.Mean)
	s.StdDev = float32(math.Sqrt(float64(variance)))

	return s
}

// Calculate minimum, mean and maximum of given data
func calcMinMeanMax(data []float32) (min, mean, max float32) {
	mmin, mmean, mmax := data[0], float64(0), data[0]
	for _, v := range data {
		if v < mmin {
			mmin = v
		}
		if v > mmax {
			mmax = v
		}
		mmean += float64(v)
	}
	return mmin, float32(mmean / float64(len(data))), mmax
}

// Calculate variance of given data from provided mean
func calcVariance(data []float32, mean float32) (result float64) {
	variance := float64(0)
	for _, v := range data {
		diff := float64(v - mean)
		variance += diff * diff
	}
	return variance / float64(len(data))
}

func MeanStdDev(xs []float32) (mean, stdDev float32) {
	xmean := float32(0)
	for _, x := range xs {
		xmean += x
	}
	xmean /= float32(len(xs))
	xvar := float32(0)
	for _, x := range xs {
		diff := x - xmean
		xvar += diff * diff
	}
	xvar /= float32(len(xs))
	xstddev := float32(math.Sqrt(float64(xvar)))
	return xmean, xstddev
}

// Enumerated type of per-bin aggregation methods for radial profiles
type Method int

const (
	MethodMean Method = iota
	MethodMedian
	MethodMin
	MethodMax
	MethodSigmaClip
)

// An aggregator applies one statistic to an arbitrary-length sample set.
// Sigma is only relevant for MethodSigmaClip.
type Aggregator struct {
	Method Method  `json:"method"`
	Sigma  float32 `json:"sigma"`
}

// Parses an aggregation method from its user-facing name: one of
// "mean", "median", "min", "max" or "sigma clip <s>", e.g. "sigma clip 2.0".
func ParseAggregator(s string) (a Aggregator, err error) {
	ls := strings.ToLower(strings.TrimSpace(s))
	switch {
	case ls == "mean":
		return Aggregator{Method: MethodMean}, nil
	case ls == "median":
		return Aggregator{Method: MethodMedian}, nil
	case ls == "min":
		return Aggregator{Method: MethodMin}, nil
	case ls == "max":
		return Aggregator{Method: MethodMax}, nil
	case strings.HasPrefix(ls, "sigma clip"):
		sigma, err := strconv.ParseFloat(strings.TrimSpace(ls[len("sigma clip"):]), 32)
		if err != nil {
			return a, fmt.Errorf("invalid sigma in statistics method %q: %s", s, err.Error())
		}
		return Aggregator{Method: MethodSigmaClip, Sigma: float32(sigma)}, nil
	}
	return a, fmt.Errorf("unknown statistics method %q", s)
}

func (a Aggregator) String() string {
	switch a.Method {
	case MethodMean:
		return "mean"
	case MethodMedian:
		return "median"
	case MethodMin:
		return "min"
	case MethodMax:
		return "max"
	case MethodSigmaClip:
		return fmt.Sprintf("sigma clip %.1f", a.Sigma)
	}
	return "unknown"
}

// Applies the statistic to the given samples. Returns NaN for an empty
// sample set, or when sigma clipping rejects all samples.
// Reorders samples for the median method.
func (a Aggregator) Apply(samples []float32) float32 {
	if len(samples) == 0 {
		return float32(math.NaN())
	}
	switch a.Method {
	case MethodMedian:
		return qsort.QSelectMedianFloat32(samples)
	case MethodMin:
		min := samples[0]
		for _, v := range samples[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case MethodMax:
		max := samples[0]
		for _, v := range samples[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case MethodSigmaClip:
		return SigmaClippedMean(samples, a.Sigma, a.Sigma)
	}
	mean, _ := MeanStdDev(samples)
	return mean
}

// Iteration cap for sigma clipping, guards degenerate float cycling
const sigmaClipMaxIter = 50

// Returns the mean of the samples surviving iterative sigma clipping.
// Each round removes samples outside [mean-sigmaLow*stdDev, mean+sigmaHigh*stdDev]
// and recomputes mean and standard deviation, until no sample is rejected.
// Returns NaN when no samples survive. Does not change the data.
func SigmaClippedMean(data []float32, sigmaLow, sigmaHigh float32) float32 {
	if len(data) == 0 {
		return float32(math.NaN())
	}
	remaining := make([]float32, len(data))
	copy(remaining, data)

	for i := 0; i < sigmaClipMaxIter; i++ {
		mean, stdDev := MeanStdDev(remaining)
		lowBound := mean - sigmaLow*stdDev
		highBound := mean + sigmaHigh*stdDev

		kept := 0
		for _, r := range remaining {
			if r >= lowBound && r <= highBound {
				remaining[kept] = r
				kept++
			}
		}
		rejected := len(remaining) - kept
		remaining = remaining[:kept]

		if kept == 0 {
			return float32(math.NaN())
		}
		if rejected == 0 {
			break
		}
	}
	mean, _ := MeanStdDev(remaining)
	return mean
}
