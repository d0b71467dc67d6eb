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
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/mlnoga/synthflat/internal/fits"
	"github.com/mlnoga/synthflat/internal/stats"
)

// Radii closer than this margin to zero or to the corner radius carry too
// few or too distorted samples and are cut from the profile
const IgnoreRadiiMargin = 5

// Number of samples in the resampled radial profile, larger than the
// 16-bit output range so no two output levels share a sample
const RadialResolution = 100000

// Fewer valid radii than twice the ignore margin indicate the image does
// not support a usable radial profile
var ErrInsufficientRadialData = errors.New("insufficient radial data")

// A radial brightness profile: per row one normalized radius in [0,1] and
// one value for each of the channels R, pooled G and B. Radii are strictly
// increasing.
type Profile struct {
	MaxRadius int32        // integer corner radius of the source image
	Radius    []float32    // normalized radius per row
	Value     [3][]float32 // channel values per row: R, pooled G, B
	Counts    []int32      // samples per bin for R (G pools twice as many)
}

// Number of rows in the profile
func (p *Profile) Len() int {
	return len(p.Radius)
}

// Deep copy of the profile
func (p *Profile) Clone() *Profile {
	c := &Profile{
		MaxRadius: p.MaxRadius,
		Radius:    append([]float32(nil), p.Radius...),
		Counts:    append([]int32(nil), p.Counts...),
	}
	for ch := 0; ch < 3; ch++ {
		c.Value[ch] = append([]float32(nil), p.Value[ch]...)
	}
	return c
}

// per-radius sample bins for the three output channels
type radBins map[int32]*[3][]float32

// Bins all valid pixels of the bias-corrected 4-channel image by integer
// radius from the image center and aggregates each bin per channel with the
// given statistic, yielding the binned profile. A parallel arithmetic-mean
// profile is returned for diagnostic export. Pixels are skipped when any
// channel value is non-positive, when they fall inside the edge margin, or
// when they are not aligned to the sampling stride. The two green Bayer
// planes pool their samples into one shared green bin; R and B stay separate.
// Binning runs on up to maxThreads row bands; the statistics are order
// independent so the aggregate does not depend on the split.
// Returns ErrInsufficientRadialData when fewer rows than twice the radii
// margin survive; the profiles are still returned best-effort when non-empty.
func BuildProfile(f *fits.Image, agg stats.Aggregator, stride int32, maxThreads int, dist *DistCache, logWriter io.Writer) (binned, rawMean *Profile, err error) {
	width, height := f.Width(), f.Height()
	r, g1, g2, b, err := fourPlanes(f)
	if err != nil {
		return nil, nil, err
	}
	maxRad := int32(dist.Dist(0, 0, height, width))

	var bins radBins
	if maxThreads < 2 || height < 4*int32(maxThreads) {
		bins = binPixels(r, g1, g2, b, width, 0, height, stride, dist)
	} else {
		// bin row bands in parallel with private caches, then merge the
		// sample lists in band order so the bin contents are deterministic
		bands := make([]radBins, maxThreads)
		wg := sync.WaitGroup{}
		rowsPerBand := (height + int32(maxThreads) - 1) / int32(maxThreads)
		for t := 0; t < maxThreads; t++ {
			rowLo := int32(t) * rowsPerBand
			rowHi := rowLo + rowsPerBand
			if rowHi > height {
				rowHi = height
			}
			wg.Add(1)
			go func(t int, lo, hi int32) {
				defer wg.Done()
				bands[t] = binPixels(r, g1, g2, b, width, lo, hi, stride, NewDistCache())
			}(t, rowLo, rowHi)
		}
		wg.Wait()
		bins = bands[0]
		for _, band := range bands[1:] {
			for rad, samples := range band {
				if have, ok := bins[rad]; ok {
					for ch := 0; ch < 3; ch++ {
						have[ch] = append(have[ch], samples[ch]...)
					}
				} else {
					bins[rad] = samples
				}
			}
		}
	}

	radii := make([]int32, 0, len(bins))
	for rad := range bins {
		radii = append(radii, rad)
	}
	sort.Slice(radii, func(i, j int) bool { return radii[i] < radii[j] })

	binned = &Profile{MaxRadius: maxRad}
	rawMean = &Profile{MaxRadius: maxRad}
	for _, rad := range radii {
		samples := bins[rad]
		normRad := float32(rad) / float32(maxRad)

		mR, _ := stats.MeanStdDev(samples[0])
		mG, _ := stats.MeanStdDev(samples[1])
		mB, _ := stats.MeanStdDev(samples[2])
		rawMean.Radius = append(rawMean.Radius, normRad)
		rawMean.Value[0] = append(rawMean.Value[0], mR)
		rawMean.Value[1] = append(rawMean.Value[1], mG)
		rawMean.Value[2] = append(rawMean.Value[2], mB)
		rawMean.Counts = append(rawMean.Counts, int32(len(samples[0])))

		vR := agg.Apply(samples[0])
		vG := agg.Apply(samples[1])
		vB := agg.Apply(samples[2])
		if isNaN32(vR) || isNaN32(vG) || isNaN32(vB) {
			continue // statistic rejected all samples, drop the row
		}
		binned.Radius = append(binned.Radius, normRad)
		binned.Value[0] = append(binned.Value[0], vR)
		binned.Value[1] = append(binned.Value[1], vG)
		binned.Value[2] = append(binned.Value[2], vB)
		binned.Counts = append(binned.Counts, int32(len(samples[0])))
	}

	fmt.Fprintf(logWriter, "%d: radial profile with %d radii, max radius %d\n", f.ID, binned.Len(), maxRad)
	if binned.Len() <= 2*IgnoreRadiiMargin {
		if binned.Len() == 0 {
			return nil, nil, fmt.Errorf("%d: %w: no valid pixels", f.ID, ErrInsufficientRadialData)
		}
		return binned, rawMean, fmt.Errorf("%d: %w: only %d radii", f.ID, ErrInsufficientRadialData, binned.Len())
	}
	return binned, rawMean, nil
}

// Accumulates sample bins for the pixel rows [rowLo, rowHi)
func binPixels(r, g1, g2, b []float32, width, rowLo, rowHi, stride int32, dist *DistCache) radBins {
	height := int32(len(r)) / width
	bins := make(radBins)
	for i := rowLo; i < rowHi; i++ {
		if i < IgnoreEdge || i > height-IgnoreEdge || i%stride != 0 {
			continue
		}
		rowOffset := i * width
		for j := int32(0); j < width; j++ {
			if j < IgnoreEdge || j > width-IgnoreEdge || j%stride != 0 {
				continue
			}
			idx := rowOffset + j
			vR, vG1, vG2, vB := r[idx], g1[idx], g2[idx], b[idx]
			if !(vR > 0 && vG1 > 0 && vG2 > 0 && vB > 0) {
				continue
			}
			rad := int32(dist.Dist(i, j, height, width))
			samples, ok := bins[rad]
			if !ok {
				samples = &[3][]float32{}
				bins[rad] = samples
			}
			samples[0] = append(samples[0], vR)
			samples[1] = append(samples[1], vG1, vG2)
			samples[2] = append(samples[2], vB)
		}
	}
	return bins
}

// Returns the four Bayer channel planes of the image. A 3-channel image
// contributes its green plane twice; a mosaiced single plane must be
// debayered by the caller first.
func fourPlanes(f *fits.Image) (r, g1, g2, b []float32, err error) {
	switch f.Channels() {
	case 4:
		return f.ChannelData(0), f.ChannelData(1), f.ChannelData(2), f.ChannelData(3), nil
	case 3:
		g := f.ChannelData(1)
		return f.ChannelData(0), g, g, f.ChannelData(2), nil
	}
	return nil, nil, nil, nil, fmt.Errorf("%d: need a 3- or 4-channel image for radial profiles, have %d channels", f.ID, f.Channels())
}

func isNaN32(v float32) bool {
	return math.IsNaN(float64(v))
}
