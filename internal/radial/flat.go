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

	"github.com/mlnoga/synthflat/internal/fits"
)

// Reconstructs a full-resolution synthetic flat of the given dimensions from
// a smoothed, resampled radial profile. The output is a single plane in
// Bayer mosaic layout: each pixel takes the profile channel selected by its
// row/column parity (even/even R, mixed parity G, odd/odd B), or the green
// channel everywhere when greyFlat is set.
//
// Only one quadrant of center offsets (di,dj) is visited. Each visited
// offset writes its profile value to the 4 mirror pixels, and because the
// radius of offset (k*di, k*dj) is exactly k times the base radius, also to
// the mirror pixels of every integer multiple k while it stays within the
// quadrant. Offsets are visited in ascending (di, dj) order and multiples in
// ascending k order, and a pixel once written is never overwritten; this
// precedence decides which replica wins at coincident indices and must be
// kept stable across implementations.
//
// The result is normalized to its maximum and scaled to the 16-bit range.
// Pixels unreached by any (di,dj,k) combination remain exactly zero; their
// fraction is reported as a diagnostic and returned.
func RenderFlat(profile *Profile, greyFlat bool, height, width int32, dist *DistCache, logWriter io.Writer) (flat *fits.Image, zeroFraction float64) {
	halfHeight, halfWidth := height/2, width/2
	flat = fits.NewImageFromNaxisn([]int32{width, height}, nil)
	data := flat.Data

	// re-normalize each channel to its own maximum, idempotent when the
	// profile is already normalized
	var values [3][]float32
	for ch := 0; ch < 3; ch++ {
		max := float32(math.Inf(-1))
		for _, v := range profile.Value[ch] {
			if v > max {
				max = v
			}
		}
		if max == 1 {
			values[ch] = profile.Value[ch]
		} else {
			values[ch] = append([]float32(nil), profile.Value[ch]...)
			divideChannel(values[ch], max)
		}
	}

	// the true center lies between pixels for even dimensions
	centerI := float64(halfHeight) - 0.5
	centerJ := float64(halfWidth) - 0.5
	maxRad := float64(dist.Dist(0, 0, height, width))

	for di := int32(0); di < halfHeight; di++ {
		for dj := int32(0); dj < halfWidth; dj++ {
			i, j := halfHeight+di, halfWidth+dj
			if data[i*width+j] != 0 {
				continue
			}

			r := float64(dist.Dist(i, j, height, width)) / maxRad
			rIndex := int32(float64(RadialResolution-1) * r)

			for k := int32(1); k < halfHeight; k++ {
				if !(float64(di*k) < centerI && float64(dj*k) < centerJ) {
					break
				}
				iPlus, iMinus := halfHeight+di*k, halfHeight-1-di*k
				jPlus, jMinus := halfWidth+dj*k, halfWidth-1-dj*k
				writeFlatPixel(data, values, width, greyFlat, rIndex*k, iPlus, jPlus)
				writeFlatPixel(data, values, width, greyFlat, rIndex*k, iPlus, jMinus)
				writeFlatPixel(data, values, width, greyFlat, rIndex*k, iMinus, jPlus)
				writeFlatPixel(data, values, width, greyFlat, rIndex*k, iMinus, jMinus)
			}
		}
	}

	// normalize to the written maximum and scale to 16-bit range
	max := float32(math.Inf(-1))
	zeros := 0
	for _, v := range data {
		if v > max {
			max = v
		}
		if v == 0 {
			zeros++
		}
	}
	scale := float32(65535) / max
	for i := range data {
		data[i] *= scale
	}

	zeroFraction = float64(zeros) / float64(len(data))
	fmt.Fprintf(logWriter, "synthetic flat %dx%d, zero pixels %.6f%%\n", width, height, zeroFraction*100)
	return flat, zeroFraction
}

// Writes one profile value to pixel (i,j) unless the pixel already holds a
// value: the first writer wins. The profile channel follows the Bayer
// parity of the pixel position.
func writeFlatPixel(data []float32, values [3][]float32, width int32, greyFlat bool, rIndex, i, j int32) {
	pos := i*width + j
	if data[pos] != 0 {
		return
	}
	if greyFlat {
		data[pos] = values[1][rIndex]
		return
	}
	switch {
	case i%2 == 0 && j%2 == 0:
		data[pos] = values[0][rIndex] // R
	case i%2 == 1 && j%2 == 1:
		data[pos] = values[2][rIndex] // B
	default:
		data[pos] = values[1][rIndex] // G
	}
}
