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

// Package radial derives synthetic flat-field images from astronomical
// exposures. It removes planar illumination gradients, bins pixel values
// by distance from the image center into a radial brightness profile,
// refines and resamples that profile, and reconstructs a full-resolution
// flat by exploiting the 4-fold symmetry of radial vignetting.
package radial

import (
	"math"
)

// Memoizes Euclidean pixel distances from the image center.
// Distance is symmetric under swapping the two center offsets, so keys are
// stored with the smaller offset first, halving the distinct input space.
// Not safe for concurrent use. Clear between files to bound memory.
type DistCache struct {
	cache map[uint64]float32
}

func NewDistCache() *DistCache {
	return &DistCache{cache: make(map[uint64]float32)}
}

// Returns the Euclidean distance of pixel (i,j) from the center of an
// image with the given dimensions. Offsets are truncated to integers
// before lookup, matching the integer radius binning of the profile.
func (d *DistCache) Dist(i, j, height, width int32) float32 {
	dx := int32(math.Abs(float64(i) - float64(height)/2))
	dy := int32(math.Abs(float64(j) - float64(width)/2))
	if dx > dy {
		dx, dy = dy, dx
	}
	key := (uint64(uint32(dx)) << 32) | uint64(uint32(dy))
	if v, ok := d.cache[key]; ok {
		return v
	}
	v := float32(math.Sqrt(float64(dx)*float64(dx) + float64(dy)*float64(dy)))
	d.cache[key] = v
	return v
}

// Drops all memoized entries
func (d *DistCache) Clear() {
	d.cache = make(map[uint64]float32)
}

// Number of memoized entries
func (d *DistCache) Len() int {
	return len(d.cache)
}
