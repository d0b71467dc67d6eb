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
	"github.com/mlnoga/synthflat/internal/fits"
	"github.com/mlnoga/synthflat/internal/stats"
)

// Number of histogram bins over the intensity range
const HistBins = 255

// Upper intensity bound of the histograms, 12-bit sensor range
const HistRange = 4096

// Per-channel intensity histograms over [0, HistRange) with a shared bin
// edge sequence, for tabular export
type HistTable struct {
	UpperEdges []float32 // upper bin edge per row, shared across channels
	Counts     [3][]int32
}

// Builds per-channel intensity histograms of the image, with the two green
// Bayer planes merged into one by averaging. When circular is set, only
// pixels within the inscribed circle of the image are counted.
func BuildHistograms(f *fits.Image, circular bool, dist *DistCache) (*HistTable, error) {
	width, height := f.Width(), f.Height()
	r, g1, g2, b, err := fourPlanes(f)
	if err != nil {
		return nil, err
	}

	g := make([]float32, len(g1))
	for i := range g {
		g[i] = 0.5 * (g1[i] + g2[i])
	}
	channels := [3][]float32{r, g, b}

	if circular {
		halfHeight, halfWidth := float32(height)/2, float32(width)/2
		for ch, plane := range channels {
			inside := make([]float32, 0, len(plane))
			for i := int32(0); i < height; i++ {
				for j := int32(0); j < width; j++ {
					d := dist.Dist(i, j, height, width)
					if d > halfHeight || d > halfWidth {
						continue
					}
					inside = append(inside, plane[i*width+j])
				}
			}
			channels[ch] = inside
		}
	}

	table := &HistTable{UpperEdges: make([]float32, HistBins)}
	for i := range table.UpperEdges {
		table.UpperEdges[i] = float32(i+1) * HistRange / HistBins
	}
	for ch, plane := range channels {
		table.Counts[ch] = make([]int32, HistBins)
		stats.Histogram(plane, 0, HistRange, table.Counts[ch])
	}
	return table, nil
}
