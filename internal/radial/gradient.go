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

	"github.com/mlnoga/synthflat/internal/fits"
	"github.com/mlnoga/synthflat/internal/stats"
)

// Pixels closer to an image edge than this margin are excluded from
// gradient estimation and radial profile binning
const IgnoreEdge = 10

// Estimates and subtracts a planar illumination gradient from every channel
// of the image, in place. Per channel, the sigma-clipped mean of every
// stride-th row resp. column (excluding the edge margin) is computed, and the
// mean first difference of those means yields the vertical resp. horizontal
// slope across the full image. The plane x*slopeX + y*slopeY - (slopeX+slopeY)/2
// with x,y in [0,1] is then subtracted. A near-constant channel yields slopes
// close to zero and the correction degenerates to a no-op.
// Returns the per-channel slopes for diagnostics.
func CorrectGradient(f *fits.Image, stride int32, logWriter io.Writer) (slopesX, slopesY []float32) {
	width, height := f.Width(), f.Height()
	channels := f.Channels()
	slopesX = make([]float32, channels)
	slopesY = make([]float32, channels)

	for c := int32(0); c < channels; c++ {
		data := f.ChannelData(c)

		rowMeans := make([]float32, 0, height/stride+1)
		for row := int32(0); row < height; row++ {
			if row < IgnoreEdge || row > height-IgnoreEdge {
				continue
			}
			if row%stride != 0 {
				continue
			}
			samples := data[row*width+IgnoreEdge : (row+1)*width-IgnoreEdge]
			rowMeans = append(rowMeans, stats.SigmaClippedMean(samples, 2, 2))
		}
		slopesY[c] = meanDiff(rowMeans) * float32(height) / float32(stride)

		colMeans := make([]float32, 0, width/stride+1)
		column := make([]float32, 0, height)
		for col := int32(0); col < width; col++ {
			if col < IgnoreEdge || col > width-IgnoreEdge {
				continue
			}
			if col%stride != 0 {
				continue
			}
			column = column[:0]
			for row := int32(IgnoreEdge); row < height-IgnoreEdge; row++ {
				column = append(column, data[row*width+col])
			}
			colMeans = append(colMeans, stats.SigmaClippedMean(column, 2, 2))
		}
		slopesX[c] = meanDiff(colMeans) * float32(width) / float32(stride)

		// subtract the fitted plane, centered at the image midpoint
		sx, sy := slopesX[c], slopesY[c]
		for row := int32(0); row < height; row++ {
			y := float32(row) / float32(height-1)
			base := y*sy - (sx+sy)/2
			rowData := data[row*width : (row+1)*width]
			for col := range rowData {
				x := float32(col) / float32(width-1)
				rowData[col] -= x*sx + base
			}
		}
	}

	fmt.Fprintf(logWriter, "%d: gradient slopes x %v y %v\n", f.ID, slopesX, slopesY)
	return slopesX, slopesY
}

// Mean of the first differences of xs, zero for fewer than two samples
func meanDiff(xs []float32) float32 {
	if len(xs) < 2 {
		return 0
	}
	sum := float32(0)
	for i := 1; i < len(xs); i++ {
		sum += xs[i] - xs[i-1]
	}
	return sum / float32(len(xs)-1)
}
