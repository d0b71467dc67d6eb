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

// Package bayer splits RGGB mosaiced sensor data into color planes
// and reassembles planes back into a mosaic.
package bayer

// Splits an RGGB mosaic of the given dimensions into four half-resolution
// planes R, G1, G2, B. Rows and columns are truncated to even counts.
// Plane order follows the mosaic cell layout: R at even row/even column,
// G1 at even row/odd column, G2 at odd row/even column, B at odd row/odd column.
func Debayer(mosaic []float32, width, height int32) (r, g1, g2, b []float32, planeWidth, planeHeight int32) {
	planeWidth, planeHeight = width>>1, height>>1
	numPixels := int(planeWidth) * int(planeHeight)
	r = make([]float32, numPixels)
	g1 = make([]float32, numPixels)
	g2 = make([]float32, numPixels)
	b = make([]float32, numPixels)

	for row := int32(0); row < planeHeight; row++ {
		srcEven := (row << 1) * width
		srcOdd := srcEven + width
		dst := row * planeWidth
		for col := int32(0); col < planeWidth; col++ {
			r[dst+col] = mosaic[srcEven+(col<<1)]
			g1[dst+col] = mosaic[srcEven+(col<<1)+1]
			g2[dst+col] = mosaic[srcOdd+(col<<1)]
			b[dst+col] = mosaic[srcOdd+(col<<1)+1]
		}
	}
	return r, g1, g2, b, planeWidth, planeHeight
}

// Averages the two green planes of an RGGB split into a single green channel.
func MergeGreen(g1, g2 []float32) (g []float32) {
	g = make([]float32, len(g1))
	for i := range g {
		g[i] = 0.5 * (g1[i] + g2[i])
	}
	return g
}

// Reassembles four half-resolution RGGB planes into a full-resolution mosaic
// of dimensions 2*planeWidth x 2*planeHeight, inverting Debayer.
func Flatten(r, g1, g2, b []float32, planeWidth, planeHeight int32) (mosaic []float32, width, height int32) {
	width, height = planeWidth<<1, planeHeight<<1
	mosaic = make([]float32, int(width)*int(height))

	for row := int32(0); row < planeHeight; row++ {
		dstEven := (row << 1) * width
		dstOdd := dstEven + width
		src := row * planeWidth
		for col := int32(0); col < planeWidth; col++ {
			mosaic[dstEven+(col<<1)] = r[src+col]
			mosaic[dstEven+(col<<1)+1] = g1[src+col]
			mosaic[dstOdd+(col<<1)] = g2[src+col]
			mosaic[dstOdd+(col<<1)+1] = b[src+col]
		}
	}
	return mosaic, width, height
}
