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
	"bufio"
	"image"
	"image/color"
	"image/jpeg"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
)

const (
	plotWidth  = 1024
	plotHeight = 768
	plotMargin = 32
)

// Renders the binned sample points and the smoothed curve of a profile set
// as a JPEG line plot, one hue per channel, for visual inspection of the
// refinement result.
func (s *ProfileSet) WritePlotToFile(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	img := image.NewRGBA(image.Rect(0, 0, plotWidth, plotHeight))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	// axes
	grey := colorful.Color{R: 0.6, G: 0.6, B: 0.6}
	for x := plotMargin; x < plotWidth-plotMargin; x++ {
		img.Set(x, plotHeight-plotMargin, grey)
	}
	for y := plotMargin; y < plotHeight-plotMargin; y++ {
		img.Set(plotMargin, y, grey)
	}

	hues := [3]float64{0, 120, 240} // R, G, B
	for ch := 0; ch < 3; ch++ {
		line := colorful.Hsv(hues[ch], 0.9, 0.8)
		dots := colorful.Hsv(hues[ch], 0.5, 0.6)
		plotCurve(img, s.Smoothed.Radius, s.Smoothed.Value[ch], line)
		plotPoints(img, s.Binned.Radius, s.Binned.Value[ch], dots)
	}

	return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
}

// maps a (radius, value) pair to canvas coordinates; values in [0, 1.1]
// span the drawable vertical range
func plotPos(radius, value float32) (x, y int) {
	x = plotMargin + int(radius*float32(plotWidth-2*plotMargin))
	y = plotHeight - plotMargin - int(value/1.1*float32(plotHeight-2*plotMargin))
	return x, y
}

func plotCurve(img *image.RGBA, radii, values []float32, c color.Color) {
	prevY := -1
	for i := range radii {
		x, y := plotPos(radii[i], values[i])
		if x < plotMargin || x >= plotWidth-plotMargin || y < plotMargin || y >= plotHeight-plotMargin {
			prevY = -1
			continue
		}
		img.Set(x, y, c)
		// fill vertical gaps between successive samples
		if prevY >= 0 {
			step := 1
			if prevY > y {
				step = -1
			}
			for yy := prevY; yy != y; yy += step {
				img.Set(x, yy, c)
			}
		}
		prevY = y
	}
}

func plotPoints(img *image.RGBA, radii, values []float32, c color.Color) {
	for i := range radii {
		x, y := plotPos(radii[i], values[i])
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				if x+dx >= 0 && x+dx < plotWidth && y+dy >= 0 && y+dy < plotHeight {
					img.Set(x+dx, y+dy, c)
				}
			}
		}
	}
}
