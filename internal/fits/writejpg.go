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

package fits

import (
	"bufio"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"
)

// Normalizes a pixel value to [0,1] with the given offset and scale,
// replacing NaNs with zero and applying inverse gamma.
func normPixel(v, min, scale float32, gammaInv float64) float32 {
	v = (v - min) * scale
	if math.IsNaN(float64(v)) || v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if gammaInv != 1.0 {
		v = float32(math.Pow(float64(v), gammaInv))
	}
	return v
}

// Write a FITS image to JPG, using the given min, max and gamma.
// Writes RGB for 3-channel images, grayscale otherwise.
func (f *Image) WriteJPGToFile(fileName string, min, max, gamma float32, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	if f.Channels() == 3 {
		return f.WriteJPG(writer, min, max, gamma, quality)
	}
	return f.WriteMonoJPG(writer, min, max, gamma, quality)
}

// Write a 3-channel FITS image to JPG, using the given min, max and gamma.
func (f *Image) WriteJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	// convert pixels into Golang Image
	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	size := width * height
	img := image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1.0 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			r := normPixel(f.Data[yoffset+x], min, scale, gammaInv)
			g := normPixel(f.Data[yoffset+x+size], min, scale, gammaInv)
			b := normPixel(f.Data[yoffset+x+size*2], min, scale, gammaInv)
			c := color.RGBA{uint8(r * 255), uint8(g * 255), uint8(b * 255), 255}
			img.SetRGBA(x, y, c)
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

// Write a grayscale FITS image to JPG, using the given min, max and gamma.
func (f *Image) WriteMonoJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	// convert pixels into Golang Image
	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	img := image.NewGray(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1.0 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := normPixel(f.Data[yoffset+x], min, scale, gammaInv)
			img.SetGray(x, y, color.Gray{uint8(gray * 255)})
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
