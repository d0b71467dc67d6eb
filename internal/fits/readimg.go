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
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"

	_ "golang.org/x/image/tiff" // register TIFF decoder
)

// Read a TIFF, PNG or JPEG file into the image, converting pixel values to
// float32 with 16 bits of range. Grayscale inputs become a single 2D plane,
// color inputs three planar channels R, G, B.
func (fits *Image) ReadImageFile(fileName string) error {
	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return err
	}

	bounds := img.Bounds()
	width, height := int32(bounds.Dx()), int32(bounds.Dy())
	fits.FileName = fileName
	fits.Bitpix = -32
	fits.Bzero, fits.Bscale = 0, 1

	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		fits.Naxisn = []int32{width, height}
		fits.Pixels = width * height
		fits.Data = make([]float32, fits.Pixels)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := fits.Data[int32(y-bounds.Min.Y)*width:]
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				g, _, _, _ := img.At(x, y).RGBA()
				row[x-bounds.Min.X] = float32(g)
			}
		}
	default:
		fits.Naxisn = []int32{width, height, 3}
		fits.Pixels = width * height * 3
		fits.Data = make([]float32, fits.Pixels)
		planePixels := width * height
		rPlane := fits.Data[:planePixels]
		gPlane := fits.Data[planePixels : 2*planePixels]
		bPlane := fits.Data[2*planePixels:]
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			offset := int32(y-bounds.Min.Y) * width
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				i := offset + int32(x-bounds.Min.X)
				rPlane[i] = float32(r)
				gPlane[i] = float32(g)
				bPlane[i] = float32(b)
			}
		}
	}
	return nil
}
