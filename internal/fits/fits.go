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
	"fmt"
	"strings"

	"github.com/mlnoga/synthflat/internal/stats"
)

// A FITS image.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output. Counted upwards from 0 for light frames. By convention, bias is -1
	FileName string // Original file name, if any, for log output.

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating.
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i].
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i].
	// Helps implement unsigned values with signed data types.
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y)
	Pixels int32   // Number of pixels in the image. Product of Naxisn[]

	Data []float32 // The image data. For multi-channel images, channels are stored planar

	Exposure float32 // Image exposure in seconds

	Mosaiced   bool    // True if the channels stem from splitting an RGGB sensor mosaic
	OrigNaxisn []int32 // Mosaic dimensions before splitting, when Mosaiced is set

	Stats *stats.BasicStats // Basic image statistics: min, mean, max
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		ID:       0,
		FileName: "",
		Header:   NewHeader(),
		Bitpix:   -32,
		Bzero:    0,
		Bscale:   1,
		Naxisn:   append([]int32(nil), naxisn...), // clone slice
		Pixels:   numPixels,
		Data:     data,
	}
}

// Creates a FITS image from given image. New data array will be allocated
func NewImageFromImage(img *Image) *Image {
	data := make([]float32, img.Pixels)
	return &Image{
		ID:         img.ID,
		FileName:   img.FileName,
		Header:     img.Header,
		Bitpix:     img.Bitpix,
		Bzero:      img.Bzero,
		Bscale:     img.Bscale,
		Naxisn:     append([]int32(nil), img.Naxisn...), // clone slice
		Pixels:     img.Pixels,
		Data:       data,
		Exposure:   img.Exposure,
		Mosaiced:   img.Mosaiced,
		OrigNaxisn: append([]int32(nil), img.OrigNaxisn...),
	}
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

const fitsBlockSize int = 2880  // Block size of FITS header and data units
const HeaderLineSize int = 80 // Line size of a FITS header

// Width of a single channel plane
func (f *Image) Width() int32 { return f.Naxisn[0] }

// Height of a single channel plane
func (f *Image) Height() int32 {
	if len(f.Naxisn) < 2 {
		return 1
	}
	return f.Naxisn[1]
}

// Number of channel planes, 1 for monochrome
func (f *Image) Channels() int32 {
	if len(f.Naxisn) < 3 {
		return 1
	}
	return f.Naxisn[2]
}

// Returns the data slice for the given channel plane
func (f *Image) ChannelData(channel int32) []float32 {
	planePixels := f.Width() * f.Height()
	return f.Data[channel*planePixels : (channel+1)*planePixels]
}

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Equal tells whether a and b contain the same elements.
// A nil argument is equivalent to an empty slice.
func EqualInt32Slice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
