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

package ops

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mlnoga/synthflat/internal/bayer"
	"github.com/mlnoga/synthflat/internal/fits"
	"github.com/mlnoga/synthflat/internal/stats"
)

// Saves given promise under a given filename, with pattern expansion for %d based on the image id.
// Mosaiced four-plane images are flattened back into their bayer mosaic before writing.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern string `json:"filePattern"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filenamePattern string) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpSave) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := op.FilePattern
	if strings.Contains(fileName, "%d") {
		fileName = fmt.Sprintf(op.FilePattern, f.ID)
	}
	fnLower := strings.ToLower(fileName)

	out := f
	if f.Mosaiced && f.Channels() == 4 {
		out = rebayer(f)
	}
	if out.Stats == nil {
		out.Stats = stats.CalcBasicStats(out.Data)
	}
	min, max := float32(0), out.Stats.Max

	if strings.HasSuffix(fnLower, ".fits") || strings.HasSuffix(fnLower, ".fit") || strings.HasSuffix(fnLower, ".fts") ||
		strings.HasSuffix(fnLower, ".fits.gz") || strings.HasSuffix(fnLower, ".fit.gz") || strings.HasSuffix(fnLower, ".fts.gz") ||
		strings.HasSuffix(fnLower, ".fits.gzip") || strings.HasSuffix(fnLower, ".fit.gzip") || strings.HasSuffix(fnLower, ".fts.gzip") {
		fmt.Fprintf(c.Log, "%d: Writing %s pixel FITS to %s\n", out.ID, out.DimensionsToString(), fileName)
		err = out.WriteFile(fileName)
	} else if strings.HasSuffix(fnLower, ".tiff") || strings.HasSuffix(fnLower, ".tif") {
		fmt.Fprintf(c.Log, "%d: Writing %s pixel 16-bit TIFF to %s\n", out.ID, out.DimensionsToString(), fileName)
		err = out.WriteTIFF16ToFile(fileName, min, max, 1.0)
	} else if strings.HasSuffix(fnLower, ".jpeg") || strings.HasSuffix(fnLower, ".jpg") {
		fmt.Fprintf(c.Log, "%d: Writing %s pixel JPEG to %s\n", out.ID, out.DimensionsToString(), fileName)
		err = out.WriteJPGToFile(fileName, min, max, 1.0, 95)
	} else {
		err = fmt.Errorf("unknown suffix %s", filepath.Ext(fileName))
	}
	if err != nil {
		return nil, fmt.Errorf("%d: error writing to file %s: %s", f.ID, fileName, err.Error())
	}
	return f, nil
}

// Flatten the four color planes of a debayered mosaic back into the
// original RGGB mosaic for export
func rebayer(f *fits.Image) *fits.Image {
	planeWidth, planeHeight := f.Naxisn[0], f.Naxisn[1]
	planePixels := int(planeWidth) * int(planeHeight)
	r := f.Data[0*planePixels : 1*planePixels]
	g1 := f.Data[1*planePixels : 2*planePixels]
	g2 := f.Data[2*planePixels : 3*planePixels]
	b := f.Data[3*planePixels : 4*planePixels]
	mosaic, width, height := bayer.Flatten(r, g1, g2, b, planeWidth, planeHeight)

	out := fits.NewImageFromNaxisn([]int32{width, height}, mosaic)
	out.ID, out.FileName, out.Exposure = f.ID, f.FileName, f.Exposure
	out.Stats = stats.CalcBasicStats(out.Data)
	return out
}
