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
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mlnoga/synthflat/internal/fits"
	"github.com/mlnoga/synthflat/internal/radial"
	"github.com/mlnoga/synthflat/internal/stats"
)

// Estimates and removes a planar illumination gradient from every channel.
// Takes n inputs, produces n outputs
type OpGradient struct {
	OpUnaryBase
	Stride int32 `json:"stride"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpGradientDefault() }) } // register the operator for JSON decoding

func NewOpGradientDefault() *OpGradient { return NewOpGradient(1) }

func NewOpGradient(stride int32) *OpGradient {
	op := &OpGradient{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "gradient", Active: true}},
		Stride:      stride,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpGradient) UnmarshalJSON(data []byte) error {
	type defaults OpGradient
	def := defaults(*NewOpGradientDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpGradient(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpGradient) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	stride := op.Stride
	if stride < 1 {
		stride = 1
	}
	radial.CorrectGradient(f, stride, c.Log)
	f.Stats = stats.CalcBasicStats(f.Data)
	return f, nil
}

// Subtracts a constant bias level from all pixels. The level is either given
// directly, or estimated once from a reference bias frame as the sigma-clipped
// mean of a random sample of its pixels. Takes n inputs, produces n outputs
type OpBias struct {
	OpUnaryBase
	Level    float32    `json:"level"`
	BiasFile string     `json:"biasFile"`
	mutex    sync.Mutex `json:"-"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpBiasDefault() }) } // register the operator for JSON decoding

func NewOpBiasDefault() *OpBias { return NewOpBias(0, "") }

func NewOpBias(level float32, biasFile string) *OpBias {
	op := &OpBias{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "bias", Active: true}},
		Level:       level,
		BiasFile:    biasFile,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpBias) UnmarshalJSON(data []byte) error {
	type defaults OpBias
	def := defaults(*NewOpBiasDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	// assigning defaults wholesale would copy the mutex, hence field by field
	op.OpUnaryBase = def.OpUnaryBase
	op.Level = def.Level
	op.BiasFile = def.BiasFile
	op.mutex = sync.Mutex{}

	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpBias) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if err = op.init(c); err != nil {
		return nil, err
	} // lazy estimation from the bias frame
	level := op.Level + c.Bias
	if level == 0 {
		return f, nil
	}
	data := f.Data
	for i := range data {
		data[i] -= level
	}
	f.Stats = stats.CalcBasicStats(f.Data)
	fmt.Fprintf(c.Log, "%d: Subtracted bias level %.2f, new stats %v\n", f.ID, level, f.Stats)
	return f, nil
}

// Estimate the bias level from the reference frame, once
func (op *OpBias) init(c *Context) error {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	if op.BiasFile == "" || c.Bias != 0 {
		return nil
	}
	frame, err := fits.NewImageFromFile(op.BiasFile, -1, c.Log)
	if err != nil {
		return fmt.Errorf("unable to load bias frame %s: %s", op.BiasFile, err.Error())
	}
	c.Bias = stats.FastApproxSigmaClippedMean(frame.Data, 2, 0.25)
	fmt.Fprintf(c.Log, "Estimated bias level %.2f from %s\n", c.Bias, op.BiasFile)
	return nil
}

// Builds per-channel histograms with merged green and writes them as CSV.
// Logs the histogram peak and a fitted normal mode per channel.
// Takes n inputs, produces n outputs
type OpHistogram struct {
	OpUnaryBase
	Circular bool   `json:"circular"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpHistogramDefault() }) } // register the operator for JSON decoding

func NewOpHistogramDefault() *OpHistogram { return NewOpHistogram(false, "") }

func NewOpHistogram(circular bool, fileName string) *OpHistogram {
	op := &OpHistogram{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "histogram", Active: true}},
		Circular:    circular,
		FileName:    fileName,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpHistogram) UnmarshalJSON(data []byte) error {
	type defaults OpHistogram
	def := defaults(*NewOpHistogramDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpHistogram(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpHistogram) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	table, err := radial.BuildHistograms(f, op.Circular, c.Dist)
	if err != nil {
		return nil, err
	}
	for ch := 0; ch < 3; ch++ {
		peakX, peakY := stats.GetPeak(table.Counts[ch], 0, radial.HistRange)
		mode, stdDev, err := stats.GetModeStdDevFromHistogram(table.Counts[ch], 0, radial.HistRange)
		if err != nil {
			fmt.Fprintf(c.Log, "%d: channel %d histogram peak %.1f (count %.0f), mode fit failed: %s\n",
				f.ID, ch, peakX, peakY, err.Error())
			continue
		}
		fmt.Fprintf(c.Log, "%d: channel %d histogram peak %.1f (count %.0f), mode %.1f stdDev %.1f\n",
			f.ID, ch, peakX, peakY, mode, stdDev)
	}
	if op.FileName != "" {
		if err = table.WriteCSVToFile(op.FileName); err != nil {
			return nil, fmt.Errorf("%d: error writing histogram CSV %s: %s", f.ID, op.FileName, err.Error())
		}
	}
	return f, nil
}

// Builds the binned radial profile and refines it into the smoothed,
// extrapolated and resampled variant used for flat reconstruction. Stores the
// result in the context, and optionally exports the four profile variants as
// CSV plus a diagnostic plot. Takes n inputs, produces n outputs
type OpRadProfile struct {
	OpUnaryBase
	Statistics string `json:"statistics"`
	Stride     int32  `json:"stride"`
	SkipPeak   bool   `json:"skipPeak"`
	CSVPattern string `json:"csvPattern"` // expanded with the variant name via %s
	PlotFile   string `json:"plotFile"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpRadProfileDefault() }) } // register the operator for JSON decoding

func NewOpRadProfileDefault() *OpRadProfile { return NewOpRadProfile("sigma clip 2.0", 1, false) }

func NewOpRadProfile(statistics string, stride int32, skipPeak bool) *OpRadProfile {
	op := &OpRadProfile{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "radProfile", Active: true}},
		Statistics:  statistics,
		Stride:      stride,
		SkipPeak:    skipPeak,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpRadProfile) UnmarshalJSON(data []byte) error {
	type defaults OpRadProfile
	def := defaults(*NewOpRadProfileDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpRadProfile(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpRadProfile) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	agg, err := stats.ParseAggregator(op.Statistics)
	if err != nil {
		return nil, err
	}
	stride := op.Stride
	if stride < 1 {
		stride = 1
	}

	binned, rawMean, err := radial.BuildProfile(f, agg, stride, c.MaxThreads, c.Dist, c.Log)
	if err != nil {
		if !errors.Is(err, radial.ErrInsufficientRadialData) || binned == nil || binned.Len() == 0 {
			return nil, err
		}
		// thin profiles are refined best-effort
		fmt.Fprintf(c.Log, "%d: %s\n", f.ID, err.Error())
	}
	set, err := radial.Refine(binned, rawMean, op.SkipPeak, c.Log)
	if err != nil {
		return nil, err
	}
	c.Profiles = set

	if op.CSVPattern != "" {
		for _, variant := range []struct {
			name    string
			profile *radial.Profile
		}{
			{"0_raw_mean", set.RawMean},
			{"1_clipped", set.Binned},
			{"2_cut", set.Cut},
			{"3_smooth", set.Smoothed},
		} {
			fileName := fmt.Sprintf(op.CSVPattern, variant.name)
			if err = variant.profile.WriteCSVToFile(fileName); err != nil {
				return nil, fmt.Errorf("%d: error writing profile CSV %s: %s", f.ID, fileName, err.Error())
			}
		}
	}
	if op.PlotFile != "" {
		if err = set.WritePlotToFile(op.PlotFile); err != nil {
			return nil, fmt.Errorf("%d: error writing profile plot %s: %s", f.ID, op.PlotFile, err.Error())
		}
	}
	return f, nil
}

// Renders the synthetic flat from the smoothed radial profile in the context,
// writes it, and optionally divides the input by the flat to export a
// flat-corrected version. Takes n inputs, produces n outputs
type OpSynthFlat struct {
	OpUnaryBase
	GreyFlat      bool   `json:"greyFlat"`
	FlatFile      string `json:"flatFile"`
	CorrectedFile string `json:"correctedFile"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSynthFlatDefault() }) } // register the operator for JSON decoding

func NewOpSynthFlatDefault() *OpSynthFlat { return NewOpSynthFlat(false, "", "") }

func NewOpSynthFlat(greyFlat bool, flatFile, correctedFile string) *OpSynthFlat {
	op := &OpSynthFlat{
		OpUnaryBase:   OpUnaryBase{OpBase: OpBase{Type: "synthFlat", Active: true}},
		GreyFlat:      greyFlat,
		FlatFile:      flatFile,
		CorrectedFile: correctedFile,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSynthFlat) UnmarshalJSON(data []byte) error {
	type defaults OpSynthFlat
	def := defaults(*NewOpSynthFlatDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpSynthFlat(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpSynthFlat) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if c.Profiles == nil || c.Profiles.Smoothed == nil {
		return nil, fmt.Errorf("%d: no radial profile available for synthetic flat", f.ID)
	}

	// the flat is rendered at the dimensions of the original mosaic
	width, height := f.Width(), f.Height()
	if f.Mosaiced && len(f.OrigNaxisn) >= 2 {
		width, height = f.OrigNaxisn[0], f.OrigNaxisn[1]
	}
	flat, zeroFraction := radial.RenderFlat(c.Profiles.Smoothed, op.GreyFlat, height, width, c.Dist, c.Log)
	flat.ID = f.ID
	if zeroFraction > 0.25 {
		fmt.Fprintf(c.Log, "%d: WARNING %.1f%% of synthetic flat pixels are unfilled\n", f.ID, zeroFraction*100)
	}

	if op.FlatFile != "" {
		save := NewOpSave(op.FlatFile)
		if _, err = save.Apply(flat, c); err != nil {
			return nil, err
		}
	}
	if op.CorrectedFile != "" {
		corrected, err := divideByFlat(f, flat)
		if err != nil {
			return nil, fmt.Errorf("%d: %s", f.ID, err.Error())
		}
		save := NewOpSave(op.CorrectedFile)
		if _, err = save.Apply(corrected, c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Divide the input image by the rendered flat, pixel by pixel. Mosaiced
// images are flattened back into their bayer mosaic first, so the division
// runs in the mosaic geometry of the flat. Unfilled flat pixels yield zero
func divideByFlat(f, flat *fits.Image) (*fits.Image, error) {
	in := f
	if f.Mosaiced && f.Channels() == 4 {
		in = rebayer(f)
	}
	width, height := in.Width(), in.Height()
	if width != flat.Width() || height != flat.Height() {
		return nil, fmt.Errorf("image dimensions %s differ from flat dimensions %s",
			in.DimensionsToString(), flat.DimensionsToString())
	}

	planePixels := int(width) * int(height)
	out := fits.NewImageFromImage(in)
	for ch := int32(0); ch < in.Channels(); ch++ {
		src := in.ChannelData(ch)
		dst := out.ChannelData(ch)
		for i := 0; i < planePixels; i++ {
			if fv := flat.Data[i]; fv != 0 {
				dst[i] = src[i] / fv
			} else {
				dst[i] = 0
			}
		}
	}
	out.Stats = stats.CalcBasicStats(out.Data)
	return out, nil
}
