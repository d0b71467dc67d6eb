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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlnoga/synthflat/internal/fits"
)

// Options for a batch run over a set of image files
type BatchOptions struct {
	Statistics      string  `json:"statistics"` // aggregation method for radial bins
	Stride          int32   `json:"stride"`     // sample every stride-th row and column
	Bias            float32 `json:"bias"`
	BiasFile        string  `json:"biasFile"`
	Gradient        bool    `json:"gradient"`
	Histogram       bool    `json:"histogram"`
	RadProfile      bool    `json:"radProfile"`
	SynthFlat       bool    `json:"synthFlat"`
	WriteCache      bool    `json:"writeCache"`
	ExportCorrected bool    `json:"exportCorrected"`
	CircularHist    bool    `json:"circularHist"`
	GreyFlat        bool    `json:"greyFlat"`
	SkipPeak        bool    `json:"skipPeak"`
}

func NewBatchOptionsDefault() *BatchOptions {
	return &BatchOptions{
		Statistics: "sigma clip 2.0",
		Stride:     1,
		Gradient:   true,
		Histogram:  true,
		RadProfile: true,
		SynthFlat:  true,
	}
}

// Runs the flat derivation pipeline over the given files, strictly one file
// after the other. Artifacts land in a synthflat/ folder next to each input,
// with csv/ and cache/ subfolders. Files failing to decode are skipped; any
// later error aborts the remaining batch
func RunBatch(fileNames []string, opts *BatchOptions, c *Context) error {
	if len(fileNames) == 0 {
		return errors.New("no files to process")
	}
	for id, fileName := range fileNames {
		fmt.Fprintf(c.Log, "Processing %s (%d/%d)\n", filepath.Base(fileName), id+1, len(fileNames))

		f, err := loadBatchFile(id, fileName, opts, c)
		if err != nil {
			if errors.Is(err, ErrInterrupted) {
				return err
			}
			fmt.Fprintf(c.Log, "%d: Skipping %s: %s\n", id, fileName, err.Error())
			continue
		}

		seq := NewFilePipeline(fileName, opts)
		in := func() (*fits.Image, error) { return f, nil }
		outs, err := seq.MakePromises([]Promise{in}, c)
		if err != nil {
			return err
		}
		if _, err = MaterializeAll(outs, 1, true); err != nil {
			if errors.Is(err, ErrInterrupted) {
				return ErrInterrupted
			}
			return fmt.Errorf("%s: %s", fileName, err.Error())
		}

		fmt.Fprintf(c.Log, "%d: Finished %s, clearing %d cached distances\n", id, fileName, c.Dist.Len())
		c.Dist.Clear()
		c.Profiles = nil
	}
	return nil
}

// Creates the output folders for an input file and loads it, reading and
// optionally writing the decoded-image cache
func loadBatchFile(id int, fileName string, opts *BatchOptions, c *Context) (*fits.Image, error) {
	cachePath := filepath.Join(outputDir(fileName), "cache")
	for _, dir := range []string{outputDir(fileName), csvDir(fileName), cachePath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	opLoad := NewOpLoad(id, fileName)
	opLoad.CacheDir, opLoad.WriteCache = cachePath, opts.WriteCache
	promises, err := opLoad.MakePromises(nil, c)
	if err != nil {
		return nil, err
	}
	if err = c.Interrupted(); err != nil {
		return nil, err
	}
	return promises[0]()
}

// Builds the per-file stage sequence from the batch options
func NewFilePipeline(fileName string, opts *BatchOptions) *OpSequence {
	savePath, csvPath := outputDir(fileName), csvDir(fileName)
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	outExt := ".tif"
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".fit", ".fits", ".fts", ".gz", ".gzip":
		outExt = ".fits"
	}

	stride := opts.Stride
	if stride < 1 {
		stride = 1
	}

	seq := NewOpSequence()
	if opts.ExportCorrected {
		seq.Append(NewOpSave(filepath.Join(savePath, base+"_0_input"+outExt)))
	}
	if opts.Gradient {
		seq.Append(NewOpGradient(stride))
		if opts.ExportCorrected {
			seq.Append(NewOpSave(filepath.Join(savePath, base+"_1_gradcorr"+outExt)))
		}
	}
	seq.Append(NewOpBias(opts.Bias, opts.BiasFile))
	if opts.Histogram {
		seq.Append(NewOpHistogram(opts.CircularHist, filepath.Join(csvPath, base+"_histogram.csv")))
	}
	if opts.RadProfile || opts.SynthFlat {
		opProfile := NewOpRadProfile(opts.Statistics, stride, opts.SkipPeak)
		if opts.RadProfile {
			opProfile.CSVPattern = filepath.Join(csvPath, base+"_radprof_%s.csv")
			opProfile.PlotFile = filepath.Join(savePath, base+"_radprof.jpg")
		}
		seq.Append(opProfile)
	}
	if opts.SynthFlat {
		correctedFile := ""
		if opts.ExportCorrected {
			correctedFile = filepath.Join(savePath, base+"_3_flatcorr"+outExt)
		}
		seq.Append(NewOpSynthFlat(opts.GreyFlat, filepath.Join(savePath, base+"_2_synthflat.tif"), correctedFile))
	}
	seq.Active = true
	return seq
}

func outputDir(fileName string) string {
	return filepath.Join(filepath.Dir(fileName), "synthflat")
}

func csvDir(fileName string) string {
	return filepath.Join(outputDir(fileName), "csv")
}
