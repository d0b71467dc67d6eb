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

// Package conf loads and saves the persistent pipeline settings as YAML.
// Missing files and missing keys fall back to defaults.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mlnoga/synthflat/internal/ops"
	"gopkg.in/yaml.v3"
)

// Settings represents the pipeline configuration loaded from YAML
type Settings struct {
	Basics struct {
		// Statistics is the aggregation method for radial bins:
		// "mean", "median", "min", "max" or "sigma clip <s>"
		Statistics string `yaml:"statistics"`

		// Resolution samples every n-th row and column, notated "1/n"
		Resolution string `yaml:"resolution"`

		// Bias is a constant level subtracted from all pixels before analysis
		Bias float32 `yaml:"bias"`

		// BiasFile estimates the bias level from a reference frame instead
		BiasFile string `yaml:"biasFile"`
	} `yaml:"basics"`

	Options struct {
		Gradient   bool `yaml:"gradient"`
		Histogram  bool `yaml:"histogram"`
		RadProfile bool `yaml:"radProfile"`
		SynthFlat  bool `yaml:"synthFlat"`
	} `yaml:"options"`

	Output struct {
		// WriteCache persists decoded images as compressed binary caches
		WriteCache bool `yaml:"writeCache"`

		// ExportCorrected writes the input, gradient-corrected and
		// flat-corrected images alongside the synthetic flat
		ExportCorrected bool `yaml:"exportCorrected"`

		// CircularHistogram restricts histograms to the inscribed circle
		CircularHistogram bool `yaml:"circularHistogram"`

		// GreyFlat renders the flat from the green channel only
		GreyFlat bool `yaml:"greyFlat"`

		// SkipPeak cuts off radial profile samples inside an off-center peak
		SkipPeak bool `yaml:"skipPeak"`
	} `yaml:"output"`
}

// DefaultSettings returns the settings used when no file is present
func DefaultSettings() *Settings {
	s := &Settings{}
	s.Basics.Statistics = "sigma clip 2.0"
	s.Basics.Resolution = "1/1"
	s.Options.Gradient = true
	s.Options.Histogram = true
	s.Options.RadProfile = true
	s.Options.SynthFlat = true
	s.Output.SkipPeak = true
	return s
}

// Stride parses the "1/n" resolution notation into a sampling stride.
// Malformed values fall back to full resolution
func (s *Settings) Stride() int32 {
	res := strings.TrimSpace(s.Basics.Resolution)
	if !strings.HasPrefix(res, "1/") {
		return 1
	}
	n, err := strconv.Atoi(res[2:])
	if err != nil || n < 1 {
		return 1
	}
	return int32(n)
}

// BatchOptions converts the settings into options for a batch run
func (s *Settings) BatchOptions() *ops.BatchOptions {
	return &ops.BatchOptions{
		Statistics:      s.Basics.Statistics,
		Stride:          s.Stride(),
		Bias:            s.Basics.Bias,
		BiasFile:        s.Basics.BiasFile,
		Gradient:        s.Options.Gradient,
		Histogram:       s.Options.Histogram,
		RadProfile:      s.Options.RadProfile,
		SynthFlat:       s.Options.SynthFlat,
		WriteCache:      s.Output.WriteCache,
		ExportCorrected: s.Output.ExportCorrected,
		CircularHist:    s.Output.CircularHistogram,
		GreyFlat:        s.Output.GreyFlat,
		SkipPeak:        s.Output.SkipPeak,
	}
}

// LoadSettings loads settings from a YAML file.
// If the file doesn't exist, it returns the default settings
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("error parsing settings file: %w", err)
	}
	return s, nil
}

// SaveSettings saves the settings to a YAML file
func SaveSettings(s *Settings, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating settings directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing settings file: %w", err)
	}
	return nil
}
