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

package conf

import (
	"path/filepath"
	"testing"
)

func TestLoadSettingsMissingFileGivesDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %s", err.Error())
	}
	if s.Basics.Statistics != "sigma clip 2.0" || !s.Options.SynthFlat || !s.Output.SkipPeak {
		t.Errorf("unexpected defaults: %+v", s)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s := DefaultSettings()
	s.Basics.Statistics = "median"
	s.Basics.Resolution = "1/4"
	s.Basics.Bias = 512
	s.Options.Histogram = false
	s.Output.GreyFlat = true

	if err := SaveSettings(s, path); err != nil {
		t.Fatalf("save: %s", err.Error())
	}
	g, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("load: %s", err.Error())
	}
	if g.Basics.Statistics != "median" || g.Basics.Bias != 512 || g.Options.Histogram || !g.Output.GreyFlat {
		t.Errorf("round trip mismatch: %+v", g)
	}
	if g.Stride() != 4 {
		t.Errorf("stride: got %d want 4", g.Stride())
	}
}

func TestStrideParsing(t *testing.T) {
	cases := []struct {
		in   string
		want int32
	}{
		{"1/1", 1}, {"1/2", 2}, {"1/8", 8}, {" 1/4 ", 4},
		{"", 1}, {"garbage", 1}, {"1/0", 1}, {"1/-3", 1},
	}
	s := DefaultSettings()
	for _, c := range cases {
		s.Basics.Resolution = c.in
		if got := s.Stride(); got != c.want {
			t.Errorf("stride(%q): got %d want %d", c.in, got, c.want)
		}
	}
}

func TestBatchOptionsMapping(t *testing.T) {
	s := DefaultSettings()
	s.Basics.Resolution = "1/2"
	s.Output.ExportCorrected = true
	o := s.BatchOptions()
	if o.Stride != 2 || !o.Gradient || !o.SynthFlat || !o.ExportCorrected || !o.SkipPeak {
		t.Errorf("mapping mismatch: %+v", o)
	}
}
