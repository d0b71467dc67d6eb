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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"time"

	sf "github.com/mlnoga/synthflat/internal"
	"github.com/mlnoga/synthflat/internal/conf"
	"github.com/mlnoga/synthflat/internal/ops"
	"github.com/mlnoga/synthflat/internal/rest"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var logfile = flag.String("log", "", "mirror log output to `file`")
var settings = flag.String("settings", "", "load pipeline settings from YAML `file`, flags override")
var saveSettings = flag.String("saveSettings", "", "save the effective pipeline settings to YAML `file` and exit")

var statistics = flag.String("stats", "sigma clip 2.0", "statistics for radial bins, one of mean, median, min, max or 'sigma clip <s>'")
var resolution = flag.String("resolution", "1/1", "sample every n-th row and column, notated `1/n`")
var bias = flag.Float64("bias", 0, "constant bias level to subtract from all pixels")
var biasFile = flag.String("biasFile", "", "estimate the bias level from `file` instead of -bias")

var gradient = flag.Bool("gradient", true, "remove a planar illumination gradient before analysis")
var histogram = flag.Bool("histogram", true, "export per-channel histograms as CSV")
var radProfile = flag.Bool("radProfile", true, "export the radial profile variants as CSV plus a plot")
var synthFlat = flag.Bool("synthFlat", true, "render the synthetic flat as 16-bit TIFF")

var writeCache = flag.Bool("writeCache", false, "cache decoded images as compressed binaries for faster reruns")
var exportCorrected = flag.Bool("exportCorrected", false, "export input, gradient-corrected and flat-corrected images")
var circularHist = flag.Bool("circularHist", false, "restrict histograms to the inscribed circle")
var greyFlat = flag.Bool("greyFlat", false, "render a grey flat from the green channel only")
var skipPeak = flag.Bool("skipPeak", true, "cut off radial profile samples inside an off-center peak")

var chroot = flag.String("chroot", "", "serve mode: switch filesystem root to `directory` (requires root)")
var setuid = flag.Int("setuid", -1, "serve mode: switch user id after chroot, -1=no switch")

func main() {
	logWriter := sf.LogWriter()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Synthflat Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (flat|profile|histogram|serve|legal|version) (img0.fits ... imgn.fits)

Commands:
  flat      Derive synthetic flat fields from the input images
  profile   Compute and export radial profiles only
  histogram Compute and export channel histograms only
  serve     Run the processing pipeline as a REST server
  legal     Show license and attribution information
  version   Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *logfile != "" {
		if err := sf.LogAlsoToFile(*logfile); err != nil {
			sf.LogFatalf("Unable to open logfile '%s'\n", *logfile)
		}
		defer sf.LogSync()
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			sf.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			sf.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	s, err := loadSettings()
	if err != nil {
		sf.LogFatalf("Error loading settings: %s\n", err.Error())
	}
	if *saveSettings != "" {
		if err := conf.SaveSettings(s, *saveSettings); err != nil {
			sf.LogFatalf("Error saving settings: %s\n", err.Error())
		}
		sf.LogPrintf("Saved settings to %s\n", *saveSettings)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	opts := s.BatchOptions()
	switch args[0] {
	case "flat":
	case "profile":
		opts.SynthFlat = false
	case "histogram":
		opts.RadProfile, opts.SynthFlat = false, false
	}

	// cooperative cancellation on Ctrl-C, checked between pipeline stages
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	c := ops.NewContext(ctx, logWriter)

	switch args[0] {
	case "serve":
		rest.MakeSandbox(*chroot, *setuid)
		rest.Serve()

	case "flat", "profile", "histogram":
		fileNames, err := globArgs(args[1:])
		if err != nil {
			sf.LogFatalf("Error globbing filenames: %s\n", err.Error())
		}
		if err = ops.RunBatch(fileNames, opts, c); err != nil {
			if errors.Is(err, ops.ErrInterrupted) {
				sf.LogPrintf("Interrupted.\n")
				return
			}
			sf.LogFatalf("Error: %s\n", err.Error())
		}

	case "legal":
		sf.LogPrintf("%s\n", legal)

	case "version":
		sf.LogPrintf("Version %s\n", version)

	case "help", "?":
		flag.Usage()
		return

	default:
		fmt.Fprintf(os.Stderr, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	elapsed := time.Since(start)
	sf.LogPrintf("\nDone after %v\n", elapsed)

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			sf.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			sf.LogFatal("Could not write memory profile: ", err)
		}
	}
}

// Loads the settings file if given, then overrides with any flags set
// explicitly on the command line
func loadSettings() (*conf.Settings, error) {
	s := conf.DefaultSettings()
	if *settings != "" {
		var err error
		if s, err = conf.LoadSettings(*settings); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "stats":
			s.Basics.Statistics = *statistics
		case "resolution":
			s.Basics.Resolution = *resolution
		case "bias":
			s.Basics.Bias = float32(*bias)
		case "biasFile":
			s.Basics.BiasFile = *biasFile
		case "gradient":
			s.Options.Gradient = *gradient
		case "histogram":
			s.Options.Histogram = *histogram
		case "radProfile":
			s.Options.RadProfile = *radProfile
		case "synthFlat":
			s.Options.SynthFlat = *synthFlat
		case "writeCache":
			s.Output.WriteCache = *writeCache
		case "exportCorrected":
			s.Output.ExportCorrected = *exportCorrected
		case "circularHist":
			s.Output.CircularHistogram = *circularHist
		case "greyFlat":
			s.Output.GreyFlat = *greyFlat
		case "skipPeak":
			s.Output.SkipPeak = *skipPeak
		}
	})
	return s, nil
}

// Expands filename arguments with wildcards into the list of input files
func globArgs(args []string) (fileNames []string, err error) {
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			// no match, keep the literal name for a proper error downstream
			matches = []string{arg}
		}
		fileNames = append(fileNames, matches...)
	}
	if len(fileNames) == 0 {
		return nil, errors.New("no input files given")
	}
	return fileNames, nil
}
