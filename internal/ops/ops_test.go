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
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mlnoga/synthflat/internal/fits"
	"github.com/valyala/fastrand"
)

func TestOpSequenceJSONRoundTrip(t *testing.T) {
	seq := NewOpSequence(NewOpGradient(4), NewOpBias(100, ""), NewOpSave("out_%d.tif"))
	data, err := json.Marshal(seq)
	if err != nil {
		t.Fatalf("marshal: %s", err.Error())
	}

	restored := NewOpSequenceDefault()
	if err = json.Unmarshal(data, restored); err != nil {
		t.Fatalf("unmarshal: %s", err.Error())
	}
	if len(restored.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(restored.Steps))
	}
	for i, want := range []string{"gradient", "bias", "save"} {
		if got := restored.Steps[i].GetType(); got != want {
			t.Errorf("step %d: got type %s, want %s", i, got, want)
		}
	}
	if g, ok := restored.Steps[0].(*OpGradient); !ok || g.Stride != 4 {
		t.Errorf("gradient stride not preserved: %+v", restored.Steps[0])
	}
	if b, ok := restored.Steps[1].(*OpBias); !ok || b.Level != 100 {
		t.Errorf("bias level not preserved: %+v", restored.Steps[1])
	}
}

func TestCacheRoundTrip(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(0xcafe)
	f := fits.NewImageFromNaxisn([]int32{8, 6, 4}, nil)
	for i := range f.Data {
		f.Data[i] = float32(rng.Uint32n(65536))
	}
	f.Mosaiced = true
	f.OrigNaxisn = []int32{16, 12}

	cacheName := filepath.Join(t.TempDir(), "frame_fits.bin.gz")
	if err := writeCache(cacheName, f); err != nil {
		t.Fatalf("write cache: %s", err.Error())
	}
	g, err := readCache(cacheName, 7, "frame.fits")
	if err != nil {
		t.Fatalf("read cache: %s", err.Error())
	}
	if g.ID != 7 || g.FileName != "frame.fits" {
		t.Errorf("identity not set: id %d file %s", g.ID, g.FileName)
	}
	if !g.Mosaiced || !fits.EqualInt32Slice(g.OrigNaxisn, f.OrigNaxisn) || !fits.EqualInt32Slice(g.Naxisn, f.Naxisn) {
		t.Errorf("geometry not preserved: mosaiced %v orig %v naxisn %v", g.Mosaiced, g.OrigNaxisn, g.Naxisn)
	}
	for i := range f.Data {
		if f.Data[i] != g.Data[i] {
			t.Fatalf("data[%d]: got %f want %f", i, g.Data[i], f.Data[i])
		}
	}
}

func TestOpLoadDebayersMosaic(t *testing.T) {
	dir := t.TempDir()
	fileName := filepath.Join(dir, "mosaic.fits")
	f := fits.NewImageFromNaxisn([]int32{8, 6}, nil)
	for i := range f.Data {
		f.Data[i] = float32(i + 1)
	}
	if err := f.WriteFile(fileName); err != nil {
		t.Fatalf("write: %s", err.Error())
	}

	c := NewContext(context.Background(), io.Discard)
	op := NewOpLoad(3, fileName)
	g, err := op.Apply(nil, c)
	if err != nil {
		t.Fatalf("load: %s", err.Error())
	}
	if !g.Mosaiced || g.Channels() != 4 {
		t.Fatalf("expected debayered 4-channel image, got mosaiced %v channels %d", g.Mosaiced, g.Channels())
	}
	if !fits.EqualInt32Slice(g.Naxisn, []int32{4, 3, 4}) || !fits.EqualInt32Slice(g.OrigNaxisn, []int32{8, 6}) {
		t.Errorf("dimensions: naxisn %v orig %v", g.Naxisn, g.OrigNaxisn)
	}
	// top-left RGGB quad of the mosaic
	if g.ChannelData(0)[0] != 1 || g.ChannelData(1)[0] != 2 || g.ChannelData(2)[0] != 9 || g.ChannelData(3)[0] != 10 {
		t.Errorf("plane seeds: got %f %f %f %f", g.ChannelData(0)[0], g.ChannelData(1)[0], g.ChannelData(2)[0], g.ChannelData(3)[0])
	}
}

func TestOpBiasSubtractsLevel(t *testing.T) {
	c := NewContext(context.Background(), io.Discard)
	f := fits.NewImageFromNaxisn([]int32{4, 4}, nil)
	for i := range f.Data {
		f.Data[i] = 1000
	}
	op := NewOpBias(100, "")
	g, err := op.Apply(f, c)
	if err != nil {
		t.Fatalf("bias: %s", err.Error())
	}
	for i := range g.Data {
		if g.Data[i] != 900 {
			t.Fatalf("data[%d]: got %f want 900", i, g.Data[i])
		}
	}
}

func TestRunBatchInterrupted(t *testing.T) {
	dir := t.TempDir()
	fileName := filepath.Join(dir, "frame.fits")
	f := fits.NewImageFromNaxisn([]int32{16, 16}, nil)
	for i := range f.Data {
		f.Data[i] = 1000
	}
	if err := f.WriteFile(fileName); err != nil {
		t.Fatalf("write: %s", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewContext(ctx, io.Discard)
	err := RunBatch([]string{fileName}, NewBatchOptionsDefault(), c)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v, want ErrInterrupted", err)
	}
}

func TestRunBatchSkipsUndecodable(t *testing.T) {
	dir := t.TempDir()
	fileName := filepath.Join(dir, "broken.fits")
	if err := os.WriteFile(fileName, []byte("not a FITS file"), 0644); err != nil {
		t.Fatalf("write: %s", err.Error())
	}
	c := NewContext(context.Background(), io.Discard)
	if err := RunBatch([]string{fileName}, NewBatchOptionsDefault(), c); err != nil {
		t.Fatalf("decode failures must not abort the batch: %s", err.Error())
	}
}

func TestRunBatchEndToEnd(t *testing.T) {
	dir := t.TempDir()
	fileName := filepath.Join(dir, "frame.fits")

	// radially symmetric mosaic with a mild falloff
	width, height := int32(128), int32(128)
	f := fits.NewImageFromNaxisn([]int32{width, height}, nil)
	for row := int32(0); row < height; row++ {
		for col := int32(0); col < width; col++ {
			dy := float64(row) - float64(height)/2
			dx := float64(col) - float64(width)/2
			r := math.Sqrt(dx*dx+dy*dy) / 90.5
			f.Data[row*width+col] = float32(1000 * (1 - 0.3*r))
		}
	}
	if err := f.WriteFile(fileName); err != nil {
		t.Fatalf("write: %s", err.Error())
	}

	opts := NewBatchOptionsDefault()
	opts.ExportCorrected = true
	opts.WriteCache = true
	c := NewContext(context.Background(), io.Discard)
	if err := RunBatch([]string{fileName}, opts, c); err != nil {
		t.Fatalf("batch: %s", err.Error())
	}

	outDir := filepath.Join(dir, "synthflat")
	for _, name := range []string{
		"frame_0_input.fits",
		"frame_1_gradcorr.fits",
		"frame_2_synthflat.tif",
		"frame_3_flatcorr.fits",
		"frame_radprof.jpg",
		filepath.Join("csv", "frame_histogram.csv"),
		filepath.Join("csv", "frame_radprof_0_raw_mean.csv"),
		filepath.Join("csv", "frame_radprof_1_clipped.csv"),
		filepath.Join("csv", "frame_radprof_2_cut.csv"),
		filepath.Join("csv", "frame_radprof_3_smooth.csv"),
		filepath.Join("cache", "frame_fits.bin.gz"),
	} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing artifact %s: %s", name, err.Error())
		}
	}

	// per-file state must not leak into the next file
	if c.Dist.Len() != 0 || c.Profiles != nil {
		t.Errorf("context not cleared: %d cached distances, profiles %v", c.Dist.Len(), c.Profiles)
	}
}
