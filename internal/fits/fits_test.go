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
	"bytes"
	"io"
	"testing"

	"github.com/valyala/fastrand"
)

func TestWriteReadRoundTrip(t *testing.T) {
	rng := fastrand.RNG{}
	img := NewImageFromNaxisn([]int32{17, 11}, nil)
	for i := range img.Data {
		img.Data[i] = float32(rng.Uint32n(65536))
	}

	buf := bytes.Buffer{}
	if err := img.Write(&buf); err != nil {
		t.Fatalf("write: %s", err.Error())
	}
	if buf.Len()%2880 != 0 {
		t.Errorf("file size %d not a multiple of the FITS block size", buf.Len())
	}

	back := NewImage()
	if err := back.Read(bytes.NewReader(buf.Bytes()), true, io.Discard); err != nil {
		t.Fatalf("read: %s", err.Error())
	}
	if !EqualInt32Slice(back.Naxisn, img.Naxisn) {
		t.Fatalf("naxisn: got %v want %v", back.Naxisn, img.Naxisn)
	}
	if back.Bitpix != -32 {
		t.Errorf("bitpix: got %d want -32", back.Bitpix)
	}
	for i := range img.Data {
		if back.Data[i] != img.Data[i] {
			t.Fatalf("pixel %d: got %f want %f", i, back.Data[i], img.Data[i])
		}
	}
}

func TestChannelHelpers(t *testing.T) {
	img := NewImageFromNaxisn([]int32{4, 3, 2}, nil)
	if img.Width() != 4 || img.Height() != 3 || img.Channels() != 2 {
		t.Fatalf("got %dx%dx%d want 4x3x2", img.Width(), img.Height(), img.Channels())
	}
	img.Data[12] = 42
	ch1 := img.ChannelData(1)
	if len(ch1) != 12 || ch1[0] != 42 {
		t.Errorf("channel 1: len %d first %f", len(ch1), ch1[0])
	}
}

func TestReadFileRejectsRaw(t *testing.T) {
	img := NewImage()
	if err := img.ReadFile("frame.cr2", true, io.Discard); err == nil {
		t.Errorf("expected decode error for camera raw file")
	}
}
