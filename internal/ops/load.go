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
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlnoga/synthflat/internal/bayer"
	"github.com/mlnoga/synthflat/internal/fits"
	"github.com/mlnoga/synthflat/internal/stats"
)

// Magic number prefixing cached decoded images on disk
const cacheMagic uint32 = 0x53464331

// Load a single image from a single filename, debayering two-dimensional
// sources into four color planes. Reads and writes a compressed cache of the
// decoded planes when a cache directory is given. Takes zero inputs, produces
// one output
type OpLoad struct {
	OpBase
	ID         int    `json:"id"`
	FileName   string `json:"fileName"`
	CacheDir   string `json:"cacheDir"`
	WriteCache bool   `json:"writeCache"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load image from a file. Ignores any f argument provided
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	out := func() (f *fits.Image, err error) {
		// no inputs to materialize
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

func (op *OpLoad) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	cacheName := ""
	if op.CacheDir != "" {
		cacheName = filepath.Join(op.CacheDir, strings.ReplaceAll(filepath.Base(op.FileName), ".", "_")+".bin.gz")
		if f, err = readCache(cacheName, op.ID, op.FileName); err == nil {
			fmt.Fprintf(c.Log, "%d: Loaded cached %s image with %v for %s\n",
				f.ID, f.DimensionsToString(), f.Stats, f.FileName)
			return f, nil
		}
		// cache miss or stale cache, fall through to decoding
	}

	f, err = fits.NewImageFromFile(op.FileName, op.ID, c.Log)
	if err != nil {
		return nil, err
	}

	f.OrigNaxisn = append([]int32{}, f.Naxisn...)
	if len(f.Naxisn) == 2 {
		// two-dimensional sources are RGGB bayer mosaics
		r, g1, g2, b, pw, ph := bayer.Debayer(f.Data, f.Naxisn[0], f.Naxisn[1])
		planePixels := int(pw) * int(ph)
		data := make([]float32, 4*planePixels)
		for i, plane := range [][]float32{r, g1, g2, b} {
			copy(data[i*planePixels:(i+1)*planePixels], plane)
		}
		f.Data, f.Naxisn = data, []int32{pw, ph, 4}
		f.Pixels = int32(len(data))
		f.Mosaiced = true
		f.Stats = stats.CalcBasicStats(f.Data)
	}

	warning := ""
	if f.Stats.Max-f.Stats.Min < 1e-8 {
		warning = "; WARNING low dynamic range"
	}
	fmt.Fprintf(c.Log, "%d: Loaded %s image with %v from %s%s\n",
		f.ID, f.DimensionsToString(), f.Stats, f.FileName, warning)

	if op.WriteCache && cacheName != "" {
		if _, errStat := os.Stat(cacheName); os.IsNotExist(errStat) {
			if err = writeCache(cacheName, f); err != nil {
				fmt.Fprintf(c.Log, "%d: Unable to write cache %s: %s\n", f.ID, cacheName, err.Error())
			}
		}
	}
	return f, nil
}

// Read a cached decoded image. Any error invalidates the cache entry and
// triggers a fresh decode of the source file
func readCache(cacheName string, id int, fileName string) (f *fits.Image, err error) {
	file, err := os.Open(cacheName)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	gz, err := gzip.NewReader(bufio.NewReader(file))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var magic uint32
	if err = binary.Read(gz, binary.BigEndian, &magic); err != nil {
		return nil, err
	}
	if magic != cacheMagic {
		return nil, fmt.Errorf("invalid cache magic %x in %s", magic, cacheName)
	}
	var mosaiced uint8
	if err = binary.Read(gz, binary.BigEndian, &mosaiced); err != nil {
		return nil, err
	}
	origNaxisn, err := readInt32Slice(gz)
	if err != nil {
		return nil, err
	}
	naxisn, err := readInt32Slice(gz)
	if err != nil {
		return nil, err
	}
	numValues := int32(1)
	for _, n := range naxisn {
		numValues *= n
	}
	if numValues <= 0 {
		return nil, fmt.Errorf("invalid cached dimensions %v in %s", naxisn, cacheName)
	}
	data := make([]float32, numValues)
	if err = binary.Read(gz, binary.BigEndian, data); err != nil {
		return nil, err
	}

	f = fits.NewImageFromNaxisn(naxisn, data)
	f.ID, f.FileName = id, fileName
	f.Mosaiced = mosaiced != 0
	f.OrigNaxisn = origNaxisn
	f.Stats = stats.CalcBasicStats(f.Data)
	return f, nil
}

// Write the decoded planes of an image as a compressed binary cache entry
func writeCache(cacheName string, f *fits.Image) error {
	file, err := os.OpenFile(cacheName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()
	buf := bufio.NewWriter(file)
	defer buf.Flush()
	gz := gzip.NewWriter(buf)
	defer gz.Close()

	mosaiced := uint8(0)
	if f.Mosaiced {
		mosaiced = 1
	}
	if err = binary.Write(gz, binary.BigEndian, cacheMagic); err != nil {
		return err
	}
	if err = binary.Write(gz, binary.BigEndian, mosaiced); err != nil {
		return err
	}
	if err = writeInt32Slice(gz, f.OrigNaxisn); err != nil {
		return err
	}
	if err = writeInt32Slice(gz, f.Naxisn); err != nil {
		return err
	}
	return binary.Write(gz, binary.BigEndian, f.Data)
}

func readInt32Slice(r io.Reader) ([]int32, error) {
	var length int32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length < 0 || length > 4 {
		return nil, fmt.Errorf("invalid cached slice length %d", length)
	}
	values := make([]int32, length)
	if err := binary.Read(r, binary.BigEndian, values); err != nil {
		return nil, err
	}
	return values, nil
}

func writeInt32Slice(w io.Writer, values []int32) error {
	if err := binary.Write(w, binary.BigEndian, int32(len(values))); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, values)
}

// Load many images from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
	CacheDir     string   `json:"cacheDir"`
	WriteCache   bool     `json:"writeCache"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
	}
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if !isPathAllowed(match) {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			opLoad := NewOpLoad(len(outs), match)
			opLoad.CacheDir, opLoad.WriteCache = op.CacheDir, op.WriteCache
			promises, err := opLoad.MakePromises(nil, c)
			if err != nil {
				return nil, err
			}
			if len(promises) != 1 {
				return nil, fmt.Errorf("%s operator did not return exactly one promise", opLoad.Type)
			}
			outs = append(outs, promises[0])
		}
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v",
			op.Type, op.FilePatterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}
