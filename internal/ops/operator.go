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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid"
	"github.com/mlnoga/synthflat/internal/fits"
	"github.com/mlnoga/synthflat/internal/radial"
	"github.com/pbnjay/memory"
)

// ErrInterrupted is returned when processing is cancelled between stages.
var ErrInterrupted = errors.New("processing interrupted")

// An execution context for operators
type Context struct {
	Ctx        context.Context
	Log        io.Writer
	MemoryMB   int // memory.TotalMemory()/1024/1024
	MaxThreads int `json:"maxThreads"`
	Dist       *radial.DistCache
	Bias       float32
	Profiles   *radial.ProfileSet
}

func NewContext(ctx context.Context, log io.Writer) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	maxThreads := cpuid.CPU.LogicalCores
	if maxThreads <= 0 {
		maxThreads = runtime.GOMAXPROCS(0)
	}
	return &Context{
		Ctx:        ctx,
		Log:        log,
		MemoryMB:   memoryMB,
		MaxThreads: maxThreads,
		Dist:       radial.NewDistCache(),
	}
}

// Interrupted returns ErrInterrupted once the context has been cancelled.
// Operators call this between stages, never inside pixel loops.
func (c *Context) Interrupted() error {
	if c.Ctx == nil {
		return nil
	}
	select {
	case <-c.Ctx.Done():
		return ErrInterrupted
	default:
		return nil
	}
}

// A promise for a FITS image. Returns a materialized image, or an error
type Promise func() (f *fits.Image, err error)

// Materializes all promises with given concurrency limit
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*fits.Image, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if !forget {
		outs = make([]*fits.Image, len(ins))
	}
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err := theIn() // materialize the promise
			if err != nil {
				errs <- err
				return
			}
			if !forget {
				outs[i] = f
			}
			errs <- nil
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for i := 0; i < len(ins); i++ { // collect errors
		e := <-errs
		if e != nil {
			if err == nil {
				err = e
			} else {
				err = fmt.Errorf("%s; %s", err.Error(), e.Error())
			}
		}
	}
	return RemoveNils(outs), err
}

// Remove nils from an array of fits.Images, editing the underlying array in place
func RemoveNils(images []*fits.Image) []*fits.Image {
	o := 0
	for i := 0; i < len(images); i += 1 {
		if images[i] != nil {
			images[o] = images[i]
			o += 1
		}
	}
	for i := o; i < len(images); i++ {
		images[i] = nil
	}
	return images[:o]
}

// An general image processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for subclasses of operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// A unary image processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *fits.Image, c *Context) (fOut *fits.Image, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(f *fits.Image, c *Context) (fOut *fits.Image, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("unary operator %s with zero inputs", op.Type)
	}
	outs = make([]Promise, len(ins))
	for i, in := range ins {
		outs[i] = op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *fits.Image, err error) {
		if f, err = in(); err != nil {
			return nil, err
		} // materialize input promise
		if err = c.Interrupted(); err != nil {
			return nil, err
		} // bail out between stages when cancelled
		if f, err = op.Apply(f, c); err != nil {
			return nil, fmt.Errorf("%s: %w", op.Type, err)
		} // errors name the failing stage
		return f, nil // wrap output in promise
	}
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false
	} // relative paths only
	if strings.Contains(p, "..") {
		return false
	} // no going outside the tree
	return true
}

// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps) > 0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	err := json.Unmarshal(b, (*alias)(op))
	if err != nil {
		return err
	}

	for _, raw := range op.StepsRaw {
		var step OpBase
		err = json.Unmarshal(raw, &step)
		if err != nil {
			return err
		}

		var i Operator
		if factory := GetOperatorFactory(step.Type); factory != nil {
			i = factory()
		} else {
			return fmt.Errorf("unknown operator type '%s' in raw JSON message '%s'", step.Type, string(raw))
		}
		err = json.Unmarshal(raw, i)
		if err != nil {
			return err
		}
		op.Steps = append(op.Steps, i)
	}
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ", \"active\":%v, \"steps\":", op.Active)
	inner, err = json.Marshal(op.Steps)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps) == 0 {
		return ins, nil
	}
	ins, err = steps[0].MakePromises(ins, c)
	if err != nil {
		return nil, err
	}
	return op.applyRecursive(steps[1:], ins, c)
}
