// Package dataset implements a small labeled columnar dataset: float64
// variables sharing an int64 index coordinate (per-point reference id),
// optionally carrying a second cycle dimension. It provides the masking,
// renaming, joining and concatenation operations the merge pipeline needs.
package dataset

import (
	"errors"
	"fmt"
	"math"
)

// IndexDim is the shared per-point coordinate dimension.
const IndexDim = "ref_pt"

// CycleDim is the optional second dimension for per-cycle variables.
const CycleDim = "cycle_number"

var (
	ErrVarExists   = errors.New("variable already exists")
	ErrVarNotFound = errors.New("variable not found")
	ErrShape       = errors.New("variable shape does not match dataset")
)

// Variable is one named column: 1-D over the index dimension, or 2-D
// row-major over (index, cycle).
type Variable struct {
	Dims   []string
	Values []float64
	Attrs  map[string]string
}

// IsCycled reports whether the variable carries the cycle dimension.
func (v *Variable) IsCycled() bool {
	return len(v.Dims) == 2
}

// Dataset is an ordered collection of variables over a shared index.
type Dataset struct {
	Index  []int64
	Cycles int // length of the cycle dimension; 0 until a 2-D variable is added
	Attrs  map[string]string

	vars  map[string]*Variable
	order []string
}

// New creates an empty dataset over the given index coordinate.
func New(index []int64) *Dataset {
	return &Dataset{
		Index: index,
		Attrs: make(map[string]string),
		vars:  make(map[string]*Variable),
	}
}

// Len returns the number of points on the index dimension.
func (d *Dataset) Len() int { return len(d.Index) }

// VarNames returns variable names in insertion order.
func (d *Dataset) VarNames() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Var returns the named variable, or nil if absent.
func (d *Dataset) Var(name string) *Variable { return d.vars[name] }

// AddVar adds a variable, validating its shape against the dataset.
// The first 2-D variable fixes the cycle dimension length.
func (d *Dataset) AddVar(name string, v *Variable) error {
	if _, ok := d.vars[name]; ok {
		return fmt.Errorf("%w: %q", ErrVarExists, name)
	}
	switch len(v.Dims) {
	case 1:
		if v.Dims[0] != IndexDim {
			return fmt.Errorf("%w: %q has dims %v", ErrShape, name, v.Dims)
		}
		if len(v.Values) != len(d.Index) {
			return fmt.Errorf("%w: %q has %d values for %d points", ErrShape, name, len(v.Values), len(d.Index))
		}
	case 2:
		if v.Dims[0] != IndexDim || v.Dims[1] != CycleDim {
			return fmt.Errorf("%w: %q has dims %v", ErrShape, name, v.Dims)
		}
		n := len(d.Index)
		if n == 0 {
			if len(v.Values) != 0 {
				return fmt.Errorf("%w: %q has %d values for empty index", ErrShape, name, len(v.Values))
			}
		} else {
			if len(v.Values)%n != 0 {
				return fmt.Errorf("%w: %q has %d values for %d points", ErrShape, name, len(v.Values), n)
			}
			k := len(v.Values) / n
			if d.Cycles == 0 {
				d.Cycles = k
			} else if d.Cycles != k {
				return fmt.Errorf("%w: %q has %d cycles, dataset has %d", ErrShape, name, k, d.Cycles)
			}
		}
	default:
		return fmt.Errorf("%w: %q has %d dims", ErrShape, name, len(v.Dims))
	}
	if v.Attrs == nil {
		v.Attrs = make(map[string]string)
	}
	d.vars[name] = v
	d.order = append(d.order, name)
	return nil
}

// Rename renames a variable, preserving its position in the order.
func (d *Dataset) Rename(old, new string) error {
	v, ok := d.vars[old]
	if !ok {
		return fmt.Errorf("%w: %q", ErrVarNotFound, old)
	}
	if _, ok := d.vars[new]; ok {
		return fmt.Errorf("%w: %q", ErrVarExists, new)
	}
	delete(d.vars, old)
	d.vars[new] = v
	for i, name := range d.order {
		if name == old {
			d.order[i] = new
		}
	}
	return nil
}

// Row returns the per-cycle values of a 2-D variable at point i.
// For a 1-D variable it returns a single-element slice.
func (d *Dataset) Row(name string, i int) ([]float64, error) {
	v, ok := d.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrVarNotFound, name)
	}
	if !v.IsCycled() {
		return v.Values[i : i+1], nil
	}
	k := d.Cycles
	return v.Values[i*k : (i+1)*k], nil
}

// MaskFill replaces every occurrence of fill with NaN in place.
func MaskFill(values []float64, fill float64) {
	if math.IsNaN(fill) {
		return
	}
	for i, v := range values {
		if v == fill {
			values[i] = math.NaN()
		}
	}
}

// MaskWhere sets values of the target variable to NaN wherever the
// condition variable fails the predicate. Both variables must share the
// same shape.
func (d *Dataset) MaskWhere(target, cond string, keep func(float64) bool) error {
	tv, ok := d.vars[target]
	if !ok {
		return fmt.Errorf("%w: %q", ErrVarNotFound, target)
	}
	cv, ok := d.vars[cond]
	if !ok {
		return fmt.Errorf("%w: %q", ErrVarNotFound, cond)
	}
	if len(tv.Values) != len(cv.Values) {
		return fmt.Errorf("%w: %q and %q differ in length", ErrShape, target, cond)
	}
	for i, c := range cv.Values {
		if !keep(c) {
			tv.Values[i] = math.NaN()
		}
	}
	return nil
}

// Select returns a new dataset containing only the points at the given
// index positions, in the given order. Attributes are shared, values are
// copied.
func (d *Dataset) Select(rows []int) *Dataset {
	out := New(make([]int64, len(rows)))
	for i, r := range rows {
		out.Index[i] = d.Index[r]
	}
	out.Attrs = d.Attrs
	out.Cycles = 0
	for _, name := range d.order {
		v := d.vars[name]
		nv := &Variable{Dims: v.Dims, Attrs: v.Attrs}
		if v.IsCycled() {
			k := d.Cycles
			nv.Values = make([]float64, len(rows)*k)
			for i, r := range rows {
				copy(nv.Values[i*k:(i+1)*k], v.Values[r*k:(r+1)*k])
			}
		} else {
			nv.Values = make([]float64, len(rows))
			for i, r := range rows {
				nv.Values[i] = v.Values[r]
			}
		}
		// AddVar cannot fail here: shapes are constructed to match.
		if err := out.AddVar(name, nv); err != nil {
			panic(err)
		}
	}
	if out.Cycles == 0 {
		out.Cycles = d.Cycles
	}
	return out
}
