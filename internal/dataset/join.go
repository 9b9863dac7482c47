package dataset

import (
	"fmt"
	"math"
	"sort"
)

// MergeOuter combines two datasets over the union of their index
// coordinates, sorted ascending. Points present in only one input carry
// NaN for the other input's variables. Variable names must not collide.
func MergeOuter(a, b *Dataset) (*Dataset, error) {
	for _, name := range b.order {
		if _, ok := a.vars[name]; ok {
			return nil, fmt.Errorf("%w: %q present in both inputs", ErrVarExists, name)
		}
	}
	if a.Cycles != 0 && b.Cycles != 0 && a.Cycles != b.Cycles {
		return nil, fmt.Errorf("%w: cycle dimension %d vs %d", ErrShape, a.Cycles, b.Cycles)
	}

	union := unionSorted(a.Index, b.Index)
	out := New(union)
	for k, v := range a.Attrs {
		out.Attrs[k] = v
	}
	for k, v := range b.Attrs {
		if _, ok := out.Attrs[k]; !ok {
			out.Attrs[k] = v
		}
	}

	for _, src := range []*Dataset{a, b} {
		pos := indexPositions(src.Index, union)
		for _, name := range src.order {
			v := src.vars[name]
			nv := &Variable{Dims: v.Dims, Attrs: v.Attrs}
			if v.IsCycled() {
				k := src.Cycles
				nv.Values = nanSlice(len(union) * k)
				for srcRow, outRow := range pos {
					copy(nv.Values[outRow*k:(outRow+1)*k], v.Values[srcRow*k:(srcRow+1)*k])
				}
			} else {
				nv.Values = nanSlice(len(union))
				for srcRow, outRow := range pos {
					nv.Values[outRow] = v.Values[srcRow]
				}
			}
			if err := out.AddVar(name, nv); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Concat appends datasets along the index dimension, preserving input
// order. The variable set is the union in first-seen order; variables
// absent from a part are NaN-filled for that part's points.
func Concat(parts []*Dataset) (*Dataset, error) {
	if len(parts) == 0 {
		return New(nil), nil
	}

	total := 0
	cycles := 0
	for _, p := range parts {
		total += p.Len()
		if p.Cycles != 0 {
			if cycles == 0 {
				cycles = p.Cycles
			} else if cycles != p.Cycles {
				return nil, fmt.Errorf("%w: cycle dimension %d vs %d", ErrShape, cycles, p.Cycles)
			}
		}
	}

	index := make([]int64, 0, total)
	for _, p := range parts {
		index = append(index, p.Index...)
	}
	out := New(index)
	out.Cycles = cycles

	var names []string
	dims := make(map[string][]string)
	attrs := make(map[string]map[string]string)
	for _, p := range parts {
		for k, v := range p.Attrs {
			if _, ok := out.Attrs[k]; !ok {
				out.Attrs[k] = v
			}
		}
		for _, name := range p.order {
			v := p.vars[name]
			if prev, ok := dims[name]; ok {
				if len(prev) != len(v.Dims) {
					return nil, fmt.Errorf("%w: %q is %d-D in one part, %d-D in another", ErrShape, name, len(prev), len(v.Dims))
				}
				continue
			}
			dims[name] = v.Dims
			attrs[name] = v.Attrs
			names = append(names, name)
		}
	}

	for _, name := range names {
		width := 1
		if len(dims[name]) == 2 {
			width = cycles
		}
		values := make([]float64, 0, total*width)
		for _, p := range parts {
			v := p.vars[name]
			if v == nil {
				values = append(values, nanSlice(p.Len()*width)...)
				continue
			}
			values = append(values, v.Values...)
		}
		nv := &Variable{Dims: dims[name], Values: values, Attrs: attrs[name]}
		if err := out.AddVar(name, nv); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// unionSorted returns the sorted set union of two index slices.
func unionSorted(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// indexPositions maps each source row to its row in the union index.
func indexPositions(src, union []int64) map[int]int {
	where := make(map[int64]int, len(union))
	for i, v := range union {
		where[v] = i
	}
	pos := make(map[int]int, len(src))
	for i, v := range src {
		if outRow, ok := where[v]; ok {
			pos[i] = outRow
		}
	}
	return pos
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
