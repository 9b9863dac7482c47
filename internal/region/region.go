// Package region clips datasets to named rectangular regions in
// projected polar-stereographic x/y coordinates.
package region

import (
	"fmt"
	"sort"

	"github.com/deepice-data/atlmerge/internal/dataset"
)

// Region is an axis-aligned bounding box in projected metres.
type Region struct {
	Name string
	XMin float64
	XMax float64
	YMin float64
	YMax float64
}

// Contains reports whether a point falls inside the box (inclusive).
func (r Region) Contains(x, y float64) bool {
	return x >= r.XMin && x <= r.XMax && y >= r.YMin && y <= r.YMax
}

// Subset returns the points of ds whose 1-D x/y coordinate variables
// fall inside the region.
func (r Region) Subset(ds *dataset.Dataset, xVar, yVar string) (*dataset.Dataset, error) {
	xv := ds.Var(xVar)
	yv := ds.Var(yVar)
	if xv == nil || yv == nil {
		return nil, fmt.Errorf("%w: need %q and %q", dataset.ErrVarNotFound, xVar, yVar)
	}
	if xv.IsCycled() || yv.IsCycled() {
		return nil, fmt.Errorf("%w: %q and %q must be per-point", dataset.ErrShape, xVar, yVar)
	}

	var keep []int
	for i := 0; i < ds.Len(); i++ {
		if r.Contains(xv.Values[i], yv.Values[i]) {
			keep = append(keep, i)
		}
	}
	return ds.Select(keep), nil
}

// Named regions of the Antarctic continent used in practice. Bounds are
// EPSG:3031 metres.
var named = map[string]Region{
	"antarctica":  {Name: "Antarctica", XMin: -2700000, XMax: 2800000, YMin: -2200000, YMax: 2300000},
	"kamb":        {Name: "Kamb Ice Stream", XMin: -411054.19240523444, XMax: -365489.6822096751, YMin: -739741.7702261859, YMax: -699564.516934089},
	"siple_coast": {Name: "Siple Coast", XMin: -1000000, XMax: 250000, YMin: -1000000, YMax: -100000},
	"whillans":    {Name: "Whillans Ice Stream", XMin: -350000, XMax: -100000, YMin: -700000, YMax: -450000},
}

// Lookup resolves a named region.
func Lookup(name string) (Region, bool) {
	r, ok := named[name]
	return r, ok
}

// Names lists the known region names, sorted.
func Names() []string {
	out := make([]string, 0, len(named))
	for name := range named {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
